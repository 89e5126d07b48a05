package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the ddpm configuration file
// ($XDG_CONFIG_HOME/ddpm/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	// Engine
	Checkpoint       string   `yaml:"checkpoint"`
	Dataset          string   `yaml:"dataset"`
	Timesteps        *int64   `yaml:"timesteps"`
	BetaMin          *float64 `yaml:"beta_min"`
	BetaMax          *float64 `yaml:"beta_max"`
	Mode             string   `yaml:"mode"`
	Parameterization string   `yaml:"parameterization"`
	Seed             *int64   `yaml:"seed"`

	// Sampling
	Workers *int64 `yaml:"workers"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	if configFile != "" {
		return configFile
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ddpm", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config; a
// file that exists but does not parse is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// applyLoggingConfig fills logging flags the user did not set.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyEngineConfig applies config file defaults to the engine flags when
// the corresponding flag was not explicitly set.
func applyEngineConfig(c *cli.Command, cfg Config) {
	if cfg.Checkpoint != "" && !c.IsSet("checkpoint") {
		checkpointPath = cfg.Checkpoint
	}
	if cfg.Dataset != "" && !c.IsSet("dataset") {
		datasetName = cfg.Dataset
	}
	if cfg.Timesteps != nil && !c.IsSet("timesteps") {
		timesteps = *cfg.Timesteps
	}
	if cfg.BetaMin != nil && !c.IsSet("beta-min") {
		betaMin = *cfg.BetaMin
	}
	if cfg.BetaMax != nil && !c.IsSet("beta-max") {
		betaMax = *cfg.BetaMax
	}
	if cfg.Mode != "" && !c.IsSet("mode") {
		scheduleMode = cfg.Mode
	}
	if cfg.Parameterization != "" && !c.IsSet("param") {
		parameterization = cfg.Parameterization
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
}
