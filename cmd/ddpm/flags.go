package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ddpm/internal/diffusion"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	debug      bool

	checkpointPath   string
	datasetName      string
	fitSamples       int64
	dims             int64
	timesteps        int64
	betaMin          float64
	betaMax          float64
	scheduleMode     string
	parameterization string
	seed             int64
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default $XDG_CONFIG_HOME/ddpm/config.yaml)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, json, text)",
			Value:       "auto",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// engineFlags describe where the engine comes from: either a checkpoint, or
// a schedule plus a Gaussian denoiser fitted to a toy dataset.
func engineFlags() []cli.Flag {
	def := diffusion.DefaultConfig()
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "checkpoint",
			Aliases:     []string{"ckpt"},
			Usage:       "load config and denoiser from a checkpoint written by fit",
			Destination: &checkpointPath,
		},
		&cli.StringFlag{
			Name:        "dataset",
			Aliases:     []string{"d"},
			Usage:       "toy dataset to fit the reference denoiser to",
			Value:       "swiss_roll",
			Destination: &datasetName,
		},
		&cli.Int64Flag{
			Name:        "fit-samples",
			Usage:       "points drawn from the dataset when fitting",
			Value:       10000,
			Destination: &fitSamples,
		},
		&cli.Int64Flag{
			Name:        "timesteps",
			Aliases:     []string{"T"},
			Usage:       "number of diffusion steps",
			Value:       int64(def.Timesteps),
			Destination: &timesteps,
		},
		&cli.Float64Flag{
			Name:        "beta-min",
			Usage:       "first variance of the schedule",
			Value:       def.BetaMin,
			Destination: &betaMin,
		},
		&cli.Float64Flag{
			Name:        "beta-max",
			Usage:       "last variance of the schedule",
			Value:       def.BetaMax,
			Destination: &betaMax,
		},
		&cli.StringFlag{
			Name:        "mode",
			Usage:       "beta interpolation (linear, quad)",
			Value:       string(def.Mode),
			Destination: &scheduleMode,
		},
		&cli.StringFlag{
			Name:        "param",
			Aliases:     []string{"parameterization"},
			Usage:       "denoiser target (eps, mu, x0)",
			Value:       def.Parameterization.String(),
			Destination: &parameterization,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "random seed (0 picks one from the clock)",
			Destination: &seed,
		},
	}
}

// scheduleFlags is the subset of engineFlags that defines the schedule.
func scheduleFlags() []cli.Flag {
	var out []cli.Flag
	for _, f := range engineFlags() {
		switch f.Names()[0] {
		case "timesteps", "beta-min", "beta-max", "mode":
			out = append(out, f)
		}
	}
	return out
}
