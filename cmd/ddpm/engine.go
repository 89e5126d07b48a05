package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ddpm/internal/checkpoint"
	"github.com/samcharles93/ddpm/internal/dataset"
	"github.com/samcharles93/ddpm/internal/denoiser"
	"github.com/samcharles93/ddpm/internal/diffusion"
	"github.com/samcharles93/ddpm/internal/logger"
	"github.com/samcharles93/ddpm/internal/schedule"
)

// loadedEngine is an engine together with what the CLI knows about its
// denoiser.
type loadedEngine struct {
	engine *diffusion.Engine
	den    denoiser.Parametric
	runID  string
	seed   int64
}

func resolveSeed() int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

// configFromFlags assembles a diffusion.Config from the engine flags.
func configFromFlags() (diffusion.Config, error) {
	mode, err := schedule.ParseMode(scheduleMode)
	if err != nil {
		return diffusion.Config{}, err
	}
	p, err := diffusion.ParseParameterization(parameterization)
	if err != nil {
		return diffusion.Config{}, err
	}
	cfg := diffusion.Config{
		Timesteps:        int(timesteps),
		BetaMin:          betaMin,
		BetaMax:          betaMax,
		Mode:             mode,
		Parameterization: p,
	}
	return cfg, cfg.Validate()
}

// fitDenoiser builds a Gaussian denoiser for cfg fitted to the configured
// dataset.
func fitDenoiser(ctx context.Context, cfg diffusion.Config, s int64) (*denoiser.Gaussian, error) {
	sched, err := cfg.Schedule()
	if err != nil {
		return nil, err
	}
	data, err := dataset.Load(datasetName, int(fitSamples), s)
	if err != nil {
		return nil, err
	}
	g, err := denoiser.NewGaussian(sched, cfg.Parameterization, data.RowSize())
	if err != nil {
		return nil, err
	}
	if err := g.Fit(data); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("fitted reference denoiser",
		"dataset", datasetName, "samples", fitSamples, "mean", g.Mean(), "std", g.Std())
	return g, nil
}

func buildEngine(ctx context.Context, c *cli.Command) (*loadedEngine, error) {
	applyEngineConfig(c, fileConfig)
	s := resolveSeed()
	log := logger.FromContext(ctx)

	if checkpointPath != "" {
		ck, err := checkpoint.Load(checkpointPath)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		e, den, err := ck.Restore(nil, diffusion.WithSeed(s))
		if err != nil {
			return nil, err
		}
		log.Info("restored checkpoint", "path", checkpointPath, "run_id", ck.RunID, "denoiser", ck.Kind,
			"timesteps", ck.Config.Timesteps, "param", ck.Config.Parameterization.String())
		return &loadedEngine{engine: e, den: den, runID: ck.RunID.String(), seed: s}, nil
	}

	cfg, err := configFromFlags()
	if err != nil {
		return nil, err
	}
	g, err := fitDenoiser(ctx, cfg, s)
	if err != nil {
		return nil, err
	}
	e, err := diffusion.New(cfg, g, diffusion.WithSeed(s))
	if err != nil {
		return nil, err
	}
	return &loadedEngine{engine: e, den: g, seed: s}, nil
}
