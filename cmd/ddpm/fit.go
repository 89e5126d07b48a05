package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ddpm/internal/checkpoint"
	"github.com/samcharles93/ddpm/internal/logger"
)

func fitCmd() *cli.Command {
	var (
		outPath string
		dtype   string
	)
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "out",
			Aliases:     []string{"o"},
			Usage:       "checkpoint path",
			Value:       "ddpm.safetensors",
			Destination: &outPath,
		},
		&cli.StringFlag{
			Name:        "dtype",
			Usage:       "weight precision (F32, F16, BF16, F64)",
			Value:       "F32",
			Destination: &dtype,
		},
	}
	for _, f := range engineFlags() {
		if f.Names()[0] != "checkpoint" {
			flags = append(flags, f)
		}
	}

	return &cli.Command{
		Name:  "fit",
		Usage: "Fit the reference denoiser to a toy dataset and save a checkpoint",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyEngineConfig(cmd, fileConfig)
			cfg, err := configFromFlags()
			if err != nil {
				return err
			}
			g, err := fitDenoiser(ctx, cfg, resolveSeed())
			if err != nil {
				return err
			}
			id, err := checkpoint.Save(outPath, cfg, g, checkpoint.WithDType(strings.ToUpper(dtype)))
			if err != nil {
				return err
			}
			logger.FromContext(ctx).Info("saved checkpoint", "path", outPath, "run_id", id, "dataset", datasetName)
			_, err = fmt.Fprintln(cmd.Root().Writer, id)
			return err
		},
	}
}
