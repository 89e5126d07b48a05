package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"gonum.org/v1/gonum/stat"

	"github.com/samcharles93/ddpm/internal/dataset"
	"github.com/samcharles93/ddpm/internal/logger"
)

func lossCmd() *cli.Command {
	var (
		batch  int64
		rounds int64
	)
	return &cli.Command{
		Name:  "loss",
		Usage: "Evaluate the training objective of the denoiser on dataset batches",
		Flags: append(engineFlags(),
			&cli.Int64Flag{
				Name:        "batch",
				Usage:       "examples per evaluation",
				Value:       256,
				Destination: &batch,
			},
			&cli.Int64Flag{
				Name:        "rounds",
				Usage:       "number of batches to average over",
				Value:       20,
				Destination: &rounds,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			le, err := buildEngine(ctx, cmd)
			if err != nil {
				return err
			}
			if rounds <= 0 {
				return fmt.Errorf("rounds must be positive, got %d", rounds)
			}
			data, err := dataset.Load(datasetName, int(batch*rounds), le.seed+1)
			if err != nil {
				return err
			}
			it, err := dataset.NewIterator(data, int(batch), le.seed+2)
			if err != nil {
				return err
			}

			values := make([]float64, 0, rounds)
			for range rounds {
				if err := ctx.Err(); err != nil {
					return err
				}
				res, err := le.engine.Loss(ctx, it.Next(), nil)
				if err != nil {
					return err
				}
				values = append(values, res.Value)
			}
			mean, std := stat.MeanStdDev(values, nil)
			logger.FromContext(ctx).Info("loss", "param", le.engine.Parameterization().String(), "rounds", rounds, "mean", mean, "std", std)
			_, err = fmt.Fprintf(cmd.Root().Writer, "%s loss: %.6g ± %.3g over %d batches of %d\n",
				le.engine.Parameterization(), mean, std, rounds, batch)
			return err
		},
	}
}
