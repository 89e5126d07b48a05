package main

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ddpm/internal/dataset"
)

func datasetsCmd() *cli.Command {
	var (
		dump string
		n    int64
	)
	return &cli.Command{
		Name:  "datasets",
		Usage: "List the toy datasets, or dump points from one",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dump",
				Usage:       "write points of this dataset as JSON",
				Destination: &dump,
			},
			&cli.Int64Flag{
				Name:        "n",
				Usage:       "number of points to dump",
				Value:       1000,
				Destination: &n,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "random seed (0 picks one from the clock)",
				Destination: &seed,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := cmd.Root().Writer
			if dump == "" {
				for _, name := range dataset.Names() {
					if _, err := fmt.Fprintln(w, name); err != nil {
						return err
					}
				}
				return nil
			}
			x, err := dataset.Load(dump, int(n), resolveSeed())
			if err != nil {
				return err
			}
			return json.NewEncoder(w).Encode(x.Rows())
		},
	}
}
