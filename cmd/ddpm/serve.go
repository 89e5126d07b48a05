package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ddpm/internal/api"
	"github.com/samcharles93/ddpm/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		maxBatch    int64
		storeSize   int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the sampling REST API",
		Flags: append(engineFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "max-batch",
				Usage:       "largest batch a single request may ask for",
				Value:       4096,
				Destination: &maxBatch,
			},
			&cli.Int64Flag{
				Name:        "keep",
				Usage:       "number of recent sample responses kept for GET /v1/samples/:id",
				Value:       64,
				Destination: &storeSize,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if fileConfig.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = fileConfig.ServerAddress
			}
			le, err := buildEngine(ctx, cmd)
			if err != nil {
				return err
			}

			service := api.NewSampleService(le.engine, api.ServiceConfig{
				Dims:     le.den.Dims(),
				MaxBatch: int(maxBatch),
				Kind:     le.den.Kind(),
				RunID:    le.runID,
			})
			server := api.NewServer(api.NewSampleStore(int(storeSize)), service)
			server.SetLogger(log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "param", le.engine.Parameterization().String())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
