package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkernel/internal/api"
	"github.com/samcharles93/qkernel/internal/logger"
	"github.com/samcharles93/qkernel/internal/requant"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		rps         float64
		burst       int
		maxAcc      int
		maxSamples  int
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the requantization HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.FloatFlag{
				Name:        "rate",
				Usage:       "requests per second across all clients",
				Value:       100,
				Destination: &rps,
			},
			&cli.IntFlag{
				Name:        "burst",
				Usage:       "request burst above --rate",
				Value:       20,
				Destination: &burst,
			},
			&cli.IntFlag{
				Name:        "max-acc",
				Usage:       "maximum accumulators per requantize request",
				Value:       api.DefaultLimits().MaxAcc,
				Destination: &maxAcc,
			},
			&cli.IntFlag{
				Name:        "max-samples",
				Usage:       "maximum parameter sets per verify request",
				Value:       api.DefaultLimits().MaxSamples,
				Destination: &maxSamples,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if cfg.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = cfg.ServerAddress
			}

			limits := api.DefaultLimits()
			limits.MaxAcc = maxAcc
			limits.MaxSamples = maxSamples
			server := api.NewServer(api.NewService(limits))

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			e.Use(api.RateLimit(rps, burst))
			server.Register(e)

			log.Info("starting server", "address", addr, "backend", requant.Current().Name, "rate", rps)
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
