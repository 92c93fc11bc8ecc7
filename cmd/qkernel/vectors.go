package main

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkernel/internal/logger"
	"github.com/samcharles93/qkernel/internal/requant"
	"github.com/samcharles93/qkernel/internal/vectors"
)

func vectorsCmd() *cli.Command {
	return &cli.Command{
		Name:  "vectors",
		Usage: "Generate or replay golden requantization vectors",
		Commands: []*cli.Command{
			vectorsGenerateCmd(),
			vectorsCheckCmd(),
		},
	}
}

func vectorsGenerateCmd() *cli.Command {
	var (
		out   string
		count int
		types string
		seed  uint64
	)

	return &cli.Command{
		Name:  "generate",
		Usage: "Write a vector file with expected outputs from the reference pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output path",
				Value:       "vectors.json",
				Destination: &out,
			},
			&cli.IntFlag{
				Name:        "count",
				Aliases:     []string{"n"},
				Usage:       "random cases per type",
				Value:       1000,
				Destination: &count,
			},
			&cli.StringFlag{
				Name:        "type",
				Aliases:     []string{"t"},
				Usage:       "output type (int8, uint8, int16, all)",
				Value:       "all",
				Destination: &types,
			},
			&cli.Uint64Flag{
				Name:        "seed",
				Usage:       "random seed",
				Value:       1,
				Destination: &seed,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cfg.Seed != nil && !cmd.IsSet("seed") {
				seed = *cfg.Seed
			}
			typs, err := sweepTypes(types)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}
			if count < 0 {
				return cli.Exit("error: --count must not be negative", 2)
			}

			rng := rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))
			file := &vectors.File{Version: vectors.Version}
			for i, typ := range typs {
				f, err := vectors.Generate(rng, count, typ)
				if err != nil {
					return err
				}
				// Every generated file starts with the fixed scenarios; keep one copy.
				if i > 0 {
					f.Cases = f.Cases[len(vectors.Scenarios()):]
				}
				file.Cases = append(file.Cases, f.Cases...)
			}
			if err := vectors.Save(out, file); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("vectors written", "path", out, "cases", len(file.Cases), "seed", seed)
			return nil
		},
	}
}

func vectorsCheckCmd() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Replay a vector file against the selected backend",
		ArgsUsage: "<file>",
		Flags:     []cli.Flag{jsonFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: expected one vector file", 2)
			}
			return verifyVectors(ctx, cmd.Root().Writer, cmd.Args().First(), requant.Current())
		},
	}
}
