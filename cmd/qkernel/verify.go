package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkernel/internal/logger"
	"github.com/samcharles93/qkernel/internal/requant"
	"github.com/samcharles93/qkernel/internal/vectors"
	"github.com/samcharles93/qkernel/internal/verify"
	"github.com/samcharles93/qkernel/pkg/quant"
)

func verifyCmd() *cli.Command {
	var (
		types      string
		samples    int
		perSample  int
		exhaustive bool
		radius     int32
		vectorFile string
		seed       uint64
		workers    int
		noProgress bool
	)

	return &cli.Command{
		Name:  "verify",
		Usage: "Check the selected backend against the reference pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "type",
				Aliases:     []string{"t"},
				Usage:       "output type to sweep (int8, uint8, int16, all)",
				Value:       "all",
				Destination: &types,
			},
			&cli.IntFlag{
				Name:        "samples",
				Aliases:     []string{"n"},
				Usage:       "random parameter sets per type",
				Value:       1000,
				Destination: &samples,
			},
			&cli.IntFlag{
				Name:        "per-sample",
				Usage:       "accumulators drawn per parameter set",
				Value:       1024,
				Destination: &perSample,
			},
			&cli.BoolFlag{
				Name:        "exhaustive",
				Usage:       "check every accumulator in [-radius, radius] instead of sampling",
				Destination: &exhaustive,
			},
			&cli.Int32Flag{
				Name:        "radius",
				Usage:       "accumulator radius for --exhaustive",
				Value:       1 << 16,
				Destination: &radius,
			},
			&cli.StringFlag{
				Name:        "vectors",
				Usage:       "replay a golden vector file instead of sweeping",
				Destination: &vectorFile,
			},
			&cli.Uint64Flag{
				Name:        "seed",
				Usage:       "random seed",
				Value:       1,
				Destination: &seed,
			},
			&cli.IntFlag{
				Name:        "workers",
				Usage:       "parallel parameter sets (0 = GOMAXPROCS)",
				Destination: &workers,
			},
			&cli.BoolFlag{
				Name:        "no-progress",
				Usage:       "disable the progress bar",
				Destination: &noProgress,
			},
			jsonFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			b := requant.Current()
			w := cmd.Root().Writer

			if vectorFile != "" {
				return verifyVectors(ctx, w, vectorFile, b)
			}

			if cfg.VerifySamples != nil && !cmd.IsSet("samples") {
				samples = *cfg.VerifySamples
			}
			if cfg.Seed != nil && !cmd.IsSet("seed") {
				seed = *cfg.Seed
			}
			typs, err := sweepTypes(types)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}

			var (
				reports []verify.Report
				failed  bool
			)
			for _, typ := range typs {
				vc := verify.Config{
					Type:             typ,
					Backend:          b,
					Samples:          samples,
					PerSample:        perSample,
					Exhaustive:       exhaustive,
					ExhaustiveRadius: radius,
					Seed:             seed,
					Workers:          workers,
				}
				var bar *progressbar.ProgressBar
				if !noProgress && !jsonOutput {
					bar = newSweepBar(samples, fmt.Sprintf("%s %s", b.Name, typ))
					vc.Progress = func(done, total int) { _ = bar.Set(done) }
				}
				log.Debug("sweep starting", "backend", b.Name, "type", typ.String(), "samples", samples, "exhaustive", exhaustive)
				rep, err := verify.Sweep(ctx, vc)
				if bar != nil {
					_ = bar.Close()
				}
				if err != nil {
					return err
				}
				log.Info("sweep finished", "backend", rep.Backend, "type", rep.Type, "checked", rep.Checked, "failures", rep.FailureCount, "took", rep.Duration)
				failed = failed || !rep.OK()
				reports = append(reports, rep)
			}

			if jsonOutput {
				if err := writeJSON(w, reports); err != nil {
					return err
				}
			} else {
				for _, rep := range reports {
					printReport(w, rep)
				}
			}
			if failed {
				return cli.Exit("verification failed", 1)
			}
			return nil
		},
	}
}

func sweepTypes(s string) ([]quant.Type, error) {
	if s == "all" || s == "" {
		return []quant.Type{quant.TypeInt8, quant.TypeUint8, quant.TypeInt16}, nil
	}
	t, err := quant.ParseType(s)
	if err != nil {
		return nil, err
	}
	return []quant.Type{t}, nil
}

func newSweepBar(total int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("sets"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionClearOnFinish(),
	)
}

func printReport(w io.Writer, rep verify.Report) {
	status := "ok"
	if !rep.OK() {
		status = "FAIL"
	}
	_, _ = fmt.Fprintf(w, "%-4s %s %-5s %d param sets, %d checks, %d failures in %s\n",
		status, rep.Backend, rep.Type, rep.ParamSets, rep.Checked, rep.FailureCount, rep.Duration.Round(time.Millisecond))
	for _, f := range rep.Failures {
		_, _ = fmt.Fprintf(w, "     %s\n", f)
	}
}

func verifyVectors(ctx context.Context, w io.Writer, path string, b requant.Backend) error {
	f, err := vectors.Load(path)
	if err != nil {
		return err
	}
	mismatches := vectors.Check(f, b)
	logger.FromContext(ctx).Info("vectors replayed", "path", path, "backend", b.Name, "cases", len(f.Cases), "mismatches", len(mismatches))
	if jsonOutput {
		if err := writeJSON(w, mismatches); err != nil {
			return err
		}
	} else {
		for _, m := range mismatches {
			_, _ = fmt.Fprintf(w, "case %d: %s acc=%d scale=%g zp=%d range=[%d,%d] want=%d got=%d\n",
				m.Index, m.Case.Type, m.Case.Acc, m.Case.Scale, m.Case.ZeroPoint, m.Case.Min, m.Case.Max, m.Case.Want, m.Got)
		}
		_, _ = fmt.Fprintf(w, "%d/%d cases match on %s\n", len(f.Cases)-len(mismatches), len(f.Cases), b.Name)
	}
	if len(mismatches) > 0 {
		return cli.Exit("vector check failed", 1)
	}
	return nil
}
