package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkernel/internal/logger"
	"github.com/samcharles93/qkernel/internal/requant"
	"github.com/samcharles93/qkernel/internal/tensor"
	"github.com/samcharles93/qkernel/pkg/quant"
)

type benchResult struct {
	Backend    string        `json:"backend"`
	Elements   int           `json:"elements"`
	Best       time.Duration `json:"best_ns"`
	PerSecond  float64       `json:"elements_per_second"`
	IsSelected bool          `json:"selected"`
}

type gemmBenchResult struct {
	M         int     `json:"m"`
	K         int     `json:"k"`
	N         int     `json:"n"`
	MR        int     `json:"mr"`
	OpsPerSec float64 `json:"ops_per_second"`
}

func benchCmd() *cli.Command {
	var (
		size     int
		runs     int
		all      bool
		gemmDims []int
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Measure requantization throughput per backend",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "size",
				Usage:       "accumulators per run",
				Value:       1 << 16,
				Destination: &size,
			},
			&cli.IntFlag{
				Name:        "runs",
				Usage:       "timed runs per backend (best is reported)",
				Value:       5,
				Destination: &runs,
			},
			&cli.BoolFlag{
				Name:        "all",
				Usage:       "benchmark every backend, not just the selected one",
				Destination: &all,
			},
			&cli.IntSliceFlag{
				Name:        "gemm",
				Usage:       "also autotune a qs8 GEMM of shape M,K,N",
				Destination: &gemmDims,
			},
			jsonFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if cfg.BenchSize != nil && !cmd.IsSet("size") {
				size = *cfg.BenchSize
			}
			if size <= 0 || runs <= 0 {
				return cli.Exit("error: --size and --runs must be positive", 2)
			}
			if len(gemmDims) != 0 && len(gemmDims) != 3 {
				return cli.Exit("error: --gemm takes exactly M,K,N", 2)
			}
			for _, d := range gemmDims {
				if d <= 0 {
					return cli.Exit("error: --gemm dimensions must be positive", 2)
				}
			}

			backends := []requant.Backend{requant.Current()}
			if all {
				backends = requant.Backends()
			}
			results := make([]benchResult, 0, len(backends))
			for _, b := range backends {
				if err := ctx.Err(); err != nil {
					return err
				}
				r := benchSlice(b, size, runs)
				r.IsSelected = b.Name == requant.Current().Name
				log.Debug("bench", "backend", b.Name, "best", r.Best)
				results = append(results, r)
			}

			var gemm *gemmBenchResult
			if len(gemmDims) == 3 {
				g := benchGemm(gemmDims[0], gemmDims[1], gemmDims[2], runs)
				gemm = &g
			}

			w := cmd.Root().Writer
			if jsonOutput {
				return writeJSON(w, map[string]any{"requantize": results, "gemm": gemm})
			}
			printBench(w, results)
			if gemm != nil {
				_, _ = fmt.Fprintf(w, "\ngemm %dx%dx%d: best MR %d, %s\n",
					gemm.M, gemm.K, gemm.N, gemm.MR, humanize.SIWithDigits(gemm.OpsPerSec, 2, "op/s"))
			}
			return nil
		},
	}
}

func benchSlice(b requant.Backend, size, runs int) benchResult {
	rng := rand.New(rand.NewPCG(1, 2))
	acc := make([]int32, size)
	for i := range acc {
		acc[i] = rng.Int32N(1<<20) - 1<<19
	}
	dst := make([]int8, size)
	p, _ := quant.FullRange[int8](0.00123, 3)
	fp := p.FP32()

	requant.SliceWith(b, dst, acc, &fp)
	best := time.Duration(1<<63 - 1)
	for range runs {
		start := time.Now()
		requant.SliceWith(b, dst, acc, &fp)
		best = min(best, time.Since(start))
	}
	return benchResult{
		Backend:   b.Name,
		Elements:  size,
		Best:      best,
		PerSecond: float64(size) / max(best.Seconds(), 1e-9),
	}
}

func benchGemm(m, k, n, runs int) gemmBenchResult {
	a := tensor.NewMat[int8](m, k)
	tensor.FillRand(&a, 1, -128, 127)
	wm := tensor.NewMat[int8](n, k)
	tensor.FillRand(&wm, 2, -127, 127)
	w := tensor.PackGemmWeights(8, k, n, wm.Data, nil, 0, 0)
	out, _ := quant.FullRange[int8](0.0005, 0)
	rq := tensor.NewPerTensor(out)
	c := tensor.NewMat[int8](m, n)

	ops := 2 * float64(m) * float64(k) * float64(n)
	score := func(cfg tensor.GemmConfig) float64 {
		best := time.Duration(1<<63 - 1)
		for range runs {
			start := time.Now()
			tensor.GemmPar(cfg, &c, &a, w, rq)
			best = min(best, time.Since(start))
		}
		return ops / max(best.Seconds(), 1e-9)
	}

	shape := tensor.GemmShape{M: m, K: k, N: n}
	tuner := tensor.NewGemmAutotuner()
	cfg := tuner.GetConfig(shape, tensor.SelectGemmConfig(m, k, n), score)
	tuned, _ := tuner.Tuned(shape)
	return gemmBenchResult{M: m, K: k, N: n, MR: cfg.MR, OpsPerSec: tuned.Score}
}

func printBench(w io.Writer, results []benchResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "BACKEND\tELEMENTS\tBEST\tTHROUGHPUT\t")
	for _, r := range results {
		mark := ""
		if r.IsSelected {
			mark = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t\n",
			r.Backend, mark, humanize.Comma(int64(r.Elements)), r.Best, humanize.SIWithDigits(r.PerSecond, 2, "elem/s"))
	}
	_ = tw.Flush()
}
