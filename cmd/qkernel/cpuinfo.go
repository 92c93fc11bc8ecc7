package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkernel/internal/requant"
)

type cpuReport struct {
	Platform  string            `json:"platform"`
	Level     string            `json:"level"`
	Current   string            `json:"current"`
	NoSIMD    bool              `json:"no_simd"`
	Features  []requant.Feature `json:"features"`
	Backends  []string          `json:"backends"`
	NumCPU    int               `json:"num_cpu"`
	GoMaxProc int               `json:"gomaxprocs"`
}

func cpuinfoCmd() *cli.Command {
	return &cli.Command{
		Name:  "cpuinfo",
		Usage: "Show detected CPU features and the dispatch table",
		Flags: []cli.Flag{jsonFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rep := cpuReport{
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
				Level:     requant.Level(),
				Current:   requant.Current().Name,
				NoSIMD:    requant.NoSIMDEnv(),
				Features:  requant.Features(),
				NumCPU:    runtime.NumCPU(),
				GoMaxProc: runtime.GOMAXPROCS(0),
			}
			for _, b := range requant.Backends() {
				rep.Backends = append(rep.Backends, b.Name)
			}

			w := cmd.Root().Writer
			if jsonOutput {
				return writeJSON(w, rep)
			}
			_, _ = fmt.Fprintf(w, "platform:  %s (%d cpus, GOMAXPROCS %d)\n", rep.Platform, rep.NumCPU, rep.GoMaxProc)
			_, _ = fmt.Fprintf(w, "level:     %s\n", rep.Level)
			_, _ = fmt.Fprintf(w, "backend:   %s\n", rep.Current)
			if rep.NoSIMD {
				_, _ = fmt.Fprintln(w, "           (QKERNEL_NO_SIMD is set)")
			}
			_, _ = fmt.Fprintln(w, "features:")
			for _, f := range rep.Features {
				mark := " "
				if f.Present {
					mark = "x"
				}
				_, _ = fmt.Fprintf(w, "  [%s] %s\n", mark, f.Name)
			}
			_, _ = fmt.Fprintf(w, "backends:  %d available\n", len(rep.Backends))
			for _, name := range rep.Backends {
				_, _ = fmt.Fprintf(w, "  %s\n", name)
			}
			return nil
		},
	}
}
