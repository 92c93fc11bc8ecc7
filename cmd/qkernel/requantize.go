package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkernel/internal/api"
	"github.com/samcharles93/qkernel/internal/logger"
)

func requantizeCmd() *cli.Command {
	var (
		acc    []int32
		scales []float32
		mode   string
	)

	flags := append(paramFlags(),
		&cli.Int32SliceFlag{
			Name:        "acc",
			Aliases:     []string{"a"},
			Usage:       "int32 accumulators (repeat or comma-separate)",
			Destination: &acc,
		},
		&cli.Float32SliceFlag{
			Name:        "scales",
			Usage:       "per-channel scales; len(acc) must be a multiple",
			Destination: &scales,
		},
		&cli.StringFlag{
			Name:        "mode",
			Usage:       "pipeline (fp32, rndnu)",
			Value:       api.ModeFP32,
			Destination: &mode,
		},
		jsonFlag(),
	)

	return &cli.Command{
		Name:      "requantize",
		Aliases:   []string{"rq"},
		Usage:     "Requantize int32 accumulators into a narrow type",
		ArgsUsage: "[acc...]",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			extra, err := parseAccArgs(cmd.Args().Slice())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}
			acc = append(acc, extra...)
			if len(acc) == 0 {
				return cli.Exit("error: no accumulators given (use --acc or positional arguments)", 2)
			}

			req := api.RequantizeRequest{
				Type:      typeName,
				Acc:       acc,
				Scales:    scales,
				ZeroPoint: zeroPoint,
				Mode:      mode,
			}
			if cmd.IsSet("scale") || len(scales) == 0 {
				s := scale
				req.Scale = &s
			}
			req.Min, req.Max = rangeFlags(cmd)

			resp, err := api.NewService(api.DefaultLimits()).Requantize(req)
			if err != nil {
				if errors.Is(err, api.ErrInvalidRequest) {
					return cli.Exit(fmt.Sprintf("error: %v", err), 2)
				}
				return err
			}
			logger.FromContext(ctx).Debug("requantized", "backend", resp.Backend, "count", len(resp.Output))

			if jsonOutput {
				return writeJSON(cmd.Root().Writer, resp)
			}
			tw := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintf(tw, "ACC\t%s\n", resp.Type)
			for i, v := range resp.Output {
				_, _ = fmt.Fprintf(tw, "%d\t%d\n", acc[i], v)
			}
			return tw.Flush()
		},
	}
}

func parseAccArgs(args []string) ([]int32, error) {
	out := make([]int32, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseInt(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("accumulator %q: %w", a, err)
		}
		out = append(out, int32(v))
	}
	return out, nil
}
