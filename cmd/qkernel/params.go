package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkernel/internal/api"
)

func paramsCmd() *cli.Command {
	var format string

	return &cli.Command{
		Name:  "params",
		Usage: "Validate quantization parameters and print the derived kernel constants",
		Flags: append(paramFlags(),
			&cli.StringFlag{
				Name:        "format",
				Aliases:     []string{"f"},
				Usage:       "output format (text, json, yaml)",
				Value:       "text",
				Destination: &format,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			req := api.ParamsRequest{Type: typeName, Scale: scale, ZeroPoint: zeroPoint}
			req.Min, req.Max = rangeFlags(cmd)
			resp, err := api.NewService(api.DefaultLimits()).Params(req)
			if err != nil {
				if errors.Is(err, api.ErrInvalidRequest) {
					return cli.Exit(fmt.Sprintf("error: %v", err), 2)
				}
				return err
			}

			w := cmd.Root().Writer
			switch format {
			case "json":
				return writeJSON(w, resp)
			case "yaml":
				return writeYAML(w, resp)
			case "text":
				printParams(w, resp)
				return nil
			default:
				return cli.Exit(fmt.Sprintf("error: unknown format %q", format), 2)
			}
		},
	}
}

func printParams(w io.Writer, p *api.ParamsResponse) {
	_, _ = fmt.Fprintf(w, "type:        %s\n", p.Type)
	_, _ = fmt.Fprintf(w, "scale:       %g\n", p.Scale)
	_, _ = fmt.Fprintf(w, "zero point:  %d\n", p.ZeroPoint)
	_, _ = fmt.Fprintf(w, "range:       [%d, %d]\n", p.Min, p.Max)
	_, _ = fmt.Fprintln(w, "fp32:")
	_, _ = fmt.Fprintf(w, "  min - zp:           %g\n", p.FP32.OutputMinLessZeroPoint)
	_, _ = fmt.Fprintf(w, "  max - zp:           %g\n", p.FP32.OutputMaxLessZeroPoint)
	_, _ = fmt.Fprintf(w, "  magic bias:         %g\n", p.FP32.MagicBias)
	_, _ = fmt.Fprintf(w, "  magic bias - zp:    %#08x\n", p.FP32.MagicBiasLessZeroPoint)
	_, _ = fmt.Fprintf(w, "  magic min/max:      %#08x / %#08x\n", p.FP32.MagicMin, p.FP32.MagicMax)
	if p.RNDNU == nil {
		_, _ = fmt.Fprintf(w, "rndnu:       unavailable (%s)\n", p.RNDNUError)
		return
	}
	_, _ = fmt.Fprintln(w, "rndnu:")
	_, _ = fmt.Fprintf(w, "  multiplier:         %#08x\n", p.RNDNU.Multiplier)
	_, _ = fmt.Fprintf(w, "  pre/post shift:     %d / %d\n", p.RNDNU.RightPreShift, p.RNDNU.RightPostShift)
	_, _ = fmt.Fprintf(w, "  effective scale:    %g\n", p.RNDNU.EffectiveScale)
}
