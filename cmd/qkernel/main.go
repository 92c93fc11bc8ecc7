package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:   "qkernel",
		Usage:  "Quantized requantization kernels: compute, inspect and verify",
		Flags:  globalFlags(),
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			requantizeCmd(),
			paramsCmd(),
			verifyCmd(),
			vectorsCmd(),
			benchCmd(),
			cpuinfoCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}
