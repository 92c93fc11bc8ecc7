package main

import "github.com/urfave/cli/v3"

var (
	configFile string
	backend    string
	logLevel   string
	logFormat  string
	debug      bool

	// Quantization parameters shared by requantize and params.
	typeName  string
	scale     float32
	zeroPoint int32
	outMin    int32
	outMax    int32

	jsonOutput bool
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default ~/.config/qkernel/config.yaml)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "requantization backend (auto or a name from cpuinfo)",
			Value:       "auto",
			Destination: &backend,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func paramFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "type",
			Aliases:     []string{"t"},
			Usage:       "output type (int8, uint8, int16)",
			Value:       "int8",
			Destination: &typeName,
		},
		&cli.Float32Flag{
			Name:        "scale",
			Aliases:     []string{"s"},
			Usage:       "requantization scale",
			Destination: &scale,
		},
		&cli.Int32Flag{
			Name:        "zero-point",
			Aliases:     []string{"zp"},
			Usage:       "output zero point",
			Destination: &zeroPoint,
		},
		&cli.Int32Flag{
			Name:        "min",
			Usage:       "output minimum (default: type minimum)",
			Destination: &outMin,
		},
		&cli.Int32Flag{
			Name:        "max",
			Usage:       "output maximum (default: type maximum)",
			Destination: &outMax,
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:        "json",
		Usage:       "print JSON instead of text",
		Destination: &jsonOutput,
	}
}

// rangeFlags returns --min/--max only when they were given, so the service
// can default to the full type range.
func rangeFlags(cmd *cli.Command) (lo, hi *int32) {
	if cmd.IsSet("min") {
		v := outMin
		lo = &v
	}
	if cmd.IsSet("max") {
		v := outMax
		hi = &v
	}
	return lo, hi
}
