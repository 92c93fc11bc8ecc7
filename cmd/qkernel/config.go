package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/qkernel/internal/logger"
	"github.com/samcharles93/qkernel/internal/requant"
)

// Config represents the qkernel configuration file
// (~/.config/qkernel/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	Backend   string `yaml:"backend"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`

	VerifySamples *int    `yaml:"verify_samples"`
	Seed          *uint64 `yaml:"seed"`
	BenchSize     *int    `yaml:"bench_size"`
}

// cfg is loaded by setup before any command runs.
var cfg Config

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "qkernel", "config.yaml")
}

// LoadConfig reads path. A missing file yields a zero Config; a malformed
// one is an error, unlike a missing one.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// applyGlobalConfig fills global flags the user did not set explicitly.
func applyGlobalConfig(c *cli.Command, cfg Config) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		backend = cfg.Backend
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// setup is the root Before hook: config, then logger, then backend.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := configFile
	if path == "" {
		path = configPath()
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		return ctx, err
	}
	cfg = loaded
	applyGlobalConfig(cmd, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	log, err := logger.NewWithFormat(os.Stderr, logFormat, level)
	if err != nil {
		return ctx, err
	}
	if err := requant.SetCurrent(backend); err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 2)
	}
	log.Debug("backend selected", "backend", requant.Current().Name, "level", requant.Level(), "config", path)
	return logger.WithContext(ctx, log), nil
}

