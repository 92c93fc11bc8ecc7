package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qkernel/internal/api"
	"github.com/samcharles93/qkernel/internal/requant"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// runApp runs the CLI against a nonexistent config file unless args name
// one, and returns stdout. Exit codes come back as errors.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { _ = requant.SetCurrent("auto") })
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	full := append([]string{"qkernel"}, args...)
	if !strings.Contains(strings.Join(args, " "), "--config") {
		full = append([]string{"qkernel", "--config", filepath.Join(t.TempDir(), "none.yaml")}, args...)
	}
	err := app.Run(context.Background(), full)
	return out.String(), err
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing config should not error: %v", err)
	}
	if cfg.Backend != "" || cfg.VerifySamples != nil {
		t.Fatalf("expected zero config, got %+v", cfg)
	}

	path := writeConfig(t, "backend: lrint-x4\nlog_level: warn\nverify_samples: 12\nseed: 7\nbench_size: 4096\nserver_address: 0.0.0.0:9000\n")
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Backend != "lrint-x4" || cfg.LogLevel != "warn" || cfg.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.VerifySamples == nil || *cfg.VerifySamples != 12 || cfg.Seed == nil || *cfg.Seed != 7 || cfg.BenchSize == nil || *cfg.BenchSize != 4096 {
		t.Fatalf("unexpected numeric fields %+v", cfg)
	}

	_, err = LoadConfig(writeConfig(t, "backend: [unterminated\n"))
	if err == nil {
		t.Fatal("expected parse error for malformed yaml")
	}
}

func TestConfigBackendAppliesUnlessFlagSet(t *testing.T) {
	path := writeConfig(t, "backend: lrint-x4\n")

	out, err := runApp(t, "--config", path, "cpuinfo", "--json")
	if err != nil {
		t.Fatalf("cpuinfo: %v", err)
	}
	var rep cpuReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode cpuinfo: %v\n%s", err, out)
	}
	if rep.Current != "lrint-x4" {
		t.Fatalf("expected config backend lrint-x4, got %q", rep.Current)
	}

	out, err = runApp(t, "--config", path, "--backend", "reference-x1", "cpuinfo", "--json")
	if err != nil {
		t.Fatalf("cpuinfo: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode cpuinfo: %v\n%s", err, out)
	}
	if rep.Current != "reference-x1" {
		t.Fatalf("expected flag to win, got %q", rep.Current)
	}
}

func TestUnknownBackendFails(t *testing.T) {
	if _, err := runApp(t, "--backend", "avx9-x3", "cpuinfo"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestRequantizeCommand(t *testing.T) {
	out, err := runApp(t, "requantize", "--type", "int8", "--scale", "0.5", "--zero-point", "10", "--acc", "1000,0,5", "--json")
	if err != nil {
		t.Fatalf("requantize: %v", err)
	}
	var resp api.RequantizeResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	want := []int32{127, 10, 12}
	if len(resp.Output) != len(want) {
		t.Fatalf("expected %v, got %v", want, resp.Output)
	}
	for i := range want {
		if resp.Output[i] != want[i] {
			t.Fatalf("output[%d]: expected %d, got %d", i, want[i], resp.Output[i])
		}
	}
}

func TestRequantizeCommandRejectsBadParams(t *testing.T) {
	if _, err := runApp(t, "requantize", "--type", "uint8", "--scale", "1", "--zero-point", "300", "--acc", "1"); err == nil {
		t.Fatal("expected error for out-of-range zero point")
	}
}

func TestParamsYAML(t *testing.T) {
	out, err := runApp(t, "params", "--type", "uint8", "--scale", "1", "--zero-point", "128", "--format", "yaml")
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	for _, want := range []string{"type: uint8", "zero_point: 128", "min: 0", "max: 255", "magic_bias_less_zero_point:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}

func TestVectorsGenerateThenVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.json")
	if _, err := runApp(t, "vectors", "generate", "--out", path, "--count", "25", "--seed", "3"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	out, err := runApp(t, "verify", "--vectors", path)
	if err != nil {
		t.Fatalf("verify vectors: %v\n%s", err, out)
	}
	if !strings.Contains(out, "cases match") {
		t.Fatalf("unexpected output: %s", out)
	}

	out, err = runApp(t, "--backend", "imagic-x32", "vectors", "check", path)
	if err != nil {
		t.Fatalf("vectors check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "on imagic-x32") {
		t.Fatalf("expected imagic-x32 in output: %s", out)
	}
}

func TestVerifySweepCommand(t *testing.T) {
	out, err := runApp(t, "verify", "--type", "int16", "--samples", "3", "--per-sample", "16", "--no-progress", "--json")
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	var reps []struct {
		Type      string `json:"type"`
		ParamSets int    `json:"param_sets"`
		Checked   int64  `json:"checked"`
	}
	if err := json.Unmarshal([]byte(out), &reps); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(reps) != 1 || reps[0].Type != "int16" || reps[0].ParamSets != 3 || reps[0].Checked != 3*17 {
		t.Fatalf("unexpected reports %+v", reps)
	}
}
