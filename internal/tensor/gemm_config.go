package tensor

import "runtime"

// Tile rows per micro-kernel call. XNNPACK ships 1x, 2x, 3x, 4x and 6x
// row variants; 8 bounds the scratch each worker holds.
const (
	defaultMR = 4
	maxMR     = 8

	// NR values PackGemmWeights accepts.
	maxNR = 32
)

// GemmConfig selects how a quantized GEMM walks its output.
type GemmConfig struct {
	// MR is the number of output rows computed per tile.
	MR int
	// Workers caps the goroutines GemmPar uses. Zero means GOMAXPROCS.
	Workers int
}

func DefaultGemmConfig() GemmConfig {
	return GemmConfig{MR: defaultMR}
}

// SelectGemmConfig picks a tile shape for an m x k by k x n product.
func SelectGemmConfig(m, k, n int) GemmConfig {
	cfg := DefaultGemmConfig()

	switch {
	case m <= 2:
		cfg.MR = m
	case k >= 256 && n >= 16:
		cfg.MR = 6
	case m < defaultMR:
		cfg.MR = m
	}

	cfg.MR = clampTile(cfg.MR, maxMR)
	return cfg
}

func (c GemmConfig) workers(rows int) int {
	w := c.Workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	return max(1, min(w, rows))
}

func clampTile(v, max int) int {
	if v < 1 {
		return 1
	}
	if v > max {
		return max
	}
	return v
}
