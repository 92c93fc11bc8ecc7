package tensor

import "sync"

type GemmShape struct {
	M int
	K int
	N int
}

type TunedGemm struct {
	Cfg   GemmConfig
	Score float64
}

// GemmAutotuner remembers the best-scoring GemmConfig per shape. run
// returns a score where higher is better, typically elements per second.
type GemmAutotuner struct {
	mu    sync.RWMutex
	cache map[GemmShape]TunedGemm
}

func NewGemmAutotuner() *GemmAutotuner {
	return &GemmAutotuner{
		cache: make(map[GemmShape]TunedGemm),
	}
}

func (t *GemmAutotuner) GetConfig(
	shape GemmShape,
	base GemmConfig,
	run func(cfg GemmConfig) float64,
) GemmConfig {
	t.mu.RLock()
	if tuned, ok := t.cache[shape]; ok {
		t.mu.RUnlock()
		return tuned.Cfg
	}
	t.mu.RUnlock()

	bestCfg := base
	bestScore := run(base)

	for _, cfg := range candidateConfigs(base, shape) {
		score := run(cfg)
		if score > bestScore {
			bestCfg = cfg
			bestScore = score
		}
	}

	t.mu.Lock()
	t.cache[shape] = TunedGemm{
		Cfg:   bestCfg,
		Score: bestScore,
	}
	t.mu.Unlock()

	return bestCfg
}

// Tuned returns the cached result for shape, if any.
func (t *GemmAutotuner) Tuned(shape GemmShape) (TunedGemm, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tuned, ok := t.cache[shape]
	return tuned, ok
}

func candidateConfigs(base GemmConfig, shape GemmShape) []GemmConfig {
	var out []GemmConfig
	seen := map[int]bool{base.MR: true}

	for _, mr := range []int{
		base.MR / 2,
		base.MR * 2,
		1,
		6,
	} {
		mr = clampTile(min(mr, max(shape.M, 1)), maxMR)
		if seen[mr] {
			continue
		}
		seen[mr] = true
		cfg := base
		cfg.MR = mr
		out = append(out, cfg)
	}

	return out
}
