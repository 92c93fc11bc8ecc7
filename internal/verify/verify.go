// Package verify checks a requantization backend against the reference
// pipeline over sampled parameter sets.
//
// Each parameter set is checked for four properties:
//
//   - equality: the backend's slice kernel matches FP32 element by element
//   - monotonic: sorted accumulators give non-decreasing outputs
//   - saturation: scaled values at or past a bound give exactly that bound
//   - zero-point: a zero accumulator gives the zero point clamped to range
//
// Parameter sets are independent, so Sweep spreads them over goroutines.
package verify

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/qkernel/internal/requant"
	"github.com/samcharles93/qkernel/internal/satmath"
	"github.com/samcharles93/qkernel/pkg/quant"
)

const (
	PropEquality   = "equality"
	PropMonotonic  = "monotonic"
	PropSaturation = "saturation"
	PropZeroPoint  = "zero-point"
)

// MaxFailures bounds the failures kept in a Report.
const MaxFailures = 16

// Config describes one sweep.
type Config struct {
	Type    quant.Type
	Backend requant.Backend
	// Samples is the number of random parameter sets.
	Samples int
	// PerSample is the number of accumulators drawn per parameter set.
	// Ignored when Exhaustive is set.
	PerSample int
	// Exhaustive checks every accumulator in [-ExhaustiveRadius,
	// ExhaustiveRadius] for each parameter set instead of sampling.
	Exhaustive       bool
	ExhaustiveRadius int32
	Seed             uint64
	Workers          int
	// Progress, if set, is called after each parameter set with the
	// number of sets done. Calls are serialized.
	Progress func(done, total int)
}

// DefaultConfig samples 1000 parameter sets of 1024 accumulators each.
func DefaultConfig() Config {
	return Config{
		Type:             quant.TypeInt8,
		Backend:          requant.Current(),
		Samples:          1000,
		PerSample:        1024,
		ExhaustiveRadius: 1 << 16,
		Seed:             1,
	}
}

// Failure records one property violation.
type Failure struct {
	Property  string  `json:"property"`
	Acc       int32   `json:"acc"`
	Scale     float32 `json:"scale"`
	ZeroPoint int32   `json:"zero_point"`
	Min       int32   `json:"min"`
	Max       int32   `json:"max"`
	Want      int32   `json:"want"`
	Got       int32   `json:"got"`
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: acc=%d scale=%g zp=%d range=[%d,%d] want=%d got=%d",
		f.Property, f.Acc, f.Scale, f.ZeroPoint, f.Min, f.Max, f.Want, f.Got)
}

// Report summarizes a sweep.
type Report struct {
	Backend      string        `json:"backend"`
	Type         string        `json:"type"`
	ParamSets    int           `json:"param_sets"`
	Checked      int64         `json:"checked"`
	FailureCount int64         `json:"failure_count"`
	Failures     []Failure     `json:"failures,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}

func (r *Report) OK() bool { return r.FailureCount == 0 }

// Sweep runs the property checks. It returns early with ctx.Err() when the
// context is cancelled.
func Sweep(ctx context.Context, cfg Config) (Report, error) {
	switch cfg.Type {
	case quant.TypeInt8:
		return sweep[int8](ctx, cfg)
	case quant.TypeUint8:
		return sweep[uint8](ctx, cfg)
	case quant.TypeInt16:
		return sweep[int16](ctx, cfg)
	default:
		return Report{}, fmt.Errorf("verify: %w: %v", quant.ErrUnknownType, cfg.Type)
	}
}

type collector struct {
	mu       sync.Mutex
	report   Report
	done     int
	progress func(done, total int)
}

func (c *collector) add(checked int64, fails []Failure, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Checked += checked
	c.report.FailureCount += int64(len(fails))
	for _, f := range fails {
		if len(c.report.Failures) >= MaxFailures {
			break
		}
		c.report.Failures = append(c.report.Failures, f)
	}
	c.done++
	if c.progress != nil {
		c.progress(c.done, total)
	}
}

func sweep[T satmath.Narrow](ctx context.Context, cfg Config) (Report, error) {
	if cfg.Samples <= 0 {
		return Report{}, fmt.Errorf("verify: samples must be positive, got %d", cfg.Samples)
	}
	if !cfg.Exhaustive && cfg.PerSample <= 0 {
		return Report{}, fmt.Errorf("verify: per-sample count must be positive, got %d", cfg.PerSample)
	}
	if cfg.Exhaustive && cfg.ExhaustiveRadius <= 0 {
		return Report{}, fmt.Errorf("verify: exhaustive radius must be positive, got %d", cfg.ExhaustiveRadius)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	col := &collector{progress: cfg.Progress}
	col.report.Backend = cfg.Backend.Name
	col.report.Type = quant.TypeOf[T]().String()
	col.report.ParamSets = cfg.Samples

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < cfg.Samples; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			checked, fails := checkParamSet[T](cfg, uint64(i))
			col.add(checked, fails, cfg.Samples)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	col.report.Duration = time.Since(start)
	return col.report, nil
}

// RandomParams draws a parameter set: a log-uniform scale in [2^-30, 1000],
// a zero point anywhere in T and an ordered output range.
func RandomParams[T satmath.Narrow](rng *rand.Rand) quant.Params[T] {
	lo, hi := satmath.Bounds[T]()
	span := hi - lo + 1
	scale := min(float32(math.Exp2(rng.Float64()*40-30)), 1000)
	a, b := lo+rng.Int32N(span), lo+rng.Int32N(span)
	if a > b {
		a, b = b, a
	}
	return quant.Params[T]{Scale: scale, ZeroPoint: lo + rng.Int32N(span), Min: T(a), Max: T(b)}
}

// RandomAcc draws from [MinInt32/4, MaxInt32/4].
func RandomAcc(rng *rand.Rand) int32 {
	const quarter = math.MaxInt32 / 4
	return rng.Int32N(2*quarter+1) - quarter
}

func checkParamSet[T satmath.Narrow](cfg Config, index uint64) (int64, []Failure) {
	rng := rand.New(rand.NewPCG(cfg.Seed, index))
	params := RandomParams[T](rng)
	p := params.FP32()

	var acc []int32
	if cfg.Exhaustive {
		r := cfg.ExhaustiveRadius
		acc = make([]int32, 0, 2*int(r)+1)
		for a := -r; a <= r; a++ {
			acc = append(acc, a)
		}
	} else {
		acc = make([]int32, cfg.PerSample)
		for i := range acc {
			acc[i] = RandomAcc(rng)
		}
		slices.Sort(acc)
	}

	got := make([]T, len(acc))
	requant.SliceWith(cfg.Backend, got, acc, &p)

	var fails []Failure
	fail := func(prop string, a int32, want, have T) {
		fails = append(fails, Failure{
			Property:  prop,
			Acc:       a,
			Scale:     p.Scale,
			ZeroPoint: p.ZeroPoint,
			Min:       int32(p.Min),
			Max:       int32(p.Max),
			Want:      int32(want),
			Got:       int32(have),
		})
	}

	for i, a := range acc {
		if want := requant.FP32(a, &p); got[i] != want {
			fail(PropEquality, a, want, got[i])
		}
		if i > 0 && got[i] < got[i-1] {
			fail(PropMonotonic, a, got[i-1], got[i])
		}
		scaled := float32(a) * p.Scale
		switch {
		case scaled >= p.OutputMaxLessZeroPoint && got[i] != p.Max:
			fail(PropSaturation, a, p.Max, got[i])
		case scaled <= p.OutputMinLessZeroPoint && got[i] != p.Min:
			fail(PropSaturation, a, p.Min, got[i])
		}
	}

	var zero [1]T
	requant.SliceWith(cfg.Backend, zero[:], []int32{0}, &p)
	if want := T(satmath.Clamp(p.ZeroPoint, int32(p.Min), int32(p.Max))); zero[0] != want {
		fail(PropZeroPoint, 0, want, zero[0])
	}

	return int64(len(acc)) + 1, fails
}
