package tensor

import (
	"fmt"
	"math"

	"github.com/samcharles93/qkernel/internal/satmath"
	"github.com/samcharles93/qkernel/pkg/quant"
)

// LUT is a 256-entry table mapping every input code of T to an output code.
type LUT[T satmath.Narrow8] struct {
	table [256]T
}

// BuildLUT tabulates f. Each input code is dequantized with in, passed
// through f, scaled by 1/out.Scale, rounded to nearest even, offset by the
// output zero point and clamped to [out.Min, out.Max]. The output range
// must be non-degenerate.
func BuildLUT[T satmath.Narrow8](in, out quant.Params[T], f func(float32) float32) (*LUT[T], error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	if out.Min >= out.Max {
		return nil, fmt.Errorf("%w: output range [%d, %d] must have min below max", quant.ErrEmptyRange, out.Min, out.Max)
	}

	lo, _ := satmath.Bounds[T]()
	inv := 1 / out.Scale
	l := &LUT[T]{}
	for i := lo; i < lo+256; i++ {
		x := float32(i-in.ZeroPoint) * in.Scale
		y := float64(f(x) * inv)
		if y != y {
			y = 0
		}
		y = satmath.Clamp(math.RoundToEven(y), math.MinInt32, math.MaxInt32)
		q := satmath.Clamp(int64(y)+int64(out.ZeroPoint), int64(out.Min), int64(out.Max))
		l.table[uint8(i)] = T(q)
	}
	return l, nil
}

// Apply maps src through the table into dst.
func (l *LUT[T]) Apply(dst, src []T) {
	for i, x := range src[:len(dst)] {
		dst[i] = l.table[uint8(x)]
	}
}

// Lookup returns the output code for one input code.
func (l *LUT[T]) Lookup(x T) T { return l.table[uint8(x)] }

// ELU is alpha*(e^x - 1) for negative x and x otherwise.
func ELU(alpha float32) func(float32) float32 {
	return func(x float32) float32 {
		if math.Signbit(float64(x)) {
			return alpha * float32(math.Expm1(float64(x)))
		}
		return x
	}
}

// LeakyReLU is slope*x for negative x and x otherwise.
func LeakyReLU(slope float32) func(float32) float32 {
	return func(x float32) float32 {
		if math.Signbit(float64(x)) {
			return x * slope
		}
		return x
	}
}

// Sigmoid is 1/(1+e^-x), evaluated so neither branch overflows.
func Sigmoid(x float32) float32 {
	if math.Signbit(float64(x)) {
		return 1 / (1 + float32(math.Exp(float64(-x))))
	}
	return 1 - 1/(1+float32(math.Exp(float64(x))))
}

func Tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

func isNormalPositive(f float32) bool {
	v := float64(f)
	return v >= 0x1p-126 && !math.IsInf(v, 0)
}

// NewELU builds an ELU table. alpha must be normal and positive.
func NewELU[T satmath.Narrow8](alpha float32, in, out quant.Params[T]) (*LUT[T], error) {
	if !isNormalPositive(alpha) {
		return nil, fmt.Errorf("%w: elu alpha %g must be finite, normalized and positive", ErrInvalidParameter, alpha)
	}
	return BuildLUT(in, out, ELU(alpha))
}

// NewLeakyReLU builds a leaky ReLU table. slope must be in (0, 1] and the
// input/output scale ratio in [2^-8, 2^8).
func NewLeakyReLU[T satmath.Narrow8](slope float32, in, out quant.Params[T]) (*LUT[T], error) {
	if !isNormalPositive(slope) {
		return nil, fmt.Errorf("%w: negative slope %g must be finite, normalized and positive", ErrInvalidParameter, slope)
	}
	if slope > 1 {
		return nil, fmt.Errorf("%w: negative slope %g must not exceed 1", ErrInvalidParameter, slope)
	}
	if r := in.Scale / out.Scale; r < 0x1p-8 || r >= 0x1p+8 {
		return nil, fmt.Errorf("%w: input/output scale ratio %g not in [2^-8, 2^8)", ErrUnsupportedParameter, r)
	}
	return BuildLUT(in, out, LeakyReLU(slope))
}

// NewSigmoid builds a sigmoid table. The output must use scale 1/256 with
// the zero point at T's minimum, so [0, 1) covers the whole type.
func NewSigmoid[T satmath.Narrow8](in, out quant.Params[T]) (*LUT[T], error) {
	lo, _ := satmath.Bounds[T]()
	if out.Scale != 0x1p-8 {
		return nil, fmt.Errorf("%w: sigmoid output scale %g, want 1/256", ErrUnsupportedParameter, out.Scale)
	}
	if out.ZeroPoint != lo {
		return nil, fmt.Errorf("%w: sigmoid output zero point %d, want %d", ErrUnsupportedParameter, out.ZeroPoint, lo)
	}
	return BuildLUT(in, out, Sigmoid)
}

// NewTanh builds a tanh table. The output must use scale 1/128 with the
// zero point at the middle of T.
func NewTanh[T satmath.Narrow8](in, out quant.Params[T]) (*LUT[T], error) {
	lo, hi := satmath.Bounds[T]()
	mid := (lo + hi + 1) / 2
	if out.Scale != 0x1p-7 {
		return nil, fmt.Errorf("%w: tanh output scale %g, want 1/128", ErrUnsupportedParameter, out.Scale)
	}
	if out.ZeroPoint != mid {
		return nil, fmt.Errorf("%w: tanh output zero point %d, want %d", ErrUnsupportedParameter, out.ZeroPoint, mid)
	}
	return BuildLUT(in, out, Tanh)
}
