package quant

import (
	"fmt"
	"math"

	"github.com/samcharles93/qkernel/internal/satmath"
)

// Supported input-to-output scale ratios of the elementwise add kernel.
const (
	AddMinRatio float32 = 0x1p-10
	AddMaxRatio float32 = 0x1p+8
)

// AddParams are the fixed-point constants of quantized elementwise
// addition. Both operands are rescaled by 20-bit multipliers sharing one
// shift, so the sum is formed exactly in int32 before a single rounding.
type AddParams[T satmath.Narrow8] struct {
	AMultiplier int32
	BMultiplier int32
	Bias        int32
	Shift       uint32

	ZeroPoint              int32
	OutputMinLessZeroPoint int32
	OutputMaxLessZeroPoint int32
	Min                    T
	Max                    T
}

// NewAddParams derives add constants from the input zero points and the
// ratios aScale/outScale and bScale/outScale.
func NewAddParams[T satmath.Narrow8](aZeroPoint, bZeroPoint int32, aRatio, bRatio float32, out Params[T]) (AddParams[T], error) {
	if err := out.Validate(); err != nil {
		return AddParams[T]{}, err
	}
	for _, r := range []float32{aRatio, bRatio} {
		if r < AddMinRatio || r >= AddMaxRatio {
			return AddParams[T]{}, fmt.Errorf("%w: input/output ratio %g not in [2^-10, 2^8)", ErrScaleRange, r)
		}
	}
	lo, hi := satmath.Bounds[T]()
	for _, zp := range []int32{aZeroPoint, bZeroPoint} {
		if zp < lo || zp > hi {
			return AddParams[T]{}, fmt.Errorf("%w: input zero point %d", ErrZeroPointRange, zp)
		}
	}

	maxRatio := max(aRatio, bRatio)
	maxExp := int32(math.Float32bits(maxRatio)>>23) - 127
	shift := uint32(20 - maxExp)
	am := int32(math.RoundToEven(math.Ldexp(float64(aRatio), int(shift))))
	bm := int32(math.RoundToEven(math.Ldexp(float64(bRatio), int(shift))))
	rounding := int32(1) << (shift - 1)

	return AddParams[T]{
		AMultiplier:            am,
		BMultiplier:            bm,
		Bias:                   rounding - am*aZeroPoint - bm*bZeroPoint,
		Shift:                  shift,
		ZeroPoint:              out.ZeroPoint,
		OutputMinLessZeroPoint: int32(out.Min) - out.ZeroPoint,
		OutputMaxLessZeroPoint: int32(out.Max) - out.ZeroPoint,
		Min:                    out.Min,
		Max:                    out.Max,
	}, nil
}

// MulParams are the constants of quantized elementwise multiplication:
// the zero-centered product is requantized with Scale = aScale*bScale/outScale.
type MulParams[T satmath.Narrow] struct {
	AZeroPoint int32
	BZeroPoint int32
	Out        FP32Params[T]
}

// NewMulParams validates the combined product scale and output parameters.
func NewMulParams[T satmath.Narrow](aZeroPoint, bZeroPoint int32, productScale float32, out Params[T]) (MulParams[T], error) {
	p := out
	p.Scale = productScale
	if err := p.Validate(); err != nil {
		return MulParams[T]{}, err
	}
	lo, hi := satmath.Bounds[T]()
	for _, zp := range []int32{aZeroPoint, bZeroPoint} {
		if zp < lo || zp > hi {
			return MulParams[T]{}, fmt.Errorf("%w: input zero point %d", ErrZeroPointRange, zp)
		}
	}
	return MulParams[T]{
		AZeroPoint: aZeroPoint,
		BZeroPoint: bZeroPoint,
		Out:        p.FP32(),
	}, nil
}

func channelError(i int, err error) error {
	return fmt.Errorf("channel %d: %w", i, err)
}
