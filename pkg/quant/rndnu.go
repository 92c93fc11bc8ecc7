package quant

import (
	"fmt"
	"math"

	"github.com/samcharles93/qkernel/internal/satmath"
)

// Supported scale range of the integer-only pipeline.
const (
	RNDNUMinScale float32 = 0x1p-32
	RNDNUMaxScale float32 = 256
)

// RNDNUParams are the constants of the integer-only requantization
// pipeline: a saturating left pre-shift, a Q31 doubling high multiply, and
// a rounding right post-shift.
type RNDNUParams[T satmath.Narrow] struct {
	Multiplier     int32
	RightPreShift  uint32
	RightPostShift uint32
	ZeroPoint      int32
	Min            T
	Max            T
}

// RNDNU converts the float scale into a 24-bit mantissa multiplier placed
// in [2^30, 2^31) and a shift split so the post-shift is at least one.
func (p Params[T]) RNDNU() (RNDNUParams[T], error) {
	if p.Scale < RNDNUMinScale || p.Scale >= RNDNUMaxScale {
		return RNDNUParams[T]{}, fmt.Errorf("%w: %g not in [2^-32, 256)", ErrScaleRange, p.Scale)
	}
	bits := math.Float32bits(p.Scale)
	multiplier := int32(((bits & 0x007FFFFF) | 0x00800000) << 7)
	shift := int32(127+31-32) - int32(bits>>23)
	postShift := max(shift, 1)
	preShift := shift - postShift
	return RNDNUParams[T]{
		Multiplier:     multiplier,
		RightPreShift:  uint32(-preShift),
		RightPostShift: uint32(postShift),
		ZeroPoint:      p.ZeroPoint,
		Min:            p.Min,
		Max:            p.Max,
	}, nil
}

// EffectiveScale reports the real multiplier the integer pipeline applies.
func (r RNDNUParams[T]) EffectiveScale() float64 {
	shift := int(r.RightPostShift) - int(r.RightPreShift)
	return math.Ldexp(float64(r.Multiplier), -31-shift)
}
