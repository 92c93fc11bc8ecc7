package quant

import (
	"math"

	"github.com/samcharles93/qkernel/internal/satmath"
)

// MagicBias is 1.5 * 2^23. Adding it to a float in (-2^22, 2^22) leaves the
// rounded integer in the low mantissa bits.
const MagicBias float32 = 12582912.0

// FP32Params are the precomputed constants of the floating-point
// requantization pipeline.
type FP32Params[T satmath.Narrow] struct {
	Scale     float32
	ZeroPoint int32
	Min       T
	Max       T

	OutputMinLessZeroPoint float32
	OutputMaxLessZeroPoint float32

	MagicBias              float32
	MagicBiasLessZeroPoint int32
	MagicMin               int32
	MagicMax               int32
}

// FP32 derives the fp32 pipeline constants.
func (p Params[T]) FP32() FP32Params[T] {
	minLess := float32(int32(p.Min) - p.ZeroPoint)
	maxLess := float32(int32(p.Max) - p.ZeroPoint)
	return FP32Params[T]{
		Scale:                  p.Scale,
		ZeroPoint:              p.ZeroPoint,
		Min:                    p.Min,
		Max:                    p.Max,
		OutputMinLessZeroPoint: minLess,
		OutputMaxLessZeroPoint: maxLess,
		MagicBias:              MagicBias,
		MagicBiasLessZeroPoint: int32(math.Float32bits(MagicBias)) - p.ZeroPoint,
		MagicMin:               int32(math.Float32bits(MagicBias + minLess)),
		MagicMax:               int32(math.Float32bits(MagicBias + maxLess)),
	}
}

// WithScale returns a copy using a different scale, as per-channel
// kernels do for each output channel.
func (f FP32Params[T]) WithScale(scale float32) FP32Params[T] {
	f.Scale = scale
	return f
}

// ChannelParams holds per-output-channel scales sharing one zero point and
// output range.
type ChannelParams[T satmath.Narrow] struct {
	Scales []float32
	Base   FP32Params[T]
}

// NewChannelParams validates every scale and the shared fields.
func NewChannelParams[T satmath.Narrow](scales []float32, zeroPoint int32, minV, maxV T) (ChannelParams[T], error) {
	if len(scales) == 0 {
		return ChannelParams[T]{}, ErrInvalidScale
	}
	var base Params[T]
	for i, s := range scales {
		p, err := NewParams(s, zeroPoint, minV, maxV)
		if err != nil {
			return ChannelParams[T]{}, channelError(i, err)
		}
		if i == 0 {
			base = p
		}
	}
	return ChannelParams[T]{
		Scales: append([]float32(nil), scales...),
		Base:   base.FP32(),
	}, nil
}

// Channel returns the fp32 parameters of output channel i.
func (c ChannelParams[T]) Channel(i int) FP32Params[T] {
	return c.Base.WithScale(c.Scales[i])
}

func (c ChannelParams[T]) Len() int { return len(c.Scales) }
