// Package requant converts int32 accumulators into narrow quantized outputs.
//
// The fp32 pipeline, for one accumulator:
//
//	scaled  = float32(acc) * scale
//	scaled  = min(scaled, max - zero_point)
//	rounded = round_to_nearest_even(scaled)
//	biased  = sat_add(sat_narrow(rounded), zero_point)   // int16, or int32 for int16 outputs
//	clamped = max(biased, min)
//	out     = sat_narrow(clamped)
//
// The upper bound is applied in float, before the conversion back to
// integer, so no out-of-range float is ever narrowed. The lower bound is
// applied after the zero point is added.
//
// FP32 is the reference. The lrint, fmagic and imagic variants reorder the
// clamps or replace the conversion with a magic-bias add; they produce the
// same bits for every valid input. RNDNU is a separate integer-only
// pipeline with its own reference.
package requant

import (
	"math"

	"github.com/samcharles93/qkernel/internal/satmath"
	"github.com/samcharles93/qkernel/pkg/quant"
)

// Requantize is the single-element contract: it builds the fp32 constants
// from raw parameters and runs the reference pipeline. Callers own the
// preconditions (scale > 0, zero point and bounds inside T's range).
func Requantize[T satmath.Narrow](acc int32, scale float32, zeroPoint int32, minV, maxV T) T {
	p := quant.Params[T]{Scale: scale, ZeroPoint: zeroPoint, Min: minV, Max: maxV}.FP32()
	return FP32(acc, &p)
}

// FP32 is the reference fp32 requantization of one accumulator.
func FP32[T satmath.Narrow](acc int32, p *quant.FP32Params[T]) T {
	scaled := float32(acc) * p.Scale
	scaled = min(scaled, p.OutputMaxLessZeroPoint)
	rounded := satmath.RoundToEvenInt32(scaled)
	return biasAndNarrow(rounded, p.ZeroPoint, p.Min)
}

// RNDNU is the reference integer-only requantization of one accumulator.
func RNDNU[T satmath.Narrow](acc int32, p *quant.RNDNUParams[T]) T {
	v := satmath.SatShiftLeft32(acc, p.RightPreShift)
	v = satmath.DoublingHighMul32(v, p.Multiplier)
	v = satmath.RoundingShiftRight32(v, p.RightPostShift)
	return min(biasAndNarrow(v, p.ZeroPoint, p.Min), p.Max)
}

// biasAndNarrow adds the zero point in the intermediate width, applies the
// lower bound and saturates to T. Byte outputs use an int16 intermediate
// like packs_epi32/adds_epi16; int16 outputs need the int32 one.
func biasAndNarrow[T satmath.Narrow](rounded, zeroPoint int32, lo T) T {
	var biased int32
	if _, hi := satmath.Bounds[T](); hi <= math.MaxUint8 {
		biased = int32(satmath.SatAdd16(satmath.SatNarrow16(rounded), int16(zeroPoint)))
	} else {
		biased = satmath.SatAdd32(rounded, zeroPoint)
	}
	return satmath.SatNarrow[T](max(biased, int32(lo)))
}

// Lrint clamps both bounds in float and rounds with math.RoundToEven, as
// the scalar lrintf kernels do.
func Lrint[T satmath.Narrow](acc int32, p *quant.FP32Params[T]) T {
	return lrintLane(float32(acc)*p.Scale, p)
}

// FMagic clamps in float, then adds the magic bias so the rounded integer
// lands in the low mantissa bits.
func FMagic[T satmath.Narrow](acc int32, p *quant.FP32Params[T]) T {
	return fmagicLane(float32(acc)*p.Scale, p)
}

// IMagic adds the magic bias first and clamps the float bit pattern as an
// integer. Positive floats order like their bit patterns, and anything that
// went negative sits below MagicMin.
func IMagic[T satmath.Narrow](acc int32, p *quant.FP32Params[T]) T {
	return imagicLane(float32(acc)*p.Scale, p)
}

func lrintLane[T satmath.Narrow](scaled float32, p *quant.FP32Params[T]) T {
	scaled = max(scaled, p.OutputMinLessZeroPoint)
	scaled = min(scaled, p.OutputMaxLessZeroPoint)
	return T(int32(math.RoundToEven(float64(scaled))) + p.ZeroPoint)
}

func fmagicLane[T satmath.Narrow](scaled float32, p *quant.FP32Params[T]) T {
	scaled = max(scaled, p.OutputMinLessZeroPoint)
	scaled = min(scaled, p.OutputMaxLessZeroPoint)
	scaled = float32(scaled + p.MagicBias)
	return T(int32(math.Float32bits(scaled)) - p.MagicBiasLessZeroPoint)
}

func imagicLane[T satmath.Narrow](scaled float32, p *quant.FP32Params[T]) T {
	// The conversion pins the product's rounding so it cannot fuse with the add.
	biased := float32(scaled) + p.MagicBias
	out := int32(math.Float32bits(biased))
	out = max(out, p.MagicMin)
	out = min(out, p.MagicMax)
	return T(out - p.MagicBiasLessZeroPoint)
}

func referenceLane[T satmath.Narrow](scaled float32, p *quant.FP32Params[T]) T {
	scaled = min(scaled, p.OutputMaxLessZeroPoint)
	return biasAndNarrow(satmath.RoundToEvenInt32(scaled), p.ZeroPoint, p.Min)
}

// Float quantizes a real value through the fmagic path, as the f32 to q8
// conversion kernels do. p.Scale is the reciprocal of the output scale.
// NaN maps to the zero point.
func Float[T satmath.Narrow](x float32, p *quant.FP32Params[T]) T {
	if x != x {
		x = 0
	}
	return fmagicLane(x*p.Scale, p)
}
