// Package satmath holds the saturating and fixed-point integer primitives
// shared by the quantized kernels. Each function mirrors one SIMD
// instruction's lane semantics so scalar and vector paths agree.
package satmath

import (
	"math"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Narrow is the set of output integer types a requantizer can produce.
type Narrow interface {
	~int8 | ~uint8 | ~int16
}

// Narrow8 is the byte-sized subset of Narrow used by lookup-table and
// elementwise-add kernels.
type Narrow8 interface {
	~int8 | ~uint8
}

// Bounds returns the representable range of T as int32.
func Bounds[T Narrow]() (lo, hi int32) {
	var z T
	signed := ^z < 0
	switch {
	case unsafe.Sizeof(z) == 1 && signed:
		return math.MinInt8, math.MaxInt8
	case unsafe.Sizeof(z) == 1:
		return 0, math.MaxUint8
	default:
		return math.MinInt16, math.MaxInt16
	}
}

// Clamp limits v to [lo, hi]. Callers guarantee lo <= hi.
func Clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// SatNarrow converts v to T, saturating at T's bounds.
func SatNarrow[T Narrow](v int32) T {
	lo, hi := Bounds[T]()
	return T(min(max(v, lo), hi))
}

// SatNarrow16 is the int32 -> int16 saturating pack (packs_epi32, vqmovn_s32).
func SatNarrow16(v int32) int16 {
	return int16(min(max(v, math.MinInt16), math.MaxInt16))
}

// SatAdd16 adds with int16 saturation (adds_epi16, vqaddq_s16).
func SatAdd16(a, b int16) int16 {
	return SatNarrow16(int32(a) + int32(b))
}

// SatAdd32 adds with int32 saturation (vqaddq_s32).
func SatAdd32(a, b int32) int32 {
	s := int64(a) + int64(b)
	return int32(min(max(s, math.MinInt32), math.MaxInt32))
}

// SatShiftLeft32 shifts v left by n bits saturating on overflow (vqshlq_s32
// with a non-negative shift). Shifts of 32 or more saturate any non-zero v.
func SatShiftLeft32(v int32, n uint32) int32 {
	if v == 0 || n == 0 {
		return v
	}
	if n >= 32 {
		if v < 0 {
			return math.MinInt32
		}
		return math.MaxInt32
	}
	s := int64(v) << n
	return int32(min(max(s, math.MinInt32), math.MaxInt32))
}

// DoublingHighMul32 returns the high half of 2*a*b, saturating the single
// overflowing case a == b == MinInt32 (vqdmulhq_s32).
func DoublingHighMul32(a, b int32) int32 {
	if a == math.MinInt32 && b == math.MinInt32 {
		return math.MaxInt32
	}
	return int32((int64(a) * int64(b) * 2) >> 32)
}

// RoundingShiftRight32 is an arithmetic right shift by n with round half
// up (vrshlq_s32 with a negative shift). n must be in [0, 31].
func RoundingShiftRight32(v int32, n uint32) int32 {
	if n == 0 {
		return v
	}
	return int32((int64(v) + int64(1)<<(n-1)) >> n)
}

// ArithShiftRight32 is a plain arithmetic right shift (sra, asr).
func ArithShiftRight32(v int32, n uint32) int32 {
	return v >> n
}

// RoundToEvenInt32 converts f to int32 rounding to nearest with ties to even.
// NaN and values outside the int32 range give MinInt32, the x86 "integer
// indefinite" result of cvtps2dq.
func RoundToEvenInt32(f float32) int32 {
	r := math.RoundToEven(float64(f))
	if r != r || r < math.MinInt32 || r > math.MaxInt32 {
		return math.MinInt32
	}
	return int32(r)
}
