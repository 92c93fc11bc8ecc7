package satmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBounds(t *testing.T) {
	lo, hi := Bounds[int8]()
	assert.Equal(t, int32(-128), lo)
	assert.Equal(t, int32(127), hi)

	lo, hi = Bounds[uint8]()
	assert.Equal(t, int32(0), lo)
	assert.Equal(t, int32(255), hi)

	lo, hi = Bounds[int16]()
	assert.Equal(t, int32(-32768), lo)
	assert.Equal(t, int32(32767), hi)
}

func TestSatNarrow(t *testing.T) {
	assert.Equal(t, int8(127), SatNarrow[int8](1000))
	assert.Equal(t, int8(-128), SatNarrow[int8](-1000))
	assert.Equal(t, int8(-5), SatNarrow[int8](-5))
	assert.Equal(t, uint8(0), SatNarrow[uint8](-1))
	assert.Equal(t, uint8(255), SatNarrow[uint8](256))
	assert.Equal(t, int16(math.MaxInt16), SatNarrow[int16](math.MaxInt32))
	assert.Equal(t, int16(math.MinInt16), SatNarrow16(math.MinInt32))
}

func TestSatAdd(t *testing.T) {
	assert.Equal(t, int16(math.MaxInt16), SatAdd16(32000, 1000))
	assert.Equal(t, int16(math.MinInt16), SatAdd16(-32000, -1000))
	assert.Equal(t, int16(3), SatAdd16(1, 2))
	assert.Equal(t, int32(math.MaxInt32), SatAdd32(math.MaxInt32, 1))
	assert.Equal(t, int32(math.MinInt32), SatAdd32(math.MinInt32, -1))
}

func TestSatShiftLeft32(t *testing.T) {
	tests := []struct {
		v    int32
		n    uint32
		want int32
	}{
		{1, 4, 16},
		{-1, 4, -16},
		{0, 40, 0},
		{1 << 30, 1, math.MaxInt32},
		{-(1 << 30), 1, math.MinInt32},
		{-(1 << 30) - 1, 1, math.MinInt32},
		{3, 32, math.MaxInt32},
		{-3, 33, math.MinInt32},
		{12345, 0, 12345},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, SatShiftLeft32(tc.v, tc.n), "SatShiftLeft32(%d, %d)", tc.v, tc.n)
	}
}

func TestDoublingHighMul32(t *testing.T) {
	assert.Equal(t, int32(math.MaxInt32), DoublingHighMul32(math.MinInt32, math.MinInt32))
	// 0.5 * 0.5 in Q31 is 0.25.
	assert.Equal(t, int32(1<<29), DoublingHighMul32(1<<30, 1<<30))
	// High half floors towards negative infinity.
	assert.Equal(t, int32(-1), DoublingHighMul32(-1, 1))
	assert.Equal(t, int32(0), DoublingHighMul32(1, 1))
}

func TestRoundingShiftRight32(t *testing.T) {
	tests := []struct {
		v    int32
		n    uint32
		want int32
	}{
		{5, 1, 3},   // 2.5 rounds up
		{-5, 1, -2}, // -2.5 rounds up
		{7, 2, 2},   // 1.75
		{-7, 2, -2}, // -1.75
		{6, 2, 2},   // 1.5 rounds up
		{-6, 2, -1}, // -1.5 rounds up
		{math.MaxInt32, 1, 1 << 30},
		{math.MaxInt32, 31, 1},
		{9, 0, 9},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, RoundingShiftRight32(tc.v, tc.n), "RoundingShiftRight32(%d, %d)", tc.v, tc.n)
	}
}

func TestArithShiftRight32(t *testing.T) {
	assert.Equal(t, int32(-3), ArithShiftRight32(-5, 1))
	assert.Equal(t, int32(2), ArithShiftRight32(5, 1))
}

func TestRoundToEvenInt32(t *testing.T) {
	tests := []struct {
		f    float32
		want int32
	}{
		{0.5, 0},
		{1.5, 2},
		{2.5, 2},
		{-0.5, 0},
		{-1.5, -2},
		{-2.5, -2},
		{2.4999, 2},
		{117, 117},
		{-3e9, math.MinInt32},
		{3e9, math.MinInt32},
		{float32(math.NaN()), math.MinInt32},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, RoundToEvenInt32(tc.f), "RoundToEvenInt32(%g)", tc.f)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(7, 0, 5))
	assert.Equal(t, 0, Clamp(-7, 0, 5))
	assert.Equal(t, float32(1.5), Clamp[float32](1.5, 0, 5))
}
