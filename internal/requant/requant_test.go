package requant

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/qkernel/internal/satmath"
	"github.com/samcharles93/qkernel/pkg/quant"
)

func TestRequantizeScenarios(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int8(127), Requantize[int8](1000, 0.5, 10, -128, 127))
	assert.Equal(t, uint8(0), Requantize[uint8](-50, 2.0, 0, 0, 255))
	assert.Equal(t, uint8(128), Requantize[uint8](0, 1.0, 128, 0, 255))
	assert.Equal(t, int16(-32768), Requantize[int16](math.MinInt32, 1000, 0, -32768, 32767))
	assert.Equal(t, int16(32767), Requantize[int16](math.MaxInt32, 1000, 0, -32768, 32767))
}

func TestVariantsMatchScenarios(t *testing.T) {
	t.Parallel()

	p8 := quant.Params[int8]{Scale: 0.5, ZeroPoint: 10, Min: -128, Max: 127}.FP32()
	pu := quant.Params[uint8]{Scale: 2, ZeroPoint: 0, Min: 0, Max: 255}.FP32()
	for _, v := range FP32Variants() {
		assert.Equal(t, int8(127), Scalar(v, 1000, &p8), v.String())
		assert.Equal(t, int8(10), Scalar(v, 0, &p8), v.String())
		assert.Equal(t, uint8(0), Scalar(v, -50, &pu), v.String())
		assert.Equal(t, uint8(200), Scalar(v, 100, &pu), v.String())
	}
}

func TestRoundingTiesToEven(t *testing.T) {
	t.Parallel()

	p := quant.Params[int8]{Scale: 0.5, ZeroPoint: 0, Min: -128, Max: 127}.FP32()
	tests := []struct {
		acc  int32
		want int8
	}{
		{1, 0},   // 0.5
		{3, 2},   // 1.5
		{5, 2},   // 2.5
		{-1, 0},  // -0.5
		{-3, -2}, // -1.5
		{7, 4},   // 3.5
	}
	for _, tc := range tests {
		for _, v := range FP32Variants() {
			assert.Equal(t, tc.want, Scalar(v, tc.acc, &p), "%s acc=%d", v, tc.acc)
		}
	}
}

func randomFP32Params[T satmath.Narrow](rng *rand.Rand) quant.FP32Params[T] {
	lo, hi := satmath.Bounds[T]()
	span := hi - lo + 1
	scale := min(float32(math.Exp2(rng.Float64()*40-30)), 1000)
	zp := lo + rng.Int32N(span)
	a, b := lo+rng.Int32N(span), lo+rng.Int32N(span)
	if a > b {
		a, b = b, a
	}
	return quant.Params[T]{Scale: scale, ZeroPoint: zp, Min: T(a), Max: T(b)}.FP32()
}

func randomAcc(rng *rand.Rand) int32 {
	const quarter = math.MaxInt32 / 4
	return rng.Int32N(2*quarter+1) - quarter
}

func checkVariantsAgree[T satmath.Narrow](t *testing.T, seed uint64) {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))
	for range 200 {
		p := randomFP32Params[T](rng)
		for range 200 {
			acc := randomAcc(rng)
			want := FP32(acc, &p)
			require.Equal(t, want, Lrint(acc, &p), "lrint acc=%d params=%+v", acc, p)
			require.Equal(t, want, FMagic(acc, &p), "fmagic acc=%d params=%+v", acc, p)
			require.Equal(t, want, IMagic(acc, &p), "imagic acc=%d params=%+v", acc, p)
		}
	}
}

func TestVariantsAgreeWithReference(t *testing.T) {
	t.Parallel()
	t.Run("int8", func(t *testing.T) { t.Parallel(); checkVariantsAgree[int8](t, 1) })
	t.Run("uint8", func(t *testing.T) { t.Parallel(); checkVariantsAgree[uint8](t, 2) })
	t.Run("int16", func(t *testing.T) { t.Parallel(); checkVariantsAgree[int16](t, 3) })
}

func TestVariantsAgreeNearRoundingBoundaries(t *testing.T) {
	t.Parallel()
	// Scale 1/256 puts many accumulators exactly on .5 boundaries.
	p := quant.Params[uint8]{Scale: 1.0 / 256, ZeroPoint: 3, Min: 0, Max: 255}.FP32()
	for acc := int32(-2000); acc <= 70000; acc++ {
		want := FP32(acc, &p)
		require.Equal(t, want, Lrint(acc, &p), "acc=%d", acc)
		require.Equal(t, want, FMagic(acc, &p), "acc=%d", acc)
		require.Equal(t, want, IMagic(acc, &p), "acc=%d", acc)
	}
}

func TestMonotonic(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(7, 11))
	for range 100 {
		p := randomFP32Params[int8](rng)
		a, b := randomAcc(rng), randomAcc(rng)
		if a > b {
			a, b = b, a
		}
		assert.LessOrEqual(t, FP32(a, &p), FP32(b, &p), "a=%d b=%d", a, b)
	}
}

func TestSaturationBoundary(t *testing.T) {
	t.Parallel()
	p := quant.Params[int8]{Scale: 0.25, ZeroPoint: -3, Min: -100, Max: 90}.FP32()
	// scaled >= max - zp = 93 -> Max.
	assert.Equal(t, int8(90), FP32(93*4, &p))
	assert.Equal(t, int8(90), FP32(math.MaxInt32, &p))
	// scaled <= min - zp = -97 -> Min.
	assert.Equal(t, int8(-100), FP32(-97*4, &p))
	assert.Equal(t, int8(-100), FP32(math.MinInt32, &p))
	assert.Equal(t, int8(89), FP32(92*4, &p))
}

func TestZeroPoint(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(5, 5))
	for range 500 {
		p := randomFP32Params[int16](rng)
		want := satmath.Clamp(p.ZeroPoint, int32(p.Min), int32(p.Max))
		assert.Equal(t, int16(want), FP32(0, &p))
	}
}

func TestSliceKernelsMatchScalar(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(21, 42))
	for _, n := range []int{0, 1, 3, 31, 32, 33, 100} {
		acc := make([]int32, n)
		for i := range acc {
			acc[i] = randomAcc(rng)
		}
		p := randomFP32Params[uint8](rng)
		want := make([]uint8, n)
		for i, a := range acc {
			want[i] = FP32(a, &p)
		}
		for _, b := range Backends() {
			got := make([]uint8, n)
			SliceWith(b, got, acc, &p)
			require.Equal(t, want, got, "backend %s n=%d", b.Name, n)
		}
	}
}

func TestSliceShortDestination(t *testing.T) {
	t.Parallel()
	p := quant.Params[int8]{Scale: 1, ZeroPoint: 0, Min: -128, Max: 127}.FP32()
	acc := []int32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	dst := make([]int8, 5)
	b, err := Lookup(BackendName(VariantFMagic, 4))
	require.NoError(t, err)
	SliceWith(b, dst, acc, &p)
	assert.Equal(t, []int8{1, 2, 3, 4, 5}, dst)
}

func TestChannels(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(3, 9))
	const rows, channels = 7, 19
	scales := make([]float32, channels)
	for i := range scales {
		scales[i] = float32(math.Exp2(rng.Float64()*20 - 20))
	}
	cp, err := quant.NewChannelParams[int8](scales, -4, -120, 120)
	require.NoError(t, err)

	acc := make([]int32, rows*channels)
	for i := range acc {
		acc[i] = rng.Int32N(1<<22) - 1<<21
	}
	want := make([]int8, len(acc))
	for i, a := range acc {
		p := cp.Channel(i % channels)
		want[i] = FP32(a, &p)
	}
	for _, b := range Backends() {
		got := make([]int8, len(acc))
		ChannelsWith(b, got, acc, &cp)
		require.Equal(t, want, got, "backend %s", b.Name)
	}
}

func TestChannelsPanicsOnPartialRow(t *testing.T) {
	t.Parallel()
	cp, err := quant.NewChannelParams[int8]([]float32{1, 1, 1}, 0, -128, 127)
	require.NoError(t, err)
	assert.Panics(t, func() {
		ChannelsWith(Backends()[0], make([]int8, 4), make([]int32, 4), &cp)
	})
}

func TestRNDNUScenarios(t *testing.T) {
	t.Parallel()
	p, err := quant.NewParams[int8](0.5, 10, -128, 127)
	require.NoError(t, err)
	r, err := p.RNDNU()
	require.NoError(t, err)

	assert.Equal(t, int8(127), RNDNU(1000, &r))
	assert.Equal(t, int8(10), RNDNU(0, &r))
	// 3 * 0.5 = 1.5 rounds half up.
	assert.Equal(t, int8(12), RNDNU(3, &r))
	// -3 * 0.5 = -1.5 rounds half up to -1.
	assert.Equal(t, int8(9), RNDNU(-3, &r))
	assert.Equal(t, int8(-128), RNDNU(math.MinInt32, &r))
}

func TestRNDNUCloseToFloat(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(17, 19))
	for range 2000 {
		scale := float32(math.Exp2(rng.Float64()*20 - 20))
		p, err := quant.FullRange[int16](scale, rng.Int32N(200)-100)
		require.NoError(t, err)
		r, err := p.RNDNU()
		require.NoError(t, err)
		f := p.FP32()
		acc := rng.Int32N(1<<25) - 1<<24
		got, want := int32(RNDNU(acc, &r)), int32(FP32(acc, &f))
		assert.InDelta(t, want, got, 1, "acc=%d scale=%g", acc, scale)
	}
}

func TestSliceRNDNUMatchesScalar(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(23, 29))
	p, err := quant.NewParams[uint8](0.0123, 100, 5, 250)
	require.NoError(t, err)
	r, err := p.RNDNU()
	require.NoError(t, err)

	acc := make([]int32, 77)
	for i := range acc {
		acc[i] = randomAcc(rng)
	}
	want := make([]uint8, len(acc))
	for i, a := range acc {
		want[i] = RNDNU(a, &r)
	}
	for _, w := range Widths {
		got := make([]uint8, len(acc))
		SliceRNDNUWith(Backend{Name: "test", Variant: VariantRNDNU, Width: w}, got, acc, &r)
		require.Equal(t, want, got, "width %d", w)
	}
}

func TestParseVariant(t *testing.T) {
	t.Parallel()
	for _, v := range append(FP32Variants(), VariantRNDNU) {
		got, err := ParseVariant(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	_, err := ParseVariant("banker")
	assert.Error(t, err)
}
