package tensor

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/samcharles93/qkernel/internal/requant"
	"github.com/samcharles93/qkernel/internal/satmath"
	"github.com/samcharles93/qkernel/pkg/quant"
)

func randRows[T satmath.Narrow8](rng *rand.Rand, rows, cols int) [][]T {
	lo, hi := satmath.Bounds[T]()
	out := make([][]T, rows)
	for i := range out {
		out[i] = make([]T, cols)
		for j := range out[i] {
			out[i][j] = T(lo + rng.Int32N(hi-lo+1))
		}
	}
	return out
}

func TestDWConvMatchesNaive(t *testing.T) {
	t.Parallel()
	const (
		channels = 70
		taps     = 9
		pixels   = 3
		izp      = 100
		kzp      = 120
	)
	rng := rand.New(rand.NewPCG(1, 2))
	input := randRows[uint8](rng, pixels*taps, channels)
	weights := make([]uint8, taps*channels)
	for i := range weights {
		weights[i] = uint8(rng.IntN(256))
	}
	bias := make([]int32, channels)
	for i := range bias {
		bias[i] = rng.Int32N(2000) - 1000
	}
	out, _ := quant.FullRange[uint8](0.002, 90)
	fp := out.FP32()

	want := make([]uint8, pixels*channels)
	for p := 0; p < pixels; p++ {
		for c := 0; c < channels; c++ {
			acc := bias[c]
			for tp := 0; tp < taps; tp++ {
				acc += (int32(input[p*taps+tp][c]) - izp) * (int32(weights[tp*channels+c]) - kzp)
			}
			want[p*channels+c] = requant.FP32(acc, &fp)
		}
	}

	w := PackDWConvWeights(channels, taps, weights, bias, izp, kzp)
	got := make([]uint8, pixels*channels)
	DWConv(got, input, w, NewPerTensor(out))
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("output %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestDWConvPerChannel(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(3, 4))
	const channels, taps = 5, 4
	input := randRows[int8](rng, taps, channels)
	weights := make([]int8, taps*channels)
	for i := range weights {
		weights[i] = int8(rng.IntN(255) - 127)
	}
	scales := []float32{0.01, 0.02, 0.03, 0.04, 0.05}
	cp, err := quant.NewChannelParams[int8](scales, 0, -128, 127)
	if err != nil {
		t.Fatal(err)
	}

	w := PackDWConvWeights(channels, taps, weights, nil, 0, 0)
	got := make([]int8, channels)
	DWConv(got, input, w, NewPerChannel(cp))
	for c := 0; c < channels; c++ {
		var acc int32
		for tp := 0; tp < taps; tp++ {
			acc += int32(input[tp][c]) * int32(weights[tp*channels+c])
		}
		p := cp.Channel(c)
		if want := requant.FP32(acc, &p); got[c] != want {
			t.Fatalf("channel %d: expected %d, got %d", c, want, got[c])
		}
	}
}

func TestAvgPool(t *testing.T) {
	t.Parallel()
	const (
		pool     = 9
		channels = 70
		izp      = 10
	)
	rng := rand.New(rand.NewPCG(5, 6))
	input := randRows[uint8](rng, 2*pool, channels)
	out, _ := quant.FullRange[uint8](0.5, 10)
	p, err := NewAvgPoolParams(pool, izp, 0.5, out)
	if err != nil {
		t.Fatal(err)
	}
	if p.Bias != -pool*izp {
		t.Fatalf("expected bias %d, got %d", -pool*izp, p.Bias)
	}

	got := make([]uint8, 2*channels)
	AvgPool(got, input, channels, &p)
	for px := 0; px < 2; px++ {
		for c := 0; c < channels; c++ {
			var sum int
			for i := 0; i < pool; i++ {
				sum += int(input[px*pool+i][c])
			}
			mean := float64(sum) / pool
			if d := math.Abs(float64(got[px*channels+c]) - mean); d > 1 {
				t.Fatalf("pixel %d channel %d: mean %.2f, got %d", px, c, mean, got[px*channels+c])
			}
		}
	}
}

func TestAvgPoolParamsValidation(t *testing.T) {
	t.Parallel()
	out, _ := quant.FullRange[int8](1, 0)
	if _, err := NewAvgPoolParams(0, 0, 1, out); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if _, err := NewAvgPoolParams(4, 0, 1000, out); !errors.Is(err, quant.ErrScaleRange) {
		t.Fatalf("expected ErrScaleRange, got %v", err)
	}
	if _, err := NewAvgPoolParams(4, 200, 1, out); !errors.Is(err, quant.ErrZeroPointRange) {
		t.Fatalf("expected ErrZeroPointRange, got %v", err)
	}
}

func TestVAddExact(t *testing.T) {
	t.Parallel()
	out, _ := quant.FullRange[int8](1, 0)
	p, err := quant.NewAddParams(0, 0, 1, 1, out)
	if err != nil {
		t.Fatal(err)
	}
	dst := make([]int8, 4)
	VAdd(dst, []int8{3, -10, 100, -100}, []int8{4, 5, 100, -100}, &p)
	want := []int8{7, -5, 127, -128}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("element %d: expected %d, got %d", i, want[i], dst[i])
		}
	}
}

func TestVAddMatchesFloat(t *testing.T) {
	t.Parallel()
	const (
		aScale, bScale, oScale = 0.05, 0.02, 0.04
		azp, bzp, ozp          = 130, 120, 125
	)
	out, _ := quant.FullRange[uint8](oScale, ozp)
	p, err := quant.NewAddParams(azp, bzp, float32(aScale/oScale), float32(bScale/oScale), out)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewPCG(7, 8))
	n := 1000
	a, b := make([]uint8, n), make([]uint8, n)
	for i := range a {
		a[i], b[i] = uint8(rng.IntN(256)), uint8(rng.IntN(256))
	}
	dst := make([]uint8, n)
	VAdd(dst, a, b, &p)
	dstC := make([]uint8, n)
	VAddC(dstC, a, b[0], &p)

	for i := range dst {
		sum := (float64(a[i])-azp)*aScale + (float64(b[i])-bzp)*bScale
		want := satmath.Clamp(math.RoundToEven(sum/oScale)+ozp, 0, 255)
		if math.Abs(float64(dst[i])-want) > 1 {
			t.Fatalf("vadd %d: expected ~%v, got %d", i, want, dst[i])
		}
		sumC := (float64(a[i])-azp)*aScale + (float64(b[0])-bzp)*bScale
		wantC := satmath.Clamp(math.RoundToEven(sumC/oScale)+ozp, 0, 255)
		if math.Abs(float64(dstC[i])-wantC) > 1 {
			t.Fatalf("vaddc %d: expected ~%v, got %d", i, wantC, dstC[i])
		}
	}
}

func TestVMul(t *testing.T) {
	t.Parallel()
	out, _ := quant.FullRange[int8](1, 0)
	p, err := quant.NewMulParams(0, 0, 0.1, out)
	if err != nil {
		t.Fatal(err)
	}
	a := make([]int8, 300)
	b := make([]int8, 300)
	for i := range a {
		a[i] = int8(i%21 - 10)
		b[i] = int8(i%17 - 8)
	}
	dst := make([]int8, len(a))
	VMul(dst, a, b, &p)
	for i := range dst {
		want := int8(satmath.Clamp(math.RoundToEven(float64(float32(int32(a[i])*int32(b[i]))*0.1)), -128, 127))
		if dst[i] != want {
			t.Fatalf("element %d: %d*%d expected %d, got %d", i, a[i], b[i], want, dst[i])
		}
	}

	dstC := make([]int8, 3)
	VMulC(dstC, []int8{10, -10, 127}, 20, &p)
	if dstC[0] != 20 || dstC[1] != -20 || dstC[2] != 127 {
		t.Fatalf("unexpected vmulc output %v", dstC)
	}
}

func TestQuantizeF32(t *testing.T) {
	t.Parallel()
	p, err := NewQuantizeParams[int8](0.5, 0, -128, 127)
	if err != nil {
		t.Fatal(err)
	}
	src := []float32{1, 1.25, 1.75, float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1)), 1e9, -0.25}
	want := []int8{2, 2, 4, 0, 127, -128, 127, 0}
	dst := make([]int8, len(src))
	QuantizeF32(dst, src, &p)
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("element %d (%g): expected %d, got %d", i, src[i], want[i], dst[i])
		}
	}
}

func TestHalfPrecision(t *testing.T) {
	t.Parallel()
	h := make([]uint16, 3)
	F32ToF16(h, []float32{1, -2, 65504})
	if h[0] != 0x3C00 || h[1] != 0xC000 || h[2] != 0x7BFF {
		t.Fatalf("unexpected f16 bits %#04x", h)
	}
	f := make([]float32, 3)
	F16ToF32(f, h)
	if f[0] != 1 || f[1] != -2 || f[2] != 65504 {
		t.Fatalf("unexpected f32 values %v", f)
	}

	p, _ := NewQuantizeParams[uint8](0.5, 128, 0, 255)
	q := make([]uint8, 2)
	QuantizeF16(q, h[:2], &p)
	if q[0] != 130 || q[1] != 124 {
		t.Fatalf("unexpected quantized values %v", q)
	}

	back := make([]float32, 2)
	in, _ := quant.FullRange[uint8](0.5, 128)
	DequantizeQ8(back, q, in)
	if back[0] != 1 || back[1] != -2 {
		t.Fatalf("unexpected dequantized values %v", back)
	}
}

func TestLUTIdentity(t *testing.T) {
	t.Parallel()
	p, _ := quant.FullRange[int8](0.5, 3)
	l, err := BuildLUT(p, p, func(x float32) float32 { return x })
	if err != nil {
		t.Fatal(err)
	}
	for i := -128; i < 128; i++ {
		if got := l.Lookup(int8(i)); got != int8(i) {
			t.Fatalf("identity table maps %d to %d", i, got)
		}
	}
}

func TestLUTOperators(t *testing.T) {
	t.Parallel()

	in, _ := quant.FullRange[uint8](0.1, 128)
	sigOut, _ := quant.FullRange[uint8](1.0/256, 0)
	sig, err := NewSigmoid(in, sigOut)
	if err != nil {
		t.Fatal(err)
	}
	if got := sig.Lookup(128); got != 128 {
		t.Fatalf("sigmoid(0): expected 128, got %d", got)
	}
	if got := sig.Lookup(255); got != 255 {
		t.Fatalf("sigmoid(12.7): expected 255, got %d", got)
	}

	in8, _ := quant.FullRange[int8](0.1, 0)
	tanhOut, _ := quant.FullRange[int8](1.0/128, 0)
	th, err := NewTanh(in8, tanhOut)
	if err != nil {
		t.Fatal(err)
	}
	dst := make([]int8, 3)
	th.Apply(dst, []int8{0, 127, -128})
	if dst[0] != 0 || dst[1] != 127 || dst[2] != -128 {
		t.Fatalf("unexpected tanh output %v", dst)
	}

	one, _ := quant.FullRange[int8](1, 0)
	lr, err := NewLeakyReLU(0.5, one, one)
	if err != nil {
		t.Fatal(err)
	}
	if lr.Lookup(-10) != -5 || lr.Lookup(10) != 10 {
		t.Fatalf("unexpected leaky relu output %d %d", lr.Lookup(-10), lr.Lookup(10))
	}

	elu, err := NewELU(1, in8, in8)
	if err != nil {
		t.Fatal(err)
	}
	if got := elu.Lookup(-128); got != -10 {
		t.Fatalf("elu(-12.8): expected -10, got %d", got)
	}
}

func TestLUTValidation(t *testing.T) {
	t.Parallel()
	in, _ := quant.FullRange[uint8](0.1, 128)
	bad, _ := quant.FullRange[uint8](0.01, 0)
	if _, err := NewSigmoid(in, bad); !errors.Is(err, ErrUnsupportedParameter) {
		t.Fatalf("expected ErrUnsupportedParameter, got %v", err)
	}
	if _, err := NewELU(0, in, in); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if _, err := NewLeakyReLU(2, in, in); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	flat := in
	flat.Min, flat.Max = 7, 7
	if _, err := BuildLUT(in, flat, Tanh); !errors.Is(err, quant.ErrEmptyRange) {
		t.Fatalf("expected ErrEmptyRange, got %v", err)
	}
}
