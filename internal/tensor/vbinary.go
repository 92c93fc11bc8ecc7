package tensor

import (
	"github.com/samcharles93/qkernel/internal/requant"
	"github.com/samcharles93/qkernel/internal/satmath"
	"github.com/samcharles93/qkernel/pkg/quant"
)

const chunkElems = 256

// VAdd computes dst[i] = a[i] + b[i] in the quantized domain. Both operands
// are rescaled by fixed-point multipliers sharing one shift, so the sum is
// exact in int32 and rounded once.
func VAdd[T satmath.Narrow8](dst, a, b []T, p *quant.AddParams[T]) {
	if len(a) < len(dst) || len(b) < len(dst) {
		panic("vadd: operand shorter than output")
	}
	for i := range dst {
		acc := p.Bias + int32(a[i])*p.AMultiplier + int32(b[i])*p.BMultiplier
		dst[i] = addOutput(acc, p)
	}
}

// VAddC adds the scalar b to every element of a.
func VAddC[T satmath.Narrow8](dst, a []T, b T, p *quant.AddParams[T]) {
	if len(a) < len(dst) {
		panic("vaddc: operand shorter than output")
	}
	bias := p.Bias + int32(b)*p.BMultiplier
	for i := range dst {
		dst[i] = addOutput(bias+int32(a[i])*p.AMultiplier, p)
	}
}

func addOutput[T satmath.Narrow8](acc int32, p *quant.AddParams[T]) T {
	out := satmath.ArithShiftRight32(acc, p.Shift)
	out = satmath.Clamp(out, p.OutputMinLessZeroPoint, p.OutputMaxLessZeroPoint)
	return T(out + p.ZeroPoint)
}

// VMul computes dst[i] = a[i] * b[i] in the quantized domain: the
// zero-centered product is requantized with the current backend.
func VMul[T satmath.Narrow8](dst, a, b []T, p *quant.MulParams[T]) {
	if len(a) < len(dst) || len(b) < len(dst) {
		panic("vmul: operand shorter than output")
	}
	backend := requant.Current()
	var acc [chunkElems]int32
	for i0 := 0; i0 < len(dst); i0 += chunkElems {
		n := min(chunkElems, len(dst)-i0)
		av, bv := a[i0:i0+n], b[i0:i0+n]
		for j := range n {
			acc[j] = (int32(av[j]) - p.AZeroPoint) * (int32(bv[j]) - p.BZeroPoint)
		}
		requant.SliceWith(backend, dst[i0:i0+n], acc[:n], &p.Out)
	}
}

// VMulC multiplies every element of a by the scalar b.
func VMulC[T satmath.Narrow8](dst, a []T, b T, p *quant.MulParams[T]) {
	if len(a) < len(dst) {
		panic("vmulc: operand shorter than output")
	}
	backend := requant.Current()
	vb := int32(b) - p.BZeroPoint
	var acc [chunkElems]int32
	for i0 := 0; i0 < len(dst); i0 += chunkElems {
		n := min(chunkElems, len(dst)-i0)
		for j, x := range a[i0 : i0+n] {
			acc[j] = (int32(x) - p.AZeroPoint) * vb
		}
		requant.SliceWith(backend, dst[i0:i0+n], acc[:n], &p.Out)
	}
}
