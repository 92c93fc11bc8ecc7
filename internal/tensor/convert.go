package tensor

import (
	"fmt"

	"github.com/x448/float16"

	"github.com/samcharles93/qkernel/internal/requant"
	"github.com/samcharles93/qkernel/internal/satmath"
	"github.com/samcharles93/qkernel/pkg/quant"
)

// NewQuantizeParams returns the fp32 constants for converting real values
// into T with the given output quantization. The stored scale is the
// reciprocal of outputScale.
func NewQuantizeParams[T satmath.Narrow8](outputScale float32, zeroPoint int32, minV, maxV T) (quant.FP32Params[T], error) {
	p, err := quant.NewParams(outputScale, zeroPoint, minV, maxV)
	if err != nil {
		return quant.FP32Params[T]{}, err
	}
	p.Scale = 1 / outputScale
	if err := p.Validate(); err != nil {
		return quant.FP32Params[T]{}, fmt.Errorf("inverse scale: %w", err)
	}
	return p.FP32(), nil
}

// QuantizeF32 converts float32 values to T.
func QuantizeF32[T satmath.Narrow8](dst []T, src []float32, p *quant.FP32Params[T]) {
	for i, x := range src[:len(dst)] {
		dst[i] = requant.Float(x, p)
	}
}

// QuantizeF16 converts IEEE half-precision bit patterns to T.
func QuantizeF16[T satmath.Narrow8](dst []T, src []uint16, p *quant.FP32Params[T]) {
	for i, h := range src[:len(dst)] {
		dst[i] = requant.Float(float16.Frombits(h).Float32(), p)
	}
}

// DequantizeQ8 maps quantized values back to float32.
func DequantizeQ8[T satmath.Narrow](dst []float32, src []T, p quant.Params[T]) {
	for i, q := range src[:len(dst)] {
		dst[i] = p.Dequantize(q)
	}
}

// F16ToF32 widens half-precision bit patterns.
func F16ToF32(dst []float32, src []uint16) {
	for i, h := range src[:len(dst)] {
		dst[i] = float16.Frombits(h).Float32()
	}
}

// F32ToF16 narrows to half precision with round-to-nearest-even.
func F32ToF16(dst []uint16, src []float32) {
	for i, f := range src[:len(dst)] {
		dst[i] = float16.Fromfloat32(f).Bits()
	}
}
