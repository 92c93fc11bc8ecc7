package tensor

import (
	"github.com/samcharles93/qkernel/internal/requant"
	"github.com/samcharles93/qkernel/internal/satmath"
	"github.com/samcharles93/qkernel/pkg/quant"
)

// Requantizer is the output stage of a kernel: it turns the accumulators
// of output columns [col, col+len(acc)) into T.
type Requantizer[T satmath.Narrow] interface {
	Requantize(dst []T, acc []int32, col int)
}

// PerTensor applies one fp32 scale to every column.
type PerTensor[T satmath.Narrow] struct {
	Params  quant.FP32Params[T]
	Backend requant.Backend
}

// NewPerTensor uses the process-wide backend selected at construction.
func NewPerTensor[T satmath.Narrow](p quant.Params[T]) *PerTensor[T] {
	return &PerTensor[T]{Params: p.FP32(), Backend: requant.Current()}
}

func (r *PerTensor[T]) Requantize(dst []T, acc []int32, _ int) {
	requant.SliceWith(r.Backend, dst, acc, &r.Params)
}

// PerChannel applies one fp32 scale per output column (qc8).
type PerChannel[T satmath.Narrow] struct {
	Params  quant.ChannelParams[T]
	Backend requant.Backend
}

func NewPerChannel[T satmath.Narrow](p quant.ChannelParams[T]) *PerChannel[T] {
	return &PerChannel[T]{Params: p, Backend: requant.Current()}
}

func (r *PerChannel[T]) Requantize(dst []T, acc []int32, col int) {
	requant.ScalesWith(r.Backend, dst, acc, r.Params.Scales[col:], &r.Params.Base)
}

// PerTensorRNDNU applies the integer-only pipeline.
type PerTensorRNDNU[T satmath.Narrow] struct {
	Params  quant.RNDNUParams[T]
	Backend requant.Backend
}

func NewPerTensorRNDNU[T satmath.Narrow](p quant.Params[T]) (*PerTensorRNDNU[T], error) {
	r, err := p.RNDNU()
	if err != nil {
		return nil, err
	}
	return &PerTensorRNDNU[T]{Params: r, Backend: requant.Current()}, nil
}

func (r *PerTensorRNDNU[T]) Requantize(dst []T, acc []int32, _ int) {
	requant.SliceRNDNUWith(r.Backend, dst, acc, &r.Params)
}
