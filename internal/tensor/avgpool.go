package tensor

import (
	"fmt"

	"github.com/samcharles93/qkernel/internal/satmath"
	"github.com/samcharles93/qkernel/pkg/quant"
)

// Supported inputScale/outputScale ratios of the pooling kernel.
const (
	avgPoolMinRatio = 0x1p-8
	avgPoolMaxRatio = 0x1p+8
)

// AvgPoolParams are the constants of quantized average pooling: the sum of
// Pool inputs plus Bias is requantized with inputScale/(outputScale*Pool).
type AvgPoolParams[T satmath.Narrow8] struct {
	Pool int
	Bias int32
	Out  PerTensor[T]
}

func NewAvgPoolParams[T satmath.Narrow8](pool int, inputZeroPoint int32, inputScale float32, out quant.Params[T]) (AvgPoolParams[T], error) {
	if pool < 1 {
		return AvgPoolParams[T]{}, fmt.Errorf("%w: pooling size %d", ErrInvalidParameter, pool)
	}
	if err := out.Validate(); err != nil {
		return AvgPoolParams[T]{}, err
	}
	in := out
	in.Scale, in.ZeroPoint = inputScale, inputZeroPoint
	if err := in.Validate(); err != nil {
		return AvgPoolParams[T]{}, fmt.Errorf("input: %w", err)
	}
	if r := inputScale / out.Scale; r < avgPoolMinRatio || r >= avgPoolMaxRatio {
		return AvgPoolParams[T]{}, fmt.Errorf("%w: input/output ratio %g not in [2^-8, 2^8)", quant.ErrScaleRange, r)
	}

	p := out
	p.Scale = inputScale / (out.Scale * float32(pool))
	return AvgPoolParams[T]{
		Pool: pool,
		Bias: -int32(pool) * inputZeroPoint,
		Out:  *NewPerTensor(p),
	}, nil
}

// AvgPool averages len(input)/Pool output pixels. input[p*Pool+i] is the
// i-th input row of pixel p and holds at least channels values.
func AvgPool[T satmath.Narrow8](dst []T, input [][]T, channels int, p *AvgPoolParams[T]) {
	pool := p.Pool
	if len(input)%pool != 0 {
		panic("avgpool: indirection length is not a multiple of pool")
	}
	pixels := len(input) / pool
	if len(dst) < pixels*channels {
		panic("avgpool: output too short")
	}

	var acc [chunkChannels]int32
	for px := 0; px < pixels; px++ {
		rows := input[px*pool : (px+1)*pool]
		o := dst[px*channels : (px+1)*channels]
		for c0 := 0; c0 < channels; c0 += chunkChannels {
			cn := min(chunkChannels, channels-c0)
			a := acc[:cn]
			for j := range a {
				a[j] = p.Bias
			}
			for _, row := range rows {
				for j, x := range row[c0 : c0+cn] {
					a[j] += int32(x)
				}
			}
			p.Out.Requantize(o[c0:c0+cn], a, c0)
		}
	}
}
