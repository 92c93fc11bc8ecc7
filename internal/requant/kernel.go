package requant

import (
	"fmt"

	"github.com/samcharles93/qkernel/internal/satmath"
	"github.com/samcharles93/qkernel/pkg/quant"
)

// Register blocks. A kernel instantiated with [8]float32 processes eight
// lanes per iteration the way an AVX2 kernel holds eight floats in a ymm.
type floatLanes interface {
	[1]float32 | [2]float32 | [4]float32 | [8]float32 | [16]float32 | [32]float32
}

type intLanes interface {
	[1]int32 | [2]int32 | [4]int32 | [8]int32 | [16]int32 | [32]int32
}

// Widths lists the supported block widths.
var Widths = []int{1, 2, 4, 8, 16, 32}

// Slice requantizes acc into dst with the current backend. When dst is
// shorter than acc only len(dst) elements are produced.
func Slice[T satmath.Narrow](dst []T, acc []int32, p *quant.FP32Params[T]) {
	SliceWith(Current(), dst, acc, p)
}

// SliceWith is Slice with an explicit backend.
func SliceWith[T satmath.Narrow](b Backend, dst []T, acc []int32, p *quant.FP32Params[T]) {
	n := min(len(dst), len(acc))
	fp32Slice(b, dst[:n], acc[:n], nil, p)
}

// Channels requantizes a row-major [rows][channels] accumulator matrix with
// one scale per channel.
func Channels[T satmath.Narrow](dst []T, acc []int32, p *quant.ChannelParams[T]) {
	ChannelsWith(Current(), dst, acc, p)
}

// ChannelsWith is Channels with an explicit backend.
func ChannelsWith[T satmath.Narrow](b Backend, dst []T, acc []int32, p *quant.ChannelParams[T]) {
	c := p.Len()
	n := min(len(dst), len(acc))
	if n%c != 0 {
		panic(fmt.Sprintf("requant: %d accumulators is not a multiple of %d channels", n, c))
	}
	for r := 0; r < n; r += c {
		fp32Slice(b, dst[r:r+c], acc[r:r+c], p.Scales, &p.Base)
	}
}

// ScalesWith requantizes acc[i] with scales[i] and the shared zero point
// and range of p. Kernels use it for a column run of a per-channel output.
func ScalesWith[T satmath.Narrow](b Backend, dst []T, acc []int32, scales []float32, p *quant.FP32Params[T]) {
	n := min(len(dst), len(acc))
	if len(scales) < n {
		panic(fmt.Sprintf("requant: %d scales for %d accumulators", len(scales), n))
	}
	fp32Slice(b, dst[:n], acc[:n], scales[:n], p)
}

// SliceRNDNU requantizes acc with the integer-only pipeline using the
// current backend's block width.
func SliceRNDNU[T satmath.Narrow](dst []T, acc []int32, p *quant.RNDNUParams[T]) {
	SliceRNDNUWith(Current(), dst, acc, p)
}

// SliceRNDNUWith is SliceRNDNU with an explicit backend.
func SliceRNDNUWith[T satmath.Narrow](b Backend, dst []T, acc []int32, p *quant.RNDNUParams[T]) {
	n := min(len(dst), len(acc))
	dst, acc = dst[:n], acc[:n]
	var i int
	switch b.Width {
	case 32:
		i = rndnuBlocks[[32]int32](dst, acc, p)
	case 16:
		i = rndnuBlocks[[16]int32](dst, acc, p)
	case 8:
		i = rndnuBlocks[[8]int32](dst, acc, p)
	case 4:
		i = rndnuBlocks[[4]int32](dst, acc, p)
	case 2:
		i = rndnuBlocks[[2]int32](dst, acc, p)
	}
	for ; i < n; i++ {
		dst[i] = RNDNU(acc[i], p)
	}
}

func fp32Slice[T satmath.Narrow](b Backend, dst []T, acc []int32, scales []float32, p *quant.FP32Params[T]) {
	var i int
	switch b.Width {
	case 32:
		i = fp32Blocks[[32]float32](b.Variant, dst, acc, scales, p)
	case 16:
		i = fp32Blocks[[16]float32](b.Variant, dst, acc, scales, p)
	case 8:
		i = fp32Blocks[[8]float32](b.Variant, dst, acc, scales, p)
	case 4:
		i = fp32Blocks[[4]float32](b.Variant, dst, acc, scales, p)
	case 2:
		i = fp32Blocks[[2]float32](b.Variant, dst, acc, scales, p)
	}
	for ; i < len(acc); i++ {
		s := p.Scale
		if scales != nil {
			s = scales[i]
		}
		dst[i] = lane(b.Variant, float32(acc[i])*s, p)
	}
}

// fp32Blocks runs whole blocks and returns the number of elements done.
func fp32Blocks[F floatLanes, T satmath.Narrow](v Variant, dst []T, acc []int32, scales []float32, p *quant.FP32Params[T]) int {
	var vf F
	w := len(vf)
	i := 0
	for ; i+w <= len(acc); i += w {
		var sc []float32
		if scales != nil {
			sc = scales[i : i+w]
		}
		fp32Block[F](v, dst[i:i+w], acc[i:i+w], sc, p)
	}
	return i
}

func fp32Block[F floatLanes, T satmath.Narrow](v Variant, dst []T, acc []int32, scales []float32, p *quant.FP32Params[T]) {
	var vf F
	w := len(vf)
	acc = acc[:w]
	dst = dst[:w]
	if scales == nil {
		for j := 0; j < w; j++ {
			vf[j] = float32(acc[j]) * p.Scale
		}
	} else {
		scales = scales[:w]
		for j := 0; j < w; j++ {
			vf[j] = float32(acc[j]) * scales[j]
		}
	}
	switch v {
	case VariantLrint:
		for j := 0; j < w; j++ {
			dst[j] = lrintLane(vf[j], p)
		}
	case VariantFMagic:
		for j := 0; j < w; j++ {
			dst[j] = fmagicLane(vf[j], p)
		}
	case VariantIMagic:
		for j := 0; j < w; j++ {
			dst[j] = imagicLane(vf[j], p)
		}
	default:
		for j := 0; j < w; j++ {
			dst[j] = referenceLane(vf[j], p)
		}
	}
}

func rndnuBlocks[I intLanes, T satmath.Narrow](dst []T, acc []int32, p *quant.RNDNUParams[T]) int {
	var vi I
	w := len(vi)
	i := 0
	for ; i+w <= len(acc); i += w {
		blk := acc[i : i+w]
		for j := 0; j < w; j++ {
			vi[j] = satmath.SatShiftLeft32(blk[j], p.RightPreShift)
		}
		for j := 0; j < w; j++ {
			vi[j] = satmath.DoublingHighMul32(vi[j], p.Multiplier)
		}
		for j := 0; j < w; j++ {
			vi[j] = satmath.RoundingShiftRight32(vi[j], p.RightPostShift)
		}
		out := dst[i : i+w]
		for j := 0; j < w; j++ {
			out[j] = min(biasAndNarrow(vi[j], p.ZeroPoint, p.Min), p.Max)
		}
	}
	return i
}

func lane[T satmath.Narrow](v Variant, scaled float32, p *quant.FP32Params[T]) T {
	switch v {
	case VariantLrint:
		return lrintLane(scaled, p)
	case VariantFMagic:
		return fmagicLane(scaled, p)
	case VariantIMagic:
		return imagicLane(scaled, p)
	default:
		return referenceLane(scaled, p)
	}
}
