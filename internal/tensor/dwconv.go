package tensor

import "github.com/samcharles93/qkernel/internal/satmath"

// Channels per accumulator chunk in the depthwise and pooling kernels.
const chunkChannels = 64

// DWConvWeights holds depthwise convolution weights laid out [Taps][Channels]
// with the input zero point folded into Bias, as PackGemmWeights does.
type DWConvWeights[W satmath.Narrow8] struct {
	Channels, Taps  int
	KernelZeroPoint int32
	Bias            []int32
	Data            []W
}

// PackDWConvWeights copies [taps][channels] weights and folds the input
// zero point into the per-channel bias.
func PackDWConvWeights[W satmath.Narrow8](channels, taps int, weights []W, bias []int32, inputZeroPoint, kernelZeroPoint int32) *DWConvWeights[W] {
	if len(weights) != channels*taps {
		panic("dwconv: weight length mismatch")
	}
	if bias != nil && len(bias) != channels {
		panic("dwconv: bias length mismatch")
	}
	pw := &DWConvWeights[W]{
		Channels:        channels,
		Taps:            taps,
		KernelZeroPoint: kernelZeroPoint,
		Bias:            make([]int32, channels),
		Data:            append([]W(nil), weights...),
	}
	for c := 0; c < channels; c++ {
		var sum int32
		for t := 0; t < taps; t++ {
			sum += int32(weights[t*channels+c]) - kernelZeroPoint
		}
		var bv int32
		if bias != nil {
			bv = bias[c]
		}
		pw.Bias[c] = bv - inputZeroPoint*sum
	}
	return pw
}

// DWConv computes len(input)/Taps output pixels. input[p*Taps+t] is the
// input row seen by tap t of pixel p and holds at least Channels values;
// padding taps point at a row filled with the input zero point. dst holds
// pixels*Channels outputs.
func DWConv[In, W satmath.Narrow8, T satmath.Narrow](dst []T, input [][]In, w *DWConvWeights[W], out Requantizer[T]) {
	taps, channels := w.Taps, w.Channels
	if taps == 0 || len(input)%taps != 0 {
		panic("dwconv: indirection length is not a multiple of taps")
	}
	pixels := len(input) / taps
	if len(dst) < pixels*channels {
		panic("dwconv: output too short")
	}

	kzp := w.KernelZeroPoint
	var acc [chunkChannels]int32
	for p := 0; p < pixels; p++ {
		rows := input[p*taps : (p+1)*taps]
		o := dst[p*channels : (p+1)*channels]
		for c0 := 0; c0 < channels; c0 += chunkChannels {
			cn := min(chunkChannels, channels-c0)
			a := acc[:cn]
			copy(a, w.Bias[c0:c0+cn])
			for t, row := range rows {
				x := row[c0 : c0+cn]
				wt := w.Data[t*channels+c0 : t*channels+c0+cn]
				for j := range a {
					a[j] += int32(x[j]) * (int32(wt[j]) - kzp)
				}
			}
			out.Requantize(o[c0:c0+cn], a, c0)
		}
	}
}
