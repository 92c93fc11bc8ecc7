package tensor

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/samcharles93/qkernel/internal/satmath"
)

// GemmWeights holds an [N][K] weight matrix packed the way the GEMM
// micro-kernels read it. Columns are split into blocks of NR; block b owns
// Bias[b*NR:(b+1)*NR] and Data[b*K*NR:(b+1)*K*NR], the latter stored as K
// rows of NR weights.
type GemmWeights[W satmath.Narrow8] struct {
	K, N, NR        int
	KernelZeroPoint int32
	Bias            []int32
	Data            []W
}

// Blocks is the number of NR-column blocks, the last possibly padded.
func (w *GemmWeights[W]) Blocks() int {
	return (w.N + w.NR - 1) / w.NR
}

// PackGemmWeights packs row-major [n][k] weights and an optional bias.
//
// The input zero point is folded into the packed bias so the tile loop can
// multiply raw inputs:
//
//	bias'[j] = bias[j] - inputZeroPoint * sum_k(w[j][k] - kernelZeroPoint)
//
// Padding columns hold kernelZeroPoint and a zero bias so they contribute
// nothing. Signed kernels (qs8, qc8) pass a kernel zero point of 0.
func PackGemmWeights[W satmath.Narrow8](nr, k, n int, weights []W, bias []int32, inputZeroPoint, kernelZeroPoint int32) *GemmWeights[W] {
	if nr < 1 || nr > maxNR {
		panic(fmt.Sprintf("gemm: nr %d not in [1, %d]", nr, maxNR))
	}
	if len(weights) != n*k {
		panic("gemm: weight length mismatch")
	}
	if bias != nil && len(bias) != n {
		panic("gemm: bias length mismatch")
	}

	blocks := (n + nr - 1) / nr
	pw := &GemmWeights[W]{
		K:               k,
		N:               n,
		NR:              nr,
		KernelZeroPoint: kernelZeroPoint,
		Bias:            make([]int32, blocks*nr),
		Data:            make([]W, blocks*k*nr),
	}
	for b := 0; b < blocks; b++ {
		data := pw.Data[b*k*nr : (b+1)*k*nr]
		for j := 0; j < nr; j++ {
			col := b*nr + j
			if col >= n {
				for kk := 0; kk < k; kk++ {
					data[kk*nr+j] = W(kernelZeroPoint)
				}
				continue
			}
			var sum int32
			for kk, v := range weights[col*k : (col+1)*k] {
				data[kk*nr+j] = v
				sum += int32(v) - kernelZeroPoint
			}
			var bv int32
			if bias != nil {
				bv = bias[col]
			}
			pw.Bias[b*nr+j] = bv - inputZeroPoint*sum
		}
	}
	return pw
}

// GemmTile computes the int32 accumulators of one mr x NR tile: rows
// [row, row+mr) of a against packed column block blk. acc is row-major with
// stride NR and must hold at least mr*NR values.
func GemmTile[In, W satmath.Narrow8](acc []int32, a *Mat[In], row, mr int, w *GemmWeights[W], blk int) {
	nr, k := w.NR, w.K
	acc = acc[:mr*nr]
	bias := w.Bias[blk*nr : (blk+1)*nr]
	for i := 0; i < mr; i++ {
		copy(acc[i*nr:(i+1)*nr], bias)
	}

	data := w.Data[blk*k*nr : (blk+1)*k*nr]
	kzp := w.KernelZeroPoint
	for i := 0; i < mr; i++ {
		ar := a.Row(row + i)
		ai := acc[i*nr : (i+1)*nr]
		for kk, x := range ar[:k] {
			va := int32(x)
			for j, vb := range data[kk*nr : (kk+1)*nr] {
				ai[j] += va * (int32(vb) - kzp)
			}
		}
	}
}

// Gemm computes c = requantize(a * wᵀ + bias) on the calling goroutine.
func Gemm[In, W satmath.Narrow8, T satmath.Narrow](cfg GemmConfig, c *Mat[T], a *Mat[In], w *GemmWeights[W], out Requantizer[T]) {
	checkGemm(c, a, w)
	var scratch [maxMR * maxNR]int32
	gemmRows(c, a, w, out, clampTile(cfg.MR, maxMR), 0, c.R, scratch[:])
}

func checkGemm[In, W satmath.Narrow8, T satmath.Narrow](c *Mat[T], a *Mat[In], w *GemmWeights[W]) {
	if a.C != w.K || c.R != a.R || c.C != w.N {
		panic("gemm: dimension mismatch")
	}
}

// gemmRows walks output rows [rs, re) in tiles of mr rows.
func gemmRows[In, W satmath.Narrow8, T satmath.Narrow](c *Mat[T], a *Mat[In], w *GemmWeights[W], out Requantizer[T], mr, rs, re int, scratch []int32) {
	nr := w.NR
	blocks := w.Blocks()
	for i0 := rs; i0 < re; i0 += mr {
		m := min(mr, re-i0)
		for b := 0; b < blocks; b++ {
			GemmTile(scratch, a, i0, m, w, b)
			col := b * nr
			nc := min(nr, w.N-col)
			for i := 0; i < m; i++ {
				out.Requantize(c.Row(i0 + i)[col:col+nc], scratch[i*nr:i*nr+nc], col)
			}
		}
	}
}

type gemmTask struct {
	run    func(rs, re int, scratch []int32)
	rs, re int
	done   chan struct{}
}

type gemmPool struct {
	size      int
	tasks     chan gemmTask
	doneSlots chan chan struct{}
}

func newGemmPool() *gemmPool {
	size := max(runtime.GOMAXPROCS(0), 1)
	p := &gemmPool{
		size:      size,
		tasks:     make(chan gemmTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.doneSlots <- make(chan struct{}, 1)
	}
	for w := 0; w < size; w++ {
		scratch := make([]int32, maxMR*maxNR)
		go func(scratch []int32) {
			for task := range p.tasks {
				task.run(task.rs, task.re, scratch)
				task.done <- struct{}{}
			}
		}(scratch)
	}
	return p
}

var gemmWorkPool = sync.OnceValue(newGemmPool)

// GemmPar is Gemm with output rows split across a shared worker pool. Each
// worker owns a disjoint range of whole tiles, so results match Gemm.
func GemmPar[In, W satmath.Narrow8, T satmath.Narrow](cfg GemmConfig, c *Mat[T], a *Mat[In], w *GemmWeights[W], out Requantizer[T]) {
	checkGemm(c, a, w)
	if c.R == 0 || c.C == 0 {
		return
	}

	mr := clampTile(cfg.MR, maxMR)
	workers := cfg.workers(c.R)
	if workers <= 1 {
		var scratch [maxMR * maxNR]int32
		gemmRows(c, a, w, out, mr, 0, c.R, scratch[:])
		return
	}
	pool := gemmWorkPool()
	workers = min(workers, pool.size)

	chunk := (c.R + workers - 1) / workers
	chunk = (chunk + mr - 1) / mr * mr

	run := func(rs, re int, scratch []int32) {
		gemmRows(c, a, w, out, mr, rs, re, scratch)
	}

	done := <-pool.doneSlots
	tasks := 0
	for rs := 0; rs < c.R; rs += chunk {
		pool.tasks <- gemmTask{
			run:  run,
			rs:   rs,
			re:   min(rs+chunk, c.R),
			done: done,
		}
		tasks++
	}
	for range tasks {
		<-done
	}
	pool.doneSlots <- done
}
