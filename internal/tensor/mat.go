package tensor

import (
	"math/rand/v2"

	"github.com/samcharles93/qkernel/internal/satmath"
)

// Mat is a dense row-major matrix of quantized values.
//
// R and C are the number of rows and columns. Stride is the number of
// elements between the starts of two consecutive rows and is at least C,
// which lets a Mat view a column range of a wider buffer.
type Mat[T satmath.Narrow] struct {
	R, C   int
	Stride int
	Data   []T
}

// NewMat allocates a zeroed r x c matrix.
func NewMat[T satmath.Narrow](r, c int) Mat[T] {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat[T]{R: r, C: c, Stride: c, Data: make([]T, r*c)}
}

// NewMatFromData wraps existing row-major data of length r*c.
func NewMatFromData[T satmath.Narrow](r, c int, data []T) Mat[T] {
	if r*c != len(data) {
		panic("data length mismatch")
	}
	return Mat[T]{R: r, C: c, Stride: c, Data: data}
}

// NewMatStrided wraps data whose rows start stride elements apart.
func NewMatStrided[T satmath.Narrow](r, c, stride int, data []T) (Mat[T], error) {
	if r < 0 || c < 0 {
		return Mat[T]{}, errNegativeDim
	}
	if stride < c {
		return Mat[T]{}, errStrideTooSmall
	}
	if r > 0 && len(data) < (r-1)*stride+c {
		return Mat[T]{}, errDataTooShort
	}
	return Mat[T]{R: r, C: c, Stride: stride, Data: data}, nil
}

// Row returns a view of row i. Writes through the slice update the matrix.
func (m *Mat[T]) Row(i int) []T {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// FillRand fills m with reproducible values drawn uniformly from [lo, hi].
func FillRand[T satmath.Narrow](m *Mat[T], seed uint64, lo, hi T) {
	rng := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
	span := int32(hi) - int32(lo) + 1
	for i := 0; i < m.R; i++ {
		row := m.Row(i)
		for j := range row {
			row[j] = T(int32(lo) + rng.Int32N(span))
		}
	}
}
