// Package neural implements the graph-masked multi-head attention encoder:
// dense row-major float32 matrices, edge-restricted attention with
// edge-type-conditioned keys and values, position-wise feed-forward
// sublayers, and CLS pooling for classification.
package neural

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/viterin/vek/vek32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// ErrConfiguration indicates an invalid layer or encoder configuration,
// detected eagerly before any weight is allocated.
var ErrConfiguration = errors.New("invalid configuration")

// Matrix is a dense row-major float32 matrix. Data is one flat slice of
// length Rows*Cols with stride Cols.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// NewMatrix returns a zero matrix of the given shape.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// NewRandMatrix returns a matrix with entries drawn from N(0, scale²) using
// the caller's generator. All randomized initialization in this package
// threads an explicit *rand.Rand; there is no global seed state.
func NewRandMatrix(rows, cols int, scale float32, rng *rand.Rand) *Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = float32(rng.NormFloat64()) * scale
	}
	return m
}

// At returns the element at row i, column j.
func (m *Matrix) At(i, j int) float32 {
	return m.Data[i*m.Cols+j]
}

// Set assigns the element at row i, column j.
func (m *Matrix) Set(i, j int, v float32) {
	m.Data[i*m.Cols+j] = v
}

// Row returns row i as a slice sharing the matrix's backing array.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	out := NewMatrix(m.Rows, m.Cols)
	copy(out.Data, m.Data)
	return out
}

func (m *Matrix) general() blas32.General {
	return blas32.General{Rows: m.Rows, Cols: m.Cols, Stride: m.Cols, Data: m.Data}
}

// MatMul computes a·b. Panics on shape mismatch; shapes are fixed at layer
// construction and a mismatch here is a programming error, not input error.
func MatMul(a, b *Matrix) *Matrix {
	if a.Cols != b.Rows {
		panic(fmt.Sprintf("neural: matmul shape mismatch (%dx%d)·(%dx%d)",
			a.Rows, a.Cols, b.Rows, b.Cols))
	}
	out := NewMatrix(a.Rows, b.Cols)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a.general(), b.general(), 0, out.general())
	return out
}

// AddInPlace accumulates other into m.
func (m *Matrix) AddInPlace(other *Matrix) {
	if m.Rows != other.Rows || m.Cols != other.Cols {
		panic(fmt.Sprintf("neural: add shape mismatch (%dx%d)+(%dx%d)",
			m.Rows, m.Cols, other.Rows, other.Cols))
	}
	vek32.Add_Inplace(m.Data, other.Data)
}

// ScaleInPlace multiplies every element of m by s.
func (m *Matrix) ScaleInPlace(s float32) {
	vek32.MulNumber_Inplace(m.Data, s)
}

// dot is the inner product of two equal-length rows.
func dot(a, b []float32) float32 {
	return vek32.Dot(a, b)
}

// softmaxInto normalizes logits into weights over the positions where
// masked[j] is true, writing zeros elsewhere. It subtracts the running max
// before exponentiating for numerical stability. When no position is
// unmasked every weight is zero; the caller maps that to a zero output row.
func softmaxInto(weights, logits []float32, masked []bool) {
	maxLogit := float32(math.Inf(-1))
	for j, ok := range masked {
		if ok && logits[j] > maxLogit {
			maxLogit = logits[j]
		}
	}
	if math.IsInf(float64(maxLogit), -1) {
		for j := range weights {
			weights[j] = 0
		}
		return
	}

	var sum float32
	for j, ok := range masked {
		if !ok {
			weights[j] = 0
			continue
		}
		w := float32(math.Exp(float64(logits[j] - maxLogit)))
		weights[j] = w
		sum += w
	}
	inv := 1 / sum
	for j := range weights {
		weights[j] *= inv
	}
}

// gelu is the tanh approximation used by the feed-forward sublayer.
func gelu(x float32) float32 {
	x64 := float64(x)
	return float32(0.5 * x64 * (1 + math.Tanh(0.7978845608028654*(x64+0.044715*x64*x64*x64))))
}
