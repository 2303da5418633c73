package neural

import (
	"fmt"
	"math"
	"math/rand"
)

// ResidualPolicy selects how an encoder sublayer's output is combined with
// its input.
type ResidualPolicy string

const (
	// ResidualNone feeds the sublayer output through unchanged. Used for
	// the first encoder layer, where the input embeddings are not a prior
	// representation to be refined.
	ResidualNone ResidualPolicy = "none"

	// ResidualPlain is output = input + sublayer(input).
	ResidualPlain ResidualPolicy = "residual"

	// ResidualRezero is output = input + alpha·sublayer(input) with alpha a
	// learned scalar initialized to zero.
	ResidualRezero ResidualPolicy = "rezero"
)

// residual combines a sublayer input and output under one policy, owning
// the rezero scalar when the policy needs one.
type residual struct {
	policy ResidualPolicy
	alpha  float32
}

func newResidual(policy ResidualPolicy) *residual {
	return &residual{policy: policy}
}

func (r *residual) combine(input, output *Matrix) *Matrix {
	switch r.policy {
	case ResidualPlain:
		out := output.Clone()
		out.AddInPlace(input)
		return out
	case ResidualRezero:
		out := output.Clone()
		out.ScaleInPlace(r.alpha)
		out.AddInPlace(input)
		return out
	default:
		return output
	}
}

// FeedForward is the position-wise two-layer MLP with a GELU nonlinearity,
// applied independently to every node row.
type FeedForward struct {
	w1, w2 *Matrix
	b1, b2 []float32
}

// NewFeedForward allocates a feed-forward sublayer mapping embedDim through
// hiddenDim back to embedDim.
func NewFeedForward(embedDim, hiddenDim int, rng *rand.Rand) *FeedForward {
	scale := float32(math.Sqrt(2 / float64(embedDim)))
	return &FeedForward{
		w1: NewRandMatrix(embedDim, hiddenDim, scale, rng),
		w2: NewRandMatrix(hiddenDim, embedDim, scale, rng),
		b1: make([]float32, hiddenDim),
		b2: make([]float32, embedDim),
	}
}

// Forward applies the sublayer row-wise.
func (f *FeedForward) Forward(x *Matrix) *Matrix {
	hidden := MatMul(x, f.w1)
	for i := 0; i < hidden.Rows; i++ {
		row := hidden.Row(i)
		for j := range row {
			row[j] = gelu(row[j] + f.b1[j])
		}
	}
	out := MatMul(hidden, f.w2)
	for i := 0; i < out.Rows; i++ {
		row := out.Row(i)
		for j := range row {
			row[j] += f.b2[j]
		}
	}
	return out
}

// Embedding is a vocabulary lookup table. Row 0 is conventionally the
// padding id and stays zero when the table is randomly initialized.
type Embedding struct {
	table *Matrix
}

// NewEmbedding allocates a randomly initialized table with a zero padding
// row.
func NewEmbedding(vocabSize, embedDim int, rng *rand.Rand) *Embedding {
	table := NewRandMatrix(vocabSize, embedDim, float32(math.Sqrt(1/float64(embedDim))), rng)
	padding := table.Row(0)
	for i := range padding {
		padding[i] = 0
	}
	return &Embedding{table: table}
}

// NewEmbeddingFrom wraps a pretrained embedding matrix, as produced by the
// vocabulary stage.
func NewEmbeddingFrom(table *Matrix) *Embedding {
	return &Embedding{table: table}
}

// Dim returns the embedding width.
func (e *Embedding) Dim() int {
	return e.table.Cols
}

// Lookup gathers one row per id.
func (e *Embedding) Lookup(ids []int) (*Matrix, error) {
	out := NewMatrix(len(ids), e.table.Cols)
	for i, id := range ids {
		if id < 0 || id >= e.table.Rows {
			return nil, fmt.Errorf("neural: vocab id %d outside table of %d rows: %w",
				id, e.table.Rows, ErrConfiguration)
		}
		copy(out.Row(i), e.table.Row(id))
	}
	return out, nil
}

// PositionalEncoding produces the fixed sinusoidal position features added
// to node embeddings. Positions restart at zero for every graph in a
// coalesced batch.
type PositionalEncoding struct {
	dim int
}

// NewPositionalEncoding returns an encoder for the given feature width.
func NewPositionalEncoding(dim int) *PositionalEncoding {
	return &PositionalEncoding{dim: dim}
}

// Encode writes one row per position id.
func (p *PositionalEncoding) Encode(positions []int) *Matrix {
	out := NewMatrix(len(positions), p.dim)
	for i, pos := range positions {
		row := out.Row(i)
		for j := 0; j < p.dim; j += 2 {
			freq := math.Pow(10000, -float64(j)/float64(p.dim))
			angle := float64(pos) * freq
			row[j] = float32(math.Sin(angle))
			if j+1 < p.dim {
				row[j+1] = float32(math.Cos(angle))
			}
		}
	}
	return out
}

// dropoutRows applies inverted dropout element-wise to features. Training
// only; the caller passes the generator.
func dropoutRows(x *Matrix, p float32, rng *rand.Rand) {
	if p <= 0 {
		return
	}
	keep := 1 / (1 - p)
	for i, v := range x.Data {
		if rng.Float32() < p {
			x.Data[i] = 0
		} else {
			x.Data[i] = v * keep
		}
	}
}
