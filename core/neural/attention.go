package neural

import (
	"fmt"
	"math"
	"math/rand"
)

// AttentionConfig sizes one graph multi-head attention layer. The
// configuration is a plain struct validated once, before construction, by
// Validate; there is no runtime attribute introspection.
type AttentionConfig struct {
	// EmbedDim is the node feature width. Must divide evenly by NumHeads.
	EmbedDim int

	// NumHeads is the head count; each head owns independent Q/K/V
	// projections of width EmbedDim/NumHeads.
	NumHeads int

	// NumEdgeTypes is the number of real edge types produced by the
	// sentence-to-graph stage. The embedding tables reserve one extra id,
	// PaddingEdgeType(), carrying a zero bias for "no edge" positions.
	NumEdgeTypes int

	// AttentionDropout is the drop probability applied to attention weights
	// during training. Zero disables dropout.
	AttentionDropout float32

	// UseEdgeKeyBias enables the per-head, per-edge-type key-side bias
	// added to attention logits.
	UseEdgeKeyBias bool

	// UseEdgeValueBias enables the symmetric value-side bias.
	UseEdgeValueBias bool

	// AverageHeads averages head outputs instead of concatenating them.
	// Used for the final encoder layer, whose multi-head structure no
	// further layer consumes.
	AverageHeads bool
}

// Validate checks the configuration, returning ErrConfiguration on any
// violation. Call it once on a fully-populated struct before building the
// layer.
func (c AttentionConfig) Validate() error {
	if c.EmbedDim <= 0 || c.NumHeads <= 0 {
		return fmt.Errorf("neural: embed dim %d, heads %d must be positive: %w",
			c.EmbedDim, c.NumHeads, ErrConfiguration)
	}
	if c.EmbedDim%c.NumHeads != 0 {
		return fmt.Errorf("neural: embed dim %d not divisible by %d heads: %w",
			c.EmbedDim, c.NumHeads, ErrConfiguration)
	}
	if (c.UseEdgeKeyBias || c.UseEdgeValueBias) && c.NumEdgeTypes <= 0 {
		return fmt.Errorf("neural: edge bias enabled with %d edge types: %w",
			c.NumEdgeTypes, ErrConfiguration)
	}
	if c.AttentionDropout < 0 || c.AttentionDropout >= 1 {
		return fmt.Errorf("neural: attention dropout %v outside [0,1): %w",
			c.AttentionDropout, ErrConfiguration)
	}
	return nil
}

// PaddingEdgeType returns the reserved "no edge" id, one past the real
// types. Its bias rows stay zero.
func (c AttentionConfig) PaddingEdgeType() int {
	return c.NumEdgeTypes
}

// AttentionInput is one coalesced batch ready for attention. Mask and
// EdgeTypeIDs are N×N row-major, built from the batch's global edges; the
// mask carries no implicit self loops, and EdgeTypeIDs (optional, may be
// nil) is meaningful only where the mask is set.
type AttentionInput struct {
	NodeFeatures *Matrix
	Mask         []float32
	EdgeTypeIDs  []int
}

// GraphMultiHeadAttention computes attention restricted to a graph's edge
// structure. Positions with a zero mask receive no weight; a node whose
// entire row is masked out (no incoming edges) yields a zero output vector
// rather than a NaN.
type GraphMultiHeadAttention struct {
	cfg     AttentionConfig
	headDim int

	// Per-head projection weights, each (EmbedDim, headDim).
	wq, wk, wv []*Matrix

	// Output projection: (EmbedDim, EmbedDim) when concatenating,
	// (headDim, EmbedDim) when averaging heads.
	wo *Matrix

	// Per-head edge-type bias tables, each (NumEdgeTypes+1, headDim) with a
	// zero padding row. Nil when the corresponding bias is disabled.
	edgeKeyBias   []*Matrix
	edgeValueBias []*Matrix
}

// NewGraphMultiHeadAttention validates cfg and allocates weights using rng.
func NewGraphMultiHeadAttention(cfg AttentionConfig, rng *rand.Rand) (*GraphMultiHeadAttention, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	headDim := cfg.EmbedDim / cfg.NumHeads
	scale := float32(math.Sqrt(2 / float64(cfg.EmbedDim)))

	a := &GraphMultiHeadAttention{
		cfg:     cfg,
		headDim: headDim,
		wq:      make([]*Matrix, cfg.NumHeads),
		wk:      make([]*Matrix, cfg.NumHeads),
		wv:      make([]*Matrix, cfg.NumHeads),
	}
	for h := 0; h < cfg.NumHeads; h++ {
		a.wq[h] = NewRandMatrix(cfg.EmbedDim, headDim, scale, rng)
		a.wk[h] = NewRandMatrix(cfg.EmbedDim, headDim, scale, rng)
		a.wv[h] = NewRandMatrix(cfg.EmbedDim, headDim, scale, rng)
	}
	if cfg.AverageHeads {
		a.wo = NewRandMatrix(headDim, cfg.EmbedDim, scale, rng)
	} else {
		a.wo = NewRandMatrix(cfg.EmbedDim, cfg.EmbedDim, scale, rng)
	}

	if cfg.UseEdgeKeyBias {
		a.edgeKeyBias = newEdgeBiasTables(cfg, headDim, scale, rng)
	}
	if cfg.UseEdgeValueBias {
		a.edgeValueBias = newEdgeBiasTables(cfg, headDim, scale, rng)
	}
	return a, nil
}

// newEdgeBiasTables allocates one table per head and zeroes the padding row.
func newEdgeBiasTables(cfg AttentionConfig, headDim int, scale float32, rng *rand.Rand) []*Matrix {
	tables := make([]*Matrix, cfg.NumHeads)
	for h := 0; h < cfg.NumHeads; h++ {
		table := NewRandMatrix(cfg.NumEdgeTypes+1, headDim, scale, rng)
		padding := table.Row(cfg.PaddingEdgeType())
		for i := range padding {
			padding[i] = 0
		}
		tables[h] = table
	}
	return tables
}

// Config returns the layer's configuration.
func (a *GraphMultiHeadAttention) Config() AttentionConfig {
	return a.cfg
}

// Forward computes the attended node features for one coalesced batch.
// When training is true and the configured dropout is non-zero, rng must be
// non-nil and attention weights are dropped independently (inverted
// dropout); at inference both are ignored.
func (a *GraphMultiHeadAttention) Forward(in AttentionInput, training bool, rng *rand.Rand) *Matrix {
	n := in.NodeFeatures.Rows
	scale := 1 / float32(math.Sqrt(float64(a.headDim)))

	// Head outputs land side by side when concatenating, and are
	// accumulated then divided when averaging.
	var headsOut *Matrix
	if a.cfg.AverageHeads {
		headsOut = NewMatrix(n, a.headDim)
	} else {
		headsOut = NewMatrix(n, a.cfg.EmbedDim)
	}

	logits := make([]float32, n)
	weights := make([]float32, n)
	masked := make([]bool, n)
	biased := make([]float32, a.headDim)

	for h := 0; h < a.cfg.NumHeads; h++ {
		q := MatMul(in.NodeFeatures, a.wq[h])
		k := MatMul(in.NodeFeatures, a.wk[h])
		v := MatMul(in.NodeFeatures, a.wv[h])

		for i := 0; i < n; i++ {
			qi := q.Row(i)
			row := in.Mask[i*n : (i+1)*n]

			for j := 0; j < n; j++ {
				masked[j] = row[j] != 0
				if !masked[j] {
					continue
				}
				logit := dot(qi, k.Row(j))
				if a.edgeKeyBias != nil && in.EdgeTypeIDs != nil {
					logit += dot(qi, a.edgeKeyBias[h].Row(in.EdgeTypeIDs[i*n+j]))
				}
				logits[j] = logit * scale
			}

			softmaxInto(weights, logits, masked)

			if training && a.cfg.AttentionDropout > 0 {
				dropWeights(weights, a.cfg.AttentionDropout, rng)
			}

			out := a.headRow(headsOut, h, i)
			for j := 0; j < n; j++ {
				w := weights[j]
				if w == 0 {
					continue
				}
				vj := v.Row(j)
				if a.edgeValueBias != nil && in.EdgeTypeIDs != nil {
					bias := a.edgeValueBias[h].Row(in.EdgeTypeIDs[i*n+j])
					for d := range biased {
						biased[d] = vj[d] + bias[d]
					}
					vj = biased
				}
				for d, val := range vj {
					out[d] += w * val
				}
			}
			// A fully-masked row leaves out untouched: the required zero
			// vector, not NaN.
		}
	}

	if a.cfg.AverageHeads {
		headsOut.ScaleInPlace(1 / float32(a.cfg.NumHeads))
	}
	return MatMul(headsOut, a.wo)
}

// headRow returns the slice of headsOut that head h writes for node i.
// When averaging, all heads share the row and accumulate into it.
func (a *GraphMultiHeadAttention) headRow(headsOut *Matrix, h, i int) []float32 {
	row := headsOut.Row(i)
	if a.cfg.AverageHeads {
		return row
	}
	return row[h*a.headDim : (h+1)*a.headDim]
}

// dropWeights zeroes each weight with probability p and rescales survivors
// by 1/(1-p) so the expected row sum is unchanged.
func dropWeights(weights []float32, p float32, rng *rand.Rand) {
	keep := 1 / (1 - p)
	for j, w := range weights {
		if w == 0 {
			continue
		}
		if rng.Float32() < p {
			weights[j] = 0
		} else {
			weights[j] = w * keep
		}
	}
}
