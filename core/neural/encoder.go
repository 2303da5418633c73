package neural

import (
	"fmt"
	"math/rand"
)

// EncoderConfig sizes the stacked graph-attention encoder.
type EncoderConfig struct {
	Attention AttentionConfig

	// NumLayers is the total layer count, including the final
	// head-averaging layer. Must be at least one.
	NumLayers int

	// FFHidden is the feed-forward sublayer's hidden width.
	FFHidden int

	// Residual selects the residual policy for sublayers after the first
	// layer: ResidualPlain or ResidualRezero.
	Residual ResidualPolicy
}

// Validate checks the encoder configuration and its nested attention
// configuration.
func (c EncoderConfig) Validate() error {
	if err := c.Attention.Validate(); err != nil {
		return err
	}
	if c.NumLayers < 1 {
		return fmt.Errorf("neural: encoder needs at least one layer, got %d: %w",
			c.NumLayers, ErrConfiguration)
	}
	if c.FFHidden <= 0 {
		return fmt.Errorf("neural: feed-forward hidden dim %d must be positive: %w",
			c.FFHidden, ErrConfiguration)
	}
	if c.Residual != ResidualPlain && c.Residual != ResidualRezero {
		return fmt.Errorf("neural: residual policy %q: %w", c.Residual, ErrConfiguration)
	}
	return nil
}

// encoderLayer is one attention sublayer and one feed-forward sublayer with
// a shared residual policy.
type encoderLayer struct {
	attention   *GraphMultiHeadAttention
	ff          *FeedForward
	attResidual *residual
	ffResidual  *residual
}

// Encoder stacks graph multi-head attention layers. The first layer carries
// no residual connection and the last layer averages heads instead of
// concatenating them.
type Encoder struct {
	cfg    EncoderConfig
	layers []*encoderLayer
}

// NewEncoder validates cfg and builds the layer stack with rng.
func NewEncoder(cfg EncoderConfig, rng *rand.Rand) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	layers := make([]*encoderLayer, cfg.NumLayers)
	for l := 0; l < cfg.NumLayers; l++ {
		attCfg := cfg.Attention
		attCfg.AverageHeads = l == cfg.NumLayers-1

		attention, err := NewGraphMultiHeadAttention(attCfg, rng)
		if err != nil {
			return nil, err
		}

		policy := cfg.Residual
		if l == 0 {
			policy = ResidualNone
		}

		layers[l] = &encoderLayer{
			attention:   attention,
			ff:          NewFeedForward(cfg.Attention.EmbedDim, cfg.FFHidden, rng),
			attResidual: newResidual(policy),
			ffResidual:  newResidual(policy),
		}
	}
	return &Encoder{cfg: cfg, layers: layers}, nil
}

// Forward runs the full stack over one coalesced batch's node features.
func (e *Encoder) Forward(in AttentionInput, training bool, rng *rand.Rand) *Matrix {
	h := in.NodeFeatures
	for _, layer := range e.layers {
		layerIn := in
		layerIn.NodeFeatures = h

		attOut := layer.attention.Forward(layerIn, training, rng)
		h = layer.attResidual.combine(h, attOut)

		ffOut := layer.ff.Forward(h)
		h = layer.ffResidual.combine(h, ffOut)
	}
	return h
}

// PoolKeyNodes reads one row per example out of the encoded batch: the mean
// of each group's key node rows. After CLS injection every group is the
// singleton CLS node and the mean degenerates to a plain read-out.
func PoolKeyNodes(h *Matrix, keyNodeGroups [][]int) *Matrix {
	out := NewMatrix(len(keyNodeGroups), h.Cols)
	for i, group := range keyNodeGroups {
		row := out.Row(i)
		for _, node := range group {
			src := h.Row(node)
			for d, v := range src {
				row[d] += v
			}
		}
		if len(group) > 1 {
			inv := 1 / float32(len(group))
			for d := range row {
				row[d] *= inv
			}
		}
	}
	return out
}

// Classifier is the linear classification head applied to pooled CLS
// representations, with feature dropout during training.
type Classifier struct {
	w          *Matrix
	b          []float32
	featureDrop float32
}

// NewClassifier allocates a head mapping embedDim to numClasses.
func NewClassifier(embedDim, numClasses int, featureDropout float32, rng *rand.Rand) (*Classifier, error) {
	if numClasses < 2 {
		return nil, fmt.Errorf("neural: classifier needs at least 2 classes, got %d: %w",
			numClasses, ErrConfiguration)
	}
	if featureDropout < 0 || featureDropout >= 1 {
		return nil, fmt.Errorf("neural: feature dropout %v outside [0,1): %w",
			featureDropout, ErrConfiguration)
	}
	scale := float32(1) / float32(embedDim)
	return &Classifier{
		w:          NewRandMatrix(embedDim, numClasses, scale, rng),
		b:          make([]float32, numClasses),
		featureDrop: featureDropout,
	}, nil
}

// Forward returns one logit row per pooled example.
func (c *Classifier) Forward(pooled *Matrix, training bool, rng *rand.Rand) *Matrix {
	x := pooled
	if training && c.featureDrop > 0 {
		x = pooled.Clone()
		dropoutRows(x, c.featureDrop, rng)
	}
	logits := MatMul(x, c.w)
	for i := 0; i < logits.Rows; i++ {
		row := logits.Row(i)
		for j := range row {
			row[j] += c.b[j]
		}
	}
	return logits
}
