package neural

import (
	"fmt"
	"math/rand"

	"github.com/adalundhe/sentgraph/core/graph"
)

// Model composes the embedding step, the stacked encoder, key-node pooling,
// and the classification head over coalesced batches. Training-loop
// orchestration (epochs, optimization, early stopping) lives outside this
// package.
type Model struct {
	embedding  *Embedding
	positional *PositionalEncoding
	encoder    *Encoder
	classifier *Classifier
	padType    int
}

// NewModel wires a model from its parts. The embedding width must match the
// encoder's embed dim.
func NewModel(embedding *Embedding, encoder *Encoder, classifier *Classifier) (*Model, error) {
	if embedding.Dim() != encoder.cfg.Attention.EmbedDim {
		return nil, fmt.Errorf("neural: embedding dim %d does not match encoder dim %d: %w",
			embedding.Dim(), encoder.cfg.Attention.EmbedDim, ErrConfiguration)
	}
	return &Model{
		embedding:  embedding,
		positional: NewPositionalEncoding(embedding.Dim()),
		encoder:    encoder,
		classifier: classifier,
		padType:    encoder.cfg.Attention.PaddingEdgeType(),
	}, nil
}

// Forward runs one coalesced batch through the full model, returning one
// logit row per example (per key node group).
func (m *Model) Forward(batch *graph.CoalescedBatch, training bool, rng *rand.Rand) (*Matrix, error) {
	features, err := m.embedding.Lookup(batch.NodeVocabIDs)
	if err != nil {
		return nil, err
	}
	features.AddInPlace(m.positional.Encode(batch.PositionIDs))

	n := batch.NumNodes()
	in := AttentionInput{
		NodeFeatures: features,
		Mask:         graph.BuildAdjacency(n, batch.Edges),
		EdgeTypeIDs:  graph.BuildEdgeTypeMatrix(n, batch.Edges, batch.EdgeTypes, m.padType),
	}

	h := m.encoder.Forward(in, training, rng)
	pooled := PoolKeyNodes(h, batch.KeyNodeGroups)
	return m.classifier.Forward(pooled, training, rng), nil
}
