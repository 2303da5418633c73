package dataset

import (
	"fmt"

	"github.com/adalundhe/sentgraph/core/cache"
	"github.com/adalundhe/sentgraph/core/graph"
)

// SentenceToGraph is the external extraction service contract: given a
// tokenized sentence it returns key nodes, edges, and edge types with node
// ids aligned to token positions (0-based). NumEdgeTypes sizes the
// edge-type embedding tables downstream; one extra id past it is reserved
// for padding.
type SentenceToGraph interface {
	ToGraph(words []string) (keyNodes []int, edges []graph.Edge, edgeTypes []int, err error)
	NumEdgeTypes() int
	String() string
}

// SentenceGraphDataset converts every sentence of a text source into a
// vocabulary-resolved Graph plus a label id. It is a cacheable stage keyed
// on the extractor, the source, and the vocabulary identity, so a change in
// any upstream stage invalidates this one transitively.
//
// Undirected symmetrization is applied after load, per run, and does not
// participate in the cache key; the cached graphs are always directed.
type SentenceGraphDataset struct {
	txtSrc      TextSource
	sentToGraph SentenceToGraph
	vocab       *Vocab
	undirected  bool

	graphs   []graph.Graph
	labelIDs []int
}

// DatasetConfig bundles the stage's configuration.
type DatasetConfig struct {
	TextSource  TextSource
	SentToGraph SentenceToGraph
	Vocab       *Vocab
	Undirected  bool
}

// NewSentenceGraphDataset validates the configuration; Build performs the
// work.
func NewSentenceGraphDataset(cfg DatasetConfig) (*SentenceGraphDataset, error) {
	if cfg.TextSource == nil || cfg.SentToGraph == nil || cfg.Vocab == nil {
		return nil, fmt.Errorf("dataset: sentence graph dataset needs a text source, extractor, and vocab")
	}
	return &SentenceGraphDataset{
		txtSrc:      cfg.TextSource,
		sentToGraph: cfg.SentToGraph,
		vocab:       cfg.Vocab,
		undirected:  cfg.Undirected,
	}, nil
}

func (d *SentenceGraphDataset) TypeName() string { return "SentenceGraphDataset" }

func (d *SentenceGraphDataset) CachedAttrs() []cache.Attr {
	return []cache.Attr{
		{Kind: cache.KindObject, Name: "graphs", Value: &d.graphs},
		{Kind: cache.KindObject, Name: "labels", Value: &d.labelIDs},
	}
}

func (d *SentenceGraphDataset) Uniquers() []cache.Uniquer {
	return []cache.Uniquer{
		{Name: "sentgraph", Value: d.sentToGraph.String()},
		{Name: "txtsrc", Value: d.txtSrc.String()},
		{Name: "vocab", Value: d.vocab.Identity()},
	}
}

// Process runs extraction over the whole source and resolves every node to
// a vocabulary id.
func (d *SentenceGraphDataset) Process() error {
	if d.txtSrc.Len() == 0 {
		return fmt.Errorf("dataset: text source %s is empty", d.txtSrc)
	}

	graphs := make([]graph.Graph, 0, d.txtSrc.Len())
	labelIDs := make([]int, 0, d.txtSrc.Len())

	for i := 0; i < d.txtSrc.Len(); i++ {
		text, label := d.txtSrc.Row(i)

		labelID, ok := d.vocab.LabelID(label)
		if !ok {
			return fmt.Errorf("dataset: row %d has label %q outside the vocabulary label set", i, label)
		}

		words := d.vocab.Tokenize(text)
		keyNodes, edges, edgeTypes, err := d.sentToGraph.ToGraph(words)
		if err != nil {
			return fmt.Errorf("dataset: extract graph for row %d: %w", i, err)
		}

		vocabIDs := make([]int, len(words))
		for w, word := range words {
			vocabIDs[w] = d.vocab.WordID(word)
		}

		g, err := graph.New(edges, edgeTypes, keyNodes, vocabIDs)
		if err != nil {
			return fmt.Errorf("dataset: graph for row %d: %w", i, err)
		}
		graphs = append(graphs, g)
		labelIDs = append(labelIDs, labelID)
	}

	d.graphs = graphs
	d.labelIDs = labelIDs
	return nil
}

// Build runs the cache cycle, then applies undirected symmetrization when
// configured.
func (d *SentenceGraphDataset) Build(store cache.Store, ignoreCache bool) error {
	if err := cache.New(d, store).Ensure(ignoreCache); err != nil {
		return err
	}
	if d.undirected {
		for i, g := range d.graphs {
			d.graphs[i] = graph.SymmetrizeGraph(g)
		}
	}
	return nil
}

// Len reports the example count.
func (d *SentenceGraphDataset) Len() int {
	return len(d.graphs)
}

// Example returns the i-th graph and its label id.
func (d *SentenceGraphDataset) Example(i int) (graph.Graph, int) {
	return d.graphs[i], d.labelIDs[i]
}

// NumEdgeTypes reports the edge type count the attention tables must be
// sized for: the extractor's own types plus the CLS edge type appended by
// injection. The padding id sits one past this and is reserved by the
// attention layer itself.
func (d *SentenceGraphDataset) NumEdgeTypes() int {
	return d.sentToGraph.NumEdgeTypes() + 1
}

// CLSEdgeType returns the edge type id used when connecting key nodes to an
// injected CLS node: the first id past the extractor's own types.
func (d *SentenceGraphDataset) CLSEdgeType() int {
	return d.sentToGraph.NumEdgeTypes()
}
