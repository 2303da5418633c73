package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/sentgraph/core/cache"
	"github.com/adalundhe/sentgraph/core/graph"
)

// chainExtractor links consecutive tokens with type 0 and marks the last
// token as the key node.
type chainExtractor struct{}

func (chainExtractor) ToGraph(words []string) ([]int, []graph.Edge, []int, error) {
	if len(words) == 0 {
		return nil, nil, nil, fmt.Errorf("no tokens")
	}
	var edges []graph.Edge
	var types []int
	for i := 0; i+1 < len(words); i++ {
		edges = append(edges, graph.Edge{Source: i, Target: i + 1})
		types = append(types, 0)
	}
	return []int{len(words) - 1}, edges, types, nil
}

func (chainExtractor) NumEdgeTypes() int { return 1 }

func (chainExtractor) String() string { return "chain" }

func testSource() *SliceTextSource {
	return &SliceTextSource{
		Name: "fixture",
		Rows: [][2]string{
			{"Guard your heart", "yes"},
			{"guard the gates", "no"},
			{"your gates", "yes"},
		},
	}
}

func testVocab(t *testing.T, store cache.Store) *Vocab {
	t.Helper()
	vocab, err := NewVocab(VocabConfig{
		TextSource: testSource(),
		Tokenizer:  WhitespaceTokenizer{},
		Embedder:   RandomEmbedder{EmbedDim: 4, Seed: 1},
		LowerCase:  true,
		UnkThres:   1,
	})
	require.NoError(t, err)
	require.NoError(t, vocab.Build(store, false))
	return vocab
}

func newStore(t *testing.T) *cache.FSStore {
	t.Helper()
	store, err := cache.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestVocabProcess(t *testing.T) {
	vocab := testVocab(t, newStore(t))

	// Reserved ids up front, then first-appearance order with lowercasing
	// folding "Guard" and "guard" together.
	assert.Equal(t, []string{"[PAD]", "[UNK]", "[CLS]", "guard", "your", "heart", "the", "gates"}, vocab.id2word)
	assert.Equal(t, []string{"no", "yes"}, vocab.Labels())
	assert.Equal(t, 8, vocab.Size())

	embs := vocab.Embeddings()
	require.Equal(t, 8, embs.Rows)
	require.Equal(t, 4, embs.Cols)

	// PAD and CLS rows are zero, UNK is the mean word vector.
	assert.Equal(t, []float32{0, 0, 0, 0}, embs.Row(PadID))
	assert.Equal(t, []float32{0, 0, 0, 0}, embs.Row(ClsID))
	for d := 0; d < 4; d++ {
		var mean float32
		for i := numReserved; i < embs.Rows; i++ {
			mean += embs.At(i, d)
		}
		mean /= 5
		assert.InDelta(t, mean, embs.At(UnkID, d), 1e-5)
	}
}

func TestVocabUnkThreshold(t *testing.T) {
	vocab, err := NewVocab(VocabConfig{
		TextSource: testSource(),
		Tokenizer:  WhitespaceTokenizer{},
		Embedder:   RandomEmbedder{EmbedDim: 4, Seed: 1},
		LowerCase:  true,
		UnkThres:   2,
	})
	require.NoError(t, err)
	require.NoError(t, vocab.Build(newStore(t), false))

	// Only words seen at least twice survive.
	assert.Equal(t, []string{"[PAD]", "[UNK]", "[CLS]", "guard", "your", "gates"}, vocab.id2word)
	assert.Equal(t, UnkID, vocab.WordID("heart"))
	assert.NotEqual(t, UnkID, vocab.WordID("guard"))
}

func TestVocabCacheRoundTrip(t *testing.T) {
	store := newStore(t)
	first := testVocab(t, store)

	second, err := NewVocab(VocabConfig{
		TextSource: testSource(),
		Tokenizer:  WhitespaceTokenizer{},
		Embedder:   RandomEmbedder{EmbedDim: 4, Seed: 1},
		LowerCase:  true,
		UnkThres:   1,
	})
	require.NoError(t, err)
	require.NoError(t, second.Build(store, false))

	assert.Equal(t, first.id2word, second.id2word)
	assert.Equal(t, first.Labels(), second.Labels())
	assert.Equal(t, first.Embeddings().Data, second.Embeddings().Data)

	// The lookup maps are rebuilt after a cache load.
	assert.Equal(t, first.WordID("guard"), second.WordID("guard"))
}

func TestVocabIdentityChangesWithConfig(t *testing.T) {
	a, err := NewVocab(VocabConfig{
		TextSource: testSource(),
		Tokenizer:  WhitespaceTokenizer{},
		Embedder:   RandomEmbedder{EmbedDim: 4, Seed: 1},
		LowerCase:  true,
		UnkThres:   1,
	})
	require.NoError(t, err)
	b, err := NewVocab(VocabConfig{
		TextSource: testSource(),
		Tokenizer:  WhitespaceTokenizer{},
		Embedder:   RandomEmbedder{EmbedDim: 4, Seed: 1},
		LowerCase:  true,
		UnkThres:   2,
	})
	require.NoError(t, err)

	assert.NotEqual(t, a.Identity(), b.Identity())
}

func TestRandomEmbedderOrderIndependent(t *testing.T) {
	e := RandomEmbedder{EmbedDim: 3, Seed: 7}

	a, err := e.Embed([]string{"guard", "heart"})
	require.NoError(t, err)
	b, err := e.Embed([]string{"heart", "guard"})
	require.NoError(t, err)

	assert.Equal(t, a.Row(0), b.Row(1))
	assert.Equal(t, a.Row(1), b.Row(0))
}

func TestSentenceGraphDatasetBuild(t *testing.T) {
	store := newStore(t)
	vocab := testVocab(t, store)

	ds, err := NewSentenceGraphDataset(DatasetConfig{
		TextSource:  testSource(),
		SentToGraph: chainExtractor{},
		Vocab:       vocab,
	})
	require.NoError(t, err)
	require.NoError(t, ds.Build(store, false))

	require.Equal(t, 3, ds.Len())

	g, label := ds.Example(0)
	yesID, ok := vocab.LabelID("yes")
	require.True(t, ok)
	assert.Equal(t, yesID, label)

	// "guard your heart" chains three resolved tokens.
	assert.Equal(t, []int{vocab.WordID("guard"), vocab.WordID("your"), vocab.WordID("heart")}, g.NodeVocabIDs)
	assert.Equal(t, []graph.Edge{{Source: 0, Target: 1}, {Source: 1, Target: 2}}, g.Edges)
	assert.Equal(t, []int{2}, g.KeyNodes)

	assert.Equal(t, 2, ds.NumEdgeTypes())
	assert.Equal(t, 1, ds.CLSEdgeType())
}

func TestSentenceGraphDatasetCachesProcess(t *testing.T) {
	store := newStore(t)
	vocab := testVocab(t, store)

	build := func() *SentenceGraphDataset {
		ds, err := NewSentenceGraphDataset(DatasetConfig{
			TextSource:  testSource(),
			SentToGraph: chainExtractor{},
			Vocab:       vocab,
		})
		require.NoError(t, err)
		require.NoError(t, ds.Build(store, false))
		return ds
	}

	first := build()
	second := build()

	require.Equal(t, first.Len(), second.Len())
	for i := 0; i < first.Len(); i++ {
		g1, l1 := first.Example(i)
		g2, l2 := second.Example(i)
		assert.True(t, g1.Equal(g2))
		assert.Equal(t, l1, l2)
	}
}

func TestSentenceGraphDatasetUndirected(t *testing.T) {
	store := newStore(t)
	vocab := testVocab(t, store)

	ds, err := NewSentenceGraphDataset(DatasetConfig{
		TextSource:  testSource(),
		SentToGraph: chainExtractor{},
		Vocab:       vocab,
		Undirected:  true,
	})
	require.NoError(t, err)
	require.NoError(t, ds.Build(store, false))

	g, _ := ds.Example(0)
	require.Len(t, g.Edges, 4)
	set := make(map[graph.Edge]bool, len(g.Edges))
	for _, e := range g.Edges {
		set[e] = true
	}
	for e := range set {
		assert.True(t, set[graph.Edge{Source: e.Target, Target: e.Source}])
	}
}

func TestDatasetIdentityTracksVocab(t *testing.T) {
	store := newStore(t)
	vocab := testVocab(t, store)

	other, err := NewVocab(VocabConfig{
		TextSource: testSource(),
		Tokenizer:  WhitespaceTokenizer{},
		Embedder:   RandomEmbedder{EmbedDim: 4, Seed: 1},
		LowerCase:  true,
		UnkThres:   2,
	})
	require.NoError(t, err)
	require.NoError(t, other.Build(store, false))

	a, err := NewSentenceGraphDataset(DatasetConfig{TextSource: testSource(), SentToGraph: chainExtractor{}, Vocab: vocab})
	require.NoError(t, err)
	b, err := NewSentenceGraphDataset(DatasetConfig{TextSource: testSource(), SentToGraph: chainExtractor{}, Vocab: other})
	require.NoError(t, err)

	idA := cache.New(a, store).Identity()
	idB := cache.New(b, store).Identity()
	assert.NotEqual(t, idA, idB)
}

func TestCSVTextSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "train.csv")
	content := "title,extra,theme\nGuard your heart,x,yes\nthe gates,y,no\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	src, err := NewCSVTextSource(path, "title", "theme")
	require.NoError(t, err)

	require.Equal(t, 2, src.Len())
	text, label := src.Row(0)
	assert.Equal(t, "Guard your heart", text)
	assert.Equal(t, "yes", label)
	assert.Equal(t, "csv_train.csv", src.String())
}

func TestCSVTextSourceHeaderErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("title,title,theme\na,b,yes\n"), 0o644))

	_, err := NewCSVTextSource(path, "title", "theme")
	require.Error(t, err)

	_, err = NewCSVTextSource(path, "missing", "theme")
	require.Error(t, err)
}
