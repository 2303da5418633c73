package cache

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/sentgraph/core/neural"
)

// countStage derives a word list and an embedding matrix from its "config",
// counting Process invocations.
type countStage struct {
	threshold int
	source    string

	words []string
	embs  *neural.Matrix

	processCalls int
	skipBinding  bool
	badKind      bool
}

func (s *countStage) TypeName() string { return "countStage" }

func (s *countStage) CachedAttrs() []Attr {
	kind := KindObject
	if s.badKind {
		kind = Kind("parquet")
	}
	return []Attr{
		{Kind: kind, Name: "words", Value: &s.words},
		{Kind: KindTensor, Name: "embs", Value: &s.embs},
	}
}

func (s *countStage) Uniquers() []Uniquer {
	return []Uniquer{
		{Name: "threshold", Value: strconv.Itoa(s.threshold)},
		{Name: "source", Value: s.source},
	}
}

func (s *countStage) Process() error {
	s.processCalls++
	if s.skipBinding {
		return nil
	}
	s.words = []string{"guard", "your", "heart"}
	embs := neural.NewMatrix(3, 2)
	for i := range embs.Data {
		embs.Data[i] = float32(i) + 0.5
	}
	s.embs = embs
	return nil
}

func newTestStore(t *testing.T) *FSStore {
	t.Helper()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestIdentity(t *testing.T) {
	stage := &countStage{threshold: 2, source: "train.csv"}
	c := New(stage, newTestStore(t))
	assert.Equal(t, "countStage-threshold_2-source_train.csv", c.Identity())
}

func TestIdentityChangesWithUniquer(t *testing.T) {
	store := newTestStore(t)
	a := New(&countStage{threshold: 1, source: "x"}, store)
	b := New(&countStage{threshold: 2, source: "x"}, store)
	assert.NotEqual(t, a.Identity(), b.Identity())
}

func TestEnsureRoundTrip(t *testing.T) {
	store := newTestStore(t)

	first := &countStage{threshold: 2, source: "train"}
	require.NoError(t, New(first, store).Ensure(false))
	assert.Equal(t, 1, first.processCalls)

	// Identical config against the unchanged store loads, no reprocessing.
	second := &countStage{threshold: 2, source: "train"}
	require.NoError(t, New(second, store).Ensure(false))
	assert.Equal(t, 0, second.processCalls)

	assert.Equal(t, first.words, second.words)
	require.NotNil(t, second.embs)
	assert.Equal(t, first.embs.Rows, second.embs.Rows)
	assert.Equal(t, first.embs.Cols, second.embs.Cols)
	assert.Equal(t, first.embs.Data, second.embs.Data)
}

func TestEnsureUniquerChangeForcesProcess(t *testing.T) {
	store := newTestStore(t)

	first := &countStage{threshold: 2, source: "train"}
	require.NoError(t, New(first, store).Ensure(false))

	changed := &countStage{threshold: 3, source: "train"}
	require.NoError(t, New(changed, store).Ensure(false))
	assert.Equal(t, 1, changed.processCalls)
}

func TestEnsureIgnoreCache(t *testing.T) {
	store := newTestStore(t)

	first := &countStage{threshold: 2, source: "train"}
	require.NoError(t, New(first, store).Ensure(false))

	again := &countStage{threshold: 2, source: "train"}
	require.NoError(t, New(again, store).Ensure(true))
	assert.Equal(t, 1, again.processCalls)
}

func TestEnsureMissingAttribute(t *testing.T) {
	stage := &countStage{threshold: 1, source: "x", skipBinding: true}
	err := New(stage, newTestStore(t)).Ensure(false)
	require.ErrorIs(t, err, ErrMissingAttribute)
}

func TestEnsureUnknownStorageKind(t *testing.T) {
	stage := &countStage{threshold: 1, source: "x", badKind: true}
	err := New(stage, newTestStore(t)).Ensure(false)
	require.ErrorIs(t, err, ErrUnknownStorageKind)
}

// The on-disk layout {identity}/{attr}.{kind} is a stable contract for
// external tooling.
func TestStoreLayoutContract(t *testing.T) {
	store := newTestStore(t)
	stage := &countStage{threshold: 2, source: "train"}
	c := New(stage, store)
	require.NoError(t, c.Ensure(false))

	assert.FileExists(t, filepath.Join(store.Root(), c.Identity(), "words.object"))
	assert.FileExists(t, filepath.Join(store.Root(), c.Identity(), "embs.tensor"))
}

func TestFSStoreNamespacesAndDelete(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Write("ns-a", "x.object", []byte("1")))
	require.NoError(t, store.Write("ns-b", "y.record", []byte("2")))

	namespaces, err := store.Namespaces()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ns-a", "ns-b"}, namespaces)

	require.NoError(t, store.Delete("ns-a"))
	ok, err := store.Exists("ns-a", "x.object")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFSStoreWriteLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Write("ns", "a.object", []byte("blob")))

	entries, err := os.ReadDir(filepath.Join(store.Root(), "ns"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.object", entries[0].Name())
}

func TestTensorSerializerRejectsWrongType(t *testing.T) {
	s := tensorSerializer{}
	v := 3
	_, err := s.encode(&v)
	require.ErrorIs(t, err, ErrMissingAttribute)

	var m *neural.Matrix
	require.Error(t, s.decode([]byte("short"), &m))
}

func TestRecordSerializerRoundTrip(t *testing.T) {
	type record struct {
		Labels []string `json:"labels"`
	}
	s := recordSerializer{}
	blob, err := s.encode(&record{Labels: []string{"yes", "no"}})
	require.NoError(t, err)

	var out record
	require.NoError(t, s.decode(blob, &out))
	assert.Equal(t, []string{"yes", "no"}, out.Labels)
}
