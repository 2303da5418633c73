package graph

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Memo caches graph transforms keyed by the source graph's structural
// fingerprint. It replaces per-instance memoized methods with an explicit,
// caller-owned map with a bounded LRU eviction policy; per-run graph
// cardinality is small, so the bound is a safety net rather than a working
// constraint.
//
// Memo is not safe for concurrent use with distinct transforms under one
// key; the intended use is one Memo per transform per data-loading worker.
type Memo struct {
	cache *lru.Cache[string, Graph]
}

// NewMemo creates a memoizer holding at most size transformed graphs.
func NewMemo(size int) (*Memo, error) {
	cache, err := lru.New[string, Graph](size)
	if err != nil {
		return nil, err
	}
	return &Memo{cache: cache}, nil
}

// Transform returns the memoized result for g, invoking fn on a miss.
// Errors from fn are returned unmemoized so a failed transform is retried
// on the next call.
func (m *Memo) Transform(g Graph, fn func(Graph) (Graph, error)) (Graph, error) {
	key := g.Fingerprint()
	if cached, ok := m.cache.Get(key); ok {
		return cached, nil
	}
	out, err := fn(g)
	if err != nil {
		return Graph{}, err
	}
	m.cache.Add(key, out)
	return out, nil
}

// Len reports the number of memoized entries.
func (m *Memo) Len() int {
	return m.cache.Len()
}
