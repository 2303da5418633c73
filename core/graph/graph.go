// Package graph holds the sentence-graph data model and the batch
// coalescing transforms that merge independent graphs into one
// block-structured representation for batched attention.
package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrPrecursorViolation indicates a caller-configuration bug detected
	// eagerly at construction time: mismatched field lengths, an empty key
	// node set, or a CLS vocabulary id that is already in use.
	ErrPrecursorViolation = errors.New("precursor violation")
)

// Edge is one directed edge between two graph-local node ids.
type Edge struct {
	Source int
	Target int
}

// Graph is one sentence's structure prior to batching: tokens as nodes,
// typed linguistic relations as directed edges. Node ids are 0-based and
// dense. Graphs are immutable values; every transform returns a new Graph.
//
// NodeVocabIDs maps each local node id to a global vocabulary id and may be
// nil before vocabulary resolution. Dangling edge or key-node references are
// the producer's responsibility and are not re-checked here.
type Graph struct {
	Edges        []Edge
	EdgeTypes    []int
	KeyNodes     []int
	NodeVocabIDs []int
}

// New validates field lengths and returns the graph as a value.
// len(edges) must equal len(edgeTypes) and keyNodes must be non-empty.
func New(edges []Edge, edgeTypes []int, keyNodes []int, nodeVocabIDs []int) (Graph, error) {
	if len(edges) != len(edgeTypes) {
		return Graph{}, fmt.Errorf("graph: %d edges but %d edge types: %w",
			len(edges), len(edgeTypes), ErrPrecursorViolation)
	}
	if len(keyNodes) == 0 {
		return Graph{}, fmt.Errorf("graph: empty key node set: %w", ErrPrecursorViolation)
	}
	return Graph{
		Edges:        edges,
		EdgeTypes:    edgeTypes,
		KeyNodes:     keyNodes,
		NodeVocabIDs: nodeVocabIDs,
	}, nil
}

// NumNodes reports the node count, which equals len(NodeVocabIDs) once the
// vocabulary has been resolved.
func (g Graph) NumNodes() int {
	return len(g.NodeVocabIDs)
}

// Resolved reports whether the graph carries vocabulary ids.
func (g Graph) Resolved() bool {
	return g.NodeVocabIDs != nil
}

// Equal compares all four fields, order-sensitively.
func (g Graph) Equal(other Graph) bool {
	if len(g.Edges) != len(other.Edges) ||
		len(g.EdgeTypes) != len(other.EdgeTypes) ||
		len(g.KeyNodes) != len(other.KeyNodes) ||
		len(g.NodeVocabIDs) != len(other.NodeVocabIDs) {
		return false
	}
	for i, e := range g.Edges {
		if e != other.Edges[i] {
			return false
		}
	}
	for i, t := range g.EdgeTypes {
		if t != other.EdgeTypes[i] {
			return false
		}
	}
	for i, k := range g.KeyNodes {
		if k != other.KeyNodes[i] {
			return false
		}
	}
	for i, id := range g.NodeVocabIDs {
		if id != other.NodeVocabIDs[i] {
			return false
		}
	}
	return true
}

// Fingerprint returns a hex digest over a deterministic encoding of all four
// fields. Two graphs have the same fingerprint iff they are Equal; the digest
// is the structural key used for memoization.
func (g Graph) Fingerprint() string {
	h := sha256.New()
	var buf [8]byte

	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	writeSection := func(vals []int) {
		writeInt(len(vals))
		for _, v := range vals {
			writeInt(v)
		}
	}

	writeInt(len(g.Edges))
	for _, e := range g.Edges {
		writeInt(e.Source)
		writeInt(e.Target)
	}
	writeSection(g.EdgeTypes)
	writeSection(g.KeyNodes)
	// nil and empty NodeVocabIDs must hash differently: an unresolved graph
	// is not the same key as a resolved zero-node graph.
	if g.NodeVocabIDs == nil {
		writeInt(-1)
	} else {
		writeSection(g.NodeVocabIDs)
	}

	return hex.EncodeToString(h.Sum(nil)[:16])
}

// InjectCLSNode returns a copy of g with one appended aggregation node
// carrying clsVocabID, one edge of type clsEdgeType from every key node to
// the new node, and the new node as the sole key node. The CLS vocabulary id
// must be reserved: if it already appears in NodeVocabIDs the graph has been
// injected before (or the id is in use by an ordinary token) and the call
// fails with ErrPrecursorViolation.
func InjectCLSNode(g Graph, clsVocabID, clsEdgeType int) (Graph, error) {
	for _, id := range g.NodeVocabIDs {
		if id == clsVocabID {
			return Graph{}, fmt.Errorf("graph: cls vocab id %d already present: %w",
				clsVocabID, ErrPrecursorViolation)
		}
	}

	clsNode := g.NumNodes()

	vocabIDs := make([]int, clsNode+1)
	copy(vocabIDs, g.NodeVocabIDs)
	vocabIDs[clsNode] = clsVocabID

	edges := make([]Edge, 0, len(g.Edges)+len(g.KeyNodes))
	edges = append(edges, g.Edges...)
	edgeTypes := make([]int, 0, len(g.EdgeTypes)+len(g.KeyNodes))
	edgeTypes = append(edgeTypes, g.EdgeTypes...)
	for _, key := range g.KeyNodes {
		edges = append(edges, Edge{Source: key, Target: clsNode})
		edgeTypes = append(edgeTypes, clsEdgeType)
	}

	return Graph{
		Edges:        edges,
		EdgeTypes:    edgeTypes,
		KeyNodes:     []int{clsNode},
		NodeVocabIDs: vocabIDs,
	}, nil
}

// Symmetrize canonicalizes each edge so Source <= Target, deduplicates by
// canonical pair, and emits every surviving edge in both directions with the
// same type. When duplicate canonical pairs carry conflicting types the
// first-seen type wins and later types are silently dropped; sentence-graph
// extraction legitimately produces near-duplicate relations, so this is a
// documented tie-break rather than an error.
//
// The output holds exactly twice the number of distinct undirected pairs, in
// canonical-edge order followed by the reversed block. Callers must not rely
// on any relation to the input order.
func Symmetrize(edges []Edge, edgeTypes []int) ([]Edge, []int) {
	type pair struct{ a, b int }
	seen := make(map[pair]struct{}, len(edges))
	canonical := make([]Edge, 0, len(edges))
	canonicalTypes := make([]int, 0, len(edges))

	for i, e := range edges {
		a, b := e.Source, e.Target
		if a > b {
			a, b = b, a
		}
		p := pair{a, b}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		canonical = append(canonical, Edge{Source: a, Target: b})
		canonicalTypes = append(canonicalTypes, edgeTypes[i])
	}

	out := make([]Edge, 0, 2*len(canonical))
	outTypes := make([]int, 0, 2*len(canonical))
	out = append(out, canonical...)
	outTypes = append(outTypes, canonicalTypes...)
	for i, e := range canonical {
		out = append(out, Edge{Source: e.Target, Target: e.Source})
		outTypes = append(outTypes, canonicalTypes[i])
	}
	return out, outTypes
}

// SymmetrizeGraph applies Symmetrize to a graph's edge structure, leaving
// key nodes and vocabulary ids untouched.
func SymmetrizeGraph(g Graph) Graph {
	edges, edgeTypes := Symmetrize(g.Edges, g.EdgeTypes)
	return Graph{
		Edges:        edges,
		EdgeTypes:    edgeTypes,
		KeyNodes:     g.KeyNodes,
		NodeVocabIDs: g.NodeVocabIDs,
	}
}
