package graph

// CoalescedBatch is the block-structured merge of a batch of graphs. Node
// ids are global: each graph's local ids are shifted by the cumulative node
// count of the graphs before it. KeyNodeGroups preserves the per-graph
// grouping of the now-global key node ids so callers can recover per-example
// slices after global computation. PositionIDs restart at 0 for every graph.
//
// A CoalescedBatch is derived and ephemeral; it holds no reference back to
// its source graphs.
type CoalescedBatch struct {
	Edges         []Edge
	EdgeTypes     []int
	KeyNodeGroups [][]int
	NodeVocabIDs  []int
	PositionIDs   []int
}

// NumNodes reports the total node count across the batch.
func (b *CoalescedBatch) NumNodes() int {
	return len(b.NodeVocabIDs)
}

// Coalesce merges graphs in order into one CoalescedBatch. Every graph must
// be vocabulary-resolved. Coalescing never fails on well-formed graphs;
// dangling node references are undefined behavior here, validation belongs
// to the producer.
func Coalesce(graphs []Graph) *CoalescedBatch {
	totalNodes, totalEdges := 0, 0
	for _, g := range graphs {
		totalNodes += g.NumNodes()
		totalEdges += len(g.Edges)
	}

	batch := &CoalescedBatch{
		Edges:         make([]Edge, 0, totalEdges),
		EdgeTypes:     make([]int, 0, totalEdges),
		KeyNodeGroups: make([][]int, 0, len(graphs)),
		NodeVocabIDs:  make([]int, 0, totalNodes),
		PositionIDs:   make([]int, 0, totalNodes),
	}

	offset := 0
	for _, g := range graphs {
		batch.NodeVocabIDs = append(batch.NodeVocabIDs, g.NodeVocabIDs...)

		for _, e := range g.Edges {
			batch.Edges = append(batch.Edges, Edge{
				Source: e.Source + offset,
				Target: e.Target + offset,
			})
		}
		batch.EdgeTypes = append(batch.EdgeTypes, g.EdgeTypes...)

		group := make([]int, len(g.KeyNodes))
		for i, k := range g.KeyNodes {
			group[i] = k + offset
		}
		batch.KeyNodeGroups = append(batch.KeyNodeGroups, group)

		for pos := 0; pos < g.NumNodes(); pos++ {
			batch.PositionIDs = append(batch.PositionIDs, pos)
		}

		offset += g.NumNodes()
	}
	return batch
}

// BuildAdjacency returns the n×n row-major 0/1 attention mask for the given
// edges: mask[src*n+dst] = 1. No self loops are added; callers that want
// self-attention add the diagonal themselves.
func BuildAdjacency(n int, edges []Edge) []float32 {
	mask := make([]float32, n*n)
	for _, e := range edges {
		mask[e.Source*n+e.Target] = 1
	}
	return mask
}

// BuildEdgeTypeMatrix returns the n×n row-major edge-type id matrix for the
// given edges, with paddingType everywhere no edge exists. Entries are only
// meaningful where the adjacency mask is set.
func BuildEdgeTypeMatrix(n int, edges []Edge, edgeTypes []int, paddingType int) []int {
	types := make([]int, n*n)
	for i := range types {
		types[i] = paddingType
	}
	for i, e := range edges {
		types[e.Source*n+e.Target] = edgeTypes[i]
	}
	return types
}
