package store

import (
	"maps"
	"slices"
)

// VectorState maps each document to its chunk set. A document's chunks are
// always replaced as a whole.
type VectorState struct {
	docs   map[string][]Chunk
	chunks int
	graph  *HNSWGraph
}

// NewVectorState returns an empty state. graph may be nil for exact search.
func NewVectorState(graph *HNSWGraph) *VectorState {
	return &VectorState{docs: map[string][]Chunk{}, graph: graph}
}

// With returns a state where doc's chunks are exactly chunks.
func (s *VectorState) With(doc string, chunks []Chunk) *VectorState {
	next := &VectorState{docs: maps.Clone(s.docs), chunks: s.chunks, graph: s.graph}
	next.chunks -= len(next.docs[doc])
	next.docs[doc] = slices.Clone(chunks)
	next.chunks += len(chunks)
	return next
}

// Without returns a state with doc removed, or s itself when absent.
func (s *VectorState) Without(doc string) *VectorState {
	old, ok := s.docs[doc]
	if !ok {
		return s
	}
	next := &VectorState{docs: maps.Clone(s.docs), chunks: s.chunks - len(old), graph: s.graph}
	delete(next.docs, doc)
	return next
}

// WithGraph returns a copy of s that searches graph.
func (s *VectorState) WithGraph(graph *HNSWGraph) *VectorState {
	return &VectorState{docs: s.docs, chunks: s.chunks, graph: graph}
}

// Graph returns the ANN graph, or nil for exact search.
func (s *VectorState) Graph() *HNSWGraph { return s.graph }

// Chunks returns doc's chunks. The slice must not be modified.
func (s *VectorState) Chunks(doc string) []Chunk { return s.docs[doc] }

// DocCount returns the number of documents with chunks.
func (s *VectorState) DocCount() int { return len(s.docs) }

// ChunkCount returns the total number of chunks.
func (s *VectorState) ChunkCount() int { return s.chunks }

// Has reports whether chunk id belongs to doc in this state.
func (s *VectorState) Has(doc string, id uint64) bool {
	for _, c := range s.docs[doc] {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Each calls fn for every document and its chunks, in no particular order.
func (s *VectorState) Each(fn func(doc string, chunks []Chunk)) {
	for doc, chunks := range s.docs {
		fn(doc, chunks)
	}
}

// MaxChunkID returns the largest chunk id in the state.
func (s *VectorState) MaxChunkID() uint64 {
	var max uint64
	for _, chunks := range s.docs {
		for _, c := range chunks {
			if c.ID > max {
				max = c.ID
			}
		}
	}
	return max
}

// Export returns the chunk map for persistence.
func (s *VectorState) Export() map[string][]Chunk { return s.docs }

// VectorFromChunks rebuilds a state from exported chunks.
func VectorFromChunks(docs map[string][]Chunk, graph *HNSWGraph) *VectorState {
	s := NewVectorState(graph)
	for doc, chunks := range docs {
		s.docs[doc] = chunks
		s.chunks += len(chunks)
	}
	return s
}
