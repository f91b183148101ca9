// Package index owns the document set and both retrieval indices. It reacts
// to file events, keeps the lexical and vector halves in step, and publishes
// immutable snapshots that queries read without locking.
package index

import (
	"sort"
	"time"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/store"
)

// Snapshot is one consistent view of the index. A published snapshot is
// never modified; the manager swaps in a successor after both halves have
// been updated.
type Snapshot struct {
	Version   uint64
	Docs      map[string]store.Document
	Lexical   *store.LexicalState
	Vectors   *store.VectorState
	CreatedAt time.Time
}

func emptySnapshot(version uint64, graph *store.HNSWGraph) *Snapshot {
	return &Snapshot{
		Version:   version,
		Docs:      map[string]store.Document{},
		Lexical:   store.NewLexicalState(),
		Vectors:   store.NewVectorState(graph),
		CreatedAt: time.Now(),
	}
}

// Document returns the indexed record for key.
func (s *Snapshot) Document(key string) (store.Document, bool) {
	d, ok := s.Docs[key]
	return d, ok
}

// Keys returns the document keys in lexical order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.Docs))
	for k := range s.Docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ChunkText returns the text of doc's chunk with the given ordinal, or "".
func (s *Snapshot) ChunkText(doc string, ordinal int) string {
	for _, c := range s.Vectors.Chunks(doc) {
		if c.Ordinal == ordinal {
			return c.Text
		}
	}
	return ""
}
