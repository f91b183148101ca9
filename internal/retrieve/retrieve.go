// Package retrieve implements the retrievers the query engine fuses: BM25
// over whole-document term statistics and nearest-neighbour search over
// chunk vectors. Both read only the snapshot they are handed.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/embed"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/tokenize"
)

// Retriever names registered by this package.
const (
	NameLexical = "lexical"
	NameVector  = "vector"
)

var (
	// ErrUnknownRetriever is returned by New for an unregistered name.
	ErrUnknownRetriever = errors.New("unknown retriever")

	// ErrNilDependency is returned when a factory lacks a collaborator.
	ErrNilDependency = errors.New("required dependency is nil")
)

// Candidate is one retrieval result.
type Candidate struct {
	// Key is the document key.
	Key string `json:"document_key"`

	// Score is retriever-local: BM25 score or cosine similarity.
	Score float64 `json:"score"`

	// Rank is the 1-based position in the retriever's list.
	Rank int `json:"rank"`

	// ChunkOrdinal is the best matching chunk for vector candidates, -1
	// for lexical ones.
	ChunkOrdinal int `json:"chunk_ordinal"`
}

// Retriever ranks the documents of a snapshot for a query.
//
// Implementations must be safe for concurrent use and must not mutate snap.
type Retriever interface {
	// Name returns the registry name.
	Name() string

	// Search returns at most k candidates, best first, ranks assigned.
	// An empty result is not an error.
	Search(ctx context.Context, snap *index.Snapshot, query string, k int) ([]Candidate, error)
}

// Deps are the collaborators a factory may use.
type Deps struct {
	Config    *config.Config
	Tokenizer tokenize.Tokenizer
	Embedder  embed.Embedder
}

// Factory builds a retriever from deps.
type Factory func(Deps) (Retriever, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func init() {
	Register(NameLexical, newLexicalFromDeps)
	Register(NameVector, newVectorFromDeps)
}

// Register adds or replaces a factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Names returns the registered retriever names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the retriever registered under name.
func New(name string, deps Deps) (Retriever, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRetriever, name)
	}
	return f(deps)
}

// rank sorts candidates by descending score, ties by key, truncates to k
// and assigns 1-based ranks.
func rank(cands []Candidate, k int) []Candidate {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].Key < cands[j].Key
	})
	if k >= 0 && len(cands) > k {
		cands = cands[:k]
	}
	for i := range cands {
		cands[i].Rank = i + 1
	}
	return cands
}
