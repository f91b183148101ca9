package retrieve

import (
	"context"
	"fmt"
	"time"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/embed"
	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/store"
)

// Vector backends.
const (
	BackendExact = "exact"
	BackendHNSW  = "hnsw"
)

// chunkFanout is how many chunks are fetched per requested document from
// the graph, since several chunks of one document may rank together.
const chunkFanout = 4

// VectorConfig configures the vector retriever.
type VectorConfig struct {
	// Backend is BackendExact or BackendHNSW. HNSW falls back to the exact
	// scan for snapshots that carry no graph.
	Backend string

	// MinSimilarity drops documents whose best chunk scores below it.
	MinSimilarity float64
}

// Vector embeds the query and ranks documents by their best chunk.
type Vector struct {
	embedder embed.Embedder
	cfg      VectorConfig
	breaker  *apperrors.Breaker
}

// NewVector creates a vector retriever.
func NewVector(e embed.Embedder, cfg VectorConfig) (*Vector, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: embedder", ErrNilDependency)
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendExact
	}
	if cfg.Backend != BackendExact && cfg.Backend != BackendHNSW {
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
	return &Vector{
		embedder: e,
		cfg:      cfg,
		breaker:  apperrors.NewBreaker("query-embedder", 5, 30*time.Second),
	}, nil
}

func newVectorFromDeps(d Deps) (Retriever, error) {
	cfg := VectorConfig{}
	if d.Config != nil {
		cfg = VectorConfig{Backend: d.Config.Vector.Backend, MinSimilarity: d.Config.Vector.MinSimilarity}
	}
	return NewVector(d.Embedder, cfg)
}

// Name implements Retriever.
func (v *Vector) Name() string { return NameVector }

// Search implements Retriever.
func (v *Vector) Search(ctx context.Context, snap *index.Snapshot, query string, k int) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if snap == nil || k <= 0 || snap.Vectors.ChunkCount() == 0 {
		return []Candidate{}, nil
	}

	var (
		qv       []float32
		embedErr error
	)
	err := v.breaker.Do(func() error {
		qv, embedErr = v.embedder.Embed(ctx, query)
		if embedErr != nil && ctx.Err() != nil {
			// A caller deadline says nothing about the embedder's health.
			return nil
		}
		return embedErr
	})
	if err == nil {
		err = embedErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed, "embed query", err)
	}

	var best map[string]Candidate
	if g := snap.Vectors.Graph(); v.cfg.Backend == BackendHNSW && g != nil {
		best = v.searchGraph(g, snap.Vectors, qv, k)
	} else {
		best = v.scan(ctx, snap.Vectors, qv)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cands := make([]Candidate, 0, len(best))
	for _, c := range best {
		if c.Score < v.cfg.MinSimilarity {
			continue
		}
		cands = append(cands, c)
	}
	return rank(cands, k), nil
}

// scan computes cosine similarity against every chunk of the snapshot.
func (v *Vector) scan(ctx context.Context, vs *store.VectorState, qv []float32) map[string]Candidate {
	best := make(map[string]Candidate, vs.DocCount())
	vs.Each(func(doc string, chunks []store.Chunk) {
		if ctx.Err() != nil {
			return
		}
		for _, c := range chunks {
			keepBest(best, doc, embed.CosineSimilarity(qv, c.Vector), c.Ordinal)
		}
	})
	return best
}

// searchGraph queries the shared graph, accepting only chunks live in this
// snapshot so later updates cannot leak in.
func (v *Vector) searchGraph(g *store.HNSWGraph, vs *store.VectorState, qv []float32, k int) map[string]Candidate {
	hits := g.Search(qv, k*chunkFanout, vs.Has)
	best := make(map[string]Candidate, len(hits))
	for _, h := range hits {
		keepBest(best, h.Doc, h.Similarity, ordinalOf(vs.Chunks(h.Doc), h.ChunkID))
	}
	return best
}

func keepBest(best map[string]Candidate, doc string, sim float64, ordinal int) {
	cur, ok := best[doc]
	if ok && (cur.Score > sim || (cur.Score == sim && cur.ChunkOrdinal <= ordinal)) {
		return
	}
	best[doc] = Candidate{Key: doc, Score: sim, ChunkOrdinal: ordinal}
}

func ordinalOf(chunks []store.Chunk, id uint64) int {
	for _, c := range chunks {
		if c.ID == id {
			return c.Ordinal
		}
	}
	return 0
}
