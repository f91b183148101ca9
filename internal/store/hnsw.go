package store

import (
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWConfig tunes the graph.
type HNSWConfig struct {
	M        int
	EfSearch int
}

// Hit is one chunk returned by an ANN search.
type Hit struct {
	ChunkID    uint64
	Doc        string
	Similarity float64
}

// HNSWGraph is an approximate nearest neighbour index over chunk vectors.
//
// Nodes are never deleted from the underlying graph. Replaced or removed
// chunks become orphans that searches skip through the accept filter, and
// the writer rebuilds a fresh graph once orphans pass a threshold. Each
// snapshot keeps the graph it was built with, so a rebuild never disturbs
// readers of older snapshots.
type HNSWGraph struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	cfg     HNSWConfig
	owner   map[uint64]string // chunk id -> doc key, includes orphans
	orphans map[uint64]struct{}
}

// NewHNSWGraph creates an empty graph.
func NewHNSWGraph(cfg HNSWConfig) *HNSWGraph {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25

	return &HNSWGraph{
		graph:   g,
		cfg:     cfg,
		owner:   make(map[uint64]string),
		orphans: make(map[uint64]struct{}),
	}
}

// Add inserts the chunks of doc. Zero vectors are skipped: they have no
// direction and cannot match anything under cosine distance.
func (g *HNSWGraph) Add(doc string, chunks []Chunk) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range chunks {
		if _, exists := g.owner[c.ID]; exists {
			continue
		}
		vec := normalized(c.Vector)
		if vec == nil {
			continue
		}
		g.graph.Add(hnsw.MakeNode(c.ID, vec))
		g.owner[c.ID] = doc
	}
}

// Retire marks chunks as orphans.
func (g *HNSWGraph) Retire(chunks []Chunk) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range chunks {
		if _, exists := g.owner[c.ID]; exists {
			g.orphans[c.ID] = struct{}{}
		}
	}
}

// Len returns the number of nodes, orphans included.
func (g *HNSWGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.owner)
}

// OrphanRatio returns the fraction of nodes that are orphans.
func (g *HNSWGraph) OrphanRatio() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.owner) == 0 {
		return 0
	}
	return float64(len(g.orphans)) / float64(len(g.owner))
}

// Search returns up to k accepted chunks closest to query, best first.
// It widens the candidate pool until k chunks pass accept or the graph is
// exhausted.
func (g *HNSWGraph) Search(query []float32, k int, accept func(doc string, id uint64) bool) []Hit {
	q := normalized(query)
	if q == nil || k <= 0 {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	total := len(g.owner)
	if total == 0 {
		return nil
	}

	fetch := min(max(k*4, g.cfg.EfSearch), total)
	for {
		nodes := g.graph.Search(q, fetch)

		hits := make([]Hit, 0, k)
		for _, n := range nodes {
			doc, ok := g.owner[n.Key]
			if !ok || !accept(doc, n.Key) {
				continue
			}
			hits = append(hits, Hit{
				ChunkID:    n.Key,
				Doc:        doc,
				Similarity: 1 - float64(g.graph.Distance(q, n.Value)),
			})
		}

		if len(hits) >= k || fetch >= total {
			sort.SliceStable(hits, func(i, j int) bool {
				if hits[i].Similarity != hits[j].Similarity {
					return hits[i].Similarity > hits[j].Similarity
				}
				return hits[i].ChunkID < hits[j].ChunkID
			})
			if len(hits) > k {
				hits = hits[:k]
			}
			return hits
		}
		fetch = min(fetch*2, total)
	}
}

// Rebuild returns a new graph holding only the chunks in state.
func (g *HNSWGraph) Rebuild(state *VectorState) *HNSWGraph {
	return BuildHNSW(g.cfg, state)
}

// BuildHNSW creates a graph over every chunk in state.
func BuildHNSW(cfg HNSWConfig, state *VectorState) *HNSWGraph {
	g := NewHNSWGraph(cfg)
	state.Each(func(doc string, chunks []Chunk) {
		g.Add(doc, chunks)
	})
	return g
}

func normalized(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil
	}
	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
