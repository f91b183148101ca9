package retrieve

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/store"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/tokenize"
)

// fixedEmbedder maps known texts to fixed vectors.
type fixedEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0}, nil
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fixedEmbedder) Dimensions() int                  { return 3 }
func (f *fixedEmbedder) ModelName() string                { return "fixed" }
func (f *fixedEmbedder) Available(_ context.Context) bool { return f.err == nil }
func (f *fixedEmbedder) Close() error                     { return nil }

func lexicalSnapshot(docs map[string]map[string]int) *index.Snapshot {
	lex := store.NewLexicalState()
	for key, tf := range docs {
		lex = lex.With(key, tf)
	}
	return &index.Snapshot{Lexical: lex, Vectors: store.NewVectorState(nil)}
}

func vectorSnapshot(graph *store.HNSWGraph, docs map[string][]store.Chunk) *index.Snapshot {
	vs := store.NewVectorState(graph)
	for key, chunks := range docs {
		vs = vs.With(key, chunks)
		if graph != nil {
			graph.Add(key, chunks)
		}
	}
	return &index.Snapshot{Lexical: store.NewLexicalState(), Vectors: vs}
}

func keys(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Key
	}
	return out
}

func TestLexical_BM25Score(t *testing.T) {
	// Given: two documents with known term statistics
	snap := lexicalSnapshot(map[string]map[string]int{
		"a.txt": {"apple": 2, "banana": 1},
		"b.txt": {"banana": 1},
	})
	l, err := NewLexical(tokenize.MustDefault(), LexicalConfig{K1: 1.5, B: 0.75})
	require.NoError(t, err)

	// When: searching a term only a.txt contains
	got, err := l.Search(context.Background(), snap, "apple", 10)
	require.NoError(t, err)

	// Then: the score follows the BM25 formula
	require.Len(t, got, 1)
	idf := math.Log((2-1+0.5)/(1+0.5) + 1)
	want := idf * 2 * 2.5 / (2 + 1.5*(1-0.75+0.75*3.0/2.0))
	assert.Equal(t, "a.txt", got[0].Key)
	assert.InDelta(t, want, got[0].Score, 1e-12)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, -1, got[0].ChunkOrdinal)
}

func TestLexical_RankingAndTies(t *testing.T) {
	snap := lexicalSnapshot(map[string]map[string]int{
		"c.txt": {"learning": 1, "deep": 1},
		"a.txt": {"learning": 1, "deep": 1},
		"b.txt": {"learning": 1, "machine": 1, "japan": 1},
		"z.txt": {"unrelated": 1},
	})
	l, err := NewLexical(tokenize.MustDefault(), LexicalConfig{})
	require.NoError(t, err)

	got, err := l.Search(context.Background(), snap, "deep learning", 10)
	require.NoError(t, err)

	// Equal scores are ordered by key; non-matching documents are absent.
	assert.Equal(t, []string{"a.txt", "c.txt", "b.txt"}, keys(got))
	assert.Equal(t, got[0].Score, got[1].Score)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].Rank, got[1].Rank, got[2].Rank})
}

func TestLexical_DuplicateQueryTermsCountOnce(t *testing.T) {
	snap := lexicalSnapshot(map[string]map[string]int{
		"a.txt": {"apple": 1},
		"b.txt": {"pear": 1},
	})
	l, err := NewLexical(tokenize.MustDefault(), LexicalConfig{})
	require.NoError(t, err)

	once, err := l.Search(context.Background(), snap, "apple", 10)
	require.NoError(t, err)
	twice, err := l.Search(context.Background(), snap, "apple apple", 10)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestLexical_LimitsAndThreshold(t *testing.T) {
	snap := lexicalSnapshot(map[string]map[string]int{
		"a.txt": {"apple": 3},
		"b.txt": {"apple": 1, "pear": 5},
		"c.txt": {"pear": 1},
	})
	ctx := context.Background()

	l, err := NewLexical(tokenize.MustDefault(), LexicalConfig{})
	require.NoError(t, err)
	got, err := l.Search(ctx, snap, "apple", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, keys(got))

	all, err := l.Search(ctx, snap, "apple", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)

	strict, err := NewLexical(tokenize.MustDefault(), LexicalConfig{MinScore: all[1].Score + 1e-9})
	require.NoError(t, err)
	got, err = strict.Search(ctx, snap, "apple", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, keys(got))
}

func TestLexical_EmptyInputs(t *testing.T) {
	l, err := NewLexical(tokenize.MustDefault(), LexicalConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	got, err := l.Search(ctx, lexicalSnapshot(nil), "apple", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	snap := lexicalSnapshot(map[string]map[string]int{"a.txt": {"apple": 1}})
	got, err = l.Search(ctx, snap, "the", 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = l.Search(ctx, snap, "apple", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLexical_Canceled(t *testing.T) {
	l, err := NewLexical(tokenize.MustDefault(), LexicalConfig{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.Search(ctx, lexicalSnapshot(nil), "apple", 10)

	assert.ErrorIs(t, err, context.Canceled)
}

func testChunks() map[string][]store.Chunk {
	return map[string][]store.Chunk{
		"a.txt": {
			{ID: 1, Ordinal: 0, Vector: []float32{0, 1, 0}},
			{ID: 2, Ordinal: 1, Vector: []float32{1, 0.1, 0}},
		},
		"b.txt": {
			{ID: 3, Ordinal: 0, Vector: []float32{1, 1, 0}},
		},
		"c.txt": {
			{ID: 4, Ordinal: 0, Vector: []float32{0, 0, 1}},
		},
	}
}

func TestVector_BestChunkPerDocument(t *testing.T) {
	for _, backend := range []string{BackendExact, BackendHNSW} {
		t.Run(backend, func(t *testing.T) {
			// Given: a document with a near and a far chunk
			var graph *store.HNSWGraph
			if backend == BackendHNSW {
				graph = store.NewHNSWGraph(store.HNSWConfig{})
			}
			snap := vectorSnapshot(graph, testChunks())
			emb := &fixedEmbedder{vectors: map[string][]float32{"query": {1, 0, 0}}}
			v, err := NewVector(emb, VectorConfig{Backend: backend, MinSimilarity: 0.1})
			require.NoError(t, err)

			// When: searching
			got, err := v.Search(context.Background(), snap, "query", 10)
			require.NoError(t, err)

			// Then: each document is scored by its best chunk, below-threshold ones dropped
			require.Equal(t, []string{"a.txt", "b.txt"}, keys(got))
			assert.Equal(t, 1, got[0].ChunkOrdinal)
			assert.InDelta(t, 1/math.Sqrt(1.01), got[0].Score, 1e-6)
			assert.InDelta(t, 1/math.Sqrt(2), got[1].Score, 1e-6)
			assert.Equal(t, 2, got[1].Rank)
		})
	}
}

func TestVector_TiesByKey(t *testing.T) {
	snap := vectorSnapshot(nil, map[string][]store.Chunk{
		"z.txt": {{ID: 1, Vector: []float32{1, 0, 0}}},
		"m.txt": {{ID: 2, Vector: []float32{1, 0, 0}}},
	})
	v, err := NewVector(&fixedEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}, VectorConfig{})
	require.NoError(t, err)

	got, err := v.Search(context.Background(), snap, "q", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"m.txt", "z.txt"}, keys(got))
}

func TestVector_GraphHonoursSnapshot(t *testing.T) {
	// Given: a graph shared with a newer snapshot that replaced b.txt
	graph := store.NewHNSWGraph(store.HNSWConfig{})
	old := vectorSnapshot(graph, testChunks())
	newer := old.Vectors.With("b.txt", []store.Chunk{{ID: 9, Vector: []float32{0, 0, 1}}})
	graph.Retire(old.Vectors.Chunks("b.txt"))
	graph.Add("b.txt", newer.Chunks("b.txt"))

	emb := &fixedEmbedder{vectors: map[string][]float32{"query": {1, 1, 0}}}
	v, err := NewVector(emb, VectorConfig{Backend: BackendHNSW, MinSimilarity: 0.5})
	require.NoError(t, err)

	// When: each snapshot is searched
	fromOld, err := v.Search(context.Background(), old, "query", 10)
	require.NoError(t, err)
	fromNew, err := v.Search(context.Background(), &index.Snapshot{Vectors: newer}, "query", 10)
	require.NoError(t, err)

	// Then: each sees only its own chunks
	assert.Equal(t, "b.txt", fromOld[0].Key)
	assert.NotContains(t, keys(fromNew), "b.txt")
}

func TestVector_EmbedFailure(t *testing.T) {
	snap := vectorSnapshot(nil, testChunks())
	v, err := NewVector(&fixedEmbedder{err: errors.New("model offline")}, VectorConfig{})
	require.NoError(t, err)

	_, err = v.Search(context.Background(), snap, "query", 10)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeEmbeddingFailed, apperrors.GetCode(err))
}

func TestVector_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	snap := vectorSnapshot(nil, testChunks())
	emb := &fixedEmbedder{err: errors.New("model offline")}
	v, err := NewVector(emb, VectorConfig{})
	require.NoError(t, err)

	for range 5 {
		_, err = v.Search(context.Background(), snap, "query", 10)
		require.Error(t, err)
	}
	_, err = v.Search(context.Background(), snap, "query", 10)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.Equal(t, 5, emb.calls)
}

func TestVector_EmptySnapshotSkipsEmbedding(t *testing.T) {
	emb := &fixedEmbedder{}
	v, err := NewVector(emb, VectorConfig{})
	require.NoError(t, err)

	got, err := v.Search(context.Background(), vectorSnapshot(nil, nil), "query", 10)

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, emb.calls)
}

func TestNewVector_RejectsUnknownBackend(t *testing.T) {
	_, err := NewVector(&fixedEmbedder{}, VectorConfig{Backend: "faiss"})
	assert.Error(t, err)
	_, err = NewVector(nil, VectorConfig{})
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestRegistry(t *testing.T) {
	cfg := config.NewConfig()
	deps := Deps{Config: cfg, Tokenizer: tokenize.MustDefault(), Embedder: &fixedEmbedder{}}

	assert.Subset(t, Names(), []string{NameLexical, NameVector})

	lex, err := New(NameLexical, deps)
	require.NoError(t, err)
	assert.Equal(t, NameLexical, lex.Name())

	vec, err := New(NameVector, deps)
	require.NoError(t, err)
	assert.Equal(t, NameVector, vec.Name())

	_, err = New("splade", deps)
	assert.ErrorIs(t, err, ErrUnknownRetriever)
}
