package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/embed"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/retrieve"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/tokenize"
)

func newIndexedEngine(t *testing.T, files map[string]string) (*Engine, *index.Manager, string) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Watch.Root = t.TempDir()
	cfg.Watch.Debounce = 20 * time.Millisecond
	cfg.Persist.DataDir = t.TempDir()
	cfg.Persist.AutosaveInterval = 0
	cfg.Vector.Dimensions = 64
	cfg.Workers.Size = 2

	for key, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.Watch.Root, key), []byte(content), 0o644))
	}

	tok := tokenize.MustDefault()
	emb := embed.NewStaticEmbedder(cfg.Vector.Dimensions, tok)
	m, err := index.NewManager(index.Dependencies{Config: cfg, Embedder: emb, Tokenizer: tok})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	require.NoError(t, m.InitializeIndices(context.Background()))

	lex, err := retrieve.NewLexical(tok, retrieve.LexicalConfig{})
	require.NoError(t, err)
	vec, err := retrieve.NewVector(emb, retrieve.VectorConfig{Backend: retrieve.BackendExact})
	require.NoError(t, err)
	e, err := NewEngine(m, lex, vec, DefaultConfig())
	require.NoError(t, err)
	return e, m, cfg.Watch.Root
}

func TestEngine_DeletedFileLeavesResults(t *testing.T) {
	// Given: two indexed documents mentioning learning
	e, m, root := newIndexedEngine(t, map[string]string{
		"a.txt": "machine learning with neural networks",
		"b.txt": "deep learning for image recognition",
	})
	ctx := context.Background()

	resp, err := e.SearchHybrid(ctx, "learning", 10, DefaultWeights())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, resultKeys(resp.Results))

	// When: b.txt is deleted and the index catches up
	require.NoError(t, os.Remove(filepath.Join(root, "b.txt")))
	outcome, err := m.Apply(ctx, "b.txt")
	require.NoError(t, err)
	require.Equal(t, index.OutcomeRemoved, outcome)

	// Then: the same query no longer returns it, cache included
	resp, err = e.SearchHybrid(ctx, "learning", 10, DefaultWeights())
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Contains(t, resultKeys(resp.Results), "a.txt")
	assert.NotContains(t, resultKeys(resp.Results), "b.txt")

	lexical, err := e.SearchLexicalOnly(ctx, "learning", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, resultKeys(lexical.Results))
}

func TestEngine_LexicalFindsExactTerm(t *testing.T) {
	e, _, _ := newIndexedEngine(t, map[string]string{
		"notes.md":   "quarterly budget review meeting",
		"recipe.txt": "bake the bread at high temperature",
	})

	resp, err := e.SearchLexicalOnly(context.Background(), "budget", 5)

	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "notes.md", resp.Results[0].Key)
	assert.Equal(t, "notes.md", resp.Results[0].FileName)
	assert.Equal(t, "quarterly budget review meeting", resp.Results[0].Preview)
	assert.Greater(t, resp.Results[0].Score, 0.0)
}
