// Package integration tests the indexing and search packages together:
// real files on disk, the index manager, both retrievers, the engine and
// the MCP server.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/embed"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/retrieve"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/search"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/tokenize"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/watcher"
)

var corpus = map[string]string{
	"guides/kubernetes.md": "# Kubernetes\n\nRolling upgrades of kubernetes clusters and deployment manifests.",
	"finance/q3.txt":       "Quarterly revenue forecast and budget planning for the sales team.",
	"notes/recipes.txt":    "Slow cooked tomato sauce with basil and garlic.",
}

// countingEmbedder counts the texts it embeds.
type countingEmbedder struct {
	embed.Embedder
	texts atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.texts.Add(1)
	return c.Embedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.texts.Add(int64(len(texts)))
	return c.Embedder.EmbedBatch(ctx, texts)
}

// stack is the assembled search pipeline over one folder.
type stack struct {
	cfg      *config.Config
	embedder *countingEmbedder
	manager  *index.Manager
	engine   *search.Engine
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Watch.Root = t.TempDir()
	cfg.Watch.Debounce = 20 * time.Millisecond
	cfg.Persist.DataDir = filepath.Join(cfg.Watch.Root, ".lfsearch")
	cfg.Persist.AutosaveInterval = 0
	cfg.Vector.Dimensions = 64
	cfg.Workers.Size = 2
	return cfg
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for key, content := range files {
		path := filepath.Join(root, filepath.FromSlash(key))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// newStack wires the pipeline for cfg. With watch the folder is followed
// once start is called.
func newStack(t *testing.T, cfg *config.Config, watch bool) *stack {
	t.Helper()
	tok := tokenize.MustDefault()
	emb := &countingEmbedder{Embedder: embed.NewStaticEmbedder(cfg.Vector.Dimensions, tok)}

	var w watcher.Watcher
	if watch {
		var err error
		w, err = watcher.New(watcher.Options{
			Root:         cfg.Watch.Root,
			DataDir:      cfg.Persist.DataDir,
			Extensions:   cfg.Watch.Extensions,
			PollInterval: 50 * time.Millisecond,
		})
		require.NoError(t, err)
	}

	m, err := index.NewManager(index.Dependencies{Config: cfg, Embedder: emb, Tokenizer: tok, Watcher: w})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	deps := retrieve.Deps{Config: cfg, Tokenizer: tok, Embedder: emb}
	lex, err := retrieve.New(retrieve.NameLexical, deps)
	require.NoError(t, err)
	vec, err := retrieve.New(retrieve.NameVector, deps)
	require.NoError(t, err)
	e, err := search.NewEngine(m, lex, vec, search.ConfigFrom(cfg))
	require.NoError(t, err)

	return &stack{cfg: cfg, embedder: emb, manager: m, engine: e}
}

func keys(results []search.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Key
	}
	return out
}
