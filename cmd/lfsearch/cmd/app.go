package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/embed"
	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/retrieve"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/search"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/telemetry"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/tokenize"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/watcher"
)

// shutdownTimeout bounds how long Close waits for running index jobs.
const shutdownTimeout = 10 * time.Second

// appOptions selects the optional parts of the stack.
type appOptions struct {
	// watch attaches a file watcher so the index follows the folder.
	watch bool

	// progress observes the initial build.
	progress index.ProgressFunc
}

// app is the assembled search stack: index manager, retrievers and engine.
// The engine exists once load or start has succeeded.
type app struct {
	cfg      *config.Config
	embedder embed.Embedder
	manager  *index.Manager
	lexical  retrieve.Retriever
	vector   retrieve.Retriever
	engine   *search.Engine
	metrics  *telemetry.QueryMetrics
}

// newApp wires the components for cfg. Nothing touches disk until load or
// start.
func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	tok, err := tokenize.New(tokenize.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("create tokenizer: %w", err)
	}

	emb, err := embed.NewEmbedder(cfg, tok)
	if err != nil {
		return nil, apperrors.ConfigError("create embedder", err)
	}

	var w watcher.Watcher
	if opts.watch {
		w, err = watcher.New(watcher.Options{
			Root:         cfg.Watch.Root,
			DataDir:      cfg.Persist.DataDir,
			Extensions:   cfg.Watch.Extensions,
			Ignore:       cfg.Watch.Ignore,
			PollInterval: cfg.Watch.PollInterval,
		})
		if err != nil {
			_ = emb.Close()
			return nil, apperrors.New(apperrors.ErrCodeWatchRootMissing, "create watcher", err)
		}
	}

	manager, err := index.NewManager(index.Dependencies{
		Config:    cfg,
		Embedder:  emb,
		Tokenizer: tok,
		Watcher:   w,
		Progress:  opts.progress,
	})
	if err != nil {
		_ = emb.Close()
		return nil, err
	}

	deps := retrieve.Deps{Config: cfg, Tokenizer: tok, Embedder: emb}
	lexical, err := retrieve.New(retrieve.NameLexical, deps)
	if err == nil {
		var vector retrieve.Retriever
		if vector, err = retrieve.New(retrieve.NameVector, deps); err == nil {
			return &app{cfg: cfg, embedder: emb, manager: manager, lexical: lexical, vector: vector}, nil
		}
	}
	_ = manager.Close(context.Background())
	_ = emb.Close()
	return nil, err
}

// load builds or restores the index without starting the watcher.
func (a *app) load(ctx context.Context) error {
	if err := a.manager.InitializeIndices(ctx); err != nil {
		return err
	}
	return a.buildEngine()
}

// start loads the index and begins following the folder.
func (a *app) start(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return err
	}
	return a.buildEngine()
}

func (a *app) buildEngine() error {
	var opts []search.EngineOption
	if a.cfg.Persist.Telemetry {
		if a.metrics = openMetrics(a.manager.DataDir()); a.metrics != nil {
			opts = append(opts, search.WithMetrics(a.metrics))
		}
	}
	engine, err := search.NewEngine(a.manager, a.lexical, a.vector, search.ConfigFrom(a.cfg), opts...)
	if err != nil {
		return err
	}
	a.engine = engine
	return nil
}

// openMetrics opens the telemetry database in dataDir. Telemetry is never
// worth failing a command over, so errors only warn.
func openMetrics(dataDir string) *telemetry.QueryMetrics {
	store, err := telemetry.OpenSQLiteMetricsStore(filepath.Join(dataDir, telemetry.DBFile))
	if err != nil {
		slog.Warn("telemetry_disabled", slog.String("error", err.Error()))
		return nil
	}
	return telemetry.NewQueryMetrics(store)
}

// close stops the manager (persisting pending changes), then flushes
// telemetry and releases the embedder.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.manager.Close(ctx)
	if a.metrics != nil {
		err = errors.Join(err, a.metrics.Close())
	}
	return errors.Join(err, a.embedder.Close())
}

// printError writes err the way the CLI reports failures.
func printError(w io.Writer, err error) {
	_, _ = fmt.Fprint(w, apperrors.FormatForCLI(err))
}
