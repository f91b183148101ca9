package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/chunk"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/embed"
	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/extract"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/scanner"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/store"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/tokenize"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/watcher"
)

// Extractor turns a file into normalized text. *extract.Extractor is the
// production implementation.
type Extractor interface {
	Extract(ctx context.Context, absPath string) (*extract.Extracted, error)
}

// Dependencies contains the injected collaborators of a Manager.
type Dependencies struct {
	// Config is the loaded configuration (required).
	Config *config.Config

	// Embedder produces chunk vectors (required).
	Embedder embed.Embedder

	// Tokenizer is shared with the lexical retriever (required).
	Tokenizer tokenize.Tokenizer

	// Extractor defaults to extract.New over the configured extensions.
	Extractor Extractor

	// Watcher feeds file events once Start runs. Optional.
	Watcher watcher.Watcher

	// Progress observes the initial build. Optional.
	Progress ProgressFunc
}

// Manager maintains the document set and both indices.
//
// Readers call Current and work on the returned snapshot. Writers prepare an
// update (extract, tokenize, chunk, embed) without any lock, then take the
// single writer lock only to derive and publish the next snapshot.
type Manager struct {
	cfg       *config.Config
	root      string
	dataDir   string
	extractor Extractor
	tok       tokenize.Tokenizer
	embedder  embed.Embedder
	chunker   *chunk.Chunker
	watcher   watcher.Watcher
	debouncer *watcher.Debouncer
	progress  ProgressFunc
	pool      *ants.Pool
	lock      *store.DirLock

	progressMu sync.Mutex

	current     atomic.Pointer[Snapshot]
	writeMu     sync.Mutex
	nextChunkID atomic.Uint64

	jobsMu sync.Mutex
	jobs   map[string]*jobState
	jobsWG sync.WaitGroup

	added   atomic.Int64
	updated atomic.Int64
	removed atomic.Int64
	failed  atomic.Int64

	saveMu   sync.Mutex
	statusMu sync.Mutex
	persist  persistState

	ready     atomic.Bool
	initOnce  sync.Once
	initErr   error
	runCtx    context.Context
	runCancel context.CancelFunc
	bgWG      sync.WaitGroup
	closeOnce sync.Once
}

// NewManager validates deps and builds an idle manager. Nothing touches the
// data directory until InitializeIndices.
func NewManager(deps Dependencies) (*Manager, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Tokenizer == nil {
		return nil, fmt.Errorf("tokenizer is required")
	}
	cfg := deps.Config

	root, err := filepath.Abs(cfg.Watch.Root)
	if err != nil {
		return nil, apperrors.ConfigError("resolve watch root", err)
	}
	dataDir := cfg.Persist.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(root, config.DefaultDataDirName)
	}

	ext := deps.Extractor
	if ext == nil {
		ext = extract.New(extract.Options{
			Extensions:  cfg.Watch.Extensions,
			MaxFileSize: cfg.Watch.MaxFileSize,
		}, nil)
	}

	workers := cfg.Workers.Size
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:       cfg,
		root:      root,
		dataDir:   dataDir,
		extractor: ext,
		tok:       deps.Tokenizer,
		embedder:  deps.Embedder,
		chunker:   chunk.New(cfg.Vector.ChunkSize, cfg.Vector.ChunkOverlap, cfg.Vector.MinChunkSize),
		watcher:   deps.Watcher,
		progress:  deps.Progress,
		pool:      pool,
		lock:      store.NewDirLock(dataDir),
		jobs:      make(map[string]*jobState),
		runCtx:    runCtx,
		runCancel: cancel,
	}
	m.debouncer = watcher.NewDebouncer(cfg.Watch.Debounce, m.enqueue)
	m.current.Store(emptySnapshot(0, m.newGraph()))
	return m, nil
}

// newGraph returns a fresh ANN graph for the hnsw backend, nil otherwise.
func (m *Manager) newGraph() *store.HNSWGraph {
	if m.cfg.Vector.Backend != "hnsw" {
		return nil
	}
	return store.NewHNSWGraph(store.HNSWConfig{
		M:        m.cfg.Vector.HNSW.M,
		EfSearch: m.cfg.Vector.HNSW.EfSearch,
	})
}

// Current returns the active snapshot. It never blocks.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// Root returns the absolute watch root.
func (m *Manager) Root() string { return m.root }

// DataDir returns the absolute data directory.
func (m *Manager) DataDir() string { return m.dataDir }

// Embedder returns the embedder used for chunks; queries must use the same.
func (m *Manager) Embedder() embed.Embedder { return m.embedder }

// Tokenizer returns the analyzer shared by indexing and querying.
func (m *Manager) Tokenizer() tokenize.Tokenizer { return m.tok }

// Document returns the indexed record for key from the active snapshot.
func (m *Manager) Document(key string) (store.Document, bool) {
	return m.Current().Document(key)
}

// ResolveKey maps an absolute path, or a path relative to the watch root,
// to a document key. Paths outside the root are rejected.
func (m *Manager) ResolveKey(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", apperrors.ValidationError(apperrors.ErrCodeInvalidPath, "path is empty")
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(m.root, filepath.FromSlash(path))
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(m.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.ValidationError(apperrors.ErrCodeInvalidPath,
			fmt.Sprintf("path %q is outside the watch root", path)).
			WithSuggestion("Use a path relative to " + m.root)
	}
	return filepath.ToSlash(rel), nil
}

// AbsPath returns the file path behind a document key.
func (m *Manager) AbsPath(key string) string {
	return filepath.Join(m.root, filepath.FromSlash(key))
}

// InitializeIndices locks the data directory, verifies the embedder, loads
// the persisted snapshot (or rebuilds it) and reconciles it against disk.
// It runs once; later calls return the first result.
func (m *Manager) InitializeIndices(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.initErr = m.initialize(ctx)
		if m.initErr == nil {
			m.ready.Store(true)
		}
	})
	return m.initErr
}

func (m *Manager) initialize(ctx context.Context) error {
	start := time.Now()

	if info, err := os.Stat(m.root); err != nil || !info.IsDir() {
		return apperrors.New(apperrors.ErrCodeWatchRootMissing,
			fmt.Sprintf("watch root %s is not a directory", m.root), err)
	}
	if err := os.MkdirAll(m.dataDir, 0o755); err != nil {
		return apperrors.New(apperrors.ErrCodePersistFailed, "create data directory", err)
	}
	if err := m.lock.TryLock(); err != nil {
		if errors.Is(err, store.ErrLocked) {
			return apperrors.New(apperrors.ErrCodeDataDirLocked,
				fmt.Sprintf("data directory %s is in use", m.dataDir), err).
				WithSuggestion("Stop the other lfsearch process or choose another persist.data_dir")
		}
		return apperrors.New(apperrors.ErrCodeDataDirLocked, "lock data directory", err)
	}

	if err := embed.Verify(ctx, m.embedder, m.cfg.Vector.Dimensions); err != nil {
		if errors.Is(err, embed.ErrDimensionMismatch) {
			m.releaseLock()
			return apperrors.New(apperrors.ErrCodeDimensionMismatch, err.Error(), err).
				WithSuggestion("Set vector.dimensions to the embedding model's output size")
		}
		// The provider may come up later; failed embeddings are counted per file.
		slog.Warn("embedder_probe_failed", slog.String("error", err.Error()))
	}

	loaded, err := m.loadPersisted()
	if err != nil {
		m.releaseLock()
		return err
	}

	if !loaded {
		slog.Info("index_rebuild_started", slog.String("root", m.root))
	}
	if err := m.reconcile(ctx); err != nil {
		m.releaseLock()
		return err
	}

	snap := m.Current()
	slog.Info("index_ready",
		slog.Bool("loaded", loaded),
		slog.Int("documents", len(snap.Docs)),
		slog.Int("chunks", snap.Vectors.ChunkCount()),
		slog.Uint64("version", snap.Version),
		slog.Duration("duration", time.Since(start)))

	if m.dirty() {
		m.report(Progress{Phase: PhasePersisting, Done: len(snap.Docs), Total: len(snap.Docs)})
		if err := m.PersistSnapshot(ctx); err != nil {
			slog.Warn("persist_failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Start attaches the watcher, initializes the indices and then consumes
// watcher events and autosaves in the background until Close.
//
// The watches are registered before the reconcile scan, so a change landing
// between the scan and the first event is still seen. Events raised while
// the scan runs wait in the watcher's buffer and are applied afterwards;
// applying an unchanged file is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	if m.watcher != nil {
		initialized := m.ready.Load()
		if err := m.startWatcher(ctx); err != nil {
			return err
		}
		if err := m.InitializeIndices(ctx); err != nil {
			_ = m.watcher.Stop()
			return err
		}
		if initialized {
			// The earlier scan predates the watches.
			if err := m.reconcile(ctx); err != nil {
				_ = m.watcher.Stop()
				return err
			}
		}
		m.bgWG.Add(1)
		go func() {
			defer m.bgWG.Done()
			m.consumeEvents()
		}()
	} else if err := m.InitializeIndices(ctx); err != nil {
		return err
	}

	if interval := m.cfg.Persist.AutosaveInterval; interval > 0 {
		m.bgWG.Add(1)
		go func() {
			defer m.bgWG.Done()
			m.autosave(interval)
		}()
	}
	return nil
}

// startWatcher runs the watcher in the background and waits until its
// initial watches exist. A watcher that fails to start is logged and the
// index runs without it.
func (m *Manager) startWatcher(ctx context.Context) error {
	done := make(chan struct{})
	m.bgWG.Add(1)
	go func() {
		defer m.bgWG.Done()
		defer close(done)
		if err := m.watcher.Start(m.runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("watcher_stopped", slog.String("error", err.Error()))
		}
	}()

	select {
	case <-m.watcher.Ready():
		return nil
	case <-done:
		return nil
	case <-ctx.Done():
		_ = m.watcher.Stop()
		return ctx.Err()
	}
}

// consumeEvents feeds watcher events into the debouncer.
func (m *Manager) consumeEvents() {
	events := m.watcher.Events()
	errs := m.watcher.Errors()
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.OnFileEvent(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the watcher, applies events still in the debounce window,
// waits for running jobs, persists a dirty snapshot and releases the data
// directory. ctx bounds the wait; a save error is returned.
func (m *Manager) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		if m.watcher != nil {
			_ = m.watcher.Stop()
		}

		if m.ready.Load() {
			m.debouncer.Flush()
		}
		m.debouncer.Stop()

		done := make(chan struct{})
		go func() {
			m.jobsWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("shutdown_jobs_abandoned", slog.Int("pending", m.pendingEvents()))
		}

		m.runCancel()
		m.bgWG.Wait()
		m.pool.Release()

		if m.ready.Load() && m.dirty() {
			// The final save runs even when the wait above used up ctx.
			err = m.PersistSnapshot(context.WithoutCancel(ctx))
		}
		m.releaseLock()
	})
	return err
}

func (m *Manager) releaseLock() {
	if err := m.lock.Unlock(); err != nil {
		slog.Warn("data_dir_unlock_failed", slog.String("error", err.Error()))
	}
}

// newScanner returns a scanner configured like the watcher.
func (m *Manager) newScanner() (*scanner.Scanner, error) {
	return scanner.New(scanner.ScanOptions{
		Root:        m.root,
		DataDir:     m.dataDir,
		Extensions:  m.cfg.Watch.Extensions,
		Ignore:      m.cfg.Watch.Ignore,
		MaxFileSize: m.cfg.Watch.MaxFileSize,
	})
}
