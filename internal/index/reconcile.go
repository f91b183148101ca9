package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/scanner"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/store"
)

// ChangeType classifies a difference between the index and disk.
type ChangeType int

const (
	// ChangeTypeAdded indicates a file on disk that is not indexed.
	ChangeTypeAdded ChangeType = iota
	// ChangeTypeModified indicates an indexed file whose mtime or size moved.
	ChangeTypeModified
	// ChangeTypeDeleted indicates an indexed file that is gone.
	ChangeTypeDeleted
)

// FileChange is one path the startup reconciliation must apply.
type FileChange struct {
	Key  string
	Type ChangeType
}

// loadPersisted adopts the artifact pair in the data directory. It returns
// false when the pair is missing, corrupt or torn, leaving an empty
// snapshot for a rebuild. A dimension change is fatal.
func (m *Manager) loadPersisted() (bool, error) {
	lex, vec, err := store.LoadPair(m.dataDir)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrArtifactMissing):
		slog.Debug("index_artifacts_missing", slog.String("data_dir", m.dataDir))
		m.resumeAfterPersisted()
		return false, nil
	case errors.Is(err, store.ErrArtifactCorrupt), errors.Is(err, store.ErrSnapshotMismatch):
		slog.Warn("index_artifacts_unusable",
			slog.String("data_dir", m.dataDir),
			slog.String("error", err.Error()))
		m.resumeAfterPersisted()
		return false, nil
	default:
		return false, apperrors.New(apperrors.ErrCodeCorruptIndex, "read index artifacts", err)
	}

	if dims := vec.Header.Dimensions; dims != 0 && dims != m.cfg.Vector.Dimensions {
		return false, apperrors.New(apperrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("persisted vectors have %d dimensions, configuration has %d", dims, m.cfg.Vector.Dimensions),
			apperrors.ErrDimensionMismatch).
			WithSuggestion("Restore vector.dimensions or delete " + m.dataDir + " to rebuild")
	}
	if model := vec.Header.Model; model != "" && model != m.embedder.ModelName() {
		slog.Warn("index_model_changed",
			slog.String("persisted", model),
			slog.String("configured", m.embedder.ModelName()))
		m.resumeAfterPersisted()
		return false, nil
	}

	vectors := store.VectorFromChunks(vec.Chunks, nil)
	if g := m.newGraph(); g != nil {
		vectors = vectors.WithGraph(store.BuildHNSW(store.HNSWConfig{
			M:        m.cfg.Vector.HNSW.M,
			EfSearch: m.cfg.Vector.HNSW.EfSearch,
		}, vectors))
	}
	m.nextChunkID.Store(vectors.MaxChunkID())

	m.current.Store(&Snapshot{
		Version:   lex.Header.SnapshotID,
		Docs:      lex.Documents,
		Lexical:   store.LexicalFromTerms(lex.Terms),
		Vectors:   vectors,
		CreatedAt: lex.Header.CreatedAt,
	})

	m.statusMu.Lock()
	m.persist = persistState{persisted: true, version: lex.Header.SnapshotID, at: lex.Header.CreatedAt}
	m.statusMu.Unlock()

	slog.Info("index_loaded",
		slog.Uint64("snapshot", lex.Header.SnapshotID),
		slog.Int("documents", len(lex.Documents)))
	return true, nil
}

// resumeAfterPersisted numbers the rebuilt snapshot after the highest id
// still readable from either artifact header, so snapshot ids never go
// backwards across a discarded pair.
func (m *Manager) resumeAfterPersisted() {
	var last uint64
	for _, name := range []string{store.LexicalFile, store.VectorFile} {
		if h, err := store.ReadHeader(filepath.Join(m.dataDir, name)); err == nil {
			last = max(last, h.SnapshotID)
		}
	}
	if last > 0 {
		m.current.Store(emptySnapshot(last+1, m.newGraph()))
	}
}

// reconcile brings the active snapshot in line with disk: deletions, then
// modifications (by mtime and size), then additions.
func (m *Manager) reconcile(ctx context.Context) error {
	m.report(Progress{Phase: PhaseScanning})
	sc, err := m.newScanner()
	if err != nil {
		return apperrors.New(apperrors.ErrCodeWatchRootMissing, "scan watch root", err)
	}
	current, err := sc.Collect(ctx)
	if err != nil {
		if errCanceled(err) {
			return err
		}
		slog.Warn("reconcile_scan_incomplete", slog.String("error", err.Error()))
	}

	changes := detectFileChanges(m.Current().Docs, current)
	if len(changes) == 0 {
		slog.Debug("no file changes detected since last index")
		return nil
	}

	var added, modified, deleted int
	for _, ch := range changes {
		switch ch.Type {
		case ChangeTypeAdded:
			added++
		case ChangeTypeModified:
			modified++
		case ChangeTypeDeleted:
			deleted++
		}
	}
	slog.Info("reconcile_started",
		slog.Int("added", added),
		slog.Int("modified", modified),
		slog.Int("deleted", deleted))

	return m.applyChanges(ctx, changes)
}

// detectFileChanges compares indexed documents with the scanned files.
// mtimes are compared at second precision since filesystems differ in
// resolution.
func detectFileChanges(indexed map[string]store.Document, current map[string]*scanner.FileInfo) []FileChange {
	var changes []FileChange

	for key, doc := range indexed {
		fi, ok := current[key]
		if !ok {
			changes = append(changes, FileChange{Key: key, Type: ChangeTypeDeleted})
			continue
		}
		if !fi.ModTime.Truncate(time.Second).Equal(doc.ModTime.Truncate(time.Second)) || fi.Size != doc.Size {
			changes = append(changes, FileChange{Key: key, Type: ChangeTypeModified})
		}
	}
	for key := range current {
		if _, ok := indexed[key]; !ok {
			changes = append(changes, FileChange{Key: key, Type: ChangeTypeAdded})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Type != changes[j].Type {
			return changes[i].Type > changes[j].Type
		}
		return changes[i].Key < changes[j].Key
	})
	return changes
}

// applyChanges runs Apply for every change on the worker pool. Keys are
// distinct, so per-key ordering needs no extra coordination.
func (m *Manager) applyChanges(ctx context.Context, changes []FileChange) error {
	total := len(changes)
	m.report(Progress{Phase: PhaseIndexing, Total: total})

	// doneMu keeps Done increasing in the order reports are delivered.
	var doneMu sync.Mutex
	done := 0
	var wg sync.WaitGroup
	for _, ch := range changes {
		if err := ctx.Err(); err != nil {
			break
		}
		key := ch.Key
		wg.Add(1)
		if err := m.pool.Submit(func() {
			defer wg.Done()
			outcome, err := m.Apply(ctx, key)
			if err != nil && !errCanceled(err) {
				slog.Warn("reconcile_file_failed",
					slog.String("key", key),
					slog.String("error", err.Error()))
			}
			doneMu.Lock()
			done++
			m.report(Progress{
				Phase:   PhaseIndexing,
				Done:    done,
				Total:   total,
				Key:     key,
				Outcome: outcome,
				Err:     err,
			})
			doneMu.Unlock()
		}); err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("submit reconcile job: %w", err)
		}
	}
	wg.Wait()
	return ctx.Err()
}
