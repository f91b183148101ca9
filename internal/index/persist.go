package index

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/store"
)

// PersistSnapshot writes the active snapshot to the data directory.
//
// Both artifacts are written to temp files before either is renamed into
// place. When a write fails the temps are removed, the snapshot stays dirty,
// status reports the error as degraded and the next autosave retries. A
// clean snapshot is not rewritten.
func (m *Manager) PersistSnapshot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	snap := m.Current()
	if !m.dirtyFor(snap) {
		return nil
	}

	start := time.Now()
	header := store.Header{
		SnapshotID: snap.Version,
		CreatedAt:  snap.CreatedAt,
		Documents:  len(snap.Docs),
	}
	lex := &store.LexicalArtifact{
		Header:    header,
		Documents: snap.Docs,
		Terms:     snap.Lexical.Export(),
	}
	vecHeader := header
	vecHeader.Dimensions = m.cfg.Vector.Dimensions
	vecHeader.Model = m.embedder.ModelName()
	vec := &store.VectorArtifact{
		Header: vecHeader,
		Chunks: snap.Vectors.Export(),
	}

	if err := store.SavePair(m.dataDir, lex, vec); err != nil {
		m.statusMu.Lock()
		m.persist.err = err.Error()
		m.statusMu.Unlock()
		slog.Error("persist_failed",
			slog.Uint64("snapshot", snap.Version),
			slog.String("error", err.Error()))
		return apperrors.New(apperrors.ErrCodePersistFailed, "persist index snapshot", err).
			WithDetail("data_dir", m.dataDir)
	}

	m.statusMu.Lock()
	m.persist = persistState{persisted: true, version: snap.Version, at: time.Now()}
	m.statusMu.Unlock()

	slog.Info("snapshot_persisted",
		slog.Uint64("snapshot", snap.Version),
		slog.Int("documents", len(snap.Docs)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (m *Manager) dirty() bool {
	return m.dirtyFor(m.Current())
}

func (m *Manager) dirtyFor(snap *Snapshot) bool {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return !m.persist.persisted || m.persist.version != snap.Version
}

// autosave persists a dirty snapshot every interval until Close.
func (m *Manager) autosave(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.runCtx.Done():
			return
		case <-ticker.C:
			if !m.dirty() {
				continue
			}
			// Failures are recorded in status; the next tick retries.
			_ = m.PersistSnapshot(m.runCtx)
		}
	}
}
