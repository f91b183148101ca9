package index

import (
	"time"
)

// Status is a point-in-time view of the manager for status endpoints.
type Status struct {
	Ready           bool      `json:"ready"`
	Root            string    `json:"root"`
	DataDir         string    `json:"data_dir"`
	Documents       int       `json:"documents"`
	Chunks          int       `json:"chunks"`
	Terms           int       `json:"terms"`
	SnapshotVersion uint64    `json:"snapshot_version"`
	LastUpdate      time.Time `json:"last_update"`
	PendingEvents   int       `json:"pending_events"`

	FilesAdded   int64 `json:"files_added"`
	FilesUpdated int64 `json:"files_updated"`
	FilesRemoved int64 `json:"files_removed"`
	FilesFailed  int64 `json:"files_failed"`

	PersistedSnapshot uint64    `json:"persisted_snapshot"`
	LastPersist       time.Time `json:"last_persist,omitempty"`
	LastPersistError  string    `json:"last_persist_error,omitempty"`
	Dirty             bool      `json:"dirty"`
	Degraded          bool      `json:"degraded"`

	VectorBackend  string `json:"vector_backend"`
	EmbeddingModel string `json:"embedding_model"`
	Dimensions     int    `json:"dimensions"`
	Watcher        string `json:"watcher,omitempty"`
}

// persistState is guarded by Manager.statusMu. It is kept apart from the
// save lock so GetStatus never waits on a write to disk.
type persistState struct {
	persisted bool
	version   uint64
	at        time.Time
	err       string
}

// GetStatus reports counts from the active snapshot plus bookkeeping. It
// takes no lock that mutation holds.
func (m *Manager) GetStatus() Status {
	snap := m.Current()

	m.statusMu.Lock()
	ps := m.persist
	m.statusMu.Unlock()

	st := Status{
		Ready:           m.ready.Load(),
		Root:            m.root,
		DataDir:         m.dataDir,
		Documents:       len(snap.Docs),
		Chunks:          snap.Vectors.ChunkCount(),
		Terms:           snap.Lexical.TermCount(),
		SnapshotVersion: snap.Version,
		LastUpdate:      snap.CreatedAt,
		PendingEvents:   m.pendingEvents(),

		FilesAdded:   m.added.Load(),
		FilesUpdated: m.updated.Load(),
		FilesRemoved: m.removed.Load(),
		FilesFailed:  m.failed.Load(),

		PersistedSnapshot: ps.version,
		LastPersist:       ps.at,
		LastPersistError:  ps.err,
		Dirty:             !ps.persisted || ps.version != snap.Version,
		Degraded:          ps.err != "",

		VectorBackend:  m.cfg.Vector.Backend,
		EmbeddingModel: m.embedder.ModelName(),
		Dimensions:     m.embedder.Dimensions(),
	}
	if m.watcher != nil {
		st.Watcher = m.watcher.Kind()
	}
	return st
}
