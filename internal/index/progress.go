package index

// Phase is a step of the initial index build.
type Phase int

const (
	PhaseScanning Phase = iota
	PhaseIndexing
	PhasePersisting
)

func (p Phase) String() string {
	switch p {
	case PhaseScanning:
		return "scanning"
	case PhaseIndexing:
		return "indexing"
	case PhasePersisting:
		return "persisting"
	}
	return "unknown"
}

// Progress reports one step of InitializeIndices. During PhaseIndexing,
// Key, Outcome and Err describe the file that just finished.
type Progress struct {
	Phase   Phase
	Done    int
	Total   int
	Key     string
	Outcome Outcome
	Err     error
}

// ProgressFunc receives build progress. Calls are serialized.
type ProgressFunc func(Progress)

func (m *Manager) report(p Progress) {
	if m.progress == nil {
		return
	}
	m.progressMu.Lock()
	defer m.progressMu.Unlock()
	m.progress(p)
}
