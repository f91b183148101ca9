package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"time"

	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/extract"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/store"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/tokenize"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/watcher"
)

// Outcome is the effect of reconciling one path.
type Outcome int

const (
	// OutcomeUnchanged means no new snapshot was published.
	OutcomeUnchanged Outcome = iota
	// OutcomeAdded means a new document was indexed.
	OutcomeAdded
	// OutcomeUpdated means an indexed document got new content.
	OutcomeUpdated
	// OutcomeRemoved means one or more documents left the index.
	OutcomeRemoved
	// OutcomeFailed means extraction or embedding failed and the previous
	// version, if any, was kept.
	OutcomeFailed
)

// String returns a lowercase label for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeUpdated:
		return "updated"
	case OutcomeRemoved:
		return "removed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unchanged"
	}
}

type jobState struct {
	rerun bool
}

// update is a prepared change for one key, computed outside the writer lock.
type update struct {
	key    string
	remove bool
	doc    store.Document
	tf     map[string]int
	chunks []store.Chunk
}

// OnFileEvent records a file event. Events for the same path are coalesced
// over the debounce window before a reindex job runs.
func (m *Manager) OnFileEvent(ev watcher.FileEvent) {
	slog.Debug("file_event",
		slog.String("path", ev.Path),
		slog.String("op", ev.Operation.String()))
	m.debouncer.Add(ev)
}

// enqueue is the debouncer callback. Each path has at most one job in
// flight; an event arriving while it runs makes it run once more.
func (m *Manager) enqueue(ev watcher.FileEvent) {
	key := ev.Path

	m.jobsMu.Lock()
	if st, running := m.jobs[key]; running {
		st.rerun = true
		m.jobsMu.Unlock()
		return
	}
	m.jobs[key] = &jobState{}
	m.jobsWG.Add(1)
	m.jobsMu.Unlock()

	if err := m.pool.Submit(func() { m.runJob(key) }); err != nil {
		slog.Warn("index_job_rejected",
			slog.String("key", key),
			slog.String("error", err.Error()))
		m.finishJob(key)
	}
}

func (m *Manager) runJob(key string) {
	for {
		if m.runCtx.Err() != nil {
			m.finishJob(key)
			return
		}
		outcome, err := m.Apply(m.runCtx, key)
		if err != nil && m.runCtx.Err() == nil {
			slog.Warn("index_update_failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		} else if outcome != OutcomeUnchanged {
			slog.Debug("index_update_applied",
				slog.String("key", key),
				slog.String("outcome", outcome.String()))
		}

		m.jobsMu.Lock()
		st := m.jobs[key]
		if st != nil && st.rerun {
			st.rerun = false
			m.jobsMu.Unlock()
			continue
		}
		delete(m.jobs, key)
		m.jobsMu.Unlock()
		m.jobsWG.Done()
		return
	}
}

func (m *Manager) finishJob(key string) {
	m.jobsMu.Lock()
	delete(m.jobs, key)
	m.jobsMu.Unlock()
	m.jobsWG.Done()
}

// pendingEvents counts paths waiting in the debounce window plus paths with
// a queued or running job.
func (m *Manager) pendingEvents() int {
	m.jobsMu.Lock()
	n := len(m.jobs)
	m.jobsMu.Unlock()
	return n + m.debouncer.Pending()
}

// WaitIdle blocks until no event is pending or ctx ends.
func (m *Manager) WaitIdle(ctx context.Context) error {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for m.pendingEvents() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// Apply reconciles key against disk: a present, supported file is extracted
// and upserted; an absent, unsupported, oversized or empty one is removed.
// Content with an unchanged hash publishes nothing, so applying the same
// state twice is a no-op. Apply must not run concurrently for one key;
// event-driven updates are serialized by the job table.
func (m *Manager) Apply(ctx context.Context, key string) (Outcome, error) {
	upd, err := m.prepare(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeUnchanged, ctx.Err()
		}
		m.failed.Add(1)
		return OutcomeFailed, err
	}
	if upd == nil {
		return OutcomeUnchanged, nil
	}
	return m.commit(upd), nil
}

// prepare does the expensive work for key without holding the writer lock.
// A nil update means the indexed version already matches disk.
func (m *Manager) prepare(ctx context.Context, key string) (*update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs := m.AbsPath(key)

	if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return &update{key: key, remove: true}, nil
	}

	ex, err := m.extractor.Extract(ctx, abs)
	if err != nil {
		if extract.IsSkip(err) {
			slog.Debug("index_skip", slog.String("key", key), slog.String("reason", err.Error()))
			return &update{key: key, remove: true}, nil
		}
		return nil, apperrors.New(apperrors.ErrCodeExtractionFailed,
			fmt.Sprintf("extract %s", key), err)
	}

	if prev, ok := m.Current().Docs[key]; ok && prev.Hash == ex.Hash {
		return nil, nil
	}

	tf := tokenize.Frequencies(m.tok.Tokenize(ex.Text))

	pieces := m.chunker.Split(ex.Text)
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", key, err)
	}
	if len(vectors) != len(pieces) {
		return nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embed %s: got %d vectors for %d chunks", key, len(vectors), len(pieces)), nil)
	}

	chunks := make([]store.Chunk, len(pieces))
	for i, p := range pieces {
		if len(vectors[i]) != m.cfg.Vector.Dimensions {
			return nil, apperrors.New(apperrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("embed %s: vector has %d dimensions, want %d", key, len(vectors[i]), m.cfg.Vector.Dimensions), nil)
		}
		chunks[i] = store.Chunk{
			ID:      m.nextChunkID.Add(1),
			Ordinal: p.Ordinal,
			Text:    p.Text,
			Vector:  vectors[i],
		}
	}

	return &update{
		key: key,
		doc: store.Document{
			Key:         key,
			Hash:        ex.Hash,
			ModTime:     ex.ModTime,
			Size:        ex.Size,
			Text:        ex.Text,
			ExtractedAt: ex.ExtractedAt,
			Chunks:      len(chunks),
		},
		tf:     tf,
		chunks: chunks,
	}, nil
}

// commit derives the next snapshot from the current one and publishes it.
// Both halves are replaced before the pointer swap.
func (m *Manager) commit(upd *update) Outcome {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cur := m.Current()
	docs := cur.Docs
	lex := cur.Lexical
	vec := cur.Vectors
	graph := vec.Graph()

	var outcome Outcome
	if upd.remove {
		// A vanished directory takes every document below it.
		victims := make([]string, 0, 1)
		if _, ok := docs[upd.key]; ok {
			victims = append(victims, upd.key)
		}
		prefix := upd.key + "/"
		for k := range docs {
			if strings.HasPrefix(k, prefix) {
				victims = append(victims, k)
			}
		}
		if len(victims) == 0 {
			return OutcomeUnchanged
		}
		docs = maps.Clone(docs)
		for _, k := range victims {
			if graph != nil {
				graph.Retire(vec.Chunks(k))
			}
			delete(docs, k)
			lex = lex.Without(k)
			vec = vec.Without(k)
		}
		m.removed.Add(int64(len(victims)))
		outcome = OutcomeRemoved
	} else {
		prev, existed := docs[upd.key]
		if existed && prev.Hash == upd.doc.Hash {
			return OutcomeUnchanged
		}
		docs = maps.Clone(docs)
		docs[upd.key] = upd.doc
		lex = lex.With(upd.key, upd.tf)
		if graph != nil {
			graph.Retire(vec.Chunks(upd.key))
			graph.Add(upd.key, upd.chunks)
		}
		vec = vec.With(upd.key, upd.chunks)
		if existed {
			m.updated.Add(1)
			outcome = OutcomeUpdated
		} else {
			m.added.Add(1)
			outcome = OutcomeAdded
		}
	}

	if graph != nil {
		if ratio := graph.OrphanRatio(); ratio > m.cfg.Vector.HNSW.CompactRatio && m.cfg.Vector.HNSW.CompactRatio > 0 {
			vec = vec.WithGraph(graph.Rebuild(vec))
			slog.Debug("hnsw_compacted",
				slog.Float64("orphan_ratio", ratio),
				slog.Int("chunks", vec.ChunkCount()))
		}
	}

	m.current.Store(&Snapshot{
		Version:   cur.Version + 1,
		Docs:      docs,
		Lexical:   lex,
		Vectors:   vec,
		CreatedAt: time.Now(),
	})
	return outcome
}

// errCanceled reports whether err came from context cancellation.
func errCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
