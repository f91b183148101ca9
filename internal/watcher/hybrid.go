package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/ignore"
)

var (
	// ErrStopped is returned by Start on a watcher that was already stopped.
	ErrStopped = errors.New("watcher stopped")

	// ErrStarted is returned by a second call to Start.
	ErrStarted = errors.New("watcher already started")
)

// HybridWatcher watches the root recursively with fsnotify. Directories that
// appear later are added on the fly and the files already inside them are
// reported as creates, since they may predate the new watch.
type HybridWatcher struct {
	fsWatcher *fsnotify.Watcher
	filter    *pathFilter
	events    chan FileEvent
	errors    chan error
	stopCh    chan struct{}
	ready     chan struct{}
	opts      Options

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

var _ Watcher = (*HybridWatcher)(nil)

// NewHybridWatcher creates an fsnotify watcher. It fails when the platform
// cannot provide one; callers fall back to NewPollingWatcher.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	filter, err := newPathFilter(opts)
	if err != nil {
		return nil, fmt.Errorf("resolve watch paths: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &HybridWatcher{
		fsWatcher: fsw,
		filter:    filter,
		events:    make(chan FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 16),
		stopCh:    make(chan struct{}),
		ready:     make(chan struct{}),
		opts:      opts,
	}, nil
}

// Start adds every non-ignored directory under the root and then forwards
// events until Stop or ctx cancellation.
func (h *HybridWatcher) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return ErrStopped
	}
	if h.started {
		h.mu.Unlock()
		return ErrStarted
	}
	h.started = true
	h.mu.Unlock()
	defer h.closeChannels()

	if _, err := os.Stat(h.filter.root); err != nil {
		return fmt.Errorf("watch root: %w", err)
	}
	if err := h.addRecursive(h.filter.root, false); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	close(h.ready)

	slog.Debug("watcher_started",
		slog.String("root", h.filter.root),
		slog.String("kind", h.Kind()))

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handle(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

// handle converts and filters one fsnotify event.
func (h *HybridWatcher) handle(event fsnotify.Event) {
	rel, ok := h.filter.rel(event.Name)
	if !ok {
		return
	}

	if filepath.Base(event.Name) == ignore.GitignoreFile {
		h.filter.reload()
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if h.filter.ignoredDir(rel) {
				return
			}
			if err := h.addRecursive(event.Name, true); err != nil {
				h.emitError(err)
			}
			return
		}
		if h.filter.ignoredFile(rel, true) {
			return
		}
		h.emit(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})

	case event.Op.Has(fsnotify.Write):
		if h.filter.ignoredFile(rel, true) {
			return
		}
		h.emit(FileEvent{Path: rel, Operation: OpModify, Timestamp: time.Now()})

	case event.Op.Has(fsnotify.Remove):
		if h.filter.ignoredFile(rel, false) {
			return
		}
		h.emit(FileEvent{Path: rel, Operation: OpDelete, Timestamp: time.Now()})

	case event.Op.Has(fsnotify.Rename):
		if h.filter.ignoredFile(rel, false) {
			return
		}
		h.emit(FileEvent{Path: rel, Operation: OpRename, Timestamp: time.Now()})
	}
}

// addRecursive watches dir and its non-ignored subdirectories. With
// announce set, files found along the way are emitted as creates.
func (h *HybridWatcher) addRecursive(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}

		rel, ok := h.filter.rel(path)
		if path != h.filter.root && !ok {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if ok && h.filter.ignoredDir(rel) {
				return filepath.SkipDir
			}
			if err := h.fsWatcher.Add(path); err != nil {
				h.emitError(fmt.Errorf("watch %s: %w", path, err))
			}
			return nil
		}

		if announce && d.Type().IsRegular() && !h.filter.ignoredFile(rel, true) {
			h.emit(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
		}
		return nil
	})
}

// emit blocks until the event is queued or the watcher stops. Events are
// never dropped; a full buffer applies back-pressure to the fsnotify loop.
func (h *HybridWatcher) emit(ev FileEvent) {
	select {
	case h.events <- ev:
	case <-h.stopCh:
	}
}

func (h *HybridWatcher) emitError(err error) {
	select {
	case h.errors <- err:
	default:
		slog.Warn("watcher_error_dropped", slog.String("error", err.Error()))
	}
}

func (h *HybridWatcher) closeChannels() {
	h.closeOnce.Do(func() {
		close(h.events)
		close(h.errors)
	})
}

// Stop stops the watcher and releases resources.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	started := h.started
	close(h.stopCh)
	h.mu.Unlock()

	err := h.fsWatcher.Close()
	if !started {
		h.closeChannels()
	}
	return err
}

// Events returns the channel of file events.
func (h *HybridWatcher) Events() <-chan FileEvent {
	return h.events
}

// Errors returns the channel of errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// Ready is closed after the root and its subdirectories are watched.
func (h *HybridWatcher) Ready() <-chan struct{} {
	return h.ready
}

// Kind returns "fsnotify".
func (h *HybridWatcher) Kind() string {
	return "fsnotify"
}

// Root returns the absolute root being watched.
func (h *HybridWatcher) Root() string {
	return h.filter.root
}
