package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher watches for file changes by periodically scanning the root.
// Used as a fallback when fsnotify is not available (network mounts, some
// container volumes).
type PollingWatcher struct {
	filter    *pathFilter
	interval  time.Duration
	fileState map[string]fileSnapshot
	events    chan FileEvent
	errors    chan error
	stopCh    chan struct{}
	ready     chan struct{}

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

var _ Watcher = (*PollingWatcher)(nil)

// NewPollingWatcher creates a polling watcher.
func NewPollingWatcher(opts Options) (*PollingWatcher, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	filter, err := newPathFilter(opts)
	if err != nil {
		return nil, fmt.Errorf("resolve watch paths: %w", err)
	}
	return &PollingWatcher{
		filter:    filter,
		interval:  opts.PollInterval,
		fileState: make(map[string]fileSnapshot),
		events:    make(chan FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 16),
		stopCh:    make(chan struct{}),
		ready:     make(chan struct{}),
	}, nil
}

// Start records a baseline and then diffs the tree every interval.
func (p *PollingWatcher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	if p.started {
		p.mu.Unlock()
		return ErrStarted
	}
	p.started = true
	p.mu.Unlock()
	defer p.closeChannels()

	if _, err := os.Stat(p.filter.root); err != nil {
		return fmt.Errorf("watch root: %w", err)
	}

	baseline, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.fileState = baseline
	close(p.ready)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.detectChanges(); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

// snapshot walks the root and records every non-ignored file.
func (p *PollingWatcher) snapshot() (map[string]fileSnapshot, error) {
	state := make(map[string]fileSnapshot)
	err := filepath.WalkDir(p.filter.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, ok := p.filter.rel(path)
		if !ok {
			if d.IsDir() && path != p.filter.root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p.filter.ignoredDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || p.filter.ignoredFile(rel, true) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[rel] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return state, err
}

// detectChanges compares the current tree with the previous one.
func (p *PollingWatcher) detectChanges() error {
	p.filter.reload()

	current, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("walk directory for changes: %w", err)
	}

	now := time.Now()
	for rel, snap := range current {
		prev, existed := p.fileState[rel]
		switch {
		case !existed:
			p.emit(FileEvent{Path: rel, Operation: OpCreate, Timestamp: now})
		case !prev.modTime.Equal(snap.modTime) || prev.size != snap.size:
			p.emit(FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel := range p.fileState {
		if _, ok := current[rel]; !ok {
			p.emit(FileEvent{Path: rel, Operation: OpDelete, Timestamp: now})
		}
	}

	p.fileState = current
	return nil
}

func (p *PollingWatcher) emit(ev FileEvent) {
	select {
	case p.events <- ev:
	case <-p.stopCh:
	}
}

func (p *PollingWatcher) closeChannels() {
	p.closeOnce.Do(func() {
		close(p.events)
		close(p.errors)
	})
}

// Stop stops the polling watcher.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	if !p.started {
		p.closeChannels()
	}
	return nil
}

// Events returns the channel of file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// Kind returns "polling".
func (p *PollingWatcher) Kind() string {
	return "polling"
}

// Ready is closed after the baseline scan.
func (p *PollingWatcher) Ready() <-chan struct{} {
	return p.ready
}
