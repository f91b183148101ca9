package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file appeared.
	OpCreate Operation = iota
	// OpModify indicates an existing file was written.
	OpModify
	// OpDelete indicates a file or directory was removed.
	OpDelete
	// OpRename indicates a file or directory was moved away from Path.
	// The destination shows up as a separate OpCreate.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Removes reports whether the operation takes the path away.
func (op Operation) Removes() bool {
	return op == OpDelete || op == OpRename
}

// FileEvent represents a file system event under the watch root.
type FileEvent struct {
	// Path is the slash-separated path relative to the watch root.
	Path string

	// Operation is the type of file system operation.
	Operation Operation

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// Watcher defines the interface for file system watching.
type Watcher interface {
	// Start watches the configured root recursively. It blocks until Stop is
	// called or ctx is cancelled.
	Start(ctx context.Context) error

	// Stop stops the watcher and releases resources.
	// Safe to call multiple times.
	Stop() error

	// Events returns a channel of file events.
	// The channel is closed when the watcher stops.
	Events() <-chan FileEvent

	// Errors returns a channel of non-fatal watcher errors.
	Errors() <-chan error

	// Ready is closed once Start has its initial watches in place. Every
	// change made after that is reported.
	Ready() <-chan struct{}

	// Kind reports the mechanism in use ("fsnotify" or "polling").
	Kind() string
}

// Options configures the watcher behavior.
type Options struct {
	// Root is the directory to watch.
	Root string

	// DataDir is excluded from watching (index artifacts live there).
	DataDir string

	// Extensions limits create and modify events to these file extensions.
	// Empty means every file.
	Extensions []string

	// Ignore holds gitignore-style patterns on top of .gitignore files.
	Ignore []string

	// PollInterval is the interval for polling mode.
	// Default: 2s
	PollInterval time.Duration

	// EventBufferSize is the size of the event channel buffer.
	// Default: 1024
	EventBufferSize int

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		PollInterval:    2 * time.Second,
		EventBufferSize: 1024,
	}
}

// Validate validates the options and returns an error if invalid.
func (o Options) Validate() error {
	if o.Root == "" {
		return errors.New("watch root is required")
	}
	if o.PollInterval < 0 {
		return errors.New("poll interval must not be negative")
	}
	return nil
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// New returns the best available watcher for opts: fsnotify when it can be
// initialised, polling otherwise.
func New(opts Options) (Watcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !opts.ForcePolling {
		if w, err := NewHybridWatcher(opts); err == nil {
			return w, nil
		}
	}
	return NewPollingWatcher(opts)
}

// hasExtension reports whether rel carries one of exts (case-insensitive).
func hasExtension(rel string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(rel))
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
