package watcher

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/ignore"
)

// pathFilter decides which paths under the root produce events. It is shared
// by the fsnotify and polling watchers.
type pathFilter struct {
	root    string
	dataDir string
	exts    []string
	extra   []string

	mu      sync.RWMutex
	matcher *ignore.Matcher
}

func newPathFilter(opts Options) (*pathFilter, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	f := &pathFilter{root: root, exts: opts.Extensions, extra: opts.Ignore}
	if opts.DataDir != "" {
		if f.dataDir, err = filepath.Abs(opts.DataDir); err != nil {
			return nil, err
		}
	}
	f.reload()
	return f, nil
}

// reload rebuilds the matcher from the configured patterns and every
// .gitignore under the root.
func (f *pathFilter) reload() {
	m, err := ignore.LoadTree(f.root, f.extra)
	if err != nil {
		slog.Warn("ignore_rules_partial",
			slog.String("root", f.root),
			slog.String("error", err.Error()))
	}
	f.mu.Lock()
	f.matcher = m
	f.mu.Unlock()
}

// rel converts an absolute path to a root-relative slash key. ok is false
// for the root itself, paths outside it, and paths inside the data dir.
func (f *pathFilter) rel(abs string) (string, bool) {
	if f.inDataDir(abs) {
		return "", false
	}
	r, err := filepath.Rel(f.root, abs)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

func (f *pathFilter) inDataDir(abs string) bool {
	if f.dataDir == "" {
		return false
	}
	return abs == f.dataDir || strings.HasPrefix(abs, f.dataDir+string(filepath.Separator))
}

func (f *pathFilter) ignoredDir(rel string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.matcher.Match(rel, true)
}

// ignoredFile applies ignore rules and, when checkExt is set, the extension
// allow-list.
func (f *pathFilter) ignoredFile(rel string, checkExt bool) bool {
	if checkExt && !hasExtension(rel, f.exts) {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.matcher.Match(rel, false)
}
