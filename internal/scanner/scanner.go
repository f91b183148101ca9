package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/ignore"
)

// Scanner discovers indexable files in a directory tree.
type Scanner struct {
	opts    ScanOptions
	root    string
	dataDir string
	exts    map[string]struct{}
}

// New validates opts and prepares a scanner.
func New(opts ScanOptions) (*Scanner, error) {
	if opts.Root == "" {
		opts.Root = "."
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}

	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}

	s := &Scanner{opts: opts, root: root}
	if opts.DataDir != "" {
		if s.dataDir, err = filepath.Abs(opts.DataDir); err != nil {
			return nil, fmt.Errorf("failed to resolve data dir: %w", err)
		}
	}
	if len(opts.Extensions) > 0 {
		s.exts = make(map[string]struct{}, len(opts.Extensions))
		for _, e := range opts.Extensions {
			s.exts[strings.ToLower(e)] = struct{}{}
		}
	}
	return s, nil
}

// Root returns the absolute scan root.
func (s *Scanner) Root() string {
	return s.root
}

// Scan streams every indexable file. The channel is closed when the walk
// completes or ctx is cancelled. A walk error other than cancellation is
// delivered as a final ScanResult with Error set.
func (s *Scanner) Scan(ctx context.Context) (<-chan ScanResult, error) {
	matcher, err := ignore.LoadTree(s.root, s.opts.Ignore)
	if err != nil {
		slog.Warn("scan_ignore_rules_partial",
			slog.String("root", s.root),
			slog.String("error", err.Error()))
	}

	results := make(chan ScanResult, 64)
	go func() {
		defer close(results)
		s.walk(ctx, matcher, results)
	}()
	return results, nil
}

// Collect runs Scan and gathers the results keyed by document key.
func (s *Scanner) Collect(ctx context.Context) (map[string]*FileInfo, error) {
	ch, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	files := make(map[string]*FileInfo)
	var walkErr error
	for r := range ch {
		if r.Error != nil {
			walkErr = r.Error
			continue
		}
		files[r.File.Key] = r.File
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return files, walkErr
}

func (s *Scanner) walk(ctx context.Context, matcher *ignore.Matcher, results chan<- ScanResult) {
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // Skip entries we can't access
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil || rel == "." {
			return nil
		}
		key := filepath.ToSlash(rel)

		if d.IsDir() {
			if s.inDataDir(path) || matcher.Match(key, true) {
				return filepath.SkipDir
			}
			return nil
		}

		fi := s.inspect(path, key, d, matcher)
		if fi == nil {
			return nil
		}

		select {
		case results <- ScanResult{File: fi}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

// inspect applies the per-file rules and returns nil for skipped files.
func (s *Scanner) inspect(path, key string, d fs.DirEntry, matcher *ignore.Matcher) *FileInfo {
	if d.Type()&fs.ModeSymlink != 0 && !s.opts.FollowSymlinks {
		return nil
	}
	if !s.Supports(key) || matcher.Match(key, false) {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	if info.Size() > s.opts.MaxFileSize {
		slog.Debug("scan_skip_oversize",
			slog.String("key", key),
			slog.Int64("size", info.Size()))
		return nil
	}

	return &FileInfo{
		Key:         key,
		AbsPath:     path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: DetectContentType(key),
	}
}

// Supports reports whether the extension allow-list admits key.
func (s *Scanner) Supports(key string) bool {
	if s.exts == nil {
		return true
	}
	_, ok := s.exts[strings.ToLower(filepath.Ext(key))]
	return ok
}

func (s *Scanner) inDataDir(abs string) bool {
	if s.dataDir == "" {
		return false
	}
	return abs == s.dataDir || strings.HasPrefix(abs, s.dataDir+string(filepath.Separator))
}
