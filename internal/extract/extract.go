// Package extract turns files under the watch root into normalized text.
//
// Plain text and markdown are read directly. PDFs go through the poppler
// pdftotext binary. Outcomes that mean "this file should not be indexed"
// (unsupported extension, oversize, empty text) are reported as skip errors
// so callers can tell them apart from transient read failures.
package extract

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrUnsupported is returned for extensions outside the configured set.
	ErrUnsupported = errors.New("unsupported file type")

	// ErrTooLarge is returned when a file exceeds the size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrEmpty is returned when extraction yields no text.
	ErrEmpty = errors.New("no extractable text")

	// ErrNotFound is returned when the file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrBinary is returned when a text file contains binary content.
	ErrBinary = errors.New("binary content")
)

// IsSkip reports whether err means the file should not be in the index at
// all, as opposed to a failure that should keep the previous version.
func IsSkip(err error) bool {
	return errors.Is(err, ErrUnsupported) ||
		errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrEmpty) ||
		errors.Is(err, ErrBinary) ||
		errors.Is(err, ErrNotFound)
}

// Extracted is the normalized content and metadata of one file.
type Extracted struct {
	Text        string
	ModTime     time.Time
	Size        int64
	Hash        string
	ExtractedAt time.Time
}

// Options configures an Extractor.
type Options struct {
	Extensions  []string
	MaxFileSize int64
	PDFTimeout  time.Duration
}

// Extractor reads supported files.
type Extractor struct {
	exts       map[string]bool
	maxSize    int64
	pdfTimeout time.Duration
	pdf        *PDFReader
}

// New creates an Extractor. A nil runner uses the system pdftotext.
func New(opts Options, runner CommandRunner) *Extractor {
	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = true
	}
	if opts.PDFTimeout <= 0 {
		opts.PDFTimeout = 30 * time.Second
	}
	return &Extractor{
		exts:       exts,
		maxSize:    opts.MaxFileSize,
		pdfTimeout: opts.PDFTimeout,
		pdf:        NewPDFReader(runner),
	}
}

// Supports reports whether path has a supported extension.
func (e *Extractor) Supports(path string) bool {
	return e.exts[strings.ToLower(filepath.Ext(path))]
}

// Extract reads absPath and returns its normalized text.
func (e *Extractor) Extract(ctx context.Context, absPath string) (*Extracted, error) {
	if !e.Supports(absPath) {
		return nil, fmt.Errorf("%s: %w", absPath, ErrUnsupported)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", absPath, ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", absPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", absPath, ErrUnsupported)
	}
	if e.maxSize > 0 && info.Size() > e.maxSize {
		return nil, fmt.Errorf("%s (%d bytes, limit %d): %w", absPath, info.Size(), e.maxSize, ErrTooLarge)
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", absPath, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", absPath, err)
	}

	var text string
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".pdf":
		pctx, cancel := context.WithTimeout(ctx, e.pdfTimeout)
		text, err = e.pdf.Read(pctx, absPath)
		cancel()
		if err != nil {
			return nil, err
		}
	default:
		if isBinary(raw) {
			return nil, fmt.Errorf("%s: %w", absPath, ErrBinary)
		}
		text = decodeText(raw)
	}

	text = Normalize(text)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: %w", absPath, ErrEmpty)
	}

	return &Extracted{
		Text:        text,
		ModTime:     info.ModTime(),
		Size:        int64(len(raw)),
		Hash:        HashBytes(raw),
		ExtractedAt: time.Now(),
	}, nil
}

// HashBytes returns the hex sha256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Normalize unifies line endings and strips NUL and BOM characters.
func Normalize(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// decodeText decodes raw as UTF-8, dropping invalid sequences.
func decodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw), "")
}

// isBinary looks for NUL bytes in the first 8KB.
func isBinary(raw []byte) bool {
	n := len(raw)
	if n > 8192 {
		n = 8192
	}
	return bytes.IndexByte(raw[:n], 0) >= 0
}
