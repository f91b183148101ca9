// Package scanner discovers the indexable documents under the watch root.
// It honours the extension allow-list, the configured ignore globs, nested
// .gitignore files, the file size cap and the data directory exclusion.
package scanner

import (
	"path/filepath"
	"strings"
	"time"
)

// ContentType represents the kind of document behind a file.
type ContentType string

const (
	// ContentTypeText represents plain text files.
	ContentTypeText ContentType = "text"
	// ContentTypeMarkdown represents markdown documents.
	ContentTypeMarkdown ContentType = "markdown"
	// ContentTypePDF represents PDF documents (extracted with pdftotext).
	ContentTypePDF ContentType = "pdf"
	// ContentTypeOther is any other allowed extension.
	ContentTypeOther ContentType = "other"
)

// FileInfo contains metadata about a discovered file.
type FileInfo struct {
	Key         string      // Slash-separated path relative to the root
	AbsPath     string      // Absolute path
	Size        int64       // File size in bytes
	ModTime     time.Time   // Last modification time
	ContentType ContentType // text, markdown, pdf
}

// ScanOptions configures the scanner behavior.
type ScanOptions struct {
	// Root is the directory to scan.
	Root string

	// DataDir is never descended into.
	DataDir string

	// Extensions is the allow-list of file extensions (".txt"). Empty means
	// every regular file.
	Extensions []string

	// Ignore holds gitignore-style patterns applied with the .gitignore files.
	Ignore []string

	// MaxFileSize is the maximum file size in bytes (0 = 10MB default).
	MaxFileSize int64

	// FollowSymlinks includes symlinked files (default: false).
	FollowSymlinks bool
}

// ScanResult is returned from the scanner channel.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize is the default maximum file size (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// DetectContentType maps a path to its ContentType by extension.
func DetectContentType(path string) ContentType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text", ".log":
		return ContentTypeText
	case ".md", ".markdown":
		return ContentTypeMarkdown
	case ".pdf":
		return ContentTypePDF
	default:
		return ContentTypeOther
	}
}
