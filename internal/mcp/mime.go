package mcp

import (
	"path/filepath"
	"strings"
)

var mimeTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".mdx":      "text/markdown",
	".rst":      "text/x-rst",
	".pdf":      "application/pdf",
	".csv":      "text/csv",
	".json":     "application/json",
	".yaml":     "text/x-yaml",
	".yml":      "text/x-yaml",
	".html":     "text/html",
}

// MimeTypeForPath returns the MIME type of the file behind path, or
// text/plain when the extension is unknown.
func MimeTypeForPath(path string) string {
	if mime, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "text/plain"
}
