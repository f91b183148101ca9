package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/store"
)

func TestServeCmd_HTTPStopsOnCancel(t *testing.T) {
	// Given: a folder to serve
	root := newTestTree(t, sampleDocs)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// When: serving over HTTP until the context ends
	_, err := executeWith(t, ctx, "", "serve", "--root", root, "--transport", "http", "--addr", "127.0.0.1:0")

	// Then: the server shuts down cleanly and leaves a saved index
	require.NoError(t, err)
	for _, name := range []string{store.LexicalFile, store.VectorFile} {
		_, statErr := os.Stat(filepath.Join(root, ".lfsearch", name))
		assert.NoError(t, statErr, name)
	}

	// And: the data directory lock was released
	lock := store.NewDirLock(filepath.Join(root, ".lfsearch"))
	require.NoError(t, lock.TryLock())
	require.NoError(t, lock.Unlock())
}

func TestServeCmd_UnknownTransport(t *testing.T) {
	// Given: a folder to serve
	root := newTestTree(t, sampleDocs)

	// When: asking for a transport that does not exist
	_, err := execute(t, "serve", "--root", root, "--transport", "carrier-pigeon")

	// Then: the server refuses to start
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}

func TestIndexCmd_DataDirLocked(t *testing.T) {
	// Given: a data directory held by another process
	root := newTestTree(t, sampleDocs)
	dataDir := filepath.Join(root, ".lfsearch")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	lock := store.NewDirLock(dataDir)
	require.NoError(t, lock.TryLock())
	t.Cleanup(func() { _ = lock.Unlock() })

	// When: indexing the same folder
	_, err := execute(t, "index", "--root", root, "--no-tui")

	// Then: the lock is reported
	requireCode(t, err, apperrors.ErrCodeDataDirLocked)
}
