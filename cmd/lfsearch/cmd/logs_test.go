package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
)

func TestLogsCmd_TailsFile(t *testing.T) {
	// Given: a log file with two entries
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "lfsearch.log")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"time":"2026-03-01T10:00:01Z","level":"INFO","msg":"index_built"}`+"\n"+
			`{"time":"2026-03-01T10:00:02Z","level":"WARN","msg":"persist_failed"}`+"\n"), 0o644))

	// When: showing the last line
	out, err := execute(t, "logs", "--file", path, "-n", "1", "--no-color")

	// Then: only that entry is printed
	require.NoError(t, err)
	assert.Contains(t, out, "persist_failed")
	assert.NotContains(t, out, "index_built")
}

func TestLogsCmd_DefaultFileAfterDebugRun(t *testing.T) {
	// Given: a debug run that wrote to the default log file
	isolateHome(t)
	_, err := execute(t, "version", "--debug")
	require.NoError(t, err)

	// When: viewing the logs
	out, err := execute(t, "logs", "--no-color")

	// Then: the startup entry is shown
	require.NoError(t, err)
	assert.Contains(t, out, "logging_started")
}

func TestLogsCmd_InvalidFilter(t *testing.T) {
	isolateHome(t)

	_, err := execute(t, "logs", "--filter", "(")

	requireCode(t, err, apperrors.ErrCodeConfigInvalid)
}

func TestLogsCmd_MissingFile(t *testing.T) {
	isolateHome(t)

	_, err := execute(t, "logs", "--file", filepath.Join(t.TempDir(), "none.log"))

	requireCode(t, err, apperrors.ErrCodeFileNotFound)
}
