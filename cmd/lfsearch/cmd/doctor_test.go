package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/preflight"
)

func TestDoctorCmd_AfterIndex(t *testing.T) {
	// Given: an indexed folder
	root := newTestTree(t, sampleDocs)
	_, err := execute(t, "index", "--root", root, "--no-tui")
	require.NoError(t, err)

	// When: running the checks as JSON
	out, err := execute(t, "doctor", "--root", root, "--json")

	// Then: the saved index and embedder pass
	require.NoError(t, err)
	var got DoctorOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	statuses := map[string]preflight.CheckStatus{}
	for _, c := range got.Checks {
		statuses[c.Name] = c.Status
	}
	assert.Equal(t, preflight.StatusPass, statuses["watch_root"])
	assert.Equal(t, preflight.StatusPass, statuses["embedder"])
	assert.Equal(t, preflight.StatusPass, statuses["saved_index"])
	assert.NotEqual(t, "failed", got.Status)
}

func TestDoctorCmd_NoIndexWarns(t *testing.T) {
	// Given: a folder never indexed
	root := newTestTree(t, sampleDocs)

	// When: running the checks
	out, err := execute(t, "doctor", "--root", root)

	// Then: the missing index is a warning, not a failure
	require.NoError(t, err)
	assert.Contains(t, out, "[WARN] saved_index")
}

func TestDoctorCmd_MissingRootFails(t *testing.T) {
	// Given: a root that does not exist
	isolateHome(t)
	root := filepath.Join(t.TempDir(), "missing")

	// When: running the checks
	out, err := execute(t, "doctor", "--root", root)

	// Then: the command fails after listing the checks
	requireCode(t, err, apperrors.ErrCodeConfigInvalid)
	assert.Contains(t, out, "[FAIL] watch_root")
	assert.Contains(t, out, "Status: FAILED")
}
