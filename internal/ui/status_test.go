package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
)

func sampleStatus() index.Status {
	return index.Status{
		Ready:             true,
		Root:              "/home/me/notes",
		DataDir:           "/home/me/notes/.lfsearch",
		Documents:         42,
		Chunks:            180,
		Terms:             5120,
		SnapshotVersion:   9,
		LastUpdate:        time.Now().Add(-3 * time.Minute),
		FilesAdded:        42,
		FilesUpdated:      5,
		FilesRemoved:      2,
		FilesFailed:       1,
		PersistedSnapshot: 8,
		Dirty:             true,
		VectorBackend:     "hnsw",
		EmbeddingModel:    "static-hash",
		Dimensions:        384,
		Watcher:           "fsnotify",
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When
	require.NoError(t, r.Render(sampleStatus(), 3*1024*1024))

	// Then
	out := buf.String()
	assert.Contains(t, out, "Index Status: /home/me/notes")
	assert.Contains(t, out, "State:        ready")
	assert.Contains(t, out, "Documents:    42")
	assert.Contains(t, out, "Chunks:       180")
	assert.Contains(t, out, "Snapshot:     v9")
	assert.Contains(t, out, "3 minutes ago")
	assert.Contains(t, out, "42 added, 5 updated, 2 removed, 1 failed")
	assert.Contains(t, out, "Size:       3.0 MB")
	assert.Contains(t, out, "Persisted:  v8 (unsaved changes)")
	assert.Contains(t, out, "static-hash (384 dims)")
	assert.Contains(t, out, "Watcher:      fsnotify")
	assert.NotContains(t, out, "degraded")
}

func TestStatusRenderer_Degraded(t *testing.T) {
	buf := &bytes.Buffer{}
	st := sampleStatus()
	st.Ready = false
	st.Degraded = true
	st.LastPersistError = "disk full"

	require.NoError(t, NewStatusRenderer(buf, true).Render(st, 0))

	out := buf.String()
	assert.Contains(t, out, "State:        not ready")
	assert.Contains(t, out, "degraded: disk full")
	assert.NotContains(t, out, "Size:")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, NewStatusRenderer(buf, true).RenderJSON(sampleStatus()))

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, float64(42), parsed["documents"])
	assert.Equal(t, "hnsw", parsed["vector_backend"])
}

func TestFormatAgo(t *testing.T) {
	now := time.Now()
	tests := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-time.Minute - time.Second), "1 minute ago"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-2 * time.Hour), "2 hours ago"},
		{now.Add(-25 * time.Hour), "1 day ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatAgo(tt.at))
	}

	old := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)
	assert.Equal(t, "2024-05-01 09:30", formatAgo(old))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "1.0 GB", FormatBytes(1024*1024*1024))
}
