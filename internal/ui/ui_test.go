package ui

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_StringAndIcon(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		icon  string
	}{
		{StageScanning, "Scanning", "SCAN"},
		{StageIndexing, "Indexing", "INDEX"},
		{StagePersisting, "Persisting", "SAVE"},
		{StageComplete, "Complete", "DONE"},
		{Stage(42), "Unknown", "???"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.stage.String())
			assert.Equal(t, tt.icon, tt.stage.Icon())
		})
	}
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))

	// A regular file is not a terminal.
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTTY(f))
}

func TestNewConfig_Options(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	buf := &bytes.Buffer{}

	cfg := NewConfig(buf, WithForcePlain(true), WithRootDir("/notes"))

	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor, "NO_COLOR in the environment disables color")
	assert.Equal(t, "/notes", cfg.RootDir)
	assert.False(t, cfg.Interactive())
}

func TestNewRenderer_PlainForNonTTY(t *testing.T) {
	// Given: a buffer output
	cfg := NewConfig(&bytes.Buffer{})

	// When
	r := NewRenderer(cfg)

	// Then
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestDetectCI(t *testing.T) {
	t.Setenv("GITHUB_ACTIONS", "true")
	assert.True(t, DetectCI())
}
