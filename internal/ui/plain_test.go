package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress(t *testing.T) {
	tests := []struct {
		name  string
		event ProgressEvent
		want  string
	}{
		{
			name:  "with total",
			event: ProgressEvent{Stage: StageIndexing, Current: 3, Total: 10, CurrentFile: "notes/a.md"},
			want:  "[INDEX] 3/10 - notes/a.md\n",
		},
		{
			name:  "message wins over file",
			event: ProgressEvent{Stage: StageIndexing, Current: 1, Total: 2, CurrentFile: "a.txt", Message: "embedding"},
			want:  "[INDEX] 1/2 - embedding\n",
		},
		{
			name:  "no total",
			event: ProgressEvent{Stage: StageScanning, Message: "walking watch root"},
			want:  "[SCAN] walking watch root\n",
		},
		{
			name:  "nothing to say",
			event: ProgressEvent{Stage: StageScanning},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			r := NewPlainRenderer(NewConfig(buf))

			r.UpdateProgress(tt.event)

			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPlainRenderer_AddError(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.AddError(ErrorEvent{File: "scan.pdf", Err: errors.New("pdftotext failed")})
	r.AddError(ErrorEvent{File: "big.txt", Err: errors.New("file too large"), IsWarn: true})
	r.AddError(ErrorEvent{Err: errors.New("watch root vanished")})

	assert.Equal(t,
		"ERROR: scan.pdf: pdftotext failed\nWARN: big.txt: file too large\nERROR: watch root vanished\n",
		buf.String())
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))

	// When
	r.Complete(CompletionStats{
		Documents: 12,
		Chunks:    40,
		Terms:     900,
		Duration:  1234 * time.Millisecond,
		Errors:    1,
		Embedder:  EmbedderInfo{Model: "static-hash", Dimensions: 384, Backend: "exact"},
	})
	require.NoError(t, r.Stop())

	// Then
	out := buf.String()
	assert.Contains(t, out, "Complete: 12 documents, 40 chunks, 900 terms in 1.2s (1 errors, 0 warnings)")
	assert.Contains(t, out, "Embeddings: static-hash (384 dims, exact backend)")
	assert.NotContains(t, out, "\x1b[")
}
