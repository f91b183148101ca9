package ui

import (
	"bytes"
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/search"
)

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestIndexingModel_View(t *testing.T) {
	// Given: a tracker halfway through indexing
	tracker := NewProgressTracker()
	tracker.SetStage(StageIndexing, 10)
	tracker.Update(5, "projects/deep/notes/meeting.md")
	model := newIndexingModel(tracker, "/home/me/notes")
	model.styles = NoColorStyles()

	// When
	view := model.View()

	// Then
	assert.Contains(t, view, "lfsearch index • /home/me/notes")
	assert.Contains(t, view, "● Scanning")
	assert.Contains(t, view, "Indexing")
	assert.Contains(t, view, "○ Persisting")
	assert.Contains(t, view, "5 / 10 files")
	assert.Contains(t, view, "meeting.md")
}

func TestIndexingModel_UnknownTotal(t *testing.T) {
	model := newIndexingModel(NewProgressTracker(), "")

	assert.Contains(t, model.View(), "Scanning...")
}

func TestIndexingModel_Complete(t *testing.T) {
	// Given
	model := newIndexingModel(NewProgressTracker(), "")
	model.styles = NoColorStyles()

	// When: the build finishes
	_, cmd := model.Update(completeMsg(CompletionStats{Documents: 7, Chunks: 21, Warnings: 2}))

	// Then: the program quits and the summary is shown
	require.NotNil(t, cmd)
	assert.True(t, model.complete)
	view := model.View()
	assert.Contains(t, view, "Index ready")
	assert.Contains(t, view, "7")
	assert.Contains(t, view, "2 skipped")
}

func TestIndexingModel_QuitKey(t *testing.T) {
	model := newIndexingModel(NewProgressTracker(), "")

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	require.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", model.View())
}

func TestIndexingModel_WindowResize(t *testing.T) {
	model := newIndexingModel(NewProgressTracker(), "")

	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	assert.Equal(t, 120, model.width)
	assert.Equal(t, 100, model.progressBar.Width)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42_000_000_000))
	assert.Equal(t, "2m", formatDuration(120_000_000_000))
	assert.Equal(t, "2m 5s", formatDuration(125_000_000_000))
	assert.Equal(t, "1h 1m", formatDuration(3_660_000_000_000))
}

func TestTruncateFilePath(t *testing.T) {
	assert.Equal(t, "a/b.txt", truncateFilePath("a/b.txt", 20))
	assert.Equal(t, ".../notes/b.txt", truncateFilePath("projects/notes/b.txt", 15))
	assert.Equal(t, "...long-name.txt", truncateFilePath("dir/very-long-name.txt", 16))
	assert.Equal(t, "...", truncateFilePath("anything/here.txt", 3))
}

func TestConsoleModel_RunsCommand(t *testing.T) {
	// Given: a console model with the prompt filled in
	s := &fakeSearcher{}
	c := newTestConsole(s, &bytes.Buffer{})
	m := newConsoleModel(context.Background(), c)
	m.input.SetValue("bm25:budget")

	// When: enter is pressed
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	// Then: the command runs off the update loop
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Empty(t, m.input.Value())

	msg := cmd()
	done, ok := msg.(commandDoneMsg)
	require.True(t, ok)
	assert.False(t, done.quit)

	m.Update(done)
	assert.False(t, m.busy)
	require.Len(t, s.requests, 1)
	assert.Equal(t, search.ModeLexical, s.requests[0].Mode)
	assert.Contains(t, m.View(), "notes/budget.md")
}

func TestConsoleModel_ExitAndEmpty(t *testing.T) {
	c := newTestConsole(&fakeSearcher{}, &bytes.Buffer{})
	m := newConsoleModel(context.Background(), c)

	m.input.SetValue("   ")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, m.busy)

	m.input.SetValue("quit")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestConsoleModel_ScrollbackIsBounded(t *testing.T) {
	c := newTestConsole(&fakeSearcher{}, &bytes.Buffer{})
	m := newConsoleModel(context.Background(), c)

	for range maxScrollback + 50 {
		m.appendLines("line")
	}

	assert.Len(t, m.lines, maxScrollback)
}
