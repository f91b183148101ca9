package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/embed"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/tokenize"
)

func TestInitializeIndices_ReportsProgress(t *testing.T) {
	// Given: three files and a progress observer
	f := newFixture(t)
	f.write(t, "a.txt", "alpha document about search")
	f.write(t, "b.md", "beta notes on indexing")
	f.write(t, "sub/c.txt", "gamma text for ranking")

	var events []Progress
	m, err := NewManager(Dependencies{
		Config:    f.cfg,
		Embedder:  embed.NewStaticEmbedder(f.cfg.Vector.Dimensions, tokenize.MustDefault()),
		Tokenizer: tokenize.MustDefault(),
		Extractor: f.ext,
		Progress:  func(p Progress) { events = append(events, p) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	// When
	require.NoError(t, m.InitializeIndices(context.Background()))

	// Then: scanning, one indexing step per file, then persisting
	require.NotEmpty(t, events)
	assert.Equal(t, PhaseScanning, events[0].Phase)

	var indexed []string
	lastDone := 0
	for _, ev := range events {
		if ev.Phase != PhaseIndexing || ev.Key == "" {
			continue
		}
		assert.Equal(t, 3, ev.Total)
		assert.Equal(t, OutcomeAdded, ev.Outcome)
		assert.NoError(t, ev.Err)
		assert.Greater(t, ev.Done, lastDone)
		lastDone = ev.Done
		indexed = append(indexed, ev.Key)
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.md", "sub/c.txt"}, indexed)
	assert.Equal(t, PhasePersisting, events[len(events)-1].Phase)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "scanning", PhaseScanning.String())
	assert.Equal(t, "indexing", PhaseIndexing.String())
	assert.Equal(t, "persisting", PhasePersisting.String())
	assert.Equal(t, "unknown", Phase(9).String())
}
