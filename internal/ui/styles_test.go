package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStyles_HeaderIsBold(t *testing.T) {
	styles := DefaultStyles()

	assert.True(t, styles.Header.GetBold())
	assert.True(t, styles.Key.GetBold())
	assert.False(t, styles.Label.GetBold())
}

func TestNoColorStyles_RenderVerbatim(t *testing.T) {
	styles := NoColorStyles()

	for _, s := range []string{"notes/a.md", "(score 0.0328)", "search> "} {
		assert.Equal(t, s, styles.Key.Render(s))
		assert.Equal(t, s, styles.Score.Render(s))
		assert.Equal(t, s, styles.Prompt.Render(s))
	}
}

func TestGetStyles(t *testing.T) {
	assert.False(t, GetStyles(true).Header.GetBold())
	assert.True(t, GetStyles(false).Header.GetBold())
}
