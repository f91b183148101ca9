package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	w := DefaultWeights()
	base := CacheKey("machine learning", ModeHybrid, w, 10)

	assert.Equal(t, base, CacheKey("  machine   learning ", ModeHybrid, w, 10))
	assert.NotEqual(t, base, CacheKey("machine learning", ModeLexical, w, 10))
	assert.NotEqual(t, base, CacheKey("machine learning", ModeHybrid, w, 5))
	assert.NotEqual(t, base, CacheKey("machine learning", ModeHybrid, Weights{Lexical: 1, Vector: 0.5}, 10))
}

func TestResultCache_HitForSameVersion(t *testing.T) {
	c := NewResultCache(8, time.Minute)
	resp := Response{Query: "q", Results: []Result{{Key: "a.txt"}}}

	c.Put("k", 3, resp)
	got, ok := c.Get("k", 3)

	require.True(t, ok)
	assert.Equal(t, resp, got)
}

func TestResultCache_NewVersionInvalidatesEverything(t *testing.T) {
	// Given: entries cached at version 1
	c := NewResultCache(8, time.Minute)
	c.Put("a", 1, Response{Query: "a"})
	c.Put("b", 1, Response{Query: "b"})

	// When: a lookup observes version 2
	_, ok := c.Get("a", 2)

	// Then: nothing from version 1 is served any more
	assert.False(t, ok)
	assert.Zero(t, c.Len())
	_, ok = c.Get("b", 2)
	assert.False(t, ok)
}

func TestResultCache_OlderReaderKeepsCurrentEntry(t *testing.T) {
	// Given: an entry cached at version 6
	c := NewResultCache(8, time.Minute)
	c.Put("k", 6, Response{Query: "current"})

	// When: a reader still holding version 5 looks it up
	_, ok := c.Get("k", 5)

	// Then: it misses, and the entry still serves version 6
	assert.False(t, ok)
	got, ok := c.Get("k", 6)
	require.True(t, ok)
	assert.Equal(t, "current", got.Query)
}

func TestResultCache_DropsResultsFromOlderSnapshot(t *testing.T) {
	// Given: the cache already saw version 5
	c := NewResultCache(8, time.Minute)
	_, _ = c.Get("x", 5)

	// When: a slow query computed on version 4 finishes
	c.Put("k", 4, Response{Query: "old"})

	// Then: it is not stored
	_, ok := c.Get("k", 5)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestResultCache_TTL(t *testing.T) {
	c := NewResultCache(8, 20*time.Millisecond)
	c.Put("k", 1, Response{})

	assert.Eventually(t, func() bool {
		_, ok := c.Get("k", 1)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestResultCache_LRUEviction(t *testing.T) {
	c := NewResultCache(2, time.Minute)
	c.Put("a", 1, Response{})
	c.Put("b", 1, Response{})
	_, _ = c.Get("a", 1)
	c.Put("c", 1, Response{})

	_, okA := c.Get("a", 1)
	_, okB := c.Get("b", 1)
	assert.True(t, okA)
	assert.False(t, okB)
}

func TestResultCache_Purge(t *testing.T) {
	c := NewResultCache(8, 0)
	c.Put("a", 1, Response{})

	c.Purge()

	assert.Zero(t, c.Len())
}
