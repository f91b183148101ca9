package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/search"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/telemetry"
)

func TestReadStatus_ReturnsJSON(t *testing.T) {
	// Given: an index with two documents
	s, searcher, idx := newTestServer(t)
	idx.status = index.Status{Ready: true, Documents: 2, SnapshotVersion: 3}
	searcher.stats = search.Stats{TotalSearches: 4}

	// When
	res, err := s.readStatus(context.Background(), nil)

	// Then
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, StatusURI, res.Contents[0].URI)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)

	var out IndexStatusOutput
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &out))
	assert.True(t, out.Ready)
	assert.Equal(t, 2, out.Documents)
	assert.Equal(t, int64(4), out.Search.TotalSearches)
}

func TestReadQueryMetrics_WithoutMetrics(t *testing.T) {
	s, _, _ := newTestServer(t)

	_, err := s.readQueryMetrics(context.Background(), nil)

	requireMCPCode(t, err, ErrCodeMethodNotFound)
}

func TestReadQueryMetrics_Summary(t *testing.T) {
	// Given: metrics with three recorded queries, one of them empty-handed
	metrics := telemetry.NewQueryMetricsWithConfig(nil, telemetry.QueryMetricsConfig{})
	t.Cleanup(func() { _ = metrics.Close() })

	now := time.Now()
	metrics.Record(telemetry.QueryEvent{Query: "neural networks", Mode: telemetry.ModeHybrid, ResultCount: 3, Latency: 5 * time.Millisecond, Timestamp: now})
	metrics.Record(telemetry.QueryEvent{Query: "neural networks", Mode: telemetry.ModeHybrid, ResultCount: 3, Cached: true, Timestamp: now})
	metrics.Record(telemetry.QueryEvent{Query: "zebra migration", Mode: telemetry.ModeLexical, ResultCount: 0, Latency: 700 * time.Millisecond, Timestamp: now})

	s, err := NewServer(Deps{
		Searcher: newFakeSearcher(),
		Index:    newFakeIndex(t.TempDir()),
		Config:   config.NewConfig(),
		Metrics:  metrics,
	})
	require.NoError(t, err)

	// When
	res, err := s.readQueryMetrics(context.Background(), nil)

	// Then
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, QueryMetricsURI, res.Contents[0].URI)

	var out QueryMetricsOutput
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &out))
	assert.Equal(t, int64(3), out.Summary.TotalQueries)
	assert.Equal(t, int64(1), out.Summary.Cached)
	assert.InDelta(t, 33.33, out.Summary.ZeroResultPct, 0.01)
	assert.Equal(t, int64(2), out.ModeCounts["hybrid"])
	assert.Equal(t, int64(1), out.ModeCounts["lexical"])
	assert.Equal(t, []string{"zebra migration"}, out.ZeroResultQueries)
	require.NotEmpty(t, out.TopTerms)
	assert.Equal(t, "networks", out.TopTerms[0].Term)
}
