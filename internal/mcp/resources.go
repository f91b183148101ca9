package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/telemetry"
)

const (
	// QueryMetricsURI serves the in-memory query telemetry.
	QueryMetricsURI = "lfsearch://query_metrics"

	// StatusURI serves the same document as the index_status tool.
	StatusURI = "lfsearch://status"
)

// QueryMetricsOutput is the JSON body of the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary   `json:"summary"`
	ModeCounts          map[string]int64      `json:"mode_counts"`
	TopTerms            []telemetry.TermCount `json:"top_terms"`
	ZeroResultQueries   []string              `json:"zero_result_queries"`
	LatencyDistribution map[string]int64      `json:"latency_distribution"`
}

// QueryMetricsSummary gives the headline numbers.
type QueryMetricsSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	TimePeriod    string  `json:"time_period"`
	ZeroResultPct float64 `json:"zero_result_pct"`
	Degraded      int64   `json:"degraded"`
	Cached        int64   `json:"cached"`
	Repetition    string  `json:"repetition"`
}

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "status",
		URI:         StatusURI,
		Description: "Index and search engine status",
		MIMEType:    "application/json",
	}, s.readStatus)

	if s.metrics != nil {
		s.mcp.AddResource(&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Local query telemetry for this session",
			MIMEType:    "application/json",
		}, s.readQueryMetrics)
	}
}

func (s *Server) readStatus(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(StatusURI, toStatusOutput(s.index.GetStatus(), s.searcher.Stats()))
}

func (s *Server) readQueryMetrics(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if s.metrics == nil {
		return nil, NewResourceNotFoundError(QueryMetricsURI)
	}
	return jsonResource(QueryMetricsURI, buildQueryMetricsOutput(s.metrics.Snapshot()))
}

func buildQueryMetricsOutput(snap *telemetry.QueryMetricsSnapshot) QueryMetricsOutput {
	out := QueryMetricsOutput{
		Summary: QueryMetricsSummary{
			TotalQueries:  snap.TotalQueries,
			TimePeriod:    "session",
			ZeroResultPct: snap.ZeroResultPercentage(),
			Degraded:      snap.DegradedCount,
			Cached:        snap.CachedCount,
			Repetition:    snap.RepetitionSummary(),
		},
		ModeCounts:          make(map[string]int64, len(snap.ModeCounts)),
		TopTerms:            snap.TopTerms,
		ZeroResultQueries:   snap.ZeroResultQueries,
		LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
	}
	for m, n := range snap.ModeCounts {
		out.ModeCounts[string(m)] = n
	}
	for b, n := range snap.LatencyDistribution {
		out.LatencyDistribution[string(b)] = n
	}
	return out
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}
