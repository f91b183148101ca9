package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/output"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var (
		jsonOutput bool
		days       int
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show saved query statistics",
		Long: `Display the query telemetry saved in the data directory:
  - Queries per search mode
  - Top query terms
  - Recent zero-result queries
  - Latency distribution

Telemetry is recorded while persist.telemetry is enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.OutOrStdout(), jsonOutput, days, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of terms and zero-result queries to show")

	return cmd
}

// StatsOutput is the JSON output of the stats command.
type StatsOutput struct {
	From                string           `json:"from"`
	To                  string           `json:"to"`
	TotalQueries        int64            `json:"total_queries"`
	ModeCounts          map[string]int64 `json:"mode_counts"`
	TopTerms            []StatsTermCount `json:"top_terms"`
	ZeroResultQueries   []string         `json:"zero_result_queries"`
	LatencyDistribution map[string]int64 `json:"latency_distribution"`
}

// StatsTermCount is a term and its frequency.
type StatsTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

var latencyLabels = []struct {
	bucket telemetry.LatencyBucket
	label  string
}{
	{telemetry.BucketP10, "<10ms"},
	{telemetry.BucketP50, "10-50ms"},
	{telemetry.BucketP100, "50-100ms"},
	{telemetry.BucketP500, "100-500ms"},
	{telemetry.BucketP1000, ">500ms"},
}

func runStats(out io.Writer, jsonOutput bool, days, limit int) error {
	if days < 1 {
		return apperrors.ValidationError(apperrors.ErrCodeConfigInvalid, "--days must be at least 1")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dbPath := filepath.Join(cfg.Persist.DataDir, telemetry.DBFile)
	if _, err := os.Stat(dbPath); err != nil {
		return apperrors.New(apperrors.ErrCodeFileNotFound,
			fmt.Sprintf("no telemetry found in %s", cfg.Persist.DataDir), err).
			WithSuggestion("Enable persist.telemetry and run some searches first")
	}

	store, err := telemetry.OpenSQLiteMetricsStore(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	now := time.Now()
	stats, err := collectStats(store, now.AddDate(0, 0, -(days-1)), now, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		return output.New(out).JSON(stats)
	}
	printStats(output.New(out), stats)
	return nil
}

func collectStats(store telemetry.Store, from, to time.Time, limit int) (*StatsOutput, error) {
	fromDate, toDate := from.Format(time.DateOnly), to.Format(time.DateOnly)

	modes, err := store.GetModeCounts(fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("get mode counts: %w", err)
	}
	latencies, err := store.GetLatencyCounts(fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("get latency counts: %w", err)
	}
	terms, err := store.GetTopTerms(limit)
	if err != nil {
		return nil, fmt.Errorf("get top terms: %w", err)
	}
	zero, err := store.GetZeroResultQueries(limit)
	if err != nil {
		return nil, fmt.Errorf("get zero-result queries: %w", err)
	}

	stats := &StatsOutput{
		From:                fromDate,
		To:                  toDate,
		ModeCounts:          make(map[string]int64, len(modes)),
		TopTerms:            make([]StatsTermCount, 0, len(terms)),
		ZeroResultQueries:   zero,
		LatencyDistribution: make(map[string]int64, len(latencies)),
	}
	if stats.ZeroResultQueries == nil {
		stats.ZeroResultQueries = []string{}
	}
	for mode, n := range modes {
		stats.ModeCounts[string(mode)] = n
		stats.TotalQueries += n
	}
	for bucket, n := range latencies {
		stats.LatencyDistribution[string(bucket)] = n
	}
	for _, tc := range terms {
		stats.TopTerms = append(stats.TopTerms, StatsTermCount{Term: tc.Term, Count: tc.Count})
	}
	return stats, nil
}

func printStats(out *output.Writer, s *StatsOutput) {
	w := out.Out()
	_, _ = fmt.Fprintf(w, "Query Statistics (%s to %s)\n", s.From, s.To)
	_, _ = fmt.Fprintln(w, "================")
	out.Newline()

	_, _ = fmt.Fprintf(w, "Total Queries: %d\n", s.TotalQueries)
	for _, mode := range []string{"hybrid", "lexical", "vector", "compare"} {
		if n, ok := s.ModeCounts[mode]; ok {
			_, _ = fmt.Fprintf(w, "  %-8s %d\n", mode+":", n)
		}
	}
	out.Newline()

	if len(s.TopTerms) > 0 {
		_, _ = fmt.Fprintln(w, "Top Query Terms:")
		for i, tc := range s.TopTerms {
			_, _ = fmt.Fprintf(w, "  %d. %s (%d)\n", i+1, tc.Term, tc.Count)
		}
	} else {
		_, _ = fmt.Fprintln(w, "Top Query Terms: (none recorded yet)")
	}
	out.Newline()

	if len(s.ZeroResultQueries) > 0 {
		_, _ = fmt.Fprintln(w, "Recent Zero-Result Queries:")
		for _, q := range s.ZeroResultQueries {
			_, _ = fmt.Fprintf(w, "  - %q\n", q)
		}
	} else {
		_, _ = fmt.Fprintln(w, "Recent Zero-Result Queries: (none)")
	}

	if len(s.LatencyDistribution) > 0 {
		out.Newline()
		_, _ = fmt.Fprintln(w, "Latency Distribution:")
		for _, l := range latencyLabels {
			if n, ok := s.LatencyDistribution[string(l.bucket)]; ok {
				_, _ = fmt.Fprintf(w, "  %-10s %d\n", l.label+":", n)
			}
		}
	}
}
