package cmd

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/output"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/search"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	mode          string
	limit         int
	lexicalWeight float64
	vectorWeight  float64
	format        string
	explain       bool

	// Set when the weight flags were given explicitly.
	lexicalSet bool
	vectorSet  bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed folder",
		Long: `Search the indexed folder.

Hybrid mode (the default) runs BM25 and vector retrieval on the same index
snapshot and fuses both rankings with Reciprocal Rank Fusion. The other
modes run one retriever alone, or all three side by side.

Examples:
  lfsearch search "quarterly revenue forecast"
  lfsearch search "network timeout" --mode lexical -k 5
  lfsearch search "deployment checklist" --vector-weight 2 --explain
  lfsearch search "incident report" --mode compare
  lfsearch search "onboarding" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.lexicalSet = cmd.Flags().Changed("lexical-weight")
			opts.vectorSet = cmd.Flags().Changed("vector-weight")
			return runSearch(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Search mode: hybrid, lexical (bm25), vector, compare")
	cmd.Flags().IntVarP(&opts.limit, "limit", "k", 0, "Number of results (default from config)")
	cmd.Flags().Float64Var(&opts.lexicalWeight, "lexical-weight", 1.0, "BM25 weight in the fusion")
	cmd.Flags().Float64Var(&opts.vectorWeight, "vector-weight", 1.0, "Vector weight in the fusion")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show how each hybrid score was fused")

	return cmd
}

func runSearch(ctx context.Context, out io.Writer, query string, opts searchOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	mode, err := search.ParseMode(opts.mode)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, appOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			slog.Warn("shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	if err := a.load(ctx); err != nil {
		return err
	}

	req := search.Request{
		Query:   query,
		Mode:    mode,
		K:       opts.limit,
		Explain: opts.explain,
	}
	if opts.lexicalSet || opts.vectorSet {
		w := a.engine.Config().DefaultWeights
		if opts.lexicalSet {
			w.Lexical = opts.lexicalWeight
		}
		if opts.vectorSet {
			w.Vector = opts.vectorWeight
		}
		req.Weights = &w
	}

	slog.Info("search_started", slog.String("query", query), slog.String("mode", string(mode)))
	resp, err := a.engine.Search(ctx, req)
	if err != nil {
		return err
	}
	slog.Info("search_complete", slog.Int("results", len(resp.Results)))

	if format == output.FormatJSON {
		return output.New(out).JSON(resp)
	}
	ui.NewResultFormatter(noColor || ui.DetectNoColor()).Response(out, resp)
	return nil
}
