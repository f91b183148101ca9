package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/embed"
	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/output"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/preflight"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/tokenize"
)

// DoctorOutput is the JSON output of the doctor command.
type DoctorOutput struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the folder can be indexed and watched",
		Long: `Run system checks for the configured folder:
  - the watch root exists and the data directory is writable
  - enough free disk space and open file descriptors
  - the inotify watch limit covers the folder's directories
  - the embedder answers with the configured dimensions
  - the saved index, if any, is readable and matches the configuration

The command exits with an error when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd.OutOrStdout(), jsonOutput, verbose)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for every check")

	return cmd
}

func runDoctor(ctx context.Context, out io.Writer, jsonOutput, verbose bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tok, err := tokenize.New(tokenize.DefaultOptions())
	if err != nil {
		return err
	}
	emb, err := embed.NewEmbedder(cfg, tok)
	if err != nil {
		return apperrors.ConfigError("create embedder", err)
	}
	defer func() { _ = emb.Close() }()

	checker := preflight.New(cfg,
		preflight.WithEmbedder(emb),
		preflight.WithOutput(out),
		preflight.WithVerbose(verbose))
	results := checker.RunAll(ctx)

	if jsonOutput {
		if err := output.New(out).JSON(DoctorOutput{Status: preflight.SummaryStatus(results), Checks: results}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if preflight.HasCriticalFailures(results) {
		return apperrors.New(apperrors.ErrCodeConfigInvalid, "system check failed", nil).
			WithSuggestion("Fix the failed checks above and run 'lfsearch doctor' again")
	}
	return nil
}
