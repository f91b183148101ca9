package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/logging"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/ui"
)

// followInterval is how often --follow polls the log file.
const followInterval = 100 * time.Millisecond

type logsOptions struct {
	follow bool
	lines  int
	level  string
	filter string
	file   string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View lfsearch logs",
		Long: `Show the last lines of the lfsearch log file, or follow it.

The log file defaults to logging.file from the configuration, else
~/.lfsearch/logs/lfsearch.log.

Examples:
  lfsearch logs                    # last 50 lines
  lfsearch logs -f                 # follow new entries
  lfsearch logs --level warn       # warnings and errors only
  lfsearch logs --filter persist   # lines matching a regex`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLogs(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only show lines matching this regex")
	cmd.Flags().StringVar(&opts.file, "file", "", "Log file to read")

	return cmd
}

func runLogs(ctx context.Context, out, errOut io.Writer, opts logsOptions) error {
	var pattern *regexp.Regexp
	if opts.filter != "" {
		var err error
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return apperrors.ValidationError(apperrors.ErrCodeConfigInvalid,
				fmt.Sprintf("invalid filter pattern: %v", err))
		}
	}

	path := logFilePath(opts.file)
	if _, err := os.Stat(path); err != nil {
		return apperrors.New(apperrors.ErrCodeFileNotFound, "no log file at "+path, err).
			WithSuggestion("Run any lfsearch command to create it, or pass --file")
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: noColor || ui.DetectNoColor(),
	})

	_, _ = fmt.Fprintf(errOut, "Log file: %s\n---\n", path)
	if opts.follow {
		return viewer.Follow(ctx, path, followInterval, out)
	}

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(out, entries)
	return nil
}

// logFilePath picks --file, then the configured log file, then the default.
func logFilePath(flag string) string {
	if flag != "" {
		return flag
	}
	if cfg, err := loadConfig(); err == nil && cfg.Logging.File != "" {
		return cfg.Logging.File
	}
	return logging.DefaultLogPath()
}
