package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/ui"
)

func newConsoleCmd() *cobra.Command {
	var (
		noTUI bool
		limit int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive search prompt",
		Long: `Open an interactive search prompt over the indexed folder.

Type a query for hybrid search, or prefix it with lexical:, bm25:,
vector: or compare:. 'stats', 'status' and 'help' are also understood;
'exit' or Ctrl+C leaves.

With --watch the folder is followed while the console is open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runConsole(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), noTUI, limit, watch)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Use the line-oriented prompt")
	cmd.Flags().IntVarP(&limit, "limit", "k", 0, "Results per query (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", true, "Follow changes to the folder")

	return cmd
}

func runConsole(ctx context.Context, in io.Reader, out io.Writer, noTUI bool, limit int, watch bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, appOptions{watch: watch})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			slog.Warn("shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	if watch {
		err = a.start(ctx)
	} else {
		err = a.load(ctx)
	}
	if err != nil {
		return err
	}

	uiCfg := ui.NewConfig(out,
		ui.WithForcePlain(noTUI),
		ui.WithNoColor(noColor),
		ui.WithRootDir(cfg.Watch.Root))
	return ui.NewConsole(a.engine, a.manager, uiCfg, limit).Run(ctx, in)
}
