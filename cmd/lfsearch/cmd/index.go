package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/extract"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/store"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		noTUI bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the index",
		Long: `Build the BM25 and vector indices for the folder and save them to the
data directory.

An existing index is loaded and brought up to date: only files added,
changed or removed since the last save are processed. Use --force to
discard the saved index and rebuild from scratch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd.OutOrStdout(), noTUI, force)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&force, "force", false, "Discard the saved index and rebuild from scratch")

	return cmd
}

func runIndex(ctx context.Context, out io.Writer, noTUI, force bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if force {
		if err := clearIndexData(cfg.Persist.DataDir); err != nil {
			return fmt.Errorf("failed to clear index data: %w", err)
		}
		slog.Info("index_force_clear", slog.String("data_dir", cfg.Persist.DataDir))
	}

	uiCfg := ui.NewConfig(out,
		ui.WithForcePlain(noTUI),
		ui.WithNoColor(noColor),
		ui.WithRootDir(cfg.Watch.Root))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	progress := &buildProgress{renderer: renderer}
	a, err := newApp(cfg, appOptions{progress: progress.observe})
	if err != nil {
		return err
	}

	start := time.Now()
	loadErr := a.load(ctx)
	if loadErr == nil {
		st := a.manager.GetStatus()
		renderer.Complete(ui.CompletionStats{
			Documents: st.Documents,
			Chunks:    st.Chunks,
			Terms:     st.Terms,
			Duration:  time.Since(start),
			Errors:    progress.errors,
			Warnings:  progress.warnings,
			Embedder: ui.EmbedderInfo{
				Model:      st.EmbeddingModel,
				Dimensions: st.Dimensions,
				Backend:    st.VectorBackend,
			},
		})
	}

	closeErr := a.close()
	if loadErr != nil {
		return loadErr
	}
	return closeErr
}

// buildProgress adapts index progress to a renderer and counts per-file
// problems for the summary. The manager serializes calls to observe.
type buildProgress struct {
	renderer ui.Renderer
	errors   int
	warnings int
}

func (b *buildProgress) observe(p index.Progress) {
	stage := ui.StageScanning
	switch p.Phase {
	case index.PhaseIndexing:
		stage = ui.StageIndexing
	case index.PhasePersisting:
		stage = ui.StagePersisting
	}

	if p.Err != nil {
		warn := extract.IsSkip(p.Err)
		if warn {
			b.warnings++
		} else {
			b.errors++
		}
		b.renderer.AddError(ui.ErrorEvent{File: p.Key, Err: p.Err, IsWarn: warn})
	}

	msg := p.Phase.String()
	if p.Key != "" {
		msg = p.Key + " " + p.Outcome.String()
	}
	b.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:       stage,
		Current:     p.Done,
		Total:       p.Total,
		CurrentFile: p.Key,
		Message:     msg,
	})
}

// clearIndexData removes the saved artifacts. Configuration, telemetry and
// the lock file stay. It refuses while another process holds the data
// directory.
func clearIndexData(dataDir string) error {
	lock := store.NewDirLock(dataDir)
	if err := lock.TryLock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	for _, name := range []string{store.LexicalFile, store.VectorFile} {
		if err := os.Remove(filepath.Join(dataDir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
