package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/store"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the saved index:
  - Number of documents, chunks and terms
  - Snapshot version and save time
  - Data directory size
  - Embedding model and vector backend
  - Whether a server currently holds the index

The saved artifacts are read directly, so status works while 'lfsearch
serve' is running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(out io.Writer, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := collectStatus(cfg)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(out, noColor || ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(st)
	}
	return renderer.Render(st, getDirSize(cfg.Persist.DataDir))
}

// collectStatus builds an index status from the saved artifacts.
func collectStatus(cfg *config.Config) (index.Status, error) {
	dataDir := cfg.Persist.DataDir
	lex, vec, err := store.LoadPair(dataDir)
	if err != nil {
		if errors.Is(err, store.ErrArtifactMissing) {
			return index.Status{}, apperrors.New(apperrors.ErrCodeFileNotFound,
				fmt.Sprintf("no index found in %s", dataDir), err).
				WithSuggestion("Run 'lfsearch index' to create one")
		}
		return index.Status{}, apperrors.New(apperrors.ErrCodeCorruptIndex, "read saved index", err).
			WithSuggestion("Run 'lfsearch index --force' to rebuild it")
	}

	chunks := 0
	for _, cs := range vec.Chunks {
		chunks += len(cs)
	}

	st := index.Status{
		Ready:             true,
		Root:              cfg.Watch.Root,
		DataDir:           dataDir,
		Documents:         len(lex.Documents),
		Chunks:            chunks,
		Terms:             len(lex.Terms),
		SnapshotVersion:   lex.Header.SnapshotID,
		LastUpdate:        lex.Header.CreatedAt,
		PersistedSnapshot: lex.Header.SnapshotID,
		LastPersist:       fileModTime(filepath.Join(dataDir, store.LexicalFile)),
		VectorBackend:     cfg.Vector.Backend,
		EmbeddingModel:    vec.Header.Model,
		Dimensions:        vec.Header.Dimensions,
		Watcher:           "stopped",
	}

	lock := store.NewDirLock(dataDir)
	if err := lock.TryLock(); errors.Is(err, store.ErrLocked) {
		st.Watcher = "running"
	} else if err == nil {
		_ = lock.Unlock()
	}
	return st, nil
}

func fileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// getDirSize sums the sizes of the regular files under path.
func getDirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}
