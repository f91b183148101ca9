// Package cmd provides the CLI commands for lfsearch.
package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/logging"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/profiling"
	"github.com/M6saw0/local-file-search-and-monitoring/pkg/version"
)

// Persistent flags shared by every subcommand.
var (
	rootDir        string
	debugMode      bool
	noColor        bool
	profileOpts    profiling.Options
	loggingCleanup func()
	profile        *profiling.Session
)

// NewRootCmd creates the root command for the lfsearch CLI.
func NewRootCmd() *cobra.Command {
	rootDir, debugMode, noColor = "", false, false
	profileOpts = profiling.Options{}

	cmd := &cobra.Command{
		Use:   "lfsearch",
		Short: "Hybrid search over a local document folder",
		Long: `lfsearch keeps a BM25 index and a vector index over the text, Markdown
and PDF files of one folder, follows changes to that folder as they
happen, and answers queries by fusing both rankings with Reciprocal
Rank Fusion.

Run 'lfsearch serve' to expose the index to MCP clients, or
'lfsearch console' for an interactive search prompt.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("lfsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&rootDir, "root", "r", "", "Folder to index (default: project root of the working directory)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write a heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write an execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newConsoleCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command. Errors are printed here because the root
// command silences cobra's own reporting.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		printError(cmd.ErrOrStderr(), err)
	}
	// PersistentPostRunE does not run when the command fails.
	_ = stopProfilingAndLogging(cmd, nil)
	return err
}

// startProfilingAndLogging routes slog to the rotating log file and starts
// any requested profiles. Log settings come from the configuration when it
// loads; a broken configuration is reported later by the command that needs
// it.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if root, err := resolveRoot(); err == nil {
		if cfg, err := config.Load(root); err == nil {
			logCfg.Level = cfg.Logging.Level
			if cfg.Logging.File != "" {
				logCfg.FilePath = cfg.Logging.File
			}
			logCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
			logCfg.MaxFiles = cfg.Logging.MaxFiles
		}
	}
	if debugMode {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("logging_started",
		slog.String("log_file", logCfg.FilePath),
		slog.String("version", version.Version))

	if profileOpts.Enabled() {
		profile, err = profiling.Start(profileOpts)
		if err != nil {
			return err
		}
	}
	return nil
}

// stopProfilingAndLogging writes pending profiles and closes the log file.
// It is safe to call more than once.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profile != nil {
		err = profile.Stop()
		profile = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// resolveRoot returns the absolute folder to work on: --root when given,
// else the project root around the working directory.
func resolveRoot() (string, error) {
	if rootDir != "" {
		return filepath.Abs(rootDir)
	}
	return config.FindProjectRoot(".")
}

// loadConfig resolves the root and loads its effective configuration.
func loadConfig() (*config.Config, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}
	return config.Load(root)
}
