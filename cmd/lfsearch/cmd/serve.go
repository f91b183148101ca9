package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		addr      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server for AI assistants.

The index is loaded (or built) first, then the folder is watched and every
change is applied while the server answers queries.

Transports:
  stdio   JSON-RPC over stdin/stdout (default, for desktop clients)
  http    streamable HTTP on --addr

Nothing but protocol messages is written to stdout in stdio mode; logs go
to the log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, transport, addr)
		},
	}

	cmd.Flags().StringVarP(&transport, "transport", "t", "", "Transport: stdio or http (default from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address for the http transport (default from config)")

	return cmd
}

func runServe(ctx context.Context, transport, addr string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if transport == "" {
		transport = cfg.Server.Transport
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}

	a, err := newApp(cfg, appOptions{watch: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			slog.Error("shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	if err := a.start(ctx); err != nil {
		return err
	}

	server, err := mcp.NewServer(mcp.Deps{
		Searcher: a.engine,
		Index:    a.manager,
		Config:   cfg,
		Metrics:  a.metrics,
	})
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}

	slog.Info("serve_started",
		slog.String("root", cfg.Watch.Root),
		slog.String("transport", transport))

	if err := server.Serve(ctx, transport, addr); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
