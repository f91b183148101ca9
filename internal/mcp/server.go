package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/extract"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/search"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/store"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/telemetry"
	"github.com/M6saw0/local-file-search-and-monitoring/pkg/version"
)

// ServerName is the implementation name reported to clients.
const ServerName = "lfsearch"

// Searcher answers queries. *search.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	Stats() search.Stats
	Config() search.EngineConfig
}

// Index is the part of the index manager the tools read. *index.Manager
// implements it.
type Index interface {
	Root() string
	ResolveKey(path string) (string, error)
	AbsPath(key string) string
	Document(key string) (store.Document, bool)
	GetStatus() index.Status
}

// Extractor reads files that are not in the index yet.
type Extractor interface {
	Supports(path string) bool
	Extract(ctx context.Context, absPath string) (*extract.Extracted, error)
}

// Deps are the server's collaborators.
type Deps struct {
	Searcher Searcher
	Index    Index
	Config   *config.Config

	// Extractor defaults to extract.New over the configured extensions.
	Extractor Extractor

	// Metrics, when set, is exposed as the query_metrics resource.
	Metrics *telemetry.QueryMetrics
}

// Server bridges MCP clients and the search engine.
type Server struct {
	mcp       *mcp.Server
	searcher  Searcher
	index     Index
	extractor Extractor
	metrics   *telemetry.QueryMetrics
	cfg       *config.Config
	logger    *slog.Logger
}

// NewServer creates the MCP server and registers its tools.
func NewServer(deps Deps) (*Server, error) {
	if deps.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if deps.Index == nil {
		return nil, errors.New("index is required")
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	ext := deps.Extractor
	if ext == nil {
		ext = extract.New(extract.Options{
			Extensions:  cfg.Watch.Extensions,
			MaxFileSize: cfg.Watch.MaxFileSize,
		}, nil)
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		}, nil),
		searcher:  deps.Searcher,
		index:     deps.Index,
		extractor: ext,
		metrics:   deps.Metrics,
		cfg:       cfg,
		logger:    slog.Default(),
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve runs the server on transport ("stdio" or "http") until ctx is
// canceled.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport),
		slog.String("addr", addr))

	var err error
	switch strings.ToLower(transport) {
	case "", "stdio":
		err = s.mcp.Run(ctx, &mcp.StdioTransport{})
	case "http":
		err = s.RunHTTP(ctx, addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

// Handler returns the streamable HTTP handler serving this server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
}

// RunHTTP serves streamable HTTP on addr. It shuts down gracefully when ctx
// is canceled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-shutdownDone
		return nil
	}
	return err
}
