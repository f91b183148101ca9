package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/extract"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/index"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/search"
)

// HybridSearchInput is the input schema for the hybrid_search tool.
type HybridSearchInput struct {
	Query         string   `json:"query" jsonschema:"the search query"`
	Mode          string   `json:"mode,omitempty" jsonschema:"hybrid (default), lexical (alias bm25), vector or compare"`
	K             int      `json:"k,omitempty" jsonschema:"number of results between 1 and 50, default 10"`
	LexicalWeight *float64 `json:"lexical_weight,omitempty" jsonschema:"weight of the BM25 ranking in hybrid mode"`
	VectorWeight  *float64 `json:"vector_weight,omitempty" jsonschema:"weight of the vector ranking in hybrid mode"`
	Explain       bool     `json:"explain,omitempty" jsonschema:"attach per-retriever contributions to hybrid results"`
}

// ResultOutput is one ranked document.
type ResultOutput struct {
	Rank        int     `json:"rank"`
	DocumentKey string  `json:"document_key"`
	FileName    string  `json:"file_name"`
	Score       float64 `json:"score"`
	TextPreview string  `json:"text_preview"`
	LexicalRank int     `json:"lexical_rank,omitempty"`
	VectorRank  int     `json:"vector_rank,omitempty"`
}

// ModeOutput is one side of a comparison.
type ModeOutput struct {
	Results        []ResultOutput `json:"results"`
	ResponseTimeMS float64        `json:"response_time_ms"`
	AverageScore   float64        `json:"average_score"`
	Error          string         `json:"error,omitempty"`
}

// ComparisonOutput holds all modes side by side.
type ComparisonOutput struct {
	Lexical ModeOutput     `json:"lexical"`
	Vector  ModeOutput     `json:"vector"`
	Hybrid  ModeOutput     `json:"hybrid"`
	Overlap search.Overlap `json:"overlap"`
}

// HybridSearchOutput is the output schema for the hybrid_search tool.
type HybridSearchOutput struct {
	RequestID        string               `json:"request_id"`
	Query            string               `json:"query"`
	Mode             string               `json:"mode"`
	TotalResults     int                  `json:"total_results"`
	ResponseTimeMS   float64              `json:"response_time_ms"`
	Degraded         bool                 `json:"degraded"`
	FailedRetrievers []string             `json:"failed_retrievers,omitempty"`
	SnapshotVersion  uint64               `json:"snapshot_version"`
	Cached           bool                 `json:"cached"`
	Results          []ResultOutput       `json:"results"`
	Explanations     []search.Explanation `json:"explanations,omitempty"`
	Comparison       *ComparisonOutput    `json:"comparison,omitempty"`
}

// GetFileContentInput is the input schema for the get_file_content tool.
type GetFileContentInput struct {
	FilePath string `json:"file_path" jsonschema:"path relative to the watch root, or an absolute path inside it"`
}

// GetFileContentOutput is the output schema for the get_file_content tool.
type GetFileContentOutput struct {
	DocumentKey string `json:"document_key"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	Extension   string `json:"extension"`
	MIMEType    string `json:"mime_type"`
	TextLength  int    `json:"text_length"`
	Content     string `json:"content"`
	Indexed     bool   `json:"indexed"`
}

// IndexStatusInput is the input schema for the index_status tool.
type IndexStatusInput struct{}

// IndexStatusOutput is the output schema for the index_status tool.
// Timestamps are RFC 3339 strings.
type IndexStatusOutput struct {
	Ready           bool   `json:"ready"`
	Root            string `json:"root"`
	DataDir         string `json:"data_dir"`
	Documents       int    `json:"documents"`
	Chunks          int    `json:"chunks"`
	Terms           int    `json:"terms"`
	SnapshotVersion uint64 `json:"snapshot_version"`
	LastUpdate      string `json:"last_update,omitempty"`
	PendingEvents   int    `json:"pending_events"`

	FilesAdded   int64 `json:"files_added"`
	FilesUpdated int64 `json:"files_updated"`
	FilesRemoved int64 `json:"files_removed"`
	FilesFailed  int64 `json:"files_failed"`

	PersistedSnapshot uint64 `json:"persisted_snapshot"`
	LastPersist       string `json:"last_persist,omitempty"`
	LastPersistError  string `json:"last_persist_error,omitempty"`
	Dirty             bool   `json:"dirty"`
	Degraded          bool   `json:"degraded"`

	VectorBackend  string `json:"vector_backend"`
	EmbeddingModel string `json:"embedding_model"`
	Dimensions     int    `json:"dimensions"`
	Watcher        string `json:"watcher,omitempty"`

	Search search.Stats `json:"search"`
}

func toStatusOutput(st index.Status, stats search.Stats) IndexStatusOutput {
	return IndexStatusOutput{
		Ready:             st.Ready,
		Root:              st.Root,
		DataDir:           st.DataDir,
		Documents:         st.Documents,
		Chunks:            st.Chunks,
		Terms:             st.Terms,
		SnapshotVersion:   st.SnapshotVersion,
		LastUpdate:        formatTime(st.LastUpdate),
		PendingEvents:     st.PendingEvents,
		FilesAdded:        st.FilesAdded,
		FilesUpdated:      st.FilesUpdated,
		FilesRemoved:      st.FilesRemoved,
		FilesFailed:       st.FilesFailed,
		PersistedSnapshot: st.PersistedSnapshot,
		LastPersist:       formatTime(st.LastPersist),
		LastPersistError:  st.LastPersistError,
		Dirty:             st.Dirty,
		Degraded:          st.Degraded,
		VectorBackend:     st.VectorBackend,
		EmbeddingModel:    st.EmbeddingModel,
		Dimensions:        st.Dimensions,
		Watcher:           st.Watcher,
		Search:            stats,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "hybrid_search",
		Description: "Search the watched documents. Hybrid mode fuses BM25 keyword ranking with " +
			"embedding similarity using reciprocal rank fusion; lexical and vector run one ranking alone; " +
			"compare returns all three with their overlap.",
	}, s.handleHybridSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_file_content",
		Description: "Return the extracted text of one file under the watch root, preferring the indexed version.",
	}, s.handleGetFileContent)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report index readiness, document and chunk counts, persistence state and search statistics.",
	}, s.handleIndexStatus)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 3))
}

func (s *Server) handleHybridSearch(ctx context.Context, _ *mcp.CallToolRequest, input HybridSearchInput) (
	*mcp.CallToolResult,
	HybridSearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, HybridSearchOutput{}, NewInvalidParamsError("query is required")
	}

	req := search.Request{
		Query:   input.Query,
		Mode:    search.Mode(input.Mode),
		K:       input.K,
		Explain: input.Explain,
	}
	if input.LexicalWeight != nil || input.VectorWeight != nil {
		w := s.searcher.Config().DefaultWeights
		if input.LexicalWeight != nil {
			w.Lexical = *input.LexicalWeight
		}
		if input.VectorWeight != nil {
			w.Vector = *input.VectorWeight
		}
		req.Weights = &w
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		s.logger.Warn("hybrid_search_failed",
			slog.String("query", input.Query),
			slog.String("error", err.Error()))
		return nil, HybridSearchOutput{}, MapError(err)
	}
	return nil, toSearchOutput(resp), nil
}

func toSearchOutput(resp *search.Response) HybridSearchOutput {
	out := HybridSearchOutput{
		RequestID:        resp.RequestID,
		Query:            resp.Query,
		Mode:             string(resp.Mode),
		TotalResults:     len(resp.Results),
		ResponseTimeMS:   float64(resp.Took.Microseconds()) / 1000,
		Degraded:         resp.Degraded,
		FailedRetrievers: resp.FailedRetrievers,
		SnapshotVersion:  resp.SnapshotVersion,
		Cached:           resp.Cached,
		Results:          toResultOutputs(resp.Results),
		Explanations:     resp.Explanations,
	}
	if c := resp.Comparison; c != nil {
		out.Comparison = &ComparisonOutput{
			Lexical: toModeOutput(c.Lexical),
			Vector:  toModeOutput(c.Vector),
			Hybrid:  toModeOutput(c.Hybrid),
			Overlap: c.Overlap,
		}
	}
	return out
}

func toResultOutputs(results []search.Result) []ResultOutput {
	out := make([]ResultOutput, len(results))
	for i, r := range results {
		out[i] = ResultOutput{
			Rank:        r.Rank,
			DocumentKey: r.Key,
			FileName:    r.FileName,
			Score:       r.Score,
			TextPreview: r.Preview,
			LexicalRank: r.LexicalRank,
			VectorRank:  r.VectorRank,
		}
	}
	return out
}

func toModeOutput(m search.ModeResult) ModeOutput {
	return ModeOutput{
		Results:        toResultOutputs(m.Results),
		ResponseTimeMS: float64(m.Took.Microseconds()) / 1000,
		AverageScore:   m.AverageScore,
		Error:          m.Error,
	}
}

func (s *Server) handleGetFileContent(ctx context.Context, _ *mcp.CallToolRequest, input GetFileContentInput) (
	*mcp.CallToolResult,
	GetFileContentOutput,
	error,
) {
	out, err := s.fileContent(ctx, input.FilePath)
	if err != nil {
		return nil, GetFileContentOutput{}, MapError(err)
	}
	return nil, out, nil
}

// fileContent resolves path inside the watch root and returns its text.
// The indexed text is returned when the snapshot has the document, so the
// answer matches what search saw; otherwise the file is extracted now.
func (s *Server) fileContent(ctx context.Context, path string) (GetFileContentOutput, error) {
	if strings.TrimSpace(path) == "" {
		return GetFileContentOutput{}, NewInvalidParamsError("file_path is required")
	}
	key, err := s.index.ResolveKey(path)
	if err != nil {
		return GetFileContentOutput{}, err
	}
	abs := s.index.AbsPath(key)
	if err := checkContained(s.index.Root(), abs, key); err != nil {
		return GetFileContentOutput{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return GetFileContentOutput{}, apperrors.New(apperrors.ErrCodeFileNotFound,
				fmt.Sprintf("file not found: %s", key), err)
		}
		return GetFileContentOutput{}, apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}
	if info.IsDir() || !s.extractor.Supports(abs) {
		return GetFileContentOutput{}, apperrors.New(apperrors.ErrCodeUnsupportedFile,
			fmt.Sprintf("unsupported file type: %s", key), nil).
			WithSuggestion("Supported extensions: " + strings.Join(s.cfg.Watch.Extensions, ", "))
	}
	if limit := s.cfg.Watch.MaxFileSize; limit > 0 && info.Size() > limit {
		return GetFileContentOutput{}, apperrors.New(apperrors.ErrCodeFileTooLarge,
			fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), limit), nil)
	}

	out := GetFileContentOutput{
		DocumentKey: key,
		FileName:    filepath.Base(abs),
		FileSize:    info.Size(),
		Extension:   strings.ToLower(filepath.Ext(abs)),
		MIMEType:    MimeTypeForPath(abs),
	}

	if doc, ok := s.index.Document(key); ok {
		out.Content = doc.Text
		out.Indexed = true
	} else {
		ex, err := s.extractor.Extract(ctx, abs)
		if err != nil {
			return GetFileContentOutput{}, extractError(key, err)
		}
		out.Content = ex.Text
	}
	out.TextLength = len([]rune(out.Content))
	return out, nil
}

// checkContained rejects a path that is a symbolic link or that reaches
// outside root through a linked directory. The indexer skips links the same
// way. A missing path passes; the caller reports it.
func checkContained(root, abs, key string) error {
	info, err := os.Lstat(abs)
	if err != nil {
		return nil
	}
	outside := apperrors.ValidationError(apperrors.ErrCodeInvalidPath,
		fmt.Sprintf("path %q leads outside the watch root", key))
	if info.Mode()&os.ModeSymlink != 0 {
		return outside
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}
	realPath, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}
	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return outside
	}
	return nil
}

func extractError(key string, err error) error {
	switch {
	case errors.Is(err, extract.ErrNotFound):
		return apperrors.New(apperrors.ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", key), err)
	case errors.Is(err, extract.ErrTooLarge):
		return apperrors.New(apperrors.ErrCodeFileTooLarge, fmt.Sprintf("file too large: %s", key), err)
	case errors.Is(err, extract.ErrUnsupported), errors.Is(err, extract.ErrBinary):
		return apperrors.New(apperrors.ErrCodeUnsupportedFile, fmt.Sprintf("unsupported file: %s", key), err)
	default:
		return apperrors.New(apperrors.ErrCodeExtractionFailed, fmt.Sprintf("extract %s", key), err)
	}
}

func (s *Server) handleIndexStatus(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	return nil, toStatusOutput(s.index.GetStatus(), s.searcher.Stats()), nil
}
