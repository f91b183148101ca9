package integration

import (
	"context"
	"encoding/json"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/mcp"
)

// connect starts srv on an in-memory transport and returns a client session.
func connect(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ss, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "integration-test", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

// decode re-reads a tool's structured output into out.
func decode(t *testing.T, res *mcpsdk.CallToolResult, out any) {
	t.Helper()
	require.False(t, res.IsError, "tool reported an error: %+v", res.Content)
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func TestMCP_ToolsOverRealIndex(t *testing.T) {
	// Given: an indexed folder behind an MCP server
	cfg := testConfig(t)
	writeFiles(t, cfg.Watch.Root, corpus)
	s := newStack(t, cfg, false)
	ctx := context.Background()
	require.NoError(t, s.manager.InitializeIndices(ctx))

	srv, err := mcp.NewServer(mcp.Deps{Searcher: s.engine, Index: s.manager, Config: cfg})
	require.NoError(t, err)
	cs := connect(t, srv)

	t.Run("tools are listed", func(t *testing.T) {
		res, err := cs.ListTools(ctx, nil)
		require.NoError(t, err)
		var names []string
		for _, tool := range res.Tools {
			names = append(names, tool.Name)
		}
		assert.ElementsMatch(t, []string{"hybrid_search", "get_file_content", "index_status"}, names)
	})

	t.Run("hybrid_search", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      "hybrid_search",
			Arguments: map[string]any{"query": "quarterly revenue", "k": 2},
		})
		require.NoError(t, err)

		var out mcp.HybridSearchOutput
		decode(t, res, &out)
		assert.Equal(t, "hybrid", out.Mode)
		require.NotEmpty(t, out.Results)
		assert.LessOrEqual(t, len(out.Results), 2)
		assert.Equal(t, "finance/q3.txt", out.Results[0].DocumentKey)
	})

	t.Run("get_file_content", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      "get_file_content",
			Arguments: map[string]any{"file_path": "notes/recipes.txt"},
		})
		require.NoError(t, err)

		var out mcp.GetFileContentOutput
		decode(t, res, &out)
		assert.Equal(t, "notes/recipes.txt", out.DocumentKey)
		assert.True(t, out.Indexed)
		assert.Contains(t, out.Content, "tomato sauce")
	})

	t.Run("index_status", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: "index_status", Arguments: map[string]any{}})
		require.NoError(t, err)

		var out mcp.IndexStatusOutput
		decode(t, res, &out)
		assert.True(t, out.Ready)
		assert.Equal(t, len(corpus), out.Documents)
		assert.Equal(t, cfg.Watch.Root, out.Root)
	})
}
