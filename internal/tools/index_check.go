package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/contextstream/contextstream-mcp/internal/session"
)

// IndexCheckTool handles the index_check MCP tool.
type IndexCheckTool struct {
	orchestrator *session.Orchestrator
}

// NewIndexCheckTool creates an IndexCheckTool.
func NewIndexCheckTool(o *session.Orchestrator) *IndexCheckTool {
	return &IndexCheckTool{orchestrator: o}
}

// Definition returns the MCP tool definition for index_check.
func (t *IndexCheckTool) Definition() mcp.Tool {
	return mcp.NewTool("index_check",
		mcp.WithDescription(
			"Check whether the project's remote search index is missing, stale, or "+
				"fresh, and optionally start a background re-ingestion. The refresh "+
				"never blocks: this call returns immediately and ingestion completes "+
				"on its own.",
		),
		mcp.WithString("project_id",
			mcp.Description("Project UUID (default: the session's resolved project)"),
		),
		mcp.WithString("folder_path",
			mcp.Description("Folder to ingest from (default: the session root)"),
		),
		mcp.WithBoolean("auto_start",
			mcp.Description("Start a background ingestion when one is recommended (default: false)"),
		),
	)
}

// Handle processes the index_check tool call.
func (t *IndexCheckTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, err := t.orchestrator.IndexCheck(ctx,
		req.GetString("project_id", ""),
		req.GetString("folder_path", ""),
		boolArg(req, "auto_start", false),
	)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("index check failed: %v", err)), nil
	}
	return jsonResult(rec), nil
}
