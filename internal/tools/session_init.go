package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/contextstream/contextstream-mcp/internal/session"
)

// SessionInitTool handles the session_init MCP tool.
type SessionInitTool struct {
	orchestrator *session.Orchestrator
}

// NewSessionInitTool creates a SessionInitTool.
func NewSessionInitTool(o *session.Orchestrator) *SessionInitTool {
	return &SessionInitTool{orchestrator: o}
}

// Definition returns the MCP tool definition for session_init.
func (t *SessionInitTool) Definition() mcp.Tool {
	return mcp.NewTool("session_init",
		mcp.WithDescription(
			"Initialize a ContextStream session for this conversation. Resolves which "+
				"workspace and project the current folder belongs to, checks index "+
				"freshness, and returns recent decisions. Call this once at the start "+
				"of every conversation. If the result asks for a workspace selection or "+
				"name, ask the user and call again with an explicit workspace_id.",
		),
		mcp.WithString("workspace_id",
			mcp.Description("Explicit workspace UUID (optional — usually resolved from the folder)"),
		),
		mcp.WithString("project_id",
			mcp.Description("Explicit project UUID (optional)"),
		),
		mcp.WithArray("root_paths",
			mcp.Description("Absolute paths of the open workspace folders, in priority order (multi-root hosts pass all of them)"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("root_path",
			mcp.Description("Absolute path of a single folder being worked on (shorthand for a one-element root_paths)"),
		),
		mcp.WithBoolean("allow_unresolved",
			mcp.Description("Allow the session to start without a workspace (default: false)"),
		),
	)
}

// Handle processes the session_init tool call.
func (t *SessionInitTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := session.InitOptions{
		WorkspaceID:     req.GetString("workspace_id", ""),
		ProjectID:       req.GetString("project_id", ""),
		AllowUnresolved: boolArg(req, "allow_unresolved", false),
	}
	opts.RootPaths = stringSliceArg(req, "root_paths")
	if root := req.GetString("root_path", ""); root != "" {
		opts.RootPaths = append(opts.RootPaths, root)
	}

	result := t.orchestrator.InitSession(ctx, opts)
	return jsonResult(result), nil
}
