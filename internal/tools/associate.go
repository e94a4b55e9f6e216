package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/contextstream/contextstream-mcp/internal/binding"
	"github.com/contextstream/contextstream-mcp/internal/cache"
)

// AssociateTool handles the workspace_associate MCP tool: explicit
// folder→workspace bindings and global parent-directory mappings.
type AssociateTool struct {
	bindings binding.Store
	cache    *cache.Cache
}

// NewAssociateTool creates an AssociateTool.
func NewAssociateTool(bindings binding.Store, c *cache.Cache) *AssociateTool {
	return &AssociateTool{bindings: bindings, cache: c}
}

// Definition returns the MCP tool definition for workspace_associate.
func (t *AssociateTool) Definition() mcp.Tool {
	return mcp.NewTool("workspace_associate",
		mcp.WithDescription(
			"Bind a folder to a workspace so future sessions resolve without "+
				"discovery. Pass a pattern instead of a folder to map a whole parent "+
				"directory (glob syntax, e.g. /home/u/acme/**).",
		),
		mcp.WithString("workspace_id",
			mcp.Required(),
			mcp.Description("Workspace UUID to bind to"),
		),
		mcp.WithString("workspace_name",
			mcp.Description("Workspace display name"),
		),
		mcp.WithString("folder_path",
			mcp.Description("Folder to bind directly"),
		),
		mcp.WithString("pattern",
			mcp.Description("Glob pattern for a global parent-directory mapping"),
		),
		mcp.WithString("project_id",
			mcp.Description("Project UUID to include in the binding"),
		),
	)
}

// Handle processes the workspace_associate tool call.
func (t *AssociateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID := req.GetString("workspace_id", "")
	if workspaceID == "" {
		return mcp.NewToolResultError("'workspace_id' is required"), nil
	}
	if uuid.Validate(workspaceID) != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%q is not a valid workspace UUID", workspaceID)), nil
	}

	workspaceName := req.GetString("workspace_name", "")
	folder := req.GetString("folder_path", "")
	pattern := req.GetString("pattern", "")
	projectID := req.GetString("project_id", "")

	if folder == "" && pattern == "" {
		return mcp.NewToolResultError("one of 'folder_path' or 'pattern' is required"), nil
	}

	if pattern != "" {
		err := t.bindings.AddGlobalMapping(binding.ParentMapping{
			Pattern:       pattern,
			WorkspaceID:   workspaceID,
			WorkspaceName: workspaceName,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("adding mapping: %v", err)), nil
		}
		t.cache.InvalidateWorkspace(workspaceID)
		return mcp.NewToolResultText(fmt.Sprintf("Mapped pattern %q to workspace %q", pattern, workspaceID)), nil
	}

	b := binding.Binding{WorkspaceID: workspaceID, WorkspaceName: workspaceName}
	if projectID != "" && uuid.Validate(projectID) == nil {
		b.ProjectID = projectID
	}
	if !t.bindings.WriteLocal(folder, b) {
		return mcp.NewToolResultError("could not persist the binding"), nil
	}
	t.cache.InvalidateWorkspace(workspaceID)
	return mcp.NewToolResultText(fmt.Sprintf("Bound %s to workspace %q", folder, workspaceID)), nil
}
