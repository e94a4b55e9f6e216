// Package prompts implements MCP prompt handlers.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the context-start MCP prompt. It instructs the
// assistant to initialize the session and adopt the search-first
// workflow for the rest of the conversation.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("context-start",
		mcp.WithPromptDescription(
			"Start a ContextStream session: resolve the workspace and project for "+
				"this folder, check index freshness, and load recent context.",
		),
		mcp.WithArgument("root_path",
			mcp.ArgumentDescription("Absolute path of the folder being worked on"),
		),
	)
}

// Handle processes the context-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	root := ""
	if args := req.Params.Arguments; args != nil {
		root = args["root_path"]
	}

	rootHint := ""
	if root != "" {
		rootHint = fmt.Sprintf(" with root_path=%q", root)
	}

	instructions := fmt.Sprintf(`Begin a ContextStream session for this conversation.

1. Call session_init%s.
   - If the result status is "requires_workspace_selection", show the candidate
     workspaces to the user, ask which one, then call session_init again with
     the chosen workspace_id.
   - If the status is "requires_workspace_name", ask the user what to name the
     new workspace. Never invent one from the folder name.
2. For the rest of this conversation, call context_smart with the user's
   message at the start of every response, before using local file search.
3. If session_init reported the index as not_indexed or stale, mention that an
   automatic ingestion has started and results will improve shortly.`, rootHint)

	return &mcp.GetPromptResult{
		Description: "Start ContextStream session",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(instructions),
			},
		},
	}, nil
}
