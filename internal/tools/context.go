package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/contextstream/contextstream-mcp/internal/contextpack"
	"github.com/contextstream/contextstream-mcp/internal/session"
)

// SmartContextTool handles the context_smart MCP tool.
type SmartContextTool struct {
	orchestrator *session.Orchestrator
}

// NewSmartContextTool creates a SmartContextTool.
func NewSmartContextTool(o *session.Orchestrator) *SmartContextTool {
	return &SmartContextTool{orchestrator: o}
}

// Definition returns the MCP tool definition for context_smart.
func (t *SmartContextTool) Definition() mcp.Tool {
	return mcp.NewTool("context_smart",
		mcp.WithDescription(
			"Get a compact, relevance-ranked context payload for the current user "+
				"message: workspace identity, matching decisions, memory hits, and "+
				"high-priority lessons, packed into a token budget. Call this at the "+
				"start of every response.",
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The user's message or query to rank context against"),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description(fmt.Sprintf("Token budget for the payload (default: %d)", contextpack.DefaultBudget)),
		),
		mcp.WithString("format",
			mcp.Description("Serialization: minified (default), structured, or readable"),
		),
	)
}

// Handle processes the context_smart tool call.
func (t *SmartContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := req.GetString("message", "")
	if message == "" {
		return mcp.NewToolResultError("'message' is required"), nil
	}
	budget := intArg(req, "max_tokens", contextpack.DefaultBudget)
	format := contextpack.ParseFormat(req.GetString("format", ""))

	result := t.orchestrator.SmartContext(ctx, message, budget, format)
	return jsonResult(result), nil
}

// ─── BudgetContextTool ──────────────────────────────────────────────────────

// BudgetContextTool handles the context_budget MCP tool — fixed
// per-source budget shares instead of unified relevance ranking.
type BudgetContextTool struct {
	orchestrator *session.Orchestrator
}

// NewBudgetContextTool creates a BudgetContextTool.
func NewBudgetContextTool(o *session.Orchestrator) *BudgetContextTool {
	return &BudgetContextTool{orchestrator: o}
}

// Definition returns the MCP tool definition for context_budget.
func (t *BudgetContextTool) Definition() mcp.Tool {
	return mcp.NewTool("context_budget",
		mcp.WithDescription(
			"Get context packed with fixed per-source budget shares: decisions get "+
				"up to 40% of the budget, memory the next 30%, and code search fills "+
				"any remaining headroom. Use this instead of context_smart when you "+
				"want guaranteed representation per source type.",
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The user's message or query"),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description(fmt.Sprintf("Token budget (default: %d)", contextpack.DefaultBudget)),
		),
	)
}

// Handle processes the context_budget tool call.
func (t *BudgetContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := req.GetString("message", "")
	if message == "" {
		return mcp.NewToolResultError("'message' is required"), nil
	}
	budget := intArg(req, "max_tokens", contextpack.DefaultBudget)

	result := t.orchestrator.BudgetContext(ctx, message, budget)
	return jsonResult(result), nil
}

// ─── SummaryContextTool ─────────────────────────────────────────────────────

// SummaryContextTool handles the context_summary MCP tool.
type SummaryContextTool struct {
	orchestrator *session.Orchestrator
}

// NewSummaryContextTool creates a SummaryContextTool.
func NewSummaryContextTool(o *session.Orchestrator) *SummaryContextTool {
	return &SummaryContextTool{orchestrator: o}
}

// Definition returns the MCP tool definition for context_summary.
func (t *SummaryContextTool) Definition() mcp.Tool {
	return mcp.NewTool("context_summary",
		mcp.WithDescription(
			"Get a fixed-structure digest of the session: workspace, project, top "+
				"decisions, preference snippets, and memory count. Coarser and cheaper "+
				"than context_smart — good for orientation.",
		),
		mcp.WithNumber("max_tokens",
			mcp.Description("Token budget for the digest (default: 800)"),
		),
	)
}

// Handle processes the context_summary tool call.
func (t *SummaryContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	budget := intArg(req, "max_tokens", contextpack.DefaultBudget)
	result := t.orchestrator.SummaryContext(ctx, budget)
	return jsonResult(result), nil
}
