// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations
// and injects them into the tools/prompts/resources that depend on
// abstractions. No business logic lives here — only wiring.
package server

import (
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/contextstream/contextstream-mcp/internal/api"
	"github.com/contextstream/contextstream-mcp/internal/binding"
	"github.com/contextstream/contextstream-mcp/internal/cache"
	"github.com/contextstream/contextstream-mcp/internal/contextpack"
	"github.com/contextstream/contextstream-mcp/internal/freshness"
	"github.com/contextstream/contextstream-mcp/internal/logging"
	"github.com/contextstream/contextstream-mcp/internal/prompts"
	"github.com/contextstream/contextstream-mcp/internal/resolver"
	"github.com/contextstream/contextstream-mcp/internal/resources"
	"github.com/contextstream/contextstream-mcp/internal/session"
	"github.com/contextstream/contextstream-mcp/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. This is the single place where all
// dependencies are resolved.
func New() (*server.MCPServer, error) {
	log := logging.New()
	api.Version = Version

	// --- Shared dependencies ---

	client := api.NewClient()
	bindings := binding.NewFileStore()
	resultCache := cache.New()

	// One SessionState per client instance — not per conversation turn.
	state := freshness.NewSessionState("", "")

	res := resolver.New(client, bindings, resultCache, log)
	res.AutoIndexDisabled = os.Getenv("CONTEXTSTREAM_DISABLE_AUTO_INDEX") == "true"

	monitor := freshness.New(client, state, log)
	packer := contextpack.New(client, resultCache, log)
	orchestrator := session.New(client, res, monitor, packer, resultCache, state, log)

	// --- The MCP server ---

	s := server.NewMCPServer(
		"contextstream",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---

	sessionInit := tools.NewSessionInitTool(orchestrator)
	s.AddTool(sessionInit.Definition(), sessionInit.Handle)

	smartContext := tools.NewSmartContextTool(orchestrator)
	s.AddTool(smartContext.Definition(), smartContext.Handle)

	budgetContext := tools.NewBudgetContextTool(orchestrator)
	s.AddTool(budgetContext.Definition(), budgetContext.Handle)

	summaryContext := tools.NewSummaryContextTool(orchestrator)
	s.AddTool(summaryContext.Definition(), summaryContext.Handle)

	indexCheck := tools.NewIndexCheckTool(orchestrator)
	s.AddTool(indexCheck.Definition(), indexCheck.Handle)

	associate := tools.NewAssociateTool(bindings, resultCache)
	s.AddTool(associate.Definition(), associate.Handle)

	// --- Register prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(bindings, res, state)
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)

	return s, nil
}

// serverInstructions returns the system instructions that tell the AI
// how to use ContextStream effectively.
func serverInstructions() string {
	return `You have access to ContextStream, a persistent memory and context service
for coding sessions.

## SESSION LIFECYCLE
1. Call session_init ONCE at the start of every conversation, passing the
   folders you are working in as root_paths (or a single root_path).
   - If the result asks for a workspace selection, present the candidates to
     the user and call session_init again with the chosen workspace_id.
   - If it asks for a workspace name, ask the user. Never create a workspace
     from a folder name on your own.
2. Call context_smart at the start of EVERY response, passing the user's
   message. Use the returned decisions, memories, and lessons before reaching
   for local file search.
3. Only fall back to local Glob/Grep/Read when ContextStream returns no
   matches.

## CONTEXT TOOLS
- context_smart: relevance-ranked payload for one message. Default choice.
- context_budget: fixed per-source shares (decisions, memory, code search).
  Use when you need guaranteed representation from each source.
- context_summary: cheap fixed-structure digest for orientation.

All three accept max_tokens. Budgets are estimated at 4 characters per token;
responses never exceed the budget.

## INDEXING
session_init reports the project's index state. not_indexed and stale trigger
an automatic background ingestion — it never blocks you, and you should keep
working while it runs. Use index_check with auto_start=true to trigger one
manually.

## BINDINGS
Folder→workspace associations persist across sessions. Use workspace_associate
when the user tells you which workspace a folder belongs to, or to map a whole
parent directory with a glob pattern.`
}
