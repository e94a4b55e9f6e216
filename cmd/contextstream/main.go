// ContextStream MCP Server
//
// A universal MCP server that gives any AI coding tool (Claude Code,
// OpenCode, Gemini CLI, Codex, Cursor) persistent memory, decisions,
// and code-aware context from the ContextStream service.
//
// Usage:
//
//	contextstream serve    # Start MCP server (stdio transport)
package main

import (
	"fmt"
	"os"

	csserver "github.com/contextstream/contextstream-mcp/internal/server"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("contextstream v%s\n", csserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	s, err := csserver.New()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Stdio transport: stdout carries the protocol, everything else
	// goes to stderr. The server manages its own lifecycle and exits
	// when the host closes the stream.
	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `ContextStream v%s — persistent memory MCP server

Usage:
  contextstream serve    Start the MCP server (stdio transport)

Configuration:
  CONTEXTSTREAM_API_KEY             API key for the ContextStream service (required)
  CONTEXTSTREAM_API_URL             Override the API endpoint
  CONTEXTSTREAM_CONFIG_DIR          Override the config root (default: ~/.contextstream)
  CONTEXTSTREAM_DISABLE_AUTO_INDEX  Set to "true" to disable project auto-discovery
  CONTEXTSTREAM_LOG_LEVEL           debug, info, warn, or error (default: info)

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "contextstream": {
        "command": "contextstream",
        "args": ["serve"],
        "env": { "CONTEXTSTREAM_API_KEY": "cs_..." }
      }
    }
  }
`, csserver.Version)
}
