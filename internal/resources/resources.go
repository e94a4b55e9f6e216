// Package resources implements MCP resource handlers.
//
// Resources provide read-only data that the host can consume for
// context. They use URI-based addressing (contextstream://...)
// following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/contextstream/contextstream-mcp/internal/binding"
	"github.com/contextstream/contextstream-mcp/internal/freshness"
	"github.com/contextstream/contextstream-mcp/internal/resolver"
)

// Handler serves ContextStream resource endpoints.
type Handler struct {
	bindings binding.Store
	resolver *resolver.Resolver
	state    *freshness.SessionState
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(bindings binding.Store, r *resolver.Resolver, state *freshness.SessionState) *Handler {
	return &Handler{bindings: bindings, resolver: r, state: state}
}

// StatusResource returns the MCP resource definition for session status.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		"contextstream://session/status",
		"ContextStream Session Status",
		mcp.WithResourceDescription("Current workspace/project binding and session state"),
		mcp.WithMIMEType("application/json"),
	)
}

// status is the serialized resource payload.
type status struct {
	WorkspaceID     string           `json:"workspace_id,omitempty"`
	ProjectID       string           `json:"project_id,omitempty"`
	RootPath        string           `json:"root_path,omitempty"`
	SessionStarted  *time.Time       `json:"session_started,omitempty"`
	RefreshInFlight bool             `json:"index_refresh_in_progress"`
	Binding         *binding.Binding `json:"binding,omitempty"`
	BindingSource   string           `json:"binding_source,omitempty"`
	GlobalMappings  int              `json:"global_mappings"`
	SessionResolved bool             `json:"session_resolved"`
}

// HandleStatus returns the current session status as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	workspaceID, projectID := h.resolver.Defaults()
	_, root := h.state.Project()

	s := status{
		WorkspaceID:     workspaceID,
		ProjectID:       projectID,
		RootPath:        root,
		RefreshInFlight: h.state.Refreshing(),
		GlobalMappings:  len(h.bindings.Mappings()),
		SessionResolved: workspaceID != "",
	}
	if started := h.state.StartedAt(); !started.IsZero() {
		s.SessionStarted = &started
	}
	if root != "" {
		if b, source, ok := h.bindings.ResolveWorkspace(root); ok {
			s.Binding = &b
			s.BindingSource = string(source)
		}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling status: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
