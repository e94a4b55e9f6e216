// Package binding persists folder→workspace associations.
//
// Two kinds of local state live under the per-user config root:
// one small JSON file per bound folder (the Binding) and one global
// JSON file of folder-glob → workspace mappings. Both are plain JSON,
// human-editable, and tolerate manual corruption by reading as absent.
package binding

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies where a resolved Binding came from.
type Source string

const (
	SourceLocalConfig   Source = "local_config"
	SourceParentMapping Source = "parent_mapping"
)

// Binding associates a local folder with a workspace and, optionally,
// a project inside it. Workspace ids are UUIDs everywhere in the
// system; a Binding without one is invalid and must never be
// persisted.
type Binding struct {
	WorkspaceID   string    `json:"workspace_id"`
	WorkspaceName string    `json:"workspace_name,omitempty"`
	ProjectID     string    `json:"project_id,omitempty"`
	ProjectName   string    `json:"project_name,omitempty"`
	AssociatedAt  time.Time `json:"associated_at"`
}

// Valid reports whether the Binding may be persisted. A non-UUID
// workspace id means corrupt or hand-edited state, never a real
// workspace.
func (b Binding) Valid() bool {
	return uuid.Validate(b.WorkspaceID) == nil
}

// merge overlays the set fields of other onto b. Empty fields in other
// leave b's values untouched, so partial writes never erase data.
func (b Binding) merge(other Binding) Binding {
	if other.WorkspaceID != "" {
		b.WorkspaceID = other.WorkspaceID
	}
	if other.WorkspaceName != "" {
		b.WorkspaceName = other.WorkspaceName
	}
	if other.ProjectID != "" {
		b.ProjectID = other.ProjectID
	}
	if other.ProjectName != "" {
		b.ProjectName = other.ProjectName
	}
	if !other.AssociatedAt.IsZero() {
		b.AssociatedAt = other.AssociatedAt
	}
	return b
}

// ParentMapping maps a folder glob pattern to a workspace. Used only
// when no direct Binding exists for a folder; first match wins in
// file order.
type ParentMapping struct {
	Pattern       string `json:"pattern"`
	WorkspaceID   string `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name,omitempty"`
}
