// Package resolver turns "a folder path, maybe explicit IDs" into a
// concrete (workspace, project) pair. It escalates through the weakest
// available signal — explicit IDs, process defaults, the local binding
// store, remote name matching — and persists the winning result so
// future calls short-circuit. When nothing matches it returns an
// explicit ask-the-user result instead of failing.
package resolver

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/contextstream/contextstream-mcp/internal/api"
	"github.com/contextstream/contextstream-mcp/internal/binding"
	"github.com/contextstream/contextstream-mcp/internal/cache"
)

// API is the slice of the remote client the resolver needs.
type API interface {
	ListWorkspaces(ctx context.Context) ([]api.Workspace, error)
	ListProjects(ctx context.Context, workspaceID string) ([]api.Project, error)
	CreateProject(ctx context.Context, workspaceID, name, rootPath string) (*api.Project, error)
}

// Status is the outcome class of a resolution attempt.
type Status string

const (
	// StatusResolved means a workspace (and possibly project) was found.
	StatusResolved Status = "resolved"
	// StatusRequiresWorkspaceSelection means the caller must ask the
	// user to pick from Candidates and re-invoke with an explicit id.
	StatusRequiresWorkspaceSelection Status = "requires_workspace_selection"
	// StatusRequiresWorkspaceName means no workspace exists yet; the
	// caller must ask the user to name one. A workspace is deliberately
	// never auto-created from a folder name.
	StatusRequiresWorkspaceName Status = "requires_workspace_name"
	// StatusUnresolvable means a required remote step failed outright.
	StatusUnresolvable Status = "unresolvable"
)

// MatchKind tags which discovery heuristic produced a resolution.
// Steps are evaluated in a fixed priority list so new heuristics can
// be inserted and tested independently.
type MatchKind string

const (
	MatchExplicit       MatchKind = "explicit"
	MatchSessionDefault MatchKind = "session_default"
	MatchLocalConfig    MatchKind = "local_config"
	MatchParentMapping  MatchKind = "parent_mapping"
	MatchExactName      MatchKind = "workspace_name_exact"
	MatchPartialName    MatchKind = "workspace_name_partial"
	MatchProjectName    MatchKind = "project_name_match"
	MatchFirstWorkspace MatchKind = "first_workspace"
	MatchNone           MatchKind = "no_match"
)

// Input is one resolution request.
type Input struct {
	WorkspaceID string
	ProjectID   string
	RootPaths   []string
	// AllowUnresolved lets the call complete without a workspace
	// instead of surfacing an ask-the-user result.
	AllowUnresolved bool
}

// Resolution is the outcome of a resolution attempt. Either ID may be
// empty even on StatusResolved when AllowUnresolved was set.
type Resolution struct {
	Status               Status          `json:"status"`
	WorkspaceID          string          `json:"workspace_id,omitempty"`
	WorkspaceName        string          `json:"workspace_name,omitempty"`
	ProjectID            string          `json:"project_id,omitempty"`
	ProjectName          string          `json:"project_name,omitempty"`
	Source               MatchKind       `json:"source,omitempty"`
	Candidates           []api.Workspace `json:"candidates,omitempty"`
	SuggestedProjectName string          `json:"suggested_project_name,omitempty"`
	Warning              string          `json:"warning,omitempty"`
	Reason               string          `json:"reason,omitempty"`
}

// Resolver implements the discovery chain.
type Resolver struct {
	api      API
	bindings binding.Store
	cache    *cache.Cache
	log      zerolog.Logger

	// AutoIndexDisabled suppresses project discovery and creation.
	AutoIndexDisabled bool

	mu                 sync.Mutex
	defaultWorkspaceID string
	defaultProjectID   string
}

// New creates a Resolver.
func New(client API, bindings binding.Store, c *cache.Cache, log zerolog.Logger) *Resolver {
	return &Resolver{api: client, bindings: bindings, cache: c, log: log}
}

// Defaults returns the process-default workspace and project ids set
// by the last successful resolution.
func (r *Resolver) Defaults() (workspaceID, projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultWorkspaceID, r.defaultProjectID
}

// validID reports whether s is a syntactically valid UUID. Malformed
// ids are treated as absent, not as failures: they frequently arrive
// half-typed from loosely-typed upstream callers.
func validID(s string) bool {
	return s != "" && uuid.Validate(s) == nil
}

// Resolve runs the discovery chain. First matching step wins; later
// steps run only when the previous produced nothing.
func (r *Resolver) Resolve(ctx context.Context, in Input) Resolution {
	res := Resolution{Status: StatusResolved}

	// Step 1: explicit ids, when syntactically valid.
	explicitWorkspace := false
	if validID(in.WorkspaceID) {
		res.WorkspaceID = in.WorkspaceID
		res.Source = MatchExplicit
		explicitWorkspace = true
	}
	if validID(in.ProjectID) {
		res.ProjectID = in.ProjectID
	}
	if explicitWorkspace && res.ProjectID != "" {
		// Fully specified: no network, no persistence side effects.
		r.setDefaults(res.WorkspaceID, res.ProjectID)
		return res
	}

	// Step 2: process defaults from a prior resolution. The default
	// project applies only when the workspace was not independently
	// overridden — a project id must never leak across workspaces.
	r.mu.Lock()
	if res.WorkspaceID == "" && r.defaultWorkspaceID != "" {
		res.WorkspaceID = r.defaultWorkspaceID
		res.Source = MatchSessionDefault
	}
	if res.ProjectID == "" && r.defaultProjectID != "" && res.WorkspaceID == r.defaultWorkspaceID {
		res.ProjectID = r.defaultProjectID
	}
	r.mu.Unlock()

	root := firstRoot(in.RootPaths)

	// Step 3: the local binding store, each root folder in order.
	// Multi-root hosts pass every open folder; the first bound one
	// wins and becomes the folder project discovery reasons about.
	if res.WorkspaceID == "" {
		for _, candidate := range in.RootPaths {
			if strings.TrimSpace(candidate) == "" {
				continue
			}
			b, source, ok := r.bindings.ResolveWorkspace(candidate)
			if !ok {
				continue
			}
			res.WorkspaceID = b.WorkspaceID
			res.WorkspaceName = b.WorkspaceName
			if res.ProjectID == "" {
				res.ProjectID = b.ProjectID
				res.ProjectName = b.ProjectName
			}
			res.Source = MatchLocalConfig
			if source == binding.SourceParentMapping {
				res.Source = MatchParentMapping
			}
			root = candidate
			break
		}
	}

	// Steps 4–7: remote discovery.
	if res.WorkspaceID == "" {
		remote := r.discoverWorkspace(ctx, root, in.AllowUnresolved)
		if remote.Status != StatusResolved {
			return remote
		}
		if remote.WorkspaceID == "" {
			// AllowUnresolved path: nothing found, caller accepted that.
			return remote
		}
		res = remote
	}

	// Project discovery, only with a known workspace, a known root,
	// and auto-indexing enabled.
	if res.ProjectID == "" && root != "" && !r.AutoIndexDisabled {
		r.discoverProject(ctx, &res, root)
	}

	r.setDefaults(res.WorkspaceID, res.ProjectID)
	return res
}

// discoverWorkspace runs the remote half of the chain: list the
// account's workspaces and walk the match ladder against the folder's
// base name.
func (r *Resolver) discoverWorkspace(ctx context.Context, root string, allowUnresolved bool) Resolution {
	workspaces, err := r.api.ListWorkspaces(ctx)
	if err != nil {
		// A required resolution step failed: return "cannot resolve,
		// here is why" instead of throwing — the caller needs a
		// conversational fallback, not an exception.
		return Resolution{
			Status: StatusUnresolvable,
			Reason: "could not list workspaces: " + err.Error(),
		}
	}

	// Step 7: no root folder known (non-interactive context) — fall
	// back to the account's first workspace.
	if root == "" {
		if len(workspaces) > 0 {
			ws := workspaces[0]
			res := Resolution{
				Status:        StatusResolved,
				WorkspaceID:   ws.ID,
				WorkspaceName: ws.Name,
				Source:        MatchFirstWorkspace,
			}
			return res
		}
		if allowUnresolved {
			return Resolution{Status: StatusResolved, Source: MatchNone}
		}
		return Resolution{
			Status: StatusRequiresWorkspaceName,
			Reason: "no workspaces exist for this account",
		}
	}

	// Step 4: name-match ladder.
	if len(workspaces) > 0 {
		if match := r.matchWorkspace(ctx, root, workspaces); match.kind != MatchNone {
			res := Resolution{
				Status:        StatusResolved,
				WorkspaceID:   match.workspace.ID,
				WorkspaceName: match.workspace.Name,
				ProjectID:     match.projectID,
				ProjectName:   match.projectName,
				Source:        match.kind,
			}
			r.persist(root, res)
			return res
		}

		// Step 5: candidates exist but none matched — ask the user.
		if allowUnresolved {
			return Resolution{Status: StatusResolved, Source: MatchNone}
		}
		return Resolution{
			Status:               StatusRequiresWorkspaceSelection,
			Candidates:           workspaces,
			SuggestedProjectName: filepath.Base(root),
			Reason:               "no workspace matched folder " + filepath.Base(root),
		}
	}

	// Step 6: zero workspaces — ask the user to name one rather than
	// silently proliferating workspaces from folder names.
	if allowUnresolved {
		return Resolution{Status: StatusResolved, Source: MatchNone}
	}
	return Resolution{
		Status:               StatusRequiresWorkspaceName,
		SuggestedProjectName: filepath.Base(root),
		Reason:               "no workspaces exist for this account",
	}
}

// matchResult is what one match step produces.
type matchResult struct {
	kind        MatchKind
	workspace   api.Workspace
	projectID   string
	projectName string
}

// matchWorkspace walks the heuristic ladder in priority order:
// exact name, partial name, then project-name match.
func (r *Resolver) matchWorkspace(ctx context.Context, root string, workspaces []api.Workspace) matchResult {
	folder := filepath.Base(root)
	lower := strings.ToLower(folder)

	steps := []func() matchResult{
		// (a) exact case-insensitive workspace name match.
		func() matchResult {
			for _, ws := range workspaces {
				if strings.ToLower(ws.Name) == lower {
					return matchResult{kind: MatchExactName, workspace: ws}
				}
			}
			return matchResult{kind: MatchNone}
		},
		// (b) substring match, either direction.
		func() matchResult {
			for _, ws := range workspaces {
				name := strings.ToLower(ws.Name)
				if name == "" {
					continue
				}
				if strings.Contains(name, lower) || strings.Contains(lower, name) {
					return matchResult{kind: MatchPartialName, workspace: ws}
				}
			}
			return matchResult{kind: MatchNone}
		},
		// (c) any project name within any workspace.
		func() matchResult {
			for _, ws := range workspaces {
				projects, err := r.api.ListProjects(ctx, ws.ID)
				if err != nil {
					continue // enrichment lookup, not required
				}
				for _, p := range projects {
					if strings.EqualFold(p.Name, folder) {
						return matchResult{
							kind:        MatchProjectName,
							workspace:   ws,
							projectID:   p.ID,
							projectName: p.Name,
						}
					}
				}
			}
			return matchResult{kind: MatchNone}
		},
	}

	for _, step := range steps {
		if m := step(); m.kind != MatchNone {
			return m
		}
	}
	return matchResult{kind: MatchNone}
}

// discoverProject finds or creates the project for the root folder
// inside the resolved workspace, persisting the winner.
func (r *Resolver) discoverProject(ctx context.Context, res *Resolution, root string) {
	folder := filepath.Base(root)

	projects, err := r.api.ListProjects(ctx, res.WorkspaceID)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusForbidden || apiErr.Status == http.StatusNotFound) {
			// The cached workspace is no longer accessible upstream.
			// Trust the remote answer: re-resolve from the workspace
			// list, overwrite the binding, and drop the old project id
			// — it almost certainly belonged to the old workspace.
			r.recoverWorkspace(ctx, res, root)
			return
		}
		r.log.Warn().Err(err).Str("workspace", res.WorkspaceID).Msg("project discovery skipped")
		return
	}

	// Exact name match, then partial.
	var found *api.Project
	for i := range projects {
		if strings.EqualFold(projects[i].Name, folder) {
			found = &projects[i]
			break
		}
	}
	if found == nil {
		lower := strings.ToLower(folder)
		for i := range projects {
			name := strings.ToLower(projects[i].Name)
			if name != "" && (strings.Contains(name, lower) || strings.Contains(lower, name)) {
				found = &projects[i]
				break
			}
		}
	}

	if found == nil {
		created, err := r.api.CreateProject(ctx, res.WorkspaceID, folder, root)
		if err != nil {
			r.log.Warn().Err(err).Str("workspace", res.WorkspaceID).Msg("project creation failed")
			return
		}
		found = created
	}

	res.ProjectID = found.ID
	res.ProjectName = found.Name
	r.persist(root, *res)
	r.cache.InvalidateProject(res.WorkspaceID, res.ProjectID)
}

// recoverWorkspace handles the revoked-workspace edge: the binding's
// workspace disappeared upstream. Without this the resolver would loop
// on a permanent authorization failure.
func (r *Resolver) recoverWorkspace(ctx context.Context, res *Resolution, root string) {
	oldID := res.WorkspaceID

	workspaces, err := r.api.ListWorkspaces(ctx)
	if err != nil || len(workspaces) == 0 {
		r.log.Warn().Err(err).Str("workspace", oldID).Msg("workspace recovery failed")
		return
	}

	replacement := workspaces[0]
	if m := r.matchWorkspace(ctx, root, workspaces); m.kind != MatchNone {
		replacement = m.workspace
	}

	res.WorkspaceID = replacement.ID
	res.WorkspaceName = replacement.Name
	res.ProjectID = ""
	res.ProjectName = ""
	res.Warning = "workspace " + oldID + " is no longer accessible; switched to " + replacement.Name

	// Overwrite, don't merge: the stale project id must not survive.
	r.bindings.ReplaceLocal(root, binding.Binding{
		WorkspaceID:   replacement.ID,
		WorkspaceName: replacement.Name,
	})
	r.cache.InvalidateWorkspace(oldID)

	r.mu.Lock()
	if r.defaultWorkspaceID == oldID {
		r.defaultWorkspaceID = ""
		r.defaultProjectID = ""
	}
	r.mu.Unlock()

	r.log.Warn().Str("old", oldID).Str("new", replacement.ID).Msg("binding rewritten after workspace mismatch")
}

// persist writes the winning resolution into the binding store.
func (r *Resolver) persist(root string, res Resolution) {
	if root == "" || res.WorkspaceID == "" {
		return
	}
	r.bindings.WriteLocal(root, binding.Binding{
		WorkspaceID:   res.WorkspaceID,
		WorkspaceName: res.WorkspaceName,
		ProjectID:     res.ProjectID,
		ProjectName:   res.ProjectName,
	})
}

// setDefaults records the process-default ids after a success.
func (r *Resolver) setDefaults(workspaceID, projectID string) {
	if workspaceID == "" {
		return
	}
	r.mu.Lock()
	if workspaceID != r.defaultWorkspaceID {
		// Changing workspaces invalidates the default project.
		r.defaultProjectID = ""
	}
	r.defaultWorkspaceID = workspaceID
	if projectID != "" {
		r.defaultProjectID = projectID
	}
	r.mu.Unlock()
}

// firstRoot returns the first non-empty root path.
func firstRoot(paths []string) string {
	for _, p := range paths {
		if strings.TrimSpace(p) != "" {
			return p
		}
	}
	return ""
}
