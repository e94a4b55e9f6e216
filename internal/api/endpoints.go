package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Workspace is the top-level tenant for memory, decisions, and projects.
type Workspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Project is a codebase unit inside a workspace.
type Project struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	RootPath    string `json:"root_path,omitempty"`
}

// Decision is a recorded workspace decision.
type Decision struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// MemoryHit is one result of a free-text memory search, already ranked
// by the server.
type MemoryHit struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Lesson is a lessons-learned entry with a severity level.
type Lesson struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Severity string `json:"severity"` // critical, high, medium, low
}

// IndexSnapshot is the remote search index state for one project.
type IndexSnapshot struct {
	IndexedFiles int        `json:"indexed_files"`
	LastIndexed  *time.Time `json:"last_indexed,omitempty"`
}

// CreditBalance is the account's plan and remaining credits.
type CreditBalance struct {
	Plan    string `json:"plan"`
	Credits int    `json:"credits"`
}

// IngestFile is one file payload for index ingestion.
type IngestFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// ListWorkspaces returns every workspace the account can access.
func (c *Client) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	raw, err := c.Request(ctx, "/workspaces", Options{})
	if err != nil {
		return nil, err
	}
	var out []Workspace
	if err := Unwrap(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding workspaces: %w", err)
	}
	return out, nil
}

// GetWorkspace returns one workspace by id.
func (c *Client) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	raw, err := c.Request(ctx, "/workspaces/"+url.PathEscape(id), Options{})
	if err != nil {
		return nil, err
	}
	var out Workspace
	if err := Unwrap(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding workspace %s: %w", id, err)
	}
	return &out, nil
}

// ListProjects returns the projects inside a workspace.
func (c *Client) ListProjects(ctx context.Context, workspaceID string) ([]Project, error) {
	raw, err := c.Request(ctx, "/workspaces/"+url.PathEscape(workspaceID)+"/projects", Options{})
	if err != nil {
		return nil, err
	}
	var out []Project
	if err := Unwrap(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding projects: %w", err)
	}
	return out, nil
}

// GetProject returns one project by id.
func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	raw, err := c.Request(ctx, "/projects/"+url.PathEscape(id), Options{})
	if err != nil {
		return nil, err
	}
	var out Project
	if err := Unwrap(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding project %s: %w", id, err)
	}
	return &out, nil
}

// CreateProject creates a project in a workspace. The root path is
// speculative metadata an older server may reject, so the request
// falls back to a name-only payload on a shape mismatch.
func (c *Client) CreateProject(ctx context.Context, workspaceID, name, rootPath string) (*Project, error) {
	type createReq struct {
		Name     string `json:"name"`
		RootPath string `json:"root_path,omitempty"`
	}
	full := createReq{Name: name, RootPath: rootPath}
	minimal := createReq{Name: name}

	raw, err := c.RequestWithFallback(ctx,
		"/workspaces/"+url.PathEscape(workspaceID)+"/projects",
		http.MethodPost, full, minimal)
	if err != nil {
		return nil, err
	}
	var out Project
	if err := Unwrap(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding created project: %w", err)
	}
	return &out, nil
}

// RecentDecisions returns the newest decisions in a workspace.
func (c *Client) RecentDecisions(ctx context.Context, workspaceID string, limit int) ([]Decision, error) {
	path := "/workspaces/" + url.PathEscape(workspaceID) + "/decisions?limit=" + strconv.Itoa(limit)
	raw, err := c.Request(ctx, path, Options{})
	if err != nil {
		return nil, err
	}
	var out []Decision
	if err := Unwrap(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding decisions: %w", err)
	}
	return out, nil
}

// SearchMemories runs a free-text memory search. Results arrive
// ranked — the caller keeps their order.
func (c *Client) SearchMemories(ctx context.Context, workspaceID, query string, limit int) ([]MemoryHit, error) {
	body := map[string]any{"query": query, "limit": limit}
	raw, err := c.Request(ctx, "/workspaces/"+url.PathEscape(workspaceID)+"/memory/search",
		Options{Method: http.MethodPost, Body: body})
	if err != nil {
		return nil, err
	}
	var out []MemoryHit
	if err := Unwrap(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding memory hits: %w", err)
	}
	return out, nil
}

// ListLessons returns the lessons-learned entries for a workspace.
func (c *Client) ListLessons(ctx context.Context, workspaceID string) ([]Lesson, error) {
	raw, err := c.Request(ctx, "/workspaces/"+url.PathEscape(workspaceID)+"/lessons", Options{})
	if err != nil {
		return nil, err
	}
	var out []Lesson
	if err := Unwrap(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding lessons: %w", err)
	}
	return out, nil
}

// IndexStatus returns the search index snapshot for a project.
func (c *Client) IndexStatus(ctx context.Context, projectID string) (*IndexSnapshot, error) {
	raw, err := c.Request(ctx, "/projects/"+url.PathEscape(projectID)+"/index/status", Options{})
	if err != nil {
		return nil, err
	}
	var out IndexSnapshot
	if err := Unwrap(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding index status: %w", err)
	}
	return &out, nil
}

// IngestFiles uploads one batch of file contents into the project's
// search index.
func (c *Client) IngestFiles(ctx context.Context, projectID string, batch []IngestFile) error {
	body := map[string]any{"files": batch}
	_, err := c.Request(ctx, "/projects/"+url.PathEscape(projectID)+"/index/ingest",
		Options{Method: http.MethodPost, Body: body})
	return err
}

// SearchCode runs a code search against the project index.
func (c *Client) SearchCode(ctx context.Context, projectID, query string, limit int) ([]MemoryHit, error) {
	body := map[string]any{"query": query, "limit": limit}
	raw, err := c.Request(ctx, "/projects/"+url.PathEscape(projectID)+"/index/search",
		Options{Method: http.MethodPost, Body: body})
	if err != nil {
		return nil, err
	}
	var out []MemoryHit
	if err := Unwrap(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding code hits: %w", err)
	}
	return out, nil
}

// MemoryStats is aggregate memory information for a workspace.
type MemoryStats struct {
	Total int `json:"total"`
}

// GetMemoryStats returns aggregate memory counts for a workspace.
func (c *Client) GetMemoryStats(ctx context.Context, workspaceID string) (*MemoryStats, error) {
	raw, err := c.Request(ctx, "/workspaces/"+url.PathEscape(workspaceID)+"/memory/stats", Options{})
	if err != nil {
		return nil, err
	}
	var out MemoryStats
	if err := Unwrap(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding memory stats: %w", err)
	}
	return &out, nil
}

// GetCreditBalance returns the account's plan and remaining credits.
func (c *Client) GetCreditBalance(ctx context.Context) (*CreditBalance, error) {
	raw, err := c.Request(ctx, "/account/credits", Options{})
	if err != nil {
		return nil, err
	}
	var out CreditBalance
	if err := Unwrap(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding credit balance: %w", err)
	}
	return &out, nil
}
