// Package contextpack assembles a token-bounded context payload from
// several independent, unreliable sources. Sources are fetched with
// all-settled semantics — one failing branch never aborts the others —
// then scored, ranked, and packed whole-item into the budget in a
// caller-selectable serialization.
package contextpack

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/contextstream/contextstream-mcp/internal/api"
	"github.com/contextstream/contextstream-mcp/internal/cache"
)

const (
	// DefaultBudget is the default token budget for smart context.
	DefaultBudget = 800
	// charsPerToken is the token estimation heuristic.
	charsPerToken = 4

	decisionLimit = 10
	memoryLimit   = 8
)

// ItemType classifies a context fragment.
type ItemType string

const (
	TypeWorkspace ItemType = "workspace"
	TypeProject   ItemType = "project"
	TypeDecision  ItemType = "decision"
	TypeMemory    ItemType = "memory"
	TypeLesson    ItemType = "lesson"
)

// Item is one candidate context fragment. Ephemeral: constructed fresh
// per invocation, ranked, then discarded after serialization.
type Item struct {
	Type      ItemType
	Value     string
	Relevance float64
}

// Scope identifies whose context is being packed.
type Scope struct {
	WorkspaceID   string
	WorkspaceName string
	ProjectID     string
	ProjectName   string
}

// Result is a packed context payload plus metadata about what made it in.
type Result struct {
	Context       string   `json:"context"`
	TokenEstimate int      `json:"token_estimate"`
	Format        Format   `json:"format"`
	SourcesUsed   int      `json:"sources_used"`
	Errors        []string `json:"errors,omitempty"`
}

// API is the slice of the remote client the packer needs.
type API interface {
	GetWorkspace(ctx context.Context, id string) (*api.Workspace, error)
	GetProject(ctx context.Context, id string) (*api.Project, error)
	RecentDecisions(ctx context.Context, workspaceID string, limit int) ([]api.Decision, error)
	SearchMemories(ctx context.Context, workspaceID, query string, limit int) ([]api.MemoryHit, error)
	ListLessons(ctx context.Context, workspaceID string) ([]api.Lesson, error)
	SearchCode(ctx context.Context, projectID, query string, limit int) ([]api.MemoryHit, error)
	GetMemoryStats(ctx context.Context, workspaceID string) (*api.MemoryStats, error)
}

// Packer builds context payloads.
type Packer struct {
	api   API
	cache *cache.Cache
	log   zerolog.Logger
}

// New creates a Packer.
func New(client API, c *cache.Cache, log zerolog.Logger) *Packer {
	return &Packer{api: client, cache: c, log: log}
}

// Smart builds the relevance-ranked context payload for a user message.
// A budget of 0 uses DefaultBudget. Per-source failures degrade to
// partial output and are reported in Result.Errors.
func (p *Packer) Smart(ctx context.Context, scope Scope, message string, budget int, format Format) Result {
	if budget <= 0 {
		budget = DefaultBudget
	}
	keywords := ExtractKeywords(message)

	// Fan-out slots. Each branch fills exactly its own slot and
	// records its failure instead of returning it, so the errgroup
	// never cancels sibling fetches.
	var (
		identity  []Item
		project   []Item
		decisions []Item
		memories  []Item
		lessons   []Item
		fetchErrs = make([]string, 5)
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		identity = p.fetchIdentity(gctx, scope)
		return nil
	})
	g.Go(func() error {
		var err error
		project, err = p.fetchProject(gctx, scope)
		if err != nil {
			fetchErrs[1] = "project: " + err.Error()
		}
		return nil
	})
	g.Go(func() error {
		var err error
		decisions, err = p.fetchDecisions(gctx, scope, keywords)
		if err != nil {
			fetchErrs[2] = "decisions: " + err.Error()
		}
		return nil
	})
	g.Go(func() error {
		var err error
		memories, err = p.fetchMemories(gctx, scope, message)
		if err != nil {
			fetchErrs[3] = "memory: " + err.Error()
		}
		return nil
	})
	g.Go(func() error {
		var err error
		lessons, err = p.fetchLessons(gctx, scope)
		if err != nil {
			fetchErrs[4] = "lessons: " + err.Error()
		}
		return nil
	})
	_ = g.Wait()

	// Fetch order is the tie-break order: identity, project,
	// decisions, memory, lessons.
	items := make([]Item, 0, len(identity)+len(project)+len(decisions)+len(memories)+len(lessons))
	items = append(items, identity...)
	items = append(items, project...)
	items = append(items, decisions...)
	items = append(items, memories...)
	items = append(items, lessons...)

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Relevance > items[j].Relevance
	})

	output := serialize(items, budget*charsPerToken, format, scope.WorkspaceID != "")

	used := 0
	for _, item := range items {
		if itemIncluded(output, item, format) {
			used++
		}
	}

	var errs []string
	for _, e := range fetchErrs {
		if e != "" {
			errs = append(errs, e)
		}
	}
	if len(errs) > 0 {
		p.log.Debug().Strs("errors", errs).Msg("context sources degraded")
	}

	return Result{
		Context:       output,
		TokenEstimate: estimateTokens(output),
		Format:        format,
		SourcesUsed:   used,
		Errors:        errs,
	}
}

// fetchIdentity returns the workspace identity item. Identity is never
// absent from output: a failed fetch degrades to a synthetic
// placeholder at half relevance.
func (p *Packer) fetchIdentity(ctx context.Context, scope Scope) []Item {
	if scope.WorkspaceID == "" {
		return nil
	}
	name := scope.WorkspaceName
	if name == "" {
		ws, ok := cache.Get[*api.Workspace](p.cache, cache.WorkspaceKey(scope.WorkspaceID))
		if !ok {
			var err error
			ws, err = p.api.GetWorkspace(ctx, scope.WorkspaceID)
			if err != nil {
				return []Item{{
					Type:      TypeWorkspace,
					Value:     "workspace " + scope.WorkspaceID,
					Relevance: 0.5,
				}}
			}
			p.cache.Set(cache.WorkspaceKey(scope.WorkspaceID), ws, cache.MetadataTTL)
		}
		name = ws.Name
	}
	return []Item{{Type: TypeWorkspace, Value: name, Relevance: 1.0}}
}

// fetchProject returns the project identity item, best-effort.
func (p *Packer) fetchProject(ctx context.Context, scope Scope) ([]Item, error) {
	if scope.ProjectID == "" {
		return nil, nil
	}
	name := scope.ProjectName
	if name == "" {
		proj, ok := cache.Get[*api.Project](p.cache, cache.ProjectKey(scope.ProjectID))
		if !ok {
			var err error
			proj, err = p.api.GetProject(ctx, scope.ProjectID)
			if err != nil {
				return nil, err
			}
			p.cache.Set(cache.ProjectKey(scope.ProjectID), proj, cache.MetadataTTL)
		}
		name = proj.Name
	}
	return []Item{{Type: TypeProject, Value: name, Relevance: 0.9}}, nil
}

// fetchDecisions returns recent decisions scored by keyword overlap
// against title and content.
func (p *Packer) fetchDecisions(ctx context.Context, scope Scope, keywords []string) ([]Item, error) {
	if scope.WorkspaceID == "" {
		return nil, nil
	}
	decisions, err := p.api.RecentDecisions(ctx, scope.WorkspaceID, decisionLimit)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(decisions))
	for _, d := range decisions {
		items = append(items, Item{
			Type:      TypeDecision,
			Value:     d.Title,
			Relevance: scoreOverlap(keywords, d.Title+" "+d.Content),
		})
	}
	return items, nil
}

// fetchMemories returns free-text search hits at fixed relevance —
// the server already ranked them.
func (p *Packer) fetchMemories(ctx context.Context, scope Scope, message string) ([]Item, error) {
	if scope.WorkspaceID == "" || message == "" {
		return nil, nil
	}
	hits, err := p.api.SearchMemories(ctx, scope.WorkspaceID, message, memoryLimit)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(hits))
	for _, h := range hits {
		value := h.Title
		if value == "" {
			value = h.Snippet
		}
		items = append(items, Item{Type: TypeMemory, Value: value, Relevance: 0.8})
	}
	return items, nil
}

// fetchLessons returns high-priority lessons. Lessons below "high"
// severity are excluded entirely — a deliberate filter, noise below
// that level costs more budget than it earns.
func (p *Packer) fetchLessons(ctx context.Context, scope Scope) ([]Item, error) {
	if scope.WorkspaceID == "" {
		return nil, nil
	}
	lessons, err := p.api.ListLessons(ctx, scope.WorkspaceID)
	if err != nil {
		return nil, err
	}
	var items []Item
	for _, l := range lessons {
		switch l.Severity {
		case "critical":
			items = append(items, Item{Type: TypeLesson, Value: l.Title, Relevance: 1.0})
		case "high":
			items = append(items, Item{Type: TypeLesson, Value: l.Title, Relevance: 0.9})
		}
	}
	return items, nil
}

// estimateTokens approximates the token count of s as ceil(len/4).
func estimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}
