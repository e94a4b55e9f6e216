// Package session is the top-level entry point that sequences binding
// resolution, index freshness, and context packing once per
// conversation, and serves smart context on every subsequent turn.
package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/contextstream/contextstream-mcp/internal/api"
	"github.com/contextstream/contextstream-mcp/internal/cache"
	"github.com/contextstream/contextstream-mcp/internal/contextpack"
	"github.com/contextstream/contextstream-mcp/internal/freshness"
	"github.com/contextstream/contextstream-mcp/internal/resolver"
)

const decisionPreviewLimit = 3

// API is the slice of the remote client the orchestrator itself needs;
// everything else goes through the composed components.
type API interface {
	RecentDecisions(ctx context.Context, workspaceID string, limit int) ([]api.Decision, error)
	GetCreditBalance(ctx context.Context) (*api.CreditBalance, error)
}

// InitOptions is the session_init input.
type InitOptions struct {
	WorkspaceID     string
	ProjectID       string
	RootPaths       []string
	AllowUnresolved bool
}

// InitResult is everything a fresh conversation needs in one response.
type InitResult struct {
	Resolution     resolver.Resolution             `json:"resolution"`
	Recommendation *freshness.IngestRecommendation `json:"index,omitempty"`
	Decisions      []api.Decision                  `json:"recent_decisions,omitempty"`
	Credits        *api.CreditBalance              `json:"credits,omitempty"`
	Errors         []string                        `json:"errors,omitempty"`
}

// Orchestrator composes the resolver, freshness monitor, and packer
// around one SessionState per client instance.
type Orchestrator struct {
	api      API
	resolver *resolver.Resolver
	monitor  *freshness.Monitor
	packer   *contextpack.Packer
	cache    *cache.Cache
	state    *freshness.SessionState
	log      zerolog.Logger
}

// New creates an Orchestrator.
func New(client API, r *resolver.Resolver, m *freshness.Monitor, p *contextpack.Packer, c *cache.Cache, state *freshness.SessionState, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		api:      client,
		resolver: r,
		monitor:  m,
		packer:   p,
		cache:    c,
		state:    state,
		log:      log,
	}
}

// InitSession resolves the session's workspace and project, kicks off
// an index refresh when the index is missing or stale, and assembles
// the compact snapshot the assistant needs to start the conversation.
// Unresolvable bindings come back as ask-the-user results, never as
// errors.
func (o *Orchestrator) InitSession(ctx context.Context, opts InitOptions) *InitResult {
	res := o.resolver.Resolve(ctx, resolver.Input{
		WorkspaceID:     opts.WorkspaceID,
		ProjectID:       opts.ProjectID,
		RootPaths:       opts.RootPaths,
		AllowUnresolved: opts.AllowUnresolved,
	})
	if res.Status != resolver.StatusResolved {
		return &InitResult{Resolution: res}
	}

	root := ""
	for _, p := range opts.RootPaths {
		if p != "" {
			root = p
			break
		}
	}
	o.state.Begin(res.ProjectID, root)

	key := cache.SessionInitKey(res.WorkspaceID, res.ProjectID)
	if cached, ok := cache.Get[*InitResult](o.cache, key); ok {
		// Identity changes between init calls (the resolver may have
		// rewritten the binding), so only the remote snapshot parts
		// are reused.
		result := *cached
		result.Resolution = res
		return &result
	}

	result := &InitResult{Resolution: res}

	// First-prompt freshness rule: only missing or stale indexes
	// trigger an automatic refresh here. The 1–24h band waits for the
	// long-session path.
	var plainRec *freshness.IngestRecommendation
	if res.ProjectID != "" && root != "" {
		rec, err := o.monitor.Check(ctx, res.ProjectID, root)
		if err != nil {
			result.Errors = append(result.Errors, "index status: "+err.Error())
		} else {
			plainRec = rec
			result.Recommendation = rec
			if rec.Recommended {
				snapshot := &api.IndexSnapshot{
					IndexedFiles: rec.IndexedFiles,
					LastIndexed:  rec.LastIndexed,
				}
				if o.monitor.StartBackgroundRefresh(res.ProjectID, root, snapshot) != nil {
					started := *rec
					started.Status = freshness.StatusAutoStarted
					started.Reason = fmt.Sprintf("%s; ingestion started in the background", started.Reason)
					result.Recommendation = &started
				}
			}
		}
	}

	if res.WorkspaceID != "" {
		decisions, err := o.api.RecentDecisions(ctx, res.WorkspaceID, decisionPreviewLimit)
		if err != nil {
			result.Errors = append(result.Errors, "decisions: "+err.Error())
		} else {
			result.Decisions = decisions
		}
	}

	if credits, ok := cache.Get[*api.CreditBalance](o.cache, cache.CreditBalanceKey()); ok {
		result.Credits = credits
	} else if credits, err := o.api.GetCreditBalance(ctx); err == nil {
		result.Credits = credits
		o.cache.Set(cache.CreditBalanceKey(), credits, cache.CreditBalanceTTL)
	}

	// The auto-start annotation describes this call only. A replayed
	// snapshot must not claim a fresh ingest started, so the cached
	// copy keeps the unannotated recommendation.
	cached := *result
	cached.Recommendation = plainRec
	o.cache.Set(key, &cached, cache.SessionInitTTL)
	return result
}

// scope derives the packer scope from the current resolution defaults,
// seeding them from the session root when no init has run yet.
func (o *Orchestrator) scope(ctx context.Context) contextpack.Scope {
	workspaceID, projectID := o.resolver.Defaults()
	if workspaceID == "" {
		_, root := o.state.Project()
		if root != "" {
			res := o.resolver.Resolve(ctx, resolver.Input{
				RootPaths:       []string{root},
				AllowUnresolved: true,
			})
			workspaceID, projectID = res.WorkspaceID, res.ProjectID
		}
	}
	return contextpack.Scope{WorkspaceID: workspaceID, ProjectID: projectID}
}

// SmartContext serves one turn's context payload. It also runs the
// throttled periodic freshness check; on this path the 1–24h band is
// refresh-worthy.
func (o *Orchestrator) SmartContext(ctx context.Context, message string, budget int, format contextpack.Format) contextpack.Result {
	o.monitor.MaybePeriodicRefresh()
	return o.packer.Smart(ctx, o.scope(ctx), message, budget, format)
}

// BudgetContext serves the fixed-share packing entry point.
func (o *Orchestrator) BudgetContext(ctx context.Context, message string, budget int) contextpack.Result {
	return o.packer.WithBudget(ctx, o.scope(ctx), message, budget)
}

// SummaryContext serves the coarse human-readable digest.
func (o *Orchestrator) SummaryContext(ctx context.Context, budget int) contextpack.Result {
	scope := o.scope(ctx)
	if scope.WorkspaceID != "" {
		// Names improve the digest; the resolver only tracks ids.
		if ws, ok := cache.Get[*api.Workspace](o.cache, cache.WorkspaceKey(scope.WorkspaceID)); ok {
			scope.WorkspaceName = ws.Name
		}
		if scope.ProjectID != "" {
			if proj, ok := cache.Get[*api.Project](o.cache, cache.ProjectKey(scope.ProjectID)); ok {
				scope.ProjectName = proj.Name
			}
		}
	}
	return o.packer.Summary(ctx, scope, budget)
}

// IndexCheck exposes the freshness recommendation for a project.
func (o *Orchestrator) IndexCheck(ctx context.Context, projectID, folderPath string, autoStart bool) (*freshness.IngestRecommendation, error) {
	if projectID == "" {
		_, projectID = o.resolver.Defaults()
	}
	if projectID == "" {
		projectID, _ = o.state.Project()
	}
	if projectID == "" {
		return nil, fmt.Errorf("no project resolved; run session_init first")
	}
	if folderPath == "" {
		_, folderPath = o.state.Project()
	}

	rec, err := o.monitor.Check(ctx, projectID, folderPath)
	if err != nil {
		return nil, err
	}
	if autoStart && rec.Recommended && folderPath != "" {
		snapshot := &api.IndexSnapshot{IndexedFiles: rec.IndexedFiles, LastIndexed: rec.LastIndexed}
		if o.monitor.StartBackgroundRefresh(projectID, folderPath, snapshot) != nil {
			rec.Status = freshness.StatusAutoStarted
			rec.Reason = fmt.Sprintf("%s; ingestion started in the background", rec.Reason)
		}
	}
	return rec, nil
}
