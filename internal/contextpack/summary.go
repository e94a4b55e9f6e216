package contextpack

import (
	"context"
	"fmt"
	"strings"
)

const (
	summaryDecisions   = 3
	summaryPreferences = 3
)

// Summary produces a fixed-structure human-readable digest: workspace,
// project, top decisions, preference snippets, and the memory count.
// Truncation to the budget drops whole lines from the end, never
// mid-line.
func (p *Packer) Summary(ctx context.Context, scope Scope, budget int) Result {
	if budget <= 0 {
		budget = DefaultBudget
	}
	charBudget := budget * charsPerToken

	var lines []string
	var errs []string

	workspace := scope.WorkspaceName
	if workspace == "" {
		workspace = scope.WorkspaceID
	}
	if workspace != "" {
		lines = append(lines, "Workspace: "+workspace)
	}
	if scope.ProjectName != "" {
		lines = append(lines, "Project: "+scope.ProjectName)
	}

	if scope.WorkspaceID != "" {
		decisions, err := p.api.RecentDecisions(ctx, scope.WorkspaceID, summaryDecisions)
		if err != nil {
			errs = append(errs, "decisions: "+err.Error())
		} else if len(decisions) > 0 {
			lines = append(lines, "Recent decisions:")
			for _, d := range decisions {
				lines = append(lines, "- "+flatten(d.Title))
			}
		}

		prefs, err := p.api.SearchMemories(ctx, scope.WorkspaceID, "preference convention style", summaryPreferences)
		if err != nil {
			errs = append(errs, "preferences: "+err.Error())
		} else if len(prefs) > 0 {
			lines = append(lines, "Preferences:")
			for _, h := range prefs {
				value := h.Title
				if value == "" {
					value = h.Snippet
				}
				lines = append(lines, "- "+flatten(value))
			}
		}

		stats, err := p.api.GetMemoryStats(ctx, scope.WorkspaceID)
		if err != nil {
			errs = append(errs, "memory stats: "+err.Error())
		} else {
			lines = append(lines, fmt.Sprintf("Memories: %d", stats.Total))
		}
	}

	// Drop whole trailing lines until the digest fits.
	output := strings.Join(lines, "\n")
	for len(output) > charBudget && len(lines) > 0 {
		lines = lines[:len(lines)-1]
		output = strings.Join(lines, "\n")
	}

	return Result{
		Context:       output,
		TokenEstimate: estimateTokens(output),
		Format:        FormatReadable,
		SourcesUsed:   len(lines),
		Errors:        errs,
	}
}
