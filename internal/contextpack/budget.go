package contextpack

import (
	"context"
	"strings"
)

// Fixed budget shares for WithBudget. Decisions get first claim,
// memory second; code search fills headroom only when the reserved
// sources left at least 20% of the budget unused.
const (
	decisionShare   = 0.40
	memoryShare     = 0.30
	headroomCutoff  = 0.80
	codeSearchLimit = 5
)

// WithBudget packs context with a fixed per-source priority instead of
// ranking every source together: callers pick this entry point when
// they want reserved shares per source type. Output is line-oriented.
func (p *Packer) WithBudget(ctx context.Context, scope Scope, message string, budget int) Result {
	if budget <= 0 {
		budget = DefaultBudget
	}
	charBudget := budget * charsPerToken

	var (
		lines []string
		used  int
		errs  []string
	)
	add := func(line string, limit int) bool {
		if used+len(line)+1 > limit {
			return false
		}
		lines = append(lines, line)
		used += len(line) + 1
		return true
	}

	// Decisions: up to 40% of the budget.
	decisionCap := int(float64(charBudget) * decisionShare)
	if scope.WorkspaceID != "" {
		decisions, err := p.api.RecentDecisions(ctx, scope.WorkspaceID, decisionLimit)
		if err != nil {
			errs = append(errs, "decisions: "+err.Error())
		} else if len(decisions) > 0 {
			add("## Decisions", decisionCap)
			for _, d := range decisions {
				if !add("- "+flatten(d.Title), decisionCap) {
					break
				}
			}
		}
	}

	// Memory: the next 30%.
	memoryCap := used + int(float64(charBudget)*memoryShare)
	if memoryCap > charBudget {
		memoryCap = charBudget
	}
	if scope.WorkspaceID != "" && message != "" {
		hits, err := p.api.SearchMemories(ctx, scope.WorkspaceID, message, memoryLimit)
		if err != nil {
			errs = append(errs, "memory: "+err.Error())
		} else if len(hits) > 0 {
			add("## Memory", memoryCap)
			for _, h := range hits {
				value := h.Title
				if value == "" {
					value = h.Snippet
				}
				if !add("- "+flatten(value), memoryCap) {
					break
				}
			}
		}
	}

	// Code search: only when the reserved sources left real headroom.
	if scope.ProjectID != "" && message != "" && float64(used) <= float64(charBudget)*headroomCutoff {
		hits, err := p.api.SearchCode(ctx, scope.ProjectID, message, codeSearchLimit)
		if err != nil {
			errs = append(errs, "code: "+err.Error())
		} else if len(hits) > 0 {
			add("## Code", charBudget)
			for _, h := range hits {
				line := h.Title
				if h.Snippet != "" {
					line += " — " + flatten(h.Snippet)
				}
				if !add("- "+line, charBudget) {
					break
				}
			}
		}
	}

	output := strings.Join(lines, "\n")
	items := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "- ") {
			items++
		}
	}
	return Result{
		Context:       output,
		TokenEstimate: estimateTokens(output),
		Format:        FormatReadable,
		SourcesUsed:   items,
		Errors:        errs,
	}
}

// flatten collapses a value onto one line.
func flatten(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
