package retrieval

import (
	"fmt"
	"sort"
	"strings"
)

// TopEvidence is one retrieved document the reasoning trace highlights.
type TopEvidence struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Source string `json:"source"`
	Why    string `json:"why"`
}

// Reasoning explains which tiers ran, what they found and what ended up
// in the bundle.
type Reasoning struct {
	Query              string         `json:"query"`
	RequestedProjectID string         `json:"requested_project_id"`
	EffectiveProjectID string         `json:"effective_project_id"`
	ProjectScope       string         `json:"project_scope"`
	ScopeProjectIDs    []string       `json:"scope_project_ids"`
	RetrievalSteps     []string       `json:"retrieval_steps"`
	HitCounts          map[string]int `json:"hit_counts"`
	SelectedCounts     map[string]int `json:"selected_counts"`
	SourcesInContext   []string       `json:"sources_in_context"`
	SourceBreakdown    map[string]int `json:"source_breakdown"`
	ProjectsInContext  []string       `json:"projects_in_context"`
	ProjectBreakdown   map[string]int `json:"project_breakdown"`
	TopEvidence        []TopEvidence  `json:"top_evidence"`
	MissingContext     []string       `json:"missing_context"`
}

func sourceBreakdown(g Groups) map[string]int {
	counts := map[string]int{}
	for _, s := range g.Sessions {
		if s.Source != "" {
			counts[s.Source]++
		}
	}
	for _, m := range g.Messages {
		if m.SessionSource != "" {
			counts[m.SessionSource]++
		}
	}
	return counts
}

func projectBreakdown(g Groups) map[string]int {
	counts := map[string]int{}
	for _, s := range g.Sessions {
		if s.ProjectID != "" {
			counts[s.ProjectID]++
		}
	}
	for _, m := range g.Messages {
		pid := m.SessionProjectID
		if pid == "" {
			pid = m.ProjectID
		}
		if pid != "" {
			counts[pid]++
		}
	}
	return counts
}

func sortedKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func topEvidence(g Groups, maxItems int) []TopEvidence {
	var out []TopEvidence
	for _, s := range g.Sessions {
		out = append(out, TopEvidence{
			Type: "session", ID: s.ID, Source: s.Source,
			Why: Truncate(fmt.Sprintf("title=%s summary=%s", s.Title, s.Summary), 140),
		})
	}
	for _, m := range g.Messages {
		out = append(out, TopEvidence{
			Type: "message", ID: m.ID, Source: m.SessionSource,
			Why: Truncate(m.TextExcerpt, 140),
		})
	}
	for _, d := range g.Decisions {
		out = append(out, TopEvidence{
			Type: "decision", ID: d.ID, Source: "knowledge",
			Why: Truncate(d.Title+": "+d.Description, 140),
		})
	}
	for _, b := range g.Bugs {
		out = append(out, TopEvidence{
			Type: "bug", ID: b.ID, Source: "knowledge",
			Why: Truncate(b.Title+": "+b.Description, 140),
		})
	}
	if len(out) > maxItems {
		out = out[:maxItems]
	}
	return out
}

// BuildReasoning assembles the reasoning trace for a finished retrieval.
func BuildReasoning(query, requestedProjectID, effectiveProjectID, projectScope string,
	scopeProjectIDs []string, primaryHits, kvHits, rawHits int, g Groups) Reasoning {

	var missing []string
	for _, section := range []struct {
		name  string
		empty bool
	}{
		{"sessions", len(g.Sessions) == 0},
		{"messages", len(g.Messages) == 0},
		{"decisions", len(g.Decisions) == 0},
		{"bugs", len(g.Bugs) == 0},
		{"patterns", len(g.Patterns) == 0},
	} {
		if section.empty {
			missing = append(missing, section.name)
		}
	}

	sources := sourceBreakdown(g)
	projects := projectBreakdown(g)
	return Reasoning{
		Query:              query,
		RequestedProjectID: requestedProjectID,
		EffectiveProjectID: effectiveProjectID,
		ProjectScope:       projectScope,
		ScopeProjectIDs:    scopeProjectIDs,
		RetrievalSteps: []string{
			"semantic_search",
			"file_path_fts",
			"kv_semantic_fallback",
			"raw_chat_fallback",
		},
		HitCounts: map[string]int{
			"primary_semantic_fts": primaryHits,
			"kv_semantic_fallback": kvHits,
			"raw_chat_fallback":    rawHits,
		},
		SelectedCounts: map[string]int{
			"sessions":  len(g.Sessions),
			"messages":  len(g.Messages),
			"decisions": len(g.Decisions),
			"bugs":      len(g.Bugs),
			"patterns":  len(g.Patterns),
			"thoughts":  len(g.Thoughts),
		},
		SourcesInContext:  sortedKeys(sources),
		SourceBreakdown:   sources,
		ProjectsInContext: sortedKeys(projects),
		ProjectBreakdown:  projects,
		TopEvidence:       topEvidence(g, 5),
		MissingContext:    missing,
	}
}

// RenderReasoningText lays the reasoning trace out as bullet text.
func RenderReasoningText(r Reasoning) string {
	scopeList := "all projects"
	if len(r.ScopeProjectIDs) > 0 {
		scopeList = strings.Join(r.ScopeProjectIDs, ", ")
	}
	lines := []string{
		"- Effective project: " + r.EffectiveProjectID,
		fmt.Sprintf("- Project scope: %s (%s)", r.ProjectScope, scopeList),
		"- Retrieval steps: " + strings.Join(r.RetrievalSteps, ", "),
		fmt.Sprintf("- Hit counts: primary=%d, kv_semantic=%d, raw_chat=%d",
			r.HitCounts["primary_semantic_fts"],
			r.HitCounts["kv_semantic_fallback"],
			r.HitCounts["raw_chat_fallback"]),
		"- Sources: " + orNone(strings.Join(r.SourcesInContext, ", ")),
		"- Projects in context: " + orNone(strings.Join(r.ProjectsInContext, ", ")),
		fmt.Sprintf("- Selected: sessions=%d, messages=%d, decisions=%d, bugs=%d, patterns=%d",
			r.SelectedCounts["sessions"],
			r.SelectedCounts["messages"],
			r.SelectedCounts["decisions"],
			r.SelectedCounts["bugs"],
			r.SelectedCounts["patterns"]),
	}
	if len(r.MissingContext) > 0 {
		lines = append(lines, "- Missing context: "+strings.Join(r.MissingContext, ", "))
	}
	if len(r.TopEvidence) > 0 {
		lines = append(lines, "- Top evidence:")
		for _, ev := range r.TopEvidence {
			lines = append(lines, fmt.Sprintf("  - [%s|%s] %s", ev.Type, ev.Source, ev.Why))
		}
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
