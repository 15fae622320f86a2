package retrieval

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cserp440/couch-context/internal/scope"
)

// ContextParams are the inputs of a full context build.
type ContextParams struct {
	Query            string
	Scope            scope.Request
	FilePaths        []string
	Limit            int
	PerTypeLimit     int
	IncludeMessages  bool
	MessageLimit     int
	MaxContextTokens int
}

func (p *ContextParams) applyDefaults() {
	if p.Limit <= 0 {
		p.Limit = 12
	}
	if p.PerTypeLimit <= 0 {
		p.PerTypeLimit = 6
	}
	if p.MessageLimit <= 0 {
		p.MessageLimit = 20
	}
	if p.MaxContextTokens <= 0 {
		p.MaxContextTokens = 2000
	}
}

// Bundle is the full context pack returned to the caller.
type Bundle struct {
	Query                    string         `json:"query"`
	ProjectID                string         `json:"project_id"`
	RequestedProjectID       string         `json:"requested_project_id"`
	ProjectScope             string         `json:"project_scope"`
	ScopeProjectIDs          []string       `json:"scope_project_ids"`
	RelatedProjectIDs        []string       `json:"related_project_ids"`
	IncludeAllProjects       bool           `json:"include_all_projects"`
	FilePaths                []string       `json:"file_paths"`
	ToolCallsInContext       []string       `json:"tool_calls_in_context"`
	SkillsInContext          []string       `json:"skills_in_context"`
	SubagentsInContext       []string       `json:"subagents_in_context"`
	Context                  Groups         `json:"context"`
	SourcesInContext         []string       `json:"sources_in_context"`
	ProjectsInContext        []string       `json:"projects_in_context"`
	ContextReasoning         Reasoning      `json:"context_reasoning"`
	ContextReasoningText     string         `json:"context_reasoning_text"`
	ProjectContext           map[string]any `json:"project_context"`
	ContextText              string         `json:"context_text"`
	RawContextText           string         `json:"raw_context_text"`
	ContextTextTokenEstimate int            `json:"context_text_token_estimate"`
	LLMContext               string         `json:"llm_context"`
	LLMContextTokenEstimate  int            `json:"llm_context_token_estimate"`
	ResponseTokenEstimate    int            `json:"response_token_estimate"`
	MaxContextTokens         int            `json:"max_context_tokens"`
}

// ContextForRequest runs the whole pipeline for one task: primary search,
// file-path boosts, the keyword tier when semantic recall is thin, the
// raw chat floor, then merge, group, compact and synthesize.
func (e *Engine) ContextForRequest(ctx context.Context, p ContextParams) (*Bundle, error) {
	p.applyDefaults()
	resolved := e.ResolveScope(p.Scope)

	effectiveRelated := p.Scope.RelatedProjectIDs
	if effectiveRelated == nil {
		effectiveRelated = e.scope.RelatedProjectIDs
	}
	effectiveRelated = scope.NormalizeIDs(effectiveRelated, e.scope.DefaultProjectID)

	paths := append([]string{}, p.FilePaths...)
	paths = append(paths, ExtractPathTokens(p.Query)...)

	primary, err := e.Search(ctx, SearchParams{Query: p.Query, Scope: p.Scope, Limit: p.Limit})
	if err != nil {
		return nil, err
	}
	results := append([]Item{}, primary.Results...)
	primaryHits := len(results)

	for _, path := range paths {
		hits := e.FilePathSearch(ctx, path, maxInt(3, p.Limit/2))
		for _, hit := range hits {
			if MatchesScope(hit.Doc, resolved) {
				results = append(results, hit)
			}
		}
	}

	// Expand with the keyword tier only when the semantic tiers came back
	// thin. Broad phrasing and sparse indexes both land here.
	kvHits := 0
	if len(results) < maxInt(4, p.Limit/2) {
		if terms := ExtractQueryTerms(p.Query); len(terms) > 0 {
			kvResp, err := e.KeywordSemanticSearch(ctx, KeywordSearchParams{
				Terms:              terms,
				Scope:              p.Scope,
				Limit:              maxInt(p.Limit*2, 12),
				PerCollectionLimit: maxInt(6, p.PerTypeLimit),
			})
			if err != nil {
				e.log.Warn("keyword fallback failed", zap.Error(err))
			} else {
				for i := range kvResp.Results {
					if kvResp.Results[i].Score == 0 {
						kvResp.Results[i].Score = e.tuning.KVMissingScore
					}
					if kvResp.Results[i].Str("source") == "" {
						kvResp.Results[i].Doc["source"] = SourceKVFallback
					}
				}
				kvHits = len(kvResp.Results)
				results = append(results, kvResp.Results...)
			}
		}
	}

	raw := e.RawChatFallback(ctx, p.Query, resolved, p.Limit)
	rawHits := len(raw)
	results = append(results, raw...)

	results = FilterScope(Dedupe(results), resolved)
	grouped := Group(results, p.PerTypeLimit)
	if !p.IncludeMessages {
		grouped.Messages = nil
	} else if len(grouped.Messages) > p.MessageLimit {
		grouped.Messages = grouped.Messages[:p.MessageLimit]
	}

	toolNames, skills, subagents := messageSignals(grouped.Messages)

	projectContext := e.ProjectContext(ctx, ProjectContextParams{
		ProjectID:   resolved.ProjectID,
		MaxSessions: 5, MaxDecisions: 5, MaxBugs: 5, MaxPatterns: 5,
	})

	rawContextText := RenderContextText(grouped, p.Query)
	reasoning := BuildReasoning(p.Query, p.Scope.ProjectID, resolved.ProjectID,
		resolved.Label(), resolved.ProjectIDs, primaryHits, kvHits, rawHits, grouped)
	reasoningText := RenderReasoningText(reasoning)

	llmContext := e.synthesizeContext(ctx, p.Query, grouped, reasoningText, p.MaxContextTokens)
	llmContext = TrimToTokenBudget(llmContext, p.MaxContextTokens)
	contextText := llmContext
	rawContextText = TrimToTokenBudget(rawContextText, p.MaxContextTokens)

	bundle := &Bundle{
		Query:                    p.Query,
		ProjectID:                resolved.ProjectID,
		RequestedProjectID:       p.Scope.ProjectID,
		ProjectScope:             resolved.Label(),
		ScopeProjectIDs:          resolved.ProjectIDs,
		RelatedProjectIDs:        orEmpty(effectiveRelated),
		IncludeAllProjects:       resolved.Global(),
		FilePaths:                orEmpty(paths),
		ToolCallsInContext:       toolNames,
		SkillsInContext:          skills,
		SubagentsInContext:       subagents,
		Context:                  grouped,
		SourcesInContext:         reasoning.SourcesInContext,
		ProjectsInContext:        reasoning.ProjectsInContext,
		ContextReasoning:         reasoning,
		ContextReasoningText:     reasoningText,
		ProjectContext:           projectContext,
		ContextText:              contextText,
		RawContextText:           rawContextText,
		ContextTextTokenEstimate: EstimateTokens(contextText),
		LLMContext:               llmContext,
		LLMContextTokenEstimate:  EstimateTokens(llmContext),
		MaxContextTokens:         p.MaxContextTokens,
	}
	bundle.ResponseTokenEstimate = estimateResponseTokens(bundle)
	return bundle, nil
}

func estimateResponseTokens(b *Bundle) int {
	payload, err := json.Marshal(map[string]any{
		"context":           b.Context,
		"context_reasoning": b.ContextReasoning,
		"project_context":   b.ProjectContext,
		"context_text":      b.ContextText,
		"raw_context_text":  b.RawContextText,
	})
	if err != nil {
		return 0
	}
	return EstimateTokens(string(payload))
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// messageSignals aggregates the tools, skills and subagents seen in the
// retrieved messages.
func messageSignals(messages []CompactMessage) (tools, skills, subagents []string) {
	toolSet := map[string]bool{}
	skillSet := map[string]bool{}
	subagentSet := map[string]bool{}

	for _, m := range messages {
		for _, tc := range m.ToolCalls {
			name, _ := tc["name"].(string)
			if name != "" {
				toolSet[name] = true
			}
			input, ok := tc["input"].(map[string]any)
			if !ok {
				continue
			}
			if sub, ok := input["subagent_type"].(string); ok && strings.TrimSpace(sub) != "" {
				subagentSet[strings.TrimSpace(sub)] = true
			}
			if name == "skill" {
				if skill := skillName(input); skill != "" {
					skillSet[skill] = true
				}
			}
		}
	}
	return sortedSet(toolSet), sortedSet(skillSet), sortedSet(subagentSet)
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
