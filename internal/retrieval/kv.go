package retrieval

import (
	"context"
	"errors"
	"strings"

	"github.com/cserp440/couch-context/internal/scope"
)

// ErrNoTerms means every supplied keyword term was empty after trimming.
// The caller gets the error before any store traffic happens.
var ErrNoTerms = errors.New("retrieval: no valid terms provided")

// KeywordSearchParams are the inputs of the keyword+semantic tier.
type KeywordSearchParams struct {
	Terms              []string
	Scope              scope.Request
	Limit              int
	PerCollectionLimit int
}

// KeywordSearchResponse mirrors SearchResponse for the keyword tier.
type KeywordSearchResponse struct {
	Terms              []string `json:"terms"`
	ProjectID          string   `json:"project_id"`
	ScopeProjectIDs    []string `json:"scope_project_ids"`
	IncludeAllProjects bool     `json:"include_all_projects"`
	ResultCount        int      `json:"result_count"`
	Results            []Item   `json:"results"`
}

// KeywordSemanticSearch merges grep-style KV sweeps with a semantic
// search over the joined terms. Exact KV hits outrank semantic ones
// through their term-count score.
func (e *Engine) KeywordSemanticSearch(ctx context.Context, p KeywordSearchParams) (*KeywordSearchResponse, error) {
	terms := make([]string, 0, len(p.Terms))
	for _, t := range p.Terms {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return nil, ErrNoTerms
	}
	if p.Limit <= 0 {
		p.Limit = 20
	}
	resolved := e.ResolveScope(p.Scope)

	items := e.kvGrep(ctx, terms, resolved, p.PerCollectionLimit)

	semantic, err := e.Search(ctx, SearchParams{
		Query: strings.Join(terms, " "),
		Scope: p.Scope,
		Limit: p.Limit,
	})
	if err == nil {
		items = append(items, semantic.Results...)
	}

	items = Dedupe(items)
	if len(items) > p.Limit {
		items = items[:p.Limit]
	}
	return &KeywordSearchResponse{
		Terms:              terms,
		ProjectID:          resolved.ProjectID,
		ScopeProjectIDs:    resolved.ProjectIDs,
		IncludeAllProjects: resolved.Global(),
		ResultCount:        len(items),
		Results:            items,
	}, nil
}
