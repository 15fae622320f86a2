package retrieval

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// RecallParams target one knowledge collection by semantic similarity.
type RecallParams struct {
	Query     string
	ProjectID string
	// Category filters decisions, Severity filters bugs. Empty means no
	// filter.
	Category string
	Severity string
	Limit    int
}

// RecallResponse holds the filtered recall hits, best first.
type RecallResponse struct {
	Query          string `json:"query"`
	CategoryFilter string `json:"category_filter,omitempty"`
	SeverityFilter string `json:"severity_filter,omitempty"`
	ResultCount    int    `json:"result_count"`
	Results        []Item `json:"results"`
}

// RecallDecisions finds past decisions similar to the query, optionally
// filtered by category and project.
func (e *Engine) RecallDecisions(ctx context.Context, p RecallParams) (*RecallResponse, error) {
	items, err := e.vectorRecall(ctx, p.Query, "decision::", p.Limit)
	if err != nil {
		return nil, err
	}
	projectID := e.scope.EffectiveProjectID(p.ProjectID, true)
	filtered := filterRecall(items, projectID, "category", p.Category, p.Limit)
	return &RecallResponse{
		Query:          p.Query,
		CategoryFilter: p.Category,
		ResultCount:    len(filtered),
		Results:        filtered,
	}, nil
}

// RecallBugs finds past bug reports similar to the query, optionally
// filtered by severity and project.
func (e *Engine) RecallBugs(ctx context.Context, p RecallParams) (*RecallResponse, error) {
	items, err := e.vectorRecall(ctx, p.Query, "bug::", p.Limit)
	if err != nil {
		return nil, err
	}
	projectID := e.scope.EffectiveProjectID(p.ProjectID, true)
	filtered := filterRecall(items, projectID, "severity", p.Severity, p.Limit)
	return &RecallResponse{
		Query:          p.Query,
		SeverityFilter: p.Severity,
		ResultCount:    len(filtered),
		Results:        filtered,
	}, nil
}

// vectorRecall is a nearest-neighbor sweep kept to one collection through
// its id prefix. Fetches twice the requested limit so post-filtering
// still fills the page.
func (e *Engine) vectorRecall(ctx context.Context, query, prefix string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 5
	}
	vec, err := e.embed.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	var items []Item
	for _, index := range e.indexes {
		hits, err := e.back.SearchVector(ctx, index, vec, limit*2)
		if err != nil {
			e.log.Warn("vector recall failed", zap.String("index", index), zap.Error(err))
			continue
		}
		for _, hit := range hits {
			if !strings.HasPrefix(hit.ID, prefix) {
				continue
			}
			doc, ok := e.back.FetchDocument(ctx, hit.ID)
			if !ok {
				continue
			}
			items = append(items, NewItem(hit.ID, hit.Score, doc))
		}
	}
	return Dedupe(items), nil
}

func filterRecall(items []Item, projectID, field, want string, limit int) []Item {
	if limit <= 0 {
		limit = 5
	}
	filtered := make([]Item, 0, len(items))
	for _, it := range items {
		if want != "" && it.Str(field) != want {
			continue
		}
		if projectID != "" {
			pid := it.Str("project_id")
			if pid == "" {
				pid = "default"
			}
			if pid != projectID {
				continue
			}
		}
		filtered = append(filtered, it)
		if len(filtered) == limit {
			break
		}
	}
	return filtered
}
