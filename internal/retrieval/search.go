package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cserp440/couch-context/internal/scope"
)

// SearchParams are the inputs of the primary semantic tier.
type SearchParams struct {
	Query string
	Scope scope.Request
	Limit int
	// Collections optionally restricts results to named collections,
	// e.g. []string{"decisions", "bugs"}.
	Collections []string
}

// SearchResponse echoes the resolved scope alongside the merged results.
type SearchResponse struct {
	Query              string   `json:"query"`
	ProjectID          string   `json:"project_id"`
	ScopeProjectIDs    []string `json:"scope_project_ids"`
	IncludeAllProjects bool     `json:"include_all_projects"`
	ResultCount        int      `json:"result_count"`
	Results            []Item   `json:"results"`
}

// Search runs the primary tier: vector nearest-neighbor plus full-text
// match over every index, merged, deduplicated and scope filtered. Either
// half may fail independently without sinking the other.
func (e *Engine) Search(ctx context.Context, p SearchParams) (*SearchResponse, error) {
	if p.Limit <= 0 {
		p.Limit = 10
	}
	resolved := e.ResolveScope(p.Scope)

	var items []Item
	if vec, err := e.embed.EmbedOne(ctx, p.Query); err != nil {
		e.log.Warn("query embedding failed", zap.Error(err))
	} else {
		items = append(items, e.vectorTier(ctx, vec, p.Limit)...)
	}
	items = append(items, e.ftsTier(ctx, p.Query, p.Limit)...)

	items = FilterScope(Dedupe(items), resolved)
	if wanted := collectionSet(p.Collections); wanted != nil {
		filtered := items[:0]
		for _, it := range items {
			if coll, _ := it.Doc["_collection"].(string); wanted[coll] {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	if len(items) > p.Limit {
		items = items[:p.Limit]
	}

	return &SearchResponse{
		Query:              p.Query,
		ProjectID:          resolved.ProjectID,
		ScopeProjectIDs:    resolved.ProjectIDs,
		IncludeAllProjects: resolved.Global(),
		ResultCount:        len(items),
		Results:            items,
	}, nil
}

func collectionSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func (e *Engine) vectorTier(ctx context.Context, vec []float32, limit int) []Item {
	var items []Item
	for _, index := range e.indexes {
		hits, err := e.back.SearchVector(ctx, index, vec, limit)
		if err != nil {
			e.log.Warn("vector search failed", zap.String("index", index), zap.Error(err))
			continue
		}
		items = append(items, e.hydrateHits(ctx, hits, "vector:"+index)...)
	}
	return items
}

func (e *Engine) ftsTier(ctx context.Context, query string, limit int) []Item {
	var items []Item
	for _, index := range e.indexes {
		hits, err := e.back.SearchText(ctx, index, query, limit)
		if err != nil {
			e.log.Warn("fts search failed", zap.String("index", index), zap.Error(err))
			continue
		}
		items = append(items, e.hydrateHits(ctx, hits, "fts:"+index)...)
	}
	return items
}

// hydrateHits replaces index rows with full documents where possible. A
// hit whose document cannot be fetched still flows through with just its
// id and score.
func (e *Engine) hydrateHits(ctx context.Context, hits []SearchHit, source string) []Item {
	items := make([]Item, 0, len(hits))
	for _, hit := range hits {
		doc, ok := e.back.FetchDocument(ctx, hit.ID)
		if !ok {
			doc = map[string]any{}
		}
		doc["source"] = source
		items = append(items, NewItem(hit.ID, hit.Score, doc))
	}
	return items
}

// FilePathSearch boosts documents mentioning a concrete file path via a
// full-text match on the path string.
func (e *Engine) FilePathSearch(ctx context.Context, path string, limit int) []Item {
	var items []Item
	for _, index := range e.indexes {
		hits, err := e.back.SearchText(ctx, index, path, limit)
		if err != nil {
			e.log.Warn("file path search failed", zap.String("index", index), zap.Error(err))
			continue
		}
		items = append(items, e.hydrateHits(ctx, hits, "file-path:"+index)...)
	}
	return items
}

func likeClause(field string) string {
	return fmt.Sprintf("ANY term IN $terms SATISFIES LOWER(%s) LIKE '%%' || LOWER(term) || '%%' END", field)
}

// sessionProjectMatch filters rows through the session's project, keeping
// legacy "default" docs reachable through their directory.
func sessionProjectMatch(alias string) string {
	return fmt.Sprintf("(%[1]s.project_id IN $project_ids OR (%[1]s.project_id = 'default' AND %[1]s.directory IN $project_ids))", alias)
}

type kvTarget struct {
	scopeName  string
	collection string
	alias      string
	selectCols string
	join       string
	fields     []string
	projectSQL string
}

func (e *Engine) kvTargets() []kvTarget {
	bucket := e.back.BucketName()
	return []kvTarget{
		{
			scopeName: "conversations", collection: "messages", alias: "m",
			selectCols: "META(m).id AS id, m.*, s.source AS session_source, s.project_id AS session_project_id, s.directory AS session_directory",
			join:       fmt.Sprintf("JOIN `%s`.conversations.sessions s ON KEYS m.session_id ", bucket),
			fields:     []string{"m.text_content", "TOSTRING(m.tool_calls)", "TOSTRING(m.tool_results)"},
			projectSQL: sessionProjectMatch("s"),
		},
		{
			scopeName: "conversations", collection: "sessions", alias: "s",
			selectCols: "META(s).id AS id, s.*",
			fields:     []string{"s.title", "s.summary"},
			projectSQL: sessionProjectMatch("s"),
		},
		{
			scopeName: "knowledge", collection: "decisions", alias: "d",
			selectCols: "META(d).id AS id, d.*",
			fields:     []string{"d.title", "d.description", "d.context"},
			projectSQL: "d.project_id IN $project_ids",
		},
		{
			scopeName: "knowledge", collection: "bugs", alias: "b",
			selectCols: "META(b).id AS id, b.*",
			fields:     []string{"b.title", "b.description", "b.root_cause", "b.fix_description"},
			projectSQL: "b.project_id IN $project_ids",
		},
		{
			scopeName: "knowledge", collection: "patterns", alias: "p",
			selectCols: "META(p).id AS id, p.*",
			fields:     []string{"p.title", "p.description", "p.code_example"},
			projectSQL: "p.project_id IN $project_ids",
		},
		{
			scopeName: "knowledge", collection: "thoughts", alias: "t",
			selectCols: "META(t).id AS id, t.*",
			fields:     []string{"t.content"},
			projectSQL: "t.project_id IN $project_ids",
		},
	}
}

// kvGrep runs grep-style LIKE sweeps across the key collections. Each
// collection query is best effort. Hits are scored by matched term count:
// the base score plus a bonus per additional matched term.
func (e *Engine) kvGrep(ctx context.Context, terms []string, sc scope.Resolved, perCollectionLimit int) []Item {
	if perCollectionLimit <= 0 {
		perCollectionLimit = 10
	}
	params := map[string]any{"terms": terms}
	if !sc.Global() {
		params["project_ids"] = sc.ProjectIDs
	}

	var items []Item
	for _, target := range e.kvTargets() {
		clauses := make([]string, len(target.fields))
		for i, field := range target.fields {
			clauses[i] = likeClause(field)
		}
		stmt := fmt.Sprintf("SELECT %s FROM `%s`.%s.%s %s ",
			target.selectCols, e.back.BucketName(), target.scopeName, target.collection, target.alias)
		stmt += target.join
		stmt += fmt.Sprintf("WHERE (%s) ", strings.Join(clauses, " OR "))
		if !sc.Global() {
			stmt += "AND " + target.projectSQL + " "
		}
		stmt += fmt.Sprintf("LIMIT %d", perCollectionLimit)

		rows, err := e.back.Query(ctx, stmt, params)
		if err != nil {
			e.log.Warn("kv sweep failed",
				zap.String("collection", target.collection), zap.Error(err))
			continue
		}
		for _, row := range rows {
			delete(row, "embedding")
			row["_scope"] = target.scopeName
			row["_collection"] = target.collection
			row["retrieval_source"] = SourceKVFallback
			id, _ := row["id"].(string)
			items = append(items, NewItem(id, e.kvHitScore(row, terms), row))
		}
	}
	return items
}

// kvHitScore rewards rows matching more of the query terms.
func (e *Engine) kvHitScore(row map[string]any, terms []string) float64 {
	blob := strings.ToLower(fmt.Sprintf("%v", row))
	matched := 0
	for _, term := range terms {
		if strings.Contains(blob, strings.ToLower(term)) {
			matched++
		}
	}
	if matched < 1 {
		matched = 1
	}
	return e.tuning.KVBaseScore + e.tuning.KVTermBonus*float64(matched-1)
}
