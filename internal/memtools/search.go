package memtools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cserp440/couch-context/internal/retrieval"
)

// Searcher is the retrieval slice of the search tools.
type Searcher interface {
	Search(ctx context.Context, p retrieval.SearchParams) (*retrieval.SearchResponse, error)
	KeywordSemanticSearch(ctx context.Context, p retrieval.KeywordSearchParams) (*retrieval.KeywordSearchResponse, error)
}

// SearchTool handles the memory_search MCP tool.
type SearchTool struct {
	engine Searcher
	sync   Syncer
}

func NewSearchTool(engine Searcher, sync Syncer) *SearchTool {
	return &SearchTool{engine: engine, sync: sync}
}

func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_search",
		mcp.WithDescription(
			"Semantic search across all coding memory — past sessions, decisions, bugs, patterns, and thoughts",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language search query"),
		),
		mcp.WithString("project_id",
			mcp.Description("Filter by project (optional)"),
		),
		mcp.WithArray("related_project_ids",
			mcp.Description("Optional additional project IDs for cross-project retrieval"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("include_all_projects",
			mcp.Description("If true, search globally across all projects (if omitted, server env defaults may apply)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10)"),
		),
		mcp.WithArray("collections",
			mcp.Description("Restrict to specific collections (optional)"),
			mcp.WithStringItems(),
		),
	)
}

func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	maybeSync(ctx, t.sync)

	resp, err := t.engine.Search(ctx, retrieval.SearchParams{
		Query:       query,
		Scope:       scopeArg(req),
		Limit:       intArg(req, "limit", 10),
		Collections: strListArg(req, "collections"),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(resp)
}

// KeywordSearchTool handles the memory_kv_semantic_search MCP tool.
type KeywordSearchTool struct {
	engine Searcher
	sync   Syncer
}

func NewKeywordSearchTool(engine Searcher, sync Syncer) *KeywordSearchTool {
	return &KeywordSearchTool{engine: engine, sync: sync}
}

func (t *KeywordSearchTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_kv_semantic_search",
		mcp.WithDescription(
			"Keyword (KV/grep-style) search across memory + semantic search merge",
		),
		mcp.WithArray("terms",
			mcp.Required(),
			mcp.Description("Keyword terms"),
			mcp.WithStringItems(),
		),
		mcp.WithString("project_id",
			mcp.Description("Filter by project (optional)"),
		),
		mcp.WithArray("related_project_ids",
			mcp.Description("Optional additional project IDs for cross-project retrieval"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("include_all_projects",
			mcp.Description("If true, search globally across all projects (if omitted, server env defaults may apply)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20)"),
		),
		mcp.WithNumber("per_collection_limit",
			mcp.Description("Max per collection (default: 10)"),
		),
	)
}

func (t *KeywordSearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	terms := strListArg(req, "terms")
	maybeSync(ctx, t.sync)

	resp, err := t.engine.KeywordSemanticSearch(ctx, retrieval.KeywordSearchParams{
		Terms:              terms,
		Scope:              scopeArg(req),
		Limit:              intArg(req, "limit", 20),
		PerCollectionLimit: intArg(req, "per_collection_limit", 10),
	})
	if err != nil {
		if errors.Is(err, retrieval.ErrNoTerms) {
			return mcp.NewToolResultError("No valid terms provided"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("keyword search failed: %v", err)), nil
	}
	return jsonResult(resp)
}
