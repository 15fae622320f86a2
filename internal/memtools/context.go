package memtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cserp440/couch-context/internal/retrieval"
)

// ContextBuilder is the retrieval slice of the context tools.
type ContextBuilder interface {
	ProjectContext(ctx context.Context, p retrieval.ProjectContextParams) map[string]any
	ContextForRequest(ctx context.Context, p retrieval.ContextParams) (*retrieval.Bundle, error)
}

// ProjectContextTool handles the memory_project_context MCP tool.
type ProjectContextTool struct {
	engine ContextBuilder
	sync   Syncer
}

func NewProjectContextTool(engine ContextBuilder, sync Syncer) *ProjectContextTool {
	return &ProjectContextTool{engine: engine, sync: sync}
}

func (t *ProjectContextTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_project_context",
		mcp.WithDescription("Get aggregated project context — recent sessions, decisions, bugs, and patterns"),
		mcp.WithString("project_id",
			mcp.Description("Project ID"),
		),
		mcp.WithNumber("max_sessions",
			mcp.Description("Max recent sessions (default: 5)"),
		),
		mcp.WithNumber("max_decisions",
			mcp.Description("Max decisions (default: 10)"),
		),
		mcp.WithNumber("max_bugs",
			mcp.Description("Max bugs (default: 5)"),
		),
		mcp.WithNumber("max_patterns",
			mcp.Description("Max patterns (default: 5)"),
		),
	)
}

func (t *ProjectContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	maybeSync(ctx, t.sync)

	result := t.engine.ProjectContext(ctx, retrieval.ProjectContextParams{
		ProjectID:    req.GetString("project_id", ""),
		MaxSessions:  intArg(req, "max_sessions", 5),
		MaxDecisions: intArg(req, "max_decisions", 10),
		MaxBugs:      intArg(req, "max_bugs", 5),
		MaxPatterns:  intArg(req, "max_patterns", 5),
	})
	return jsonResult(result)
}

// ContextForRequestTool handles the memory_context_for_request MCP tool.
type ContextForRequestTool struct {
	engine ContextBuilder
	sync   Syncer
}

func NewContextForRequestTool(engine ContextBuilder, sync Syncer) *ContextForRequestTool {
	return &ContextForRequestTool{engine: engine, sync: sync}
}

func (t *ContextForRequestTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_context_for_request",
		mcp.WithDescription(
			"Build a rich context pack for a specific request (search + recent project context + retrieval reasoning)",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("User request or question"),
		),
		mcp.WithString("project_id",
			mcp.Description("Project ID"),
		),
		mcp.WithArray("related_project_ids",
			mcp.Description("Optional additional project IDs for cross-project retrieval"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("include_all_projects",
			mcp.Description("If true, search globally across all projects (if omitted, server env defaults may apply)"),
		),
		mcp.WithArray("file_paths",
			mcp.Description("Relevant file paths"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max search results (default: 12)"),
		),
		mcp.WithNumber("per_type_limit",
			mcp.Description("Max results per doc type (default: 6)"),
		),
		mcp.WithBoolean("include_messages",
			mcp.Description("Include message excerpts (default: true)"),
		),
		mcp.WithNumber("message_limit",
			mcp.Description("Max messages to return (default: 20)"),
		),
		mcp.WithNumber("max_context_tokens",
			mcp.Description("Cap for llm_context/context_text token estimate (default: 2000)"),
		),
	)
}

func (t *ContextForRequestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	maybeSync(ctx, t.sync)

	bundle, err := t.engine.ContextForRequest(ctx, retrieval.ContextParams{
		Query:            query,
		Scope:            scopeArg(req),
		FilePaths:        strListArg(req, "file_paths"),
		Limit:            intArg(req, "limit", 12),
		PerTypeLimit:     intArg(req, "per_type_limit", 6),
		IncludeMessages:  boolArg(req, "include_messages", true),
		MessageLimit:     intArg(req, "message_limit", 20),
		MaxContextTokens: intArg(req, "max_context_tokens", 2000),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("context build failed: %v", err)), nil
	}
	return jsonResult(bundle)
}
