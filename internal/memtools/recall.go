package memtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cserp440/couch-context/internal/retrieval"
)

// Recaller is the retrieval slice of the recall tools.
type Recaller interface {
	RecallDecisions(ctx context.Context, p retrieval.RecallParams) (*retrieval.RecallResponse, error)
	RecallBugs(ctx context.Context, p retrieval.RecallParams) (*retrieval.RecallResponse, error)
}

// RecallDecisionTool handles the memory_recall_decision MCP tool.
type RecallDecisionTool struct {
	engine Recaller
	sync   Syncer
}

func NewRecallDecisionTool(engine Recaller, sync Syncer) *RecallDecisionTool {
	return &RecallDecisionTool{engine: engine, sync: sync}
}

func (t *RecallDecisionTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_recall_decision",
		mcp.WithDescription("Find past architectural or coding decisions by semantic similarity"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What decision are you looking for?"),
		),
		mcp.WithString("category",
			mcp.Description("Filter by category (optional)"),
		),
		mcp.WithString("project_id",
			mcp.Description("Filter by project (optional)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 5)"),
		),
	)
}

func (t *RecallDecisionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	maybeSync(ctx, t.sync)

	resp, err := t.engine.RecallDecisions(ctx, retrieval.RecallParams{
		Query:     query,
		ProjectID: req.GetString("project_id", ""),
		Category:  req.GetString("category", ""),
		Limit:     intArg(req, "limit", 5),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recall failed: %v", err)), nil
	}
	return jsonResult(resp)
}

// RecallBugTool handles the memory_recall_bug MCP tool.
type RecallBugTool struct {
	engine Recaller
	sync   Syncer
}

func NewRecallBugTool(engine Recaller, sync Syncer) *RecallBugTool {
	return &RecallBugTool{engine: engine, sync: sync}
}

func (t *RecallBugTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_recall_bug",
		mcp.WithDescription("Find past bug reports and fixes by semantic similarity"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Describe the bug or error"),
		),
		mcp.WithString("severity",
			mcp.Description("Filter by severity (optional)"),
		),
		mcp.WithString("project_id",
			mcp.Description("Filter by project (optional)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 5)"),
		),
	)
}

func (t *RecallBugTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	maybeSync(ctx, t.sync)

	resp, err := t.engine.RecallBugs(ctx, retrieval.RecallParams{
		Query:     query,
		ProjectID: req.GetString("project_id", ""),
		Severity:  req.GetString("severity", ""),
		Limit:     intArg(req, "limit", 5),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recall failed: %v", err)), nil
	}
	return jsonResult(resp)
}
