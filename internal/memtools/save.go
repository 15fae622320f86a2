package memtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cserp440/couch-context/internal/store"
)

// KnowledgeStore is the persistence slice of the save tools.
type KnowledgeStore interface {
	SaveDecision(ctx context.Context, emb store.Embedder, p store.DecisionParams) (*store.SaveResult, error)
	SaveBug(ctx context.Context, emb store.Embedder, p store.BugParams) (*store.SaveResult, error)
	SaveThought(ctx context.Context, emb store.Embedder, p store.ThoughtParams) (*store.SaveResult, error)
	SavePattern(ctx context.Context, emb store.Embedder, p store.PatternParams) (*store.SaveResult, error)
}

// SaveDecisionTool handles the memory_save_decision MCP tool.
type SaveDecisionTool struct {
	store KnowledgeStore
	embed store.Embedder
}

func NewSaveDecisionTool(st KnowledgeStore, embed store.Embedder) *SaveDecisionTool {
	return &SaveDecisionTool{store: st, embed: embed}
}

func (t *SaveDecisionTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_save_decision",
		mcp.WithDescription("Record an architectural or coding decision"),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Decision title"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("Detailed description"),
		),
		mcp.WithString("category",
			mcp.Description("Category (e.g. 'architecture', 'library-choice')"),
		),
		mcp.WithString("context",
			mcp.Description("Context that led to this decision"),
		),
		mcp.WithArray("alternatives",
			mcp.Description("Alternatives considered"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags"),
			mcp.WithStringItems(),
		),
		mcp.WithString("project_id",
			mcp.Description("Project ID"),
		),
	)
}

func (t *SaveDecisionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	description := req.GetString("description", "")
	if title == "" || description == "" {
		return mcp.NewToolResultError("'title' and 'description' are required"), nil
	}

	result, err := t.store.SaveDecision(ctx, t.embed, store.DecisionParams{
		Title:        title,
		Description:  description,
		Context:      req.GetString("context", ""),
		Alternatives: strListArg(req, "alternatives"),
		ProjectID:    req.GetString("project_id", ""),
		Tags:         strListArg(req, "tags"),
		Category:     req.GetString("category", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save decision failed: %v", err)), nil
	}
	return jsonResult(result)
}

// SaveBugTool handles the memory_save_bug MCP tool.
type SaveBugTool struct {
	store KnowledgeStore
	embed store.Embedder
}

func NewSaveBugTool(st KnowledgeStore, embed store.Embedder) *SaveBugTool {
	return &SaveBugTool{store: st, embed: embed}
}

func (t *SaveBugTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_save_bug",
		mcp.WithDescription("Record a bug report and its fix"),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Bug title"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("Bug description"),
		),
		mcp.WithString("root_cause",
			mcp.Description("Root cause analysis"),
		),
		mcp.WithString("fix_description",
			mcp.Description("How it was fixed"),
		),
		mcp.WithArray("files_affected",
			mcp.Description("Affected files"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("error_messages",
			mcp.Description("Error messages"),
			mcp.WithStringItems(),
		),
		mcp.WithString("severity",
			mcp.Description("Severity (default: medium)"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags"),
			mcp.WithStringItems(),
		),
		mcp.WithString("project_id",
			mcp.Description("Project ID"),
		),
	)
}

func (t *SaveBugTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	description := req.GetString("description", "")
	if title == "" || description == "" {
		return mcp.NewToolResultError("'title' and 'description' are required"), nil
	}

	result, err := t.store.SaveBug(ctx, t.embed, store.BugParams{
		Title:          title,
		Description:    description,
		RootCause:      req.GetString("root_cause", ""),
		FixDescription: req.GetString("fix_description", ""),
		ErrorMessages:  strListArg(req, "error_messages"),
		FilesInvolved:  strListArg(req, "files_affected"),
		ProjectID:      req.GetString("project_id", ""),
		Tags:           strListArg(req, "tags"),
		Severity:       req.GetString("severity", "medium"),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save bug failed: %v", err)), nil
	}
	return jsonResult(result)
}

// SaveThoughtTool handles the memory_save_thought MCP tool.
type SaveThoughtTool struct {
	store KnowledgeStore
	embed store.Embedder
}

func NewSaveThoughtTool(st KnowledgeStore, embed store.Embedder) *SaveThoughtTool {
	return &SaveThoughtTool{store: st, embed: embed}
}

func (t *SaveThoughtTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_save_thought",
		mcp.WithDescription("Save a developer thought, observation, or note"),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The thought or observation"),
		),
		mcp.WithString("category",
			mcp.Description("Category (e.g. 'observation', 'idea', 'concern')"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags"),
			mcp.WithStringItems(),
		),
		mcp.WithString("project_id",
			mcp.Description("Project ID"),
		),
		mcp.WithString("source_session_id",
			mcp.Description("Source session (optional)"),
		),
	)
}

func (t *SaveThoughtTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content := req.GetString("content", "")
	if content == "" {
		return mcp.NewToolResultError("'content' is required"), nil
	}

	result, err := t.store.SaveThought(ctx, t.embed, store.ThoughtParams{
		Content:   content,
		ProjectID: req.GetString("project_id", ""),
		Tags:      strListArg(req, "tags"),
		Category:  req.GetString("category", ""),
		SessionID: req.GetString("source_session_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save thought failed: %v", err)), nil
	}
	return jsonResult(result)
}

// SavePatternTool handles the memory_save_pattern MCP tool.
type SavePatternTool struct {
	store KnowledgeStore
	embed store.Embedder
}

func NewSavePatternTool(st KnowledgeStore, embed store.Embedder) *SavePatternTool {
	return &SavePatternTool{store: st, embed: embed}
}

func (t *SavePatternTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_save_pattern",
		mcp.WithDescription("Save a recurring code pattern"),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Pattern title"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("Pattern description"),
		),
		mcp.WithString("code_example",
			mcp.Description("Code example"),
		),
		mcp.WithArray("use_cases",
			mcp.Description("Use cases"),
			mcp.WithStringItems(),
		),
		mcp.WithString("language",
			mcp.Description("Programming language"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags"),
			mcp.WithStringItems(),
		),
		mcp.WithString("project_id",
			mcp.Description("Project ID"),
		),
	)
}

func (t *SavePatternTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	description := req.GetString("description", "")
	if title == "" || description == "" {
		return mcp.NewToolResultError("'title' and 'description' are required"), nil
	}

	result, err := t.store.SavePattern(ctx, t.embed, store.PatternParams{
		Title:       title,
		Description: description,
		CodeExample: req.GetString("code_example", ""),
		Language:    req.GetString("language", ""),
		UseCases:    strListArg(req, "use_cases"),
		ProjectID:   req.GetString("project_id", ""),
		Tags:        strListArg(req, "tags"),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save pattern failed: %v", err)), nil
	}
	return jsonResult(result)
}
