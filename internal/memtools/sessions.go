package memtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cserp440/couch-context/internal/scope"
	"github.com/cserp440/couch-context/internal/store"
)

// SessionStore is the persistence slice of the session tools.
type SessionStore interface {
	ListSessions(ctx context.Context, projectID string, limit, offset int, sortBy string) (*store.SessionPage, error)
	GetSession(ctx context.Context, sessionID string, includeMessages bool, messageLimit int) (*store.SessionDetail, error)
	IngestSession(ctx context.Context, emb store.Embedder, p store.IngestSessionParams) (*store.IngestResult, error)
	AppendMessage(ctx context.Context, emb store.Embedder, sessionID, role, content string, toolCalls []map[string]any, sequenceNumber int) (*store.IngestMessageResult, error)
}

// ListSessionsTool handles the memory_list_sessions MCP tool.
type ListSessionsTool struct {
	store    SessionStore
	defaults scope.Defaults
	sync     Syncer
}

func NewListSessionsTool(st SessionStore, defaults scope.Defaults, sync Syncer) *ListSessionsTool {
	return &ListSessionsTool{store: st, defaults: defaults, sync: sync}
}

func (t *ListSessionsTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_list_sessions",
		mcp.WithDescription("List past coding sessions with pagination"),
		mcp.WithString("project_id",
			mcp.Description("Filter by project (optional)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max sessions (default: 20)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Pagination offset (default: 0)"),
		),
		mcp.WithString("sort_by",
			mcp.Description("Sort field: created_at, started_at or message_count"),
		),
	)
}

func (t *ListSessionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	maybeSync(ctx, t.sync)

	// An unset project lists every project.
	projectID := t.defaults.EffectiveProjectID(req.GetString("project_id", ""), true)
	page, err := t.store.ListSessions(ctx,
		projectID,
		intArg(req, "limit", 20),
		intArg(req, "offset", 0),
		req.GetString("sort_by", "created_at"),
	)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list sessions failed: %v", err)), nil
	}
	return jsonResult(page)
}

// GetSessionTool handles the memory_get_session MCP tool.
type GetSessionTool struct {
	store SessionStore
	sync  Syncer
}

func NewGetSessionTool(st SessionStore, sync Syncer) *GetSessionTool {
	return &GetSessionTool{store: st, sync: sync}
}

func (t *GetSessionTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_get_session",
		mcp.WithDescription("Get full session detail including messages and summary"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID"),
		),
		mcp.WithBoolean("include_messages",
			mcp.Description("Include messages (default: true)"),
		),
		mcp.WithNumber("message_limit",
			mcp.Description("Max messages (default: 5000)"),
		),
	)
}

func (t *GetSessionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	maybeSync(ctx, t.sync)

	detail, err := t.store.GetSession(ctx,
		sessionID,
		boolArg(req, "include_messages", true),
		intArg(req, "message_limit", 5000),
	)
	if err != nil {
		return jsonResult(map[string]any{"error": "Session not found: " + sessionID})
	}
	return jsonResult(detail)
}

// IngestSessionTool handles the memory_ingest_session MCP tool.
type IngestSessionTool struct {
	store SessionStore
	embed store.Embedder
}

func NewIngestSessionTool(st SessionStore, embed store.Embedder) *IngestSessionTool {
	return &IngestSessionTool{store: st, embed: embed}
}

func (t *IngestSessionTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_ingest_session",
		mcp.WithDescription("Save a full coding session (metadata + messages) to memory"),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Session title"),
		),
		mcp.WithArray("messages",
			mcp.Required(),
			mcp.Description("List of messages with role and content"),
		),
		mcp.WithString("project_id",
			mcp.Description("Project ID"),
		),
		mcp.WithString("directory",
			mcp.Description("Working directory"),
		),
		mcp.WithString("source",
			mcp.Description("Source (e.g. 'opencode', 'manual')"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags"),
			mcp.WithStringItems(),
		),
		mcp.WithString("summary",
			mcp.Description("Session summary (optional)"),
		),
	)
}

func (t *IngestSessionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}

	var messages []store.IngestMessage
	for _, raw := range mapListArg(req, "messages") {
		msg := store.IngestMessage{RawContent: raw["content"]}
		msg.Role, _ = raw["role"].(string)
		msg.Content, _ = raw["content"].(string)
		messages = append(messages, msg)
	}

	result, err := t.store.IngestSession(ctx, t.embed, store.IngestSessionParams{
		Title:     title,
		Messages:  messages,
		ProjectID: req.GetString("project_id", ""),
		Directory: req.GetString("directory", ""),
		Source:    req.GetString("source", "manual"),
		Tags:      strListArg(req, "tags"),
		Summary:   req.GetString("summary", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingest session failed: %v", err)), nil
	}
	return jsonResult(result)
}

// IngestMessageTool handles the memory_ingest_message MCP tool.
type IngestMessageTool struct {
	store SessionStore
	embed store.Embedder
}

func NewIngestMessageTool(st SessionStore, embed store.Embedder) *IngestMessageTool {
	return &IngestMessageTool{store: st, embed: embed}
}

func (t *IngestMessageTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_ingest_message",
		mcp.WithDescription("Save a single message to an existing session"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Parent session ID"),
		),
		mcp.WithString("role",
			mcp.Required(),
			mcp.Description("Message role (user/assistant/system)"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Message content"),
		),
		mcp.WithArray("tool_calls",
			mcp.Description("Tool calls (optional)"),
		),
		mcp.WithNumber("sequence_number",
			mcp.Description("Position in conversation (default: 0)"),
		),
	)
}

func (t *IngestMessageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	role := req.GetString("role", "")
	content := req.GetString("content", "")
	if sessionID == "" || role == "" || content == "" {
		return mcp.NewToolResultError("'session_id', 'role' and 'content' are required"), nil
	}

	result, err := t.store.AppendMessage(ctx, t.embed,
		sessionID, role, content,
		mapListArg(req, "tool_calls"),
		intArg(req, "sequence_number", 0),
	)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingest message failed: %v", err)), nil
	}
	return jsonResult(result)
}
