package memtools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// SyncNowTool handles the memory_sync_now MCP tool: a forced importer
// pass through the guard, bypassing the cooldown window.
type SyncNowTool struct {
	sync Syncer
}

func NewSyncNowTool(sync Syncer) *SyncNowTool {
	return &SyncNowTool{sync: sync}
}

func (t *SyncNowTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_sync_now",
		mcp.WithDescription("Force an immediate re-import of Claude and Codex chat history"),
	)
}

func (t *SyncNowTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.sync == nil {
		return mcp.NewToolResultError("sync is not configured"), nil
	}
	return jsonResult(t.sync.MaybeSync(ctx, true))
}
