// Package memtools provides the MCP tool handlers of the memory server.
//
// Each tool handler follows the same pattern:
// - A struct with dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Query tools refresh imported chat history through the sync guard
// before touching the store; the refresh outcome never fails a query.
package memtools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cserp440/couch-context/internal/autosync"
	"github.com/cserp440/couch-context/internal/scope"
)

// Syncer guards query-time history refreshes.
type Syncer interface {
	MaybeSync(ctx context.Context, force bool) autosync.Result
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// boolArgPtr distinguishes an absent boolean from an explicit one.
func boolArgPtr(req mcp.CallToolRequest, key string) *bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return nil
	}
	return &v
}

// strListArg extracts a string array argument. Absent or malformed
// values return nil.
func strListArg(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// mapListArg extracts an array-of-objects argument.
func mapListArg(req mcp.CallToolRequest, key string) []map[string]any {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// scopeArg reads the shared project scope arguments of query tools.
func scopeArg(req mcp.CallToolRequest) scope.Request {
	return scope.Request{
		ProjectID:         req.GetString("project_id", ""),
		RelatedProjectIDs: strListArg(req, "related_project_ids"),
		IncludeAll:        boolArgPtr(req, "include_all_projects"),
	}
}

// jsonResult renders a tool response as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// maybeSync refreshes history ahead of a query. Nil syncers and every
// sync outcome are fine; queries proceed regardless.
func maybeSync(ctx context.Context, s Syncer) {
	if s != nil {
		s.MaybeSync(ctx, false)
	}
}
