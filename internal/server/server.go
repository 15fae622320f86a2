// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it connects Couchbase, builds the
// embedding provider, retrieval engine, importers and sync guard, and
// injects them into the tool handlers. No business logic lives here —
// only wiring.
package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/cserp440/couch-context/internal/autosync"
	"github.com/cserp440/couch-context/internal/config"
	"github.com/cserp440/couch-context/internal/embed"
	"github.com/cserp440/couch-context/internal/importers"
	"github.com/cserp440/couch-context/internal/memtools"
	"github.com/cserp440/couch-context/internal/retrieval"
	"github.com/cserp440/couch-context/internal/scope"
	"github.com/cserp440/couch-context/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all memory tools
// registered. The returned cleanup function closes the Couchbase
// connection and must be called on shutdown (typically via defer).
// It is always non-nil and safe to call even on partial failure.
func New(ctx context.Context, cfg *config.Settings, log *zap.Logger) (*server.MCPServer, func(), error) {
	if log == nil {
		log = zap.NewNop()
	}

	client, err := store.Connect(cfg, log)
	if err != nil {
		return nil, noop, fmt.Errorf("server: couchbase: %w", err)
	}
	cleanup := func() { client.Close() }

	provider := embed.NewProvider(cfg, log)
	defaults := scope.Defaults{
		DefaultProjectID:    cfg.DefaultProjectID,
		CurrentProjectID:    cfg.CurrentProjectID,
		RelatedProjectIDs:   cfg.DefaultRelatedProjects(),
		IncludeAllByDefault: cfg.IncludeAllProjectsByDefault,
	}

	engine := retrieval.New(client, provider, retrieval.Options{
		Summarizer: summarizerOrNil(cfg.OpenAIAPIKey),
		Scope:      defaults,
		Logger:     log,
	})

	jobs := []autosync.Job{
		{
			Source:    "claude-code",
			Path:      cfg.AutoImportClaudePath,
			ProjectID: cfg.DefaultProjectID,
			Importer:  importers.NewClaudeImporter(client, cfg.DefaultProjectID, log),
		},
		{
			Source:    "codex",
			Path:      cfg.AutoImportCodexPath,
			ProjectID: cfg.DefaultProjectID,
			Importer:  importers.NewCodexImporter(client, cfg.DefaultProjectID, log),
		},
	}
	guard := autosync.NewGuard(autosync.Options{
		Enabled:         cfg.AutoImportOnQuery,
		IntervalSeconds: cfg.AutoImportMinIntervalSeconds,
		Jobs:            jobs,
		Logger:          log,
	})

	// Startup sync runs synchronously so first queries see imported
	// history.
	for i, enabled := range []bool{cfg.AutoImportClaudeOnStart, cfg.AutoImportCodexOnStart} {
		result := autosync.RunStartup(ctx, enabled, jobs[i], log)
		log.Info("startup sync",
			zap.String("source", result.Source),
			zap.String("status", result.Status))
		recordSyncState(ctx, client, result, log)
	}

	s := server.NewMCPServer(
		"couch-context",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)
	registerTools(s, client, provider, engine, defaults, guard)
	return s, cleanup, nil
}

// noop is the default cleanup when connecting failed.
func noop() {}

// recordSyncState persists import outcomes for observability. Failures
// only warn; sync state is advisory.
func recordSyncState(ctx context.Context, client *store.Client, result autosync.SourceResult, log *zap.Logger) {
	if result.Stats == nil {
		return
	}
	doc := store.SyncStateDoc{
		Source:           result.Source,
		Status:           result.Status,
		SessionsImported: result.Stats.SessionsImported,
		MessagesImported: result.Stats.MessagesImported,
		SessionsSkipped:  result.Stats.SessionsSkipped,
		FilesScanned:     result.Stats.FilesScanned,
	}
	if err := client.RecordSyncState(ctx, doc); err != nil {
		log.Warn("sync state write failed", zap.Error(err))
	}
}

func summarizerOrNil(apiKey string) retrieval.Summarizer {
	if s := embed.NewSummarizer(apiKey); s != nil {
		return s
	}
	return nil
}

// registerTools registers all 15 memory MCP tools with the server.
func registerTools(
	s *server.MCPServer,
	client *store.Client,
	provider *embed.Provider,
	engine *retrieval.Engine,
	defaults scope.Defaults,
	guard *autosync.Guard,
) {
	// --- Search & recall ---
	search := memtools.NewSearchTool(engine, guard)
	s.AddTool(search.Definition(), search.Handle)

	keyword := memtools.NewKeywordSearchTool(engine, guard)
	s.AddTool(keyword.Definition(), keyword.Handle)

	recallDecision := memtools.NewRecallDecisionTool(engine, guard)
	s.AddTool(recallDecision.Definition(), recallDecision.Handle)

	recallBug := memtools.NewRecallBugTool(engine, guard)
	s.AddTool(recallBug.Definition(), recallBug.Handle)

	// --- Sessions ---
	listSessions := memtools.NewListSessionsTool(client, defaults, guard)
	s.AddTool(listSessions.Definition(), listSessions.Handle)

	getSession := memtools.NewGetSessionTool(client, guard)
	s.AddTool(getSession.Definition(), getSession.Handle)

	ingestSession := memtools.NewIngestSessionTool(client, provider)
	s.AddTool(ingestSession.Definition(), ingestSession.Handle)

	ingestMessage := memtools.NewIngestMessageTool(client, provider)
	s.AddTool(ingestMessage.Definition(), ingestMessage.Handle)

	// --- Context ---
	projectContext := memtools.NewProjectContextTool(engine, guard)
	s.AddTool(projectContext.Definition(), projectContext.Handle)

	contextForRequest := memtools.NewContextForRequestTool(engine, guard)
	s.AddTool(contextForRequest.Definition(), contextForRequest.Handle)

	// --- Knowledge capture ---
	saveDecision := memtools.NewSaveDecisionTool(client, provider)
	s.AddTool(saveDecision.Definition(), saveDecision.Handle)

	saveBug := memtools.NewSaveBugTool(client, provider)
	s.AddTool(saveBug.Definition(), saveBug.Handle)

	saveThought := memtools.NewSaveThoughtTool(client, provider)
	s.AddTool(saveThought.Definition(), saveThought.Handle)

	savePattern := memtools.NewSavePatternTool(client, provider)
	s.AddTool(savePattern.Definition(), savePattern.Handle)

	// --- Sync ---
	syncNow := memtools.NewSyncNowTool(guard)
	s.AddTool(syncNow.Definition(), syncNow.Handle)
}

func serverInstructions() string {
	return `couch-context is a persistent coding memory backed by Couchbase.

Use memory_context_for_request before starting non-trivial work: it
retrieves past sessions, decisions, bugs and patterns relevant to the
task and condenses them into a compact context pack.

Record knowledge as you go: memory_save_decision for design choices,
memory_save_bug for fixed bugs, memory_save_pattern for reusable code,
memory_save_thought for anything else worth remembering.

Claude Code and Codex chat history is imported automatically; use
memory_sync_now to force a refresh.`
}
