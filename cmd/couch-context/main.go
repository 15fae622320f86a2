// couch-context: persistent coding memory MCP server backed by Couchbase.
//
// It captures coding sessions, decisions, bugs and patterns, imports
// Claude Code and Codex chat history, and serves multi-tier retrieval
// (vector + FTS + keyword + raw-chat fallback) over MCP stdio.
//
// Usage:
//
//	couch-context serve    # Start MCP server (stdio transport)
//	couch-context sync     # Run a one-off history import and exit
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cserp440/couch-context/internal/autosync"
	"github.com/cserp440/couch-context/internal/config"
	"github.com/cserp440/couch-context/internal/importers"
	"github.com/cserp440/couch-context/internal/server"
	"github.com/cserp440/couch-context/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "sync":
		if err := runSync(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("couch-context v%s\n", server.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// newLogger logs to stderr; stdout belongs to the MCP stdio transport.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func runServe() error {
	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("starting couch-context MCP server",
		zap.String("couchbase", cfg.CBConnectionString),
		zap.String("bucket", cfg.CBBucket))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, cleanup, err := server.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return mcpserver.ServeStdio(s)
}

// runSync imports history once without starting the server.
func runSync() error {
	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := store.Connect(cfg, log)
	if err != nil {
		return fmt.Errorf("couchbase: %w", err)
	}
	defer client.Close()

	ctx := context.Background()
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
	for _, job := range jobs {
		result := autosync.RunStartup(ctx, true, job, log)
		fmt.Printf("%s: %s\n", result.Source, result.Status)
		if result.Stats != nil {
			fmt.Printf("  sessions=%d messages=%d skipped=%d files=%d\n",
				result.Stats.SessionsImported,
				result.Stats.MessagesImported,
				result.Stats.SessionsSkipped,
				result.Stats.FilesScanned)
			_ = client.RecordSyncState(ctx, store.SyncStateDoc{
				Source:           result.Source,
				Status:           result.Status,
				SessionsImported: result.Stats.SessionsImported,
				MessagesImported: result.Stats.MessagesImported,
				SessionsSkipped:  result.Stats.SessionsSkipped,
				FilesScanned:     result.Stats.FilesScanned,
			})
		}
	}
	return nil
}

func printUsage() {
	fmt.Println(`couch-context — persistent coding memory MCP server

Usage:
  couch-context serve      Start the MCP server (stdio transport)
  couch-context sync       Import Claude/Codex history once and exit
  couch-context version    Print version
  couch-context help       Show this help

Configuration is read from the environment (and .env):
  CB_CONNECTION_STRING, CB_USERNAME, CB_PASSWORD, CB_BUCKET
  OPENAI_API_KEY, OLLAMA_HOST
  DEFAULT_PROJECT_ID, INCLUDE_ALL_PROJECTS_BY_DEFAULT
  AUTO_IMPORT_CLAUDE_ON_START, AUTO_IMPORT_CODEX_ON_START
  AUTO_IMPORT_ON_QUERY, AUTO_IMPORT_MIN_INTERVAL_SECONDS`)
}
