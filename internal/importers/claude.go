package importers

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cserp440/couch-context/internal/scope"
	"github.com/cserp440/couch-context/internal/store"
)

// ClaudeImporter reads Claude Code session logs: one JSONL file per
// session under per-project directories.
type ClaudeImporter struct {
	store     Store
	projectID string
	log       *zap.Logger
}

func NewClaudeImporter(st Store, projectID string, log *zap.Logger) *ClaudeImporter {
	if log == nil {
		log = zap.NewNop()
	}
	if projectID == "" {
		projectID = "default"
	}
	return &ClaudeImporter{store: st, projectID: projectID, log: log}
}

func (im *ClaudeImporter) Name() string { return "claude" }

// Run imports every session file under path, which defaults layout-wise
// to ~/.claude/projects/<project>/<session>.jsonl.
func (im *ClaudeImporter) Run(ctx context.Context, path string) Stats {
	var stats Stats
	entries, err := os.ReadDir(path)
	if err != nil {
		im.log.Warn("claude directory not found", zap.String("path", path))
		stats.Error = "Claude directory not found"
		return stats
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		projectDir := filepath.Join(path, entry.Name())
		files, err := filepath.Glob(filepath.Join(projectDir, "*.jsonl"))
		if err != nil {
			continue
		}
		for _, file := range files {
			stats.FilesScanned++
			imported, count, err := im.importSession(ctx, file)
			if err != nil {
				im.log.Error("claude session import failed", zap.String("file", file), zap.Error(err))
				continue
			}
			if imported {
				stats.SessionsImported++
				stats.MessagesImported += count
			} else {
				stats.SessionsSkipped++
			}
		}
	}

	im.log.Info("claude import complete",
		zap.Int("sessions", stats.SessionsImported),
		zap.Int("messages", stats.MessagesImported),
		zap.Int("skipped", stats.SessionsSkipped),
		zap.Int("files", stats.FilesScanned))
	return stats
}

type claudeMessage struct {
	Role        string
	Content     any
	ToolCalls   []map[string]any
	ToolResults []map[string]any
	Timestamp   string
	Cwd         string
}

func (im *ClaudeImporter) importSession(ctx context.Context, file string) (bool, int, error) {
	f, err := os.Open(file)
	if err != nil {
		return false, 0, err
	}
	defer f.Close()

	var messages []claudeMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		messages = append(messages, normalizeClaudeEntry(entry)...)
	}
	if err := scanner.Err(); err != nil {
		return false, 0, err
	}
	if len(messages) == 0 {
		return false, 0, nil
	}

	stem := strings.TrimSuffix(filepath.Base(file), ".jsonl")
	sessionID := "session::claude::" + stem
	directory := claudeDirectory(messages, filepath.Dir(file))
	projectID := scope.DeriveProjectID(im.projectID, directory, "default")

	session := store.NewSessionDoc()
	session.ID = sessionID
	session.Title = claudeTitle(messages, stem)
	session.ProjectID = projectID
	session.Directory = directory
	session.Source = "claude-code"
	session.MessageCount = len(messages)
	if started := claudeStartedAt(messages); !started.IsZero() {
		session.StartedAt = started
		session.CreatedAt = started
	}

	ingest := make([]store.IngestMessage, 0, len(messages))
	for _, msg := range messages {
		ingest = append(ingest, store.IngestMessage{
			Role:        msg.Role,
			Content:     extractClaudeText(msg.Content),
			RawContent:  msg.Content,
			ToolCalls:   msg.ToolCalls,
			ToolResults: msg.ToolResults,
		})
	}
	if err := persistSession(ctx, im.store, im.log, session, ingest); err != nil {
		return false, 0, err
	}
	return true, len(messages), nil
}

var claudeRoles = map[string]bool{"user": true, "assistant": true, "system": true, "tool": true}

// normalizeClaudeEntry maps one JSONL entry to zero or more messages.
// Entries come either flat, wrapped in a "message" object, or in an
// envelope with a "payload" object. Meta entries are dropped.
func normalizeClaudeEntry(entry map[string]any) []claudeMessage {
	if meta, _ := entry["isMeta"].(bool); meta {
		return nil
	}

	role, _ := entry["role"].(string)
	content := entry["content"]
	cwd, _ := entry["cwd"].(string)
	timestamp, _ := entry["timestamp"].(string)

	if message, ok := entry["message"].(map[string]any); ok {
		if r, ok := message["role"].(string); ok {
			role = r
		}
		if c, ok := message["content"]; ok {
			content = c
		}
		if c, ok := message["cwd"].(string); ok {
			cwd = c
		}
	}

	if claudeRoles[role] {
		calls, results := extractClaudeTools(content)
		return []claudeMessage{{
			Role: role, Content: content,
			ToolCalls: calls, ToolResults: results,
			Timestamp: timestamp, Cwd: cwd,
		}}
	}

	payload, ok := entry["payload"].(map[string]any)
	if !ok {
		return nil
	}
	role, _ = payload["role"].(string)
	if !claudeRoles[role] {
		return nil
	}
	content = payload["content"]
	if c, ok := payload["cwd"].(string); ok {
		cwd = c
	}
	if ts, ok := payload["timestamp"].(string); ok {
		timestamp = ts
	}
	calls, results := extractClaudeTools(content)
	return []claudeMessage{{
		Role: role, Content: content,
		ToolCalls: calls, ToolResults: results,
		Timestamp: timestamp, Cwd: cwd,
	}}
}

// extractClaudeText flattens message content, which may be a plain
// string, a list of content blocks, or an arbitrary object.
func extractClaudeText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var texts []string
		for _, block := range c {
			switch b := block.(type) {
			case string:
				texts = append(texts, b)
			case map[string]any:
				if b["type"] == "text" {
					if text, ok := b["text"].(string); ok {
						texts = append(texts, text)
					}
				}
			}
		}
		if len(texts) > 0 {
			return strings.Join(texts, "\n")
		}
		return jsonString(content)
	case map[string]any:
		return jsonString(content)
	case nil:
		return ""
	default:
		return ""
	}
}

func extractClaudeTools(content any) ([]map[string]any, []map[string]any) {
	blocks, ok := content.([]any)
	if !ok {
		return nil, nil
	}
	var calls, results []map[string]any
	for _, raw := range blocks {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch block["type"] {
		case "tool_use":
			input := block["input"]
			if input == nil {
				input = map[string]any{}
			}
			calls = append(calls, map[string]any{
				"name":  stringOr(block["name"]),
				"id":    stringOr(block["id"]),
				"input": input,
			})
		case "tool_result":
			results = append(results, map[string]any{
				"tool_use_id": stringOr(block["tool_use_id"]),
				"content":     extractClaudeText(block["content"]),
			})
		}
	}
	return calls, results
}

func claudeTitle(messages []claudeMessage, stem string) string {
	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}
		text := strings.TrimSpace(extractClaudeText(msg.Content))
		if text != "" {
			return clipRunes(firstLine(text), 90)
		}
		break
	}
	return "Claude Session " + stem
}

func claudeStartedAt(messages []claudeMessage) time.Time {
	for _, msg := range messages {
		if msg.Timestamp == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, msg.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

func claudeDirectory(messages []claudeMessage, fallback string) string {
	for _, msg := range messages {
		if cwd := strings.TrimSpace(msg.Cwd); cwd != "" {
			return cwd
		}
	}
	return fallback
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func stringOr(v any) string {
	s, _ := v.(string)
	return s
}
