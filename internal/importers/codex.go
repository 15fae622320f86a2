package importers

import (
	"bufio"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cserp440/couch-context/internal/scope"
	"github.com/cserp440/couch-context/internal/store"
)

// CodexImporter reads Codex CLI rollout logs: JSONL event streams under
// ~/.codex/sessions and ~/.codex/archived_sessions.
type CodexImporter struct {
	store     Store
	projectID string
	log       *zap.Logger
}

func NewCodexImporter(st Store, projectID string, log *zap.Logger) *CodexImporter {
	if log == nil {
		log = zap.NewNop()
	}
	if projectID == "" {
		projectID = "default"
	}
	return &CodexImporter{store: st, projectID: projectID, log: log}
}

func (im *CodexImporter) Name() string { return "codex" }

func (im *CodexImporter) Run(ctx context.Context, path string) Stats {
	var stats Stats
	scanDirs := codexScanDirs(path)
	if len(scanDirs) == 0 {
		im.log.Warn("codex sessions directory not found", zap.String("path", path))
		stats.Error = "Codex sessions directory not found"
		return stats
	}

	for _, dir := range scanDirs {
		var files []string
		_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() && strings.HasSuffix(p, ".jsonl") {
				files = append(files, p)
			}
			return nil
		})
		sort.Strings(files)
		for _, file := range files {
			stats.FilesScanned++
			imported, count, err := im.importSessionFile(ctx, file)
			if err != nil {
				im.log.Error("codex session import failed", zap.String("file", file), zap.Error(err))
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

	im.log.Info("codex import complete",
		zap.Int("sessions", stats.SessionsImported),
		zap.Int("messages", stats.MessagesImported),
		zap.Int("skipped", stats.SessionsSkipped),
		zap.Int("files", stats.FilesScanned))
	return stats
}

// codexScanDirs accepts either the .codex root, in which case the live
// and archived session directories are scanned, or a session directory
// itself.
func codexScanDirs(path string) []string {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil
	}
	var dirs []string
	for _, name := range []string{"sessions", "archived_sessions"} {
		candidate := filepath.Join(path, name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			dirs = append(dirs, candidate)
		}
	}
	if len(dirs) > 0 {
		return dirs
	}
	return []string{path}
}

func (im *CodexImporter) importSessionFile(ctx context.Context, file string) (bool, int, error) {
	f, err := os.Open(file)
	if err != nil {
		return false, 0, err
	}
	defer f.Close()

	var meta map[string]any
	var messages []store.IngestMessage
	trackedCallIDs := map[string]bool{}

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
		if entry["type"] == "session_meta" {
			if payload, ok := entry["payload"].(map[string]any); ok {
				meta = payload
			}
			continue
		}
		messages = append(messages, normalizeCodexEntry(entry, trackedCallIDs)...)
	}
	if err := scanner.Err(); err != nil {
		return false, 0, err
	}
	if len(messages) == 0 {
		return false, 0, nil
	}

	stem := strings.TrimSuffix(filepath.Base(file), ".jsonl")
	token := stem
	directory := ""
	var startedAt time.Time
	if meta != nil {
		if id := stringOr(meta["id"]); id != "" {
			token = id
		}
		directory = stringOr(meta["cwd"])
		if ts := stringOr(meta["timestamp"]); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				startedAt = t
			}
		}
	}
	sessionID := "session::codex::" + token
	projectID := scope.DeriveProjectID(im.projectID, directory, "default")

	session := store.NewSessionDoc()
	session.ID = sessionID
	session.Title = codexTitle(messages, stem)
	session.ProjectID = projectID
	session.Directory = directory
	session.Source = "codex"
	session.MessageCount = len(messages)
	session.ToolsUsed = store.ToolsUsed(messages)
	if !startedAt.IsZero() {
		session.StartedAt = startedAt
		session.CreatedAt = startedAt
	}

	if err := persistSession(ctx, im.store, im.log, session, messages); err != nil {
		return false, 0, err
	}
	return true, len(messages), nil
}

// normalizeCodexEntry maps a rollout event to zero or more messages.
// User and agent chatter comes from event_msg entries; tool activity
// comes from response_item function calls and their outputs.
func normalizeCodexEntry(entry map[string]any, trackedCallIDs map[string]bool) []store.IngestMessage {
	payload, _ := entry["payload"].(map[string]any)
	if payload == nil {
		return nil
	}

	if entry["type"] == "event_msg" {
		raw := payload["message"]
		text := normalizeCodexText(raw)
		if text == "" {
			return nil
		}
		switch payload["type"] {
		case "user_message":
			return []store.IngestMessage{{Role: "user", Content: text, RawContent: raw}}
		case "agent_message":
			return []store.IngestMessage{{Role: "assistant", Content: text, RawContent: raw}}
		}
		return nil
	}

	if entry["type"] != "response_item" {
		return nil
	}

	switch payload["type"] {
	case "function_call":
		name := stringOr(payload["name"])
		if name == "" {
			return nil
		}
		callID := stringOr(payload["call_id"])
		input := parseCodexJSONValue(payload["arguments"])
		switch input.(type) {
		case map[string]any, []any:
		default:
			input = map[string]any{"value": input}
		}
		if callID != "" {
			trackedCallIDs[callID] = true
		}
		toolCall := map[string]any{"name": name, "id": callID, "input": input}
		return []store.IngestMessage{{
			Role:       "assistant",
			Content:    "Tool call: " + codexToolCallLabel(name, input),
			RawContent: payload,
			ToolCalls:  []map[string]any{toolCall},
		}}

	case "function_call_output":
		callID := stringOr(payload["call_id"])
		if callID == "" {
			return nil
		}
		outputText := normalizeCodexText(payload["output"])
		content := "Tool result for " + callID
		if summary := clipRunes(firstLine(outputText), 180); summary != "" {
			content += ": " + summary
		}
		return []store.IngestMessage{{
			Role:        "tool",
			Content:     content,
			RawContent:  payload,
			ToolResults: []map[string]any{{"tool_use_id": callID, "content": outputText}},
		}}
	}
	return nil
}

func parseCodexJSONValue(v any) any {
	switch val := v.(type) {
	case map[string]any, []any:
		return val
	case string:
		stripped := strings.TrimSpace(val)
		if stripped == "" {
			return ""
		}
		var decoded any
		if err := json.Unmarshal([]byte(stripped), &decoded); err == nil {
			return decoded
		}
		return val
	default:
		return v
	}
}

// codexToolCallLabel names a tool call for the message text, surfacing
// the subagent or skill being invoked.
func codexToolCallLabel(name string, input any) string {
	data, ok := input.(map[string]any)
	if !ok {
		return name
	}
	if name == "Task" {
		if subagent := stringOr(data["subagent_type"]); subagent != "" {
			return name + " (" + subagent + ")"
		}
	}
	if name == "skill" {
		for _, key := range []string{"name", "skill", "skill_name", "path"} {
			if skill := stringOr(data[key]); skill != "" {
				return name + " (" + skill + ")"
			}
		}
	}
	return name
}

func codexTitle(messages []store.IngestMessage, stem string) string {
	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}
		if line := clipRunes(firstLine(strings.TrimSpace(msg.Content)), 90); line != "" {
			return line
		}
		break
	}
	return "Codex Session " + stem
}

// normalizeCodexText flattens message payloads that arrive as plain
// strings, block lists, or single blocks.
func normalizeCodexText(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		var parts []string
		for _, item := range val {
			switch block := item.(type) {
			case string:
				if trimmed := strings.TrimSpace(block); trimmed != "" {
					parts = append(parts, trimmed)
				}
			case map[string]any:
				if text := codexBlockText(block); strings.TrimSpace(text) != "" {
					parts = append(parts, strings.TrimSpace(text))
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
		return jsonString(val)
	case map[string]any:
		if text := strings.TrimSpace(codexBlockText(val)); text != "" {
			return text
		}
		return jsonString(val)
	default:
		return ""
	}
}

func codexBlockText(block map[string]any) string {
	for _, key := range []string{"text", "output_text", "input_text"} {
		if text := stringOr(block[key]); text != "" {
			return text
		}
	}
	return ""
}
