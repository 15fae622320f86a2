package importers

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cserp440/couch-context/internal/store"
)

type fakeStore struct {
	sessions []store.SessionDoc
	messages []store.MessageDoc
	replaced []string
}

func (f *fakeStore) UpsertSession(_ context.Context, doc store.SessionDoc) error {
	f.sessions = append(f.sessions, doc)
	return nil
}

func (f *fakeStore) UpsertMessage(_ context.Context, doc store.MessageDoc) error {
	f.messages = append(f.messages, doc)
	return nil
}

func (f *fakeStore) ReplaceSessionMessages(_ context.Context, sessionID string) error {
	f.replaced = append(f.replaced, sessionID)
	return nil
}

func writeJSONL(t *testing.T, path string, entries []map[string]any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	var out []byte
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNormalizeClaudeEntrySkipsMeta(t *testing.T) {
	got := normalizeClaudeEntry(map[string]any{"isMeta": true, "role": "user", "content": "hi"})
	if got != nil {
		t.Fatalf("meta entries must be dropped, got %#v", got)
	}
}

func TestNormalizeClaudeEntryMessageWrapper(t *testing.T) {
	got := normalizeClaudeEntry(map[string]any{
		"timestamp": "2026-08-01T10:00:00Z",
		"cwd":       "/work/app",
		"message": map[string]any{
			"role":    "assistant",
			"content": "done",
		},
	})
	if len(got) != 1 {
		t.Fatalf("expected one message, got %d", len(got))
	}
	if got[0].Role != "assistant" || got[0].Content != "done" {
		t.Fatalf("wrapper fields not applied: %+v", got[0])
	}
	if got[0].Cwd != "/work/app" || got[0].Timestamp != "2026-08-01T10:00:00Z" {
		t.Fatalf("outer fields lost: %+v", got[0])
	}
}

func TestNormalizeClaudeEntryPayloadEnvelope(t *testing.T) {
	got := normalizeClaudeEntry(map[string]any{
		"payload": map[string]any{"role": "user", "content": "question"},
	})
	if len(got) != 1 || got[0].Role != "user" {
		t.Fatalf("payload envelope not handled: %#v", got)
	}
	if normalizeClaudeEntry(map[string]any{"payload": map[string]any{"role": "other"}}) != nil {
		t.Fatal("unknown roles must be dropped")
	}
}

func TestExtractClaudeText(t *testing.T) {
	if got := extractClaudeText("plain"); got != "plain" {
		t.Fatalf("string content: %q", got)
	}
	blocks := []any{
		map[string]any{"type": "text", "text": "first"},
		map[string]any{"type": "tool_use", "name": "Bash"},
		"second",
	}
	if got := extractClaudeText(blocks); got != "first\nsecond" {
		t.Fatalf("block list content: %q", got)
	}
	onlyTools := []any{map[string]any{"type": "tool_use", "name": "Bash"}}
	if got := extractClaudeText(onlyTools); got == "" {
		t.Fatal("tool-only content should fall back to its JSON form")
	}
	if got := extractClaudeText(nil); got != "" {
		t.Fatalf("nil content: %q", got)
	}
}

func TestExtractClaudeTools(t *testing.T) {
	content := []any{
		map[string]any{"type": "tool_use", "name": "Read", "id": "tc1", "input": map[string]any{"path": "a.go"}},
		map[string]any{"type": "tool_result", "tool_use_id": "tc1", "content": "file body"},
		map[string]any{"type": "text", "text": "ignored"},
	}
	calls, results := extractClaudeTools(content)
	if len(calls) != 1 || calls[0]["name"] != "Read" {
		t.Fatalf("unexpected calls: %#v", calls)
	}
	if len(results) != 1 || results[0]["content"] != "file body" {
		t.Fatalf("unexpected results: %#v", results)
	}
}

func TestClaudeImporterRun(t *testing.T) {
	root := t.TempDir()
	writeJSONL(t, filepath.Join(root, "proj-a", "abc123.jsonl"), []map[string]any{
		{"isMeta": true},
		{
			"timestamp": "2026-08-01T10:00:00Z",
			"cwd":       "/work/app",
			"message":   map[string]any{"role": "user", "content": "Fix the login timeout bug"},
		},
		{
			"message": map[string]any{"role": "assistant", "content": []any{
				map[string]any{"type": "text", "text": "Looking now."},
				map[string]any{"type": "tool_use", "name": "Read", "id": "tc1", "input": map[string]any{}},
			}},
		},
	})
	writeJSONL(t, filepath.Join(root, "proj-a", "empty.jsonl"), []map[string]any{{"isMeta": true}})

	st := &fakeStore{}
	stats := NewClaudeImporter(st, "default", nil).Run(context.Background(), root)

	if stats.SessionsImported != 1 || stats.MessagesImported != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.SessionsSkipped != 1 || stats.FilesScanned != 2 {
		t.Fatalf("unexpected scan stats: %+v", stats)
	}

	if len(st.sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(st.sessions))
	}
	session := st.sessions[0]
	if session.ID != "session::claude::abc123" {
		t.Fatalf("unexpected session id: %s", session.ID)
	}
	if session.Title != "Fix the login timeout bug" {
		t.Fatalf("unexpected title: %s", session.Title)
	}
	if session.Directory != "/work/app" || session.Source != "claude-code" {
		t.Fatalf("unexpected session fields: %+v", session)
	}
	if session.ProjectID != "/work/app" {
		t.Fatalf("project should derive from the cwd: %s", session.ProjectID)
	}

	if len(st.replaced) != 1 || st.replaced[0] != session.ID {
		t.Fatalf("existing messages should be replaced first: %#v", st.replaced)
	}
	if len(st.messages) != 2 {
		t.Fatalf("expected 2 message docs, got %d", len(st.messages))
	}
	if st.messages[0].ID != "msg::claude::abc123::00000000::0000" {
		t.Fatalf("unexpected message id: %s", st.messages[0].ID)
	}
	if st.messages[1].TextContent != "Looking now." {
		t.Fatalf("assistant text not extracted: %q", st.messages[1].TextContent)
	}
	if len(st.messages[1].ToolCalls) != 1 {
		t.Fatal("tool call should survive normalization")
	}
}

func TestClaudeImporterMissingDirectory(t *testing.T) {
	st := &fakeStore{}
	stats := NewClaudeImporter(st, "default", nil).Run(context.Background(), "/does/not/exist")
	if stats.Error == "" || stats.SessionsImported != 0 {
		t.Fatalf("missing directory should be reported: %+v", stats)
	}
}

func TestClaudeTitleFallback(t *testing.T) {
	messages := []claudeMessage{{Role: "assistant", Content: "hello"}}
	if got := claudeTitle(messages, "xyz"); got != "Claude Session xyz" {
		t.Fatalf("unexpected fallback title: %s", got)
	}
}
