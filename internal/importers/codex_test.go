package importers

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeCodexEntryChat(t *testing.T) {
	tracked := map[string]bool{}
	got := normalizeCodexEntry(map[string]any{
		"type":    "event_msg",
		"payload": map[string]any{"type": "user_message", "message": "  hello there  "},
	}, tracked)
	if len(got) != 1 || got[0].Role != "user" || got[0].Content != "hello there" {
		t.Fatalf("user message not normalized: %#v", got)
	}

	got = normalizeCodexEntry(map[string]any{
		"type":    "event_msg",
		"payload": map[string]any{"type": "agent_message", "message": ""},
	}, tracked)
	if got != nil {
		t.Fatal("empty agent messages must be dropped")
	}
}

func TestNormalizeCodexEntryFunctionCall(t *testing.T) {
	tracked := map[string]bool{}
	got := normalizeCodexEntry(map[string]any{
		"type": "response_item",
		"payload": map[string]any{
			"type":      "function_call",
			"name":      "Task",
			"call_id":   "call_1",
			"arguments": `{"subagent_type":"reviewer"}`,
		},
	}, tracked)
	if len(got) != 1 {
		t.Fatalf("expected one message, got %d", len(got))
	}
	if got[0].Role != "assistant" || got[0].Content != "Tool call: Task (reviewer)" {
		t.Fatalf("unexpected tool call message: %+v", got[0])
	}
	if len(got[0].ToolCalls) != 1 || got[0].ToolCalls[0]["name"] != "Task" {
		t.Fatalf("tool call not recorded: %#v", got[0].ToolCalls)
	}
	if !tracked["call_1"] {
		t.Fatal("call id should be tracked")
	}
}

func TestNormalizeCodexEntryFunctionCallOutput(t *testing.T) {
	long := strings.Repeat("z", 300)
	got := normalizeCodexEntry(map[string]any{
		"type": "response_item",
		"payload": map[string]any{
			"type":    "function_call_output",
			"call_id": "call_1",
			"output":  long + "\nsecond line",
		},
	}, map[string]bool{})
	if len(got) != 1 || got[0].Role != "tool" {
		t.Fatalf("unexpected output message: %#v", got)
	}
	want := "Tool result for call_1: " + strings.Repeat("z", 180)
	if got[0].Content != want {
		t.Fatalf("summary should clip the first line: %q", got[0].Content)
	}
	if got[0].ToolResults[0]["content"] != long+"\nsecond line" {
		t.Fatal("full output should land in tool results")
	}

	if normalizeCodexEntry(map[string]any{
		"type":    "response_item",
		"payload": map[string]any{"type": "function_call_output", "output": "x"},
	}, map[string]bool{}) != nil {
		t.Fatal("outputs without a call id must be dropped")
	}
}

func TestCodexToolCallLabelSkill(t *testing.T) {
	label := codexToolCallLabel("skill", map[string]any{"skill_name": "deploy"})
	if label != "skill (deploy)" {
		t.Fatalf("unexpected label: %s", label)
	}
	if codexToolCallLabel("Bash", map[string]any{}) != "Bash" {
		t.Fatal("plain tools keep their name")
	}
}

func TestNormalizeCodexTextBlocks(t *testing.T) {
	blocks := []any{
		map[string]any{"text": "alpha"},
		map[string]any{"output_text": "beta"},
		"gamma",
	}
	if got := normalizeCodexText(blocks); got != "alpha\nbeta\ngamma" {
		t.Fatalf("unexpected join: %q", got)
	}
	if got := normalizeCodexText(map[string]any{"input_text": " delta "}); got != "delta" {
		t.Fatalf("unexpected block text: %q", got)
	}
}

func TestCodexImporterRun(t *testing.T) {
	root := t.TempDir()
	writeJSONL(t, filepath.Join(root, "sessions", "2026", "rollout-1.jsonl"), []map[string]any{
		{
			"type": "session_meta",
			"payload": map[string]any{
				"id":        "sess-42",
				"cwd":       "/work/api",
				"timestamp": "2026-08-02T09:30:00Z",
			},
		},
		{
			"type":    "event_msg",
			"payload": map[string]any{"type": "user_message", "message": "Wire up the retry queue"},
		},
		{
			"type": "response_item",
			"payload": map[string]any{
				"type": "function_call", "name": "Bash", "call_id": "c1", "arguments": `{"cmd":"ls"}`,
			},
		},
		{
			"type": "response_item",
			"payload": map[string]any{
				"type": "function_call_output", "call_id": "c1", "output": "main.go",
			},
		},
	})

	st := &fakeStore{}
	stats := NewCodexImporter(st, "default", nil).Run(context.Background(), root)

	if stats.SessionsImported != 1 || stats.MessagesImported != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	session := st.sessions[0]
	if session.ID != "session::codex::sess-42" {
		t.Fatalf("meta id should name the session: %s", session.ID)
	}
	if session.Title != "Wire up the retry queue" || session.Source != "codex" {
		t.Fatalf("unexpected session fields: %+v", session)
	}
	if session.Directory != "/work/api" || session.ProjectID != "/work/api" {
		t.Fatalf("cwd should drive directory and project: %+v", session)
	}
	if len(session.ToolsUsed) != 1 || session.ToolsUsed[0] != "Bash" {
		t.Fatalf("tools used not collected: %#v", session.ToolsUsed)
	}
	if len(st.messages) != 3 {
		t.Fatalf("expected 3 message docs, got %d", len(st.messages))
	}
	if st.messages[0].ID != "msg::codex::sess-42::00000000::0000" {
		t.Fatalf("unexpected message id: %s", st.messages[0].ID)
	}
}

func TestCodexScanDirsFallsBackToPathItself(t *testing.T) {
	root := t.TempDir()
	dirs := codexScanDirs(root)
	if len(dirs) != 1 || dirs[0] != root {
		t.Fatalf("bare directories should scan themselves: %#v", dirs)
	}
	if codexScanDirs(filepath.Join(root, "missing")) != nil {
		t.Fatal("missing paths should return nothing")
	}
}
