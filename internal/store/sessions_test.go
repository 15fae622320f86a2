package store

import (
	"strings"
	"testing"
)

func TestSplitTextChunks(t *testing.T) {
	if got := SplitTextChunks("", 10); len(got) != 1 || got[0] != "" {
		t.Fatalf("empty text should yield one empty chunk, got %#v", got)
	}
	if got := SplitTextChunks("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text should stay whole, got %#v", got)
	}

	text := strings.Repeat("a", 25)
	got := SplitTextChunks(text, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	if got[2] != "aaaaa" {
		t.Fatalf("last chunk should carry the remainder, got %q", got[2])
	}
	if strings.Join(got, "") != text {
		t.Fatal("chunks do not reassemble to the original text")
	}
}

func TestIDHelpers(t *testing.T) {
	id := NewSessionID()
	if !strings.HasPrefix(id, "session::") {
		t.Fatalf("session id missing prefix: %s", id)
	}
	part := SessionPart(id)
	if strings.Contains(part, "::") {
		t.Fatalf("session part should be bare, got %s", part)
	}
	if SummaryID(id) != "summary::"+part {
		t.Fatalf("unexpected summary id: %s", SummaryID(id))
	}
	msgID := NewMessageID(id)
	if !strings.HasPrefix(msgID, "msg::"+part+"::") {
		t.Fatalf("unexpected message id: %s", msgID)
	}
}

func TestBuildChunkedMessagesSingleChunk(t *testing.T) {
	docs := BuildChunkedMessages("session::abc", "proj", []IngestMessage{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi", ToolCalls: []map[string]any{{"name": "Read"}}},
	})
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	if docs[0].ID != "msg::abc::00000000::0000" {
		t.Fatalf("unexpected first id: %s", docs[0].ID)
	}
	if docs[1].MessageGroupID != "abc::00000001" {
		t.Fatalf("unexpected group id: %s", docs[1].MessageGroupID)
	}
	if docs[1].SequenceNumber != 1 || docs[1].OriginalSequenceNumber != 1 {
		t.Fatalf("unexpected sequencing: %+v", docs[1])
	}
	if len(docs[1].ToolCalls) != 1 {
		t.Fatal("first chunk should carry tool calls")
	}
	if docs[0].ProjectID != "proj" {
		t.Fatalf("project not applied: %s", docs[0].ProjectID)
	}
}

func TestBuildChunkedMessagesSplitsLongContent(t *testing.T) {
	long := strings.Repeat("x", MessageChunkSize+100)
	docs := BuildChunkedMessages("session::abc", "proj", []IngestMessage{
		{Role: "user", Content: long, RawContent: "raw", ToolCalls: []map[string]any{{"name": "Bash"}}},
		{Role: "assistant", Content: "ok"},
	})
	if len(docs) != 3 {
		t.Fatalf("expected 3 docs, got %d", len(docs))
	}
	if docs[0].ChunkCount != 2 || docs[1].ChunkCount != 2 {
		t.Fatal("chunk count should cover the whole group")
	}
	if docs[0].RawContent == nil || len(docs[0].ToolCalls) != 1 {
		t.Fatal("chunk zero should carry raw content and tool calls")
	}
	if docs[1].RawContent != nil {
		t.Fatal("later chunks must not repeat raw content")
	}
	if docs[1].ID != "msg::abc::00000000::0001" {
		t.Fatalf("unexpected chunk id: %s", docs[1].ID)
	}
	// Sequence numbers count chunks, the original number counts turns.
	if docs[2].SequenceNumber != 2 || docs[2].OriginalSequenceNumber != 1 {
		t.Fatalf("unexpected sequencing on follow-up turn: %+v", docs[2])
	}
	if docs[0].TextContent+docs[1].TextContent != long {
		t.Fatal("chunk text does not reassemble")
	}
}

func TestToolsUsedSortedAndDistinct(t *testing.T) {
	got := ToolsUsed([]IngestMessage{
		{ToolCalls: []map[string]any{{"name": "Write"}, {"name": "Bash"}}},
		{ToolCalls: []map[string]any{{"name": "Bash"}, {"name": ""}}},
	})
	if len(got) != 2 || got[0] != "Bash" || got[1] != "Write" {
		t.Fatalf("unexpected tools: %#v", got)
	}
}

func TestReassembleChunkedMessages(t *testing.T) {
	rows := []map[string]any{
		{
			"message_group_id": "abc::00000001", "chunk_index": float64(1),
			"sequence_number": float64(2), "text_content": " world",
		},
		{
			"message_group_id": "abc::00000001", "chunk_index": float64(0),
			"sequence_number": float64(1), "original_sequence_number": float64(1),
			"text_content": "hello", "role": "assistant",
		},
		{
			"message_group_id": "abc::00000000", "chunk_index": float64(0),
			"sequence_number": float64(0), "original_sequence_number": float64(0),
			"text_content": "question", "role": "user",
		},
	}
	got := ReassembleChunkedMessages(rows)
	if len(got) != 2 {
		t.Fatalf("expected 2 rebuilt messages, got %d", len(got))
	}
	if got[0]["text_content"] != "question" {
		t.Fatalf("unexpected order: %#v", got[0])
	}
	second := got[1]
	if second["text_content"] != "hello world" {
		t.Fatalf("chunks not concatenated in order: %#v", second["text_content"])
	}
	if second["sequence_number"] != 1 {
		t.Fatalf("original sequence not restored: %#v", second["sequence_number"])
	}
	if second["chunk_index"] != 0 || second["chunk_count"] != 2 {
		t.Fatalf("chunk metadata not normalized: %#v", second)
	}
	if second["role"] != "assistant" {
		t.Fatal("fields of chunk zero should survive")
	}
}

func TestReassemblePassesThroughUngroupedMessages(t *testing.T) {
	rows := []map[string]any{
		{"sequence_number": float64(5), "text_content": "late"},
		{"sequence_number": float64(1), "text_content": "early"},
	}
	got := ReassembleChunkedMessages(rows)
	if len(got) != 2 || got[0]["text_content"] != "early" {
		t.Fatalf("ungrouped rows should be sorted by sequence: %#v", got)
	}
}
