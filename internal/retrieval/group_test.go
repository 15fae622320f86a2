package retrieval

import (
	"fmt"
	"strings"
	"testing"
)

func sessionItem(id, title string, score float64) Item {
	return NewItem(id, score, map[string]any{
		"id": id, "type": "session", "title": title, "source": "claude-code",
		"summary": "worked on " + title,
	})
}

func TestGroupHonorsPerTypeLimit(t *testing.T) {
	var items []Item
	for i := 0; i < 10; i++ {
		items = append(items, sessionItem(fmt.Sprintf("session::s%d", i), fmt.Sprintf("s%d", i), 1.0-float64(i)*0.01))
	}
	items = append(items, NewItem("decision::d1", 0.5, map[string]any{
		"id": "decision::d1", "type": "decision", "title": "pick a driver",
	}))

	g := Group(items, 3)
	if len(g.Sessions) != 3 {
		t.Fatalf("sessions = %d, want 3", len(g.Sessions))
	}
	// Merge order survives grouping.
	for i, want := range []string{"session::s0", "session::s1", "session::s2"} {
		if g.Sessions[i].ID != want {
			t.Fatalf("session order broken: %+v", g.Sessions)
		}
	}
	if len(g.Decisions) != 1 || g.Decisions[0].Title != "pick a driver" {
		t.Fatalf("decisions = %+v", g.Decisions)
	}
}

func TestGroupFallsBackToIDPrefix(t *testing.T) {
	g := Group([]Item{
		NewItem("bug::b1", 0.4, map[string]any{"id": "bug::b1", "title": "nil deref"}),
		NewItem("weird::w1", 0.3, map[string]any{"id": "weird::w1"}),
	}, 6)
	if len(g.Bugs) != 1 {
		t.Fatalf("bugs = %+v", g.Bugs)
	}
	if len(g.Other) != 1 {
		t.Fatalf("other = %+v", g.Other)
	}
}

func TestCompactSessionTruncatesSummary(t *testing.T) {
	long := strings.Repeat("s", 500)
	c := compactSession(map[string]any{
		"id": "session::s1", "title": "t", "summary": long,
		"tags": []any{"go", "db"}, "message_count": float64(7),
	})
	if len([]rune(c.Summary)) != 240 {
		t.Fatalf("summary length = %d", len([]rune(c.Summary)))
	}
	if c.MessageCount != 7 {
		t.Fatalf("message_count = %d", c.MessageCount)
	}
	if len(c.Tags) != 2 || c.Tags[0] != "go" {
		t.Fatalf("tags = %v", c.Tags)
	}
}

func TestMessageExcerptFallsBackToToolText(t *testing.T) {
	doc := map[string]any{
		"text_content": "   ",
		"tool_calls": []any{
			map[string]any{"name": "Task", "input": map[string]any{"subagent_type": "reviewer"}},
		},
	}
	got := messageExcerpt(doc)
	if !strings.HasPrefix(got, "[tool] ") || !strings.Contains(got, "Task(reviewer)") {
		t.Fatalf("excerpt = %q", got)
	}
}

func TestRenderContextTextSections(t *testing.T) {
	g := Groups{
		Sessions: []CompactSession{{Title: "setup", Summary: "initial import", Source: "codex"}},
		Bugs:     []CompactGeneric{{Title: "panic on empty scope", RootCause: "nil slice"}},
	}
	text := RenderContextText(g, "what broke")
	if !strings.Contains(text, "Context for request: what broke") {
		t.Fatalf("missing header:\n%s", text)
	}
	if !strings.Contains(text, "Relevant sessions:") || !strings.Contains(text, "- [codex] setup :: initial import") {
		t.Fatalf("missing session section:\n%s", text)
	}
	if !strings.Contains(text, "- panic on empty scope: nil slice") {
		t.Fatalf("bug line should prefer root cause:\n%s", text)
	}
	if strings.Contains(text, "Relevant decisions:") {
		t.Fatalf("empty section rendered:\n%s", text)
	}
}
