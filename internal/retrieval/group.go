package retrieval

import (
	"fmt"
	"strings"
)

// CompactSession is the response projection of a session document.
type CompactSession struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Summary         string   `json:"summary"`
	Tags            []string `json:"tags"`
	ProjectID       string   `json:"project_id"`
	Directory       string   `json:"directory"`
	Source          string   `json:"source"`
	RetrievalSource string   `json:"retrieval_source"`
	MessageCount    int      `json:"message_count"`
	StartedAt       string   `json:"started_at"`
	CreatedAt       string   `json:"created_at"`
	ToolsUsed       []string `json:"tools_used"`
	FilesModified   []string `json:"files_modified"`
}

// CompactMessage is the response projection of a message document.
type CompactMessage struct {
	ID               string           `json:"id"`
	SessionID        string           `json:"session_id"`
	ProjectID        string           `json:"project_id"`
	SessionProjectID string           `json:"session_project_id"`
	SessionDirectory string           `json:"session_directory"`
	Role             string           `json:"role"`
	SessionSource    string           `json:"session_source"`
	SequenceNumber   int              `json:"sequence_number"`
	Timestamp        string           `json:"timestamp"`
	TextExcerpt      string           `json:"text_excerpt"`
	RetrievalSource  string           `json:"retrieval_source"`
	ToolCalls        []map[string]any `json:"tool_calls"`
	ToolResults      []map[string]any `json:"tool_results"`
}

// CompactSummary is the response projection of a session summary.
type CompactSummary struct {
	ID           string   `json:"id"`
	SessionID    string   `json:"session_id"`
	Summary      string   `json:"summary"`
	KeyDecisions []string `json:"key_decisions"`
	KeyFiles     []string `json:"key_files"`
	KeyTopics    []string `json:"key_topics"`
	Outcome      string   `json:"outcome"`
	ProjectID    string   `json:"project_id"`
	CreatedAt    string   `json:"created_at"`
}

// CompactGeneric covers decisions, bugs, patterns, thoughts and anything
// unrecognized.
type CompactGeneric struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	Content        string   `json:"content,omitempty"`
	Category       string   `json:"category,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Severity       string   `json:"severity,omitempty"`
	RootCause      string   `json:"root_cause,omitempty"`
	FixDescription string   `json:"fix_description,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
	ProjectID      string   `json:"project_id,omitempty"`
}

// Groups is the context bundle grouped by document kind, in merged
// relevance order within each group.
type Groups struct {
	Sessions  []CompactSession `json:"sessions"`
	Summaries []CompactSummary `json:"summaries"`
	Messages  []CompactMessage `json:"messages"`
	Decisions []CompactGeneric `json:"decisions"`
	Bugs      []CompactGeneric `json:"bugs"`
	Patterns  []CompactGeneric `json:"patterns"`
	Thoughts  []CompactGeneric `json:"thoughts"`
	Other     []CompactGeneric `json:"other"`
}

// itemKind prefers the document's own type field over the id prefix.
func itemKind(it Item) Kind {
	switch it.Str("type") {
	case "session":
		return KindSession
	case "message":
		return KindMessage
	case "summary":
		return KindSummary
	case "decision":
		return KindDecision
	case "bug":
		return KindBug
	case "pattern":
		return KindPattern
	case "thought":
		return KindThought
	}
	if it.Kind != KindOther {
		return it.Kind
	}
	return KindOther
}

// Group buckets merged items by kind, keeping at most perTypeLimit per
// bucket and preserving the merged order.
func Group(items []Item, perTypeLimit int) Groups {
	if perTypeLimit <= 0 {
		perTypeLimit = 6
	}
	var g Groups
	for _, it := range items {
		switch itemKind(it) {
		case KindSession:
			if len(g.Sessions) < perTypeLimit {
				g.Sessions = append(g.Sessions, compactSession(it.Doc))
			}
		case KindMessage:
			if len(g.Messages) < perTypeLimit {
				g.Messages = append(g.Messages, compactMessage(it.Doc))
			}
		case KindSummary:
			if len(g.Summaries) < perTypeLimit {
				g.Summaries = append(g.Summaries, compactSummary(it.Doc))
			}
		case KindDecision:
			if len(g.Decisions) < perTypeLimit {
				g.Decisions = append(g.Decisions, compactGeneric(it.Doc))
			}
		case KindBug:
			if len(g.Bugs) < perTypeLimit {
				g.Bugs = append(g.Bugs, compactGeneric(it.Doc))
			}
		case KindPattern:
			if len(g.Patterns) < perTypeLimit {
				g.Patterns = append(g.Patterns, compactGeneric(it.Doc))
			}
		case KindThought:
			if len(g.Thoughts) < perTypeLimit {
				g.Thoughts = append(g.Thoughts, compactGeneric(it.Doc))
			}
		default:
			if len(g.Other) < perTypeLimit {
				g.Other = append(g.Other, compactGeneric(it.Doc))
			}
		}
	}
	return g
}

func docStr(doc map[string]any, key string) string {
	switch v := doc[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func docInt(doc map[string]any, key string) int {
	switch v := doc[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func docStrList(doc map[string]any, key string) []string {
	raw, ok := doc[key].([]any)
	if !ok {
		if typed, ok := doc[key].([]string); ok {
			return typed
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func docMapList(doc map[string]any, key string) []map[string]any {
	raw, ok := doc[key].([]any)
	if !ok {
		if typed, ok := doc[key].([]map[string]any); ok {
			return typed
		}
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func retrievalSource(doc map[string]any) string {
	if s := docStr(doc, "retrieval_source"); s != "" {
		return s
	}
	return docStr(doc, "source")
}

func compactSession(doc map[string]any) CompactSession {
	return CompactSession{
		ID:              docStr(doc, "id"),
		Title:           docStr(doc, "title"),
		Summary:         Truncate(docStr(doc, "summary"), 240),
		Tags:            docStrList(doc, "tags"),
		ProjectID:       docStr(doc, "project_id"),
		Directory:       docStr(doc, "directory"),
		Source:          docStr(doc, "source"),
		RetrievalSource: retrievalSource(doc),
		MessageCount:    docInt(doc, "message_count"),
		StartedAt:       docStr(doc, "started_at"),
		CreatedAt:       docStr(doc, "created_at"),
		ToolsUsed:       docStrList(doc, "tools_used"),
		FilesModified:   docStrList(doc, "files_modified"),
	}
}

func compactMessage(doc map[string]any) CompactMessage {
	return CompactMessage{
		ID:               docStr(doc, "id"),
		SessionID:        docStr(doc, "session_id"),
		ProjectID:        docStr(doc, "project_id"),
		SessionProjectID: docStr(doc, "session_project_id"),
		SessionDirectory: docStr(doc, "session_directory"),
		Role:             docStr(doc, "role"),
		SessionSource:    docStr(doc, "session_source"),
		SequenceNumber:   docInt(doc, "sequence_number"),
		Timestamp:        docStr(doc, "timestamp"),
		TextExcerpt:      messageExcerpt(doc),
		RetrievalSource:  retrievalSource(doc),
		ToolCalls:        docMapList(doc, "tool_calls"),
		ToolResults:      docMapList(doc, "tool_results"),
	}
}

// messageExcerpt prefers the message text and falls back to a compact
// rendering of its tool activity.
func messageExcerpt(doc map[string]any) string {
	if text := strings.TrimSpace(docStr(doc, "text_content")); text != "" {
		return Truncate(text, 240)
	}
	if toolText := toolSignalText(anySlice(doc["tool_calls"]), anySlice(doc["tool_results"])); toolText != "" {
		return Truncate("[tool] "+toolText, 240)
	}
	return ""
}

func compactSummary(doc map[string]any) CompactSummary {
	return CompactSummary{
		ID:           docStr(doc, "id"),
		SessionID:    docStr(doc, "session_id"),
		Summary:      Truncate(docStr(doc, "summary"), 240),
		KeyDecisions: docStrList(doc, "key_decisions"),
		KeyFiles:     docStrList(doc, "key_files"),
		KeyTopics:    docStrList(doc, "key_topics"),
		Outcome:      docStr(doc, "outcome"),
		ProjectID:    docStr(doc, "project_id"),
		CreatedAt:    docStr(doc, "created_at"),
	}
}

func compactGeneric(doc map[string]any) CompactGeneric {
	return CompactGeneric{
		ID:             docStr(doc, "id"),
		Type:           docStr(doc, "type"),
		Title:          docStr(doc, "title"),
		Description:    docStr(doc, "description"),
		Content:        docStr(doc, "content"),
		Category:       docStr(doc, "category"),
		Tags:           docStrList(doc, "tags"),
		Severity:       docStr(doc, "severity"),
		RootCause:      docStr(doc, "root_cause"),
		FixDescription: docStr(doc, "fix_description"),
		CreatedAt:      docStr(doc, "created_at"),
		ProjectID:      docStr(doc, "project_id"),
	}
}

// RenderContextText lays the grouped context out as readable text, one
// section per populated group.
func RenderContextText(g Groups, query string) string {
	lines := []string{"Context for request: " + query}

	if len(g.Sessions) > 0 {
		lines = append(lines, "", "Relevant sessions:")
		for _, s := range g.Sessions {
			source := s.Source
			if source == "" {
				source = "unknown"
			}
			lines = append(lines, fmt.Sprintf("- [%s] %s :: %s", source, s.Title, s.Summary))
		}
	}
	if len(g.Summaries) > 0 {
		lines = append(lines, "", "Relevant summaries:")
		for _, s := range g.Summaries {
			lines = append(lines, "- "+s.Summary)
		}
	}
	if len(g.Messages) > 0 {
		lines = append(lines, "", "Relevant messages:")
		for _, m := range g.Messages {
			source := m.SessionSource
			if source == "" {
				source = "unknown"
			}
			lines = append(lines, fmt.Sprintf("- [%s|%s] %s", m.Role, source, m.TextExcerpt))
		}
	}
	if len(g.Decisions) > 0 {
		lines = append(lines, "", "Relevant decisions:")
		for _, d := range g.Decisions {
			lines = append(lines, fmt.Sprintf("- %s: %s", d.Title, d.Description))
		}
	}
	if len(g.Bugs) > 0 {
		lines = append(lines, "", "Relevant bugs:")
		for _, b := range g.Bugs {
			detail := b.RootCause
			if detail == "" {
				detail = b.Description
			}
			lines = append(lines, fmt.Sprintf("- %s: %s", b.Title, detail))
		}
	}
	if len(g.Patterns) > 0 {
		lines = append(lines, "", "Relevant patterns:")
		for _, p := range g.Patterns {
			lines = append(lines, fmt.Sprintf("- %s: %s", p.Title, p.Description))
		}
	}
	if len(g.Thoughts) > 0 {
		lines = append(lines, "", "Recent thoughts:")
		for _, t := range g.Thoughts {
			lines = append(lines, "- "+t.Content)
		}
	}
	return strings.Join(lines, "\n")
}
