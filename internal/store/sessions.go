package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/couchbase/gocb/v2"

	"github.com/cserp440/couch-context/internal/scope"
)

// Embedder is the slice of the embedding provider persistence needs.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// IngestMessage is one conversation turn handed to session ingest.
type IngestMessage struct {
	Role        string
	Content     string
	RawContent  any
	ToolCalls   []map[string]any
	ToolResults []map[string]any
}

// IngestSessionParams describe a full session to persist.
type IngestSessionParams struct {
	Title     string
	Messages  []IngestMessage
	ProjectID string
	Directory string
	Source    string
	Tags      []string
	Summary   string
}

// IngestResult reports what a session ingest stored.
type IngestResult struct {
	SessionID    string `json:"session_id"`
	ProjectID    string `json:"project_id"`
	MessageCount int    `json:"message_count"`
	Status       string `json:"status"`
}

// BuildChunkedMessages expands conversation turns into chunked message
// documents. Only the first chunk of a group carries the raw content and
// tool activity; sequence numbers count chunks while
// original_sequence_number keeps the turn index.
func BuildChunkedMessages(sessionID, projectID string, messages []IngestMessage) []MessageDoc {
	var docs []MessageDoc
	seq := 0
	for i, msg := range messages {
		chunks := SplitTextChunks(msg.Content, MessageChunkSize)
		groupID := fmt.Sprintf("%s::%08d", SessionPart(sessionID), i)
		for chunkIndex, chunkText := range chunks {
			doc := NewMessageDoc(sessionID)
			doc.ID = fmt.Sprintf("msg::%s::%04d", groupID, chunkIndex)
			doc.ProjectID = projectID
			doc.Role = msg.Role
			doc.TextContent = chunkText
			doc.MessageGroupID = groupID
			doc.ChunkIndex = chunkIndex
			doc.ChunkCount = len(chunks)
			doc.OriginalSequenceNumber = i
			doc.SequenceNumber = seq
			if chunkIndex == 0 {
				doc.RawContent = msg.RawContent
				if msg.ToolCalls != nil {
					doc.ToolCalls = msg.ToolCalls
				}
				if msg.ToolResults != nil {
					doc.ToolResults = msg.ToolResults
				}
			}
			docs = append(docs, doc)
			seq++
		}
	}
	return docs
}

// ToolsUsed collects the distinct tool names called across messages.
func ToolsUsed(messages []IngestMessage) []string {
	set := map[string]bool{}
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if name, ok := tc["name"].(string); ok && name != "" {
				set[name] = true
			}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IngestSession persists a session, its chunked messages and a summary
// document, embedding the session title and summary for semantic search.
func (c *Client) IngestSession(ctx context.Context, emb Embedder, p IngestSessionParams) (*IngestResult, error) {
	directory := p.Directory
	if directory == "" {
		directory = c.settings.CurrentProjectID
	}
	projectID := scope.DeriveProjectID(p.ProjectID, directory, c.settings.DefaultProjectID)

	session := NewSessionDoc()
	session.Title = p.Title
	session.ProjectID = projectID
	session.Directory = p.Directory
	session.Source = p.Source
	session.MessageCount = len(p.Messages)
	session.Summary = p.Summary
	if p.Tags != nil {
		session.Tags = p.Tags
	}
	session.ToolsUsed = ToolsUsed(p.Messages)

	embedText := p.Title
	if p.Summary != "" {
		embedText = p.Title + "\n" + p.Summary
	}
	if vec, err := emb.EmbedOne(ctx, embedText); err == nil {
		session.Embedding = vec
	} else {
		c.log.Warn("session embedding failed: " + err.Error())
	}

	if _, err := c.sessions().Upsert(session.ID, session, &gocb.UpsertOptions{Context: ctx}); err != nil {
		return nil, fmt.Errorf("store: upsert session: %w", err)
	}
	for _, doc := range BuildChunkedMessages(session.ID, projectID, p.Messages) {
		if _, err := c.messages().Upsert(doc.ID, doc, &gocb.UpsertOptions{Context: ctx}); err != nil {
			return nil, fmt.Errorf("store: upsert message %s: %w", doc.ID, err)
		}
	}

	if p.Summary != "" || len(p.Messages) > 0 {
		summary := SummaryDoc{
			ID:           SummaryID(session.ID),
			SessionID:    session.ID,
			Summary:      p.Summary,
			KeyDecisions: []string{},
			KeyFiles:     []string{},
			KeyTopics:    []string{},
			ProjectID:    projectID,
			CreatedAt:    session.CreatedAt,
			Type:         "summary",
		}
		if summary.Summary == "" {
			summary.Summary = "Session: " + p.Title
		}
		if vec, err := emb.EmbedOne(ctx, summary.Summary); err == nil {
			summary.Embedding = vec
		}
		if _, err := c.summaries().Upsert(summary.ID, summary, &gocb.UpsertOptions{Context: ctx}); err != nil {
			return nil, fmt.Errorf("store: upsert summary: %w", err)
		}
	}

	return &IngestResult{
		SessionID:    session.ID,
		ProjectID:    projectID,
		MessageCount: len(p.Messages),
		Status:       "ingested",
	}, nil
}

// IngestMessageResult reports a single appended message.
type IngestMessageResult struct {
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// AppendMessage saves one message to an existing session and bumps the
// session's message count. The message inherits the session's project
// when the session exists.
func (c *Client) AppendMessage(ctx context.Context, emb Embedder, sessionID, role, content string, toolCalls []map[string]any, sequenceNumber int) (*IngestMessageResult, error) {
	projectID := scope.Defaults{
		DefaultProjectID: c.settings.DefaultProjectID,
		CurrentProjectID: c.settings.CurrentProjectID,
	}.EffectiveProjectID("", false)

	if res, err := c.sessions().Get(sessionID, &gocb.GetOptions{Context: ctx}); err == nil {
		var session map[string]any
		if err := res.Content(&session); err == nil {
			if pid, ok := session["project_id"].(string); ok && pid != "" {
				projectID = pid
			}
		}
	}

	doc := NewMessageDoc(sessionID)
	doc.ID = NewMessageID(sessionID)
	doc.ProjectID = projectID
	doc.Role = role
	doc.TextContent = content
	if toolCalls != nil {
		doc.ToolCalls = toolCalls
	}
	doc.SequenceNumber = sequenceNumber

	if content != "" {
		if vec, err := emb.EmbedOne(ctx, content); err == nil {
			doc.Embedding = vec
		}
	}

	if _, err := c.messages().Upsert(doc.ID, doc, &gocb.UpsertOptions{Context: ctx}); err != nil {
		return nil, fmt.Errorf("store: upsert message: %w", err)
	}

	// The session might not exist yet. Best effort.
	_, _ = c.sessions().MutateIn(sessionID, []gocb.MutateInSpec{
		gocb.IncrementSpec("message_count", 1, nil),
	}, &gocb.MutateInOptions{Context: ctx})

	return &IngestMessageResult{MessageID: doc.ID, SessionID: sessionID, Status: "saved"}, nil
}

// UpsertSession writes a full session document.
func (c *Client) UpsertSession(ctx context.Context, doc SessionDoc) error {
	if _, err := c.sessions().Upsert(doc.ID, doc, &gocb.UpsertOptions{Context: ctx}); err != nil {
		return fmt.Errorf("store: upsert session %s: %w", doc.ID, err)
	}
	return nil
}

// UpsertMessage writes a full message document.
func (c *Client) UpsertMessage(ctx context.Context, doc MessageDoc) error {
	if _, err := c.messages().Upsert(doc.ID, doc, &gocb.UpsertOptions{Context: ctx}); err != nil {
		return fmt.Errorf("store: upsert message %s: %w", doc.ID, err)
	}
	return nil
}

// ReplaceSessionMessages drops every stored message for a session so a
// re-import starts clean. Failures are reported but re-imports proceed.
func (c *Client) ReplaceSessionMessages(ctx context.Context, sessionID string) error {
	stmt := fmt.Sprintf(
		"DELETE FROM `%s`.conversations.messages m WHERE m.session_id = $session_id",
		c.BucketName())
	if _, err := c.Query(ctx, stmt, map[string]any{"session_id": sessionID}); err != nil {
		return fmt.Errorf("store: clear session messages %s: %w", sessionID, err)
	}
	return nil
}

// SessionPage is one page of session listings.
type SessionPage struct {
	Sessions  []map[string]any `json:"sessions"`
	Count     int              `json:"count"`
	Offset    int              `json:"offset"`
	Limit     int              `json:"limit"`
	ProjectID string           `json:"project_id"`
}

var allowedSessionSorts = map[string]bool{
	"created_at":    true,
	"started_at":    true,
	"message_count": true,
}

// ListSessions pages through sessions, newest first by default. An empty
// projectID lists every project.
func (c *Client) ListSessions(ctx context.Context, projectID string, limit, offset int, sortBy string) (*SessionPage, error) {
	if limit <= 0 {
		limit = 20
	}
	if !allowedSessionSorts[sortBy] {
		sortBy = "created_at"
	}

	where := ""
	params := map[string]any{}
	if projectID != "" {
		where = "WHERE (s.project_id = $project_id OR (s.project_id = 'default' AND s.directory = $project_id)) "
		params["project_id"] = projectID
	}
	stmt := fmt.Sprintf(
		"SELECT s.* FROM `%s`.conversations.sessions s %sORDER BY s.%s DESC LIMIT %d OFFSET %d",
		c.BucketName(), where, sortBy, limit, offset)

	rows, err := c.Query(ctx, stmt, params)
	if err != nil {
		c.log.Warn("list sessions query failed: " + err.Error())
		rows = nil
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	for _, row := range rows {
		delete(row, "embedding")
	}
	return &SessionPage{
		Sessions:  rows,
		Count:     len(rows),
		Offset:    offset,
		Limit:     limit,
		ProjectID: projectID,
	}, nil
}

// SessionDetail is a session with its reassembled messages and summary.
type SessionDetail struct {
	Session      map[string]any   `json:"session"`
	Messages     []map[string]any `json:"messages,omitempty"`
	MessageCount int              `json:"message_count,omitempty"`
	Summary      map[string]any   `json:"summary"`
}

// GetSession loads a session, optionally with its messages rejoined from
// chunks, plus the session summary when one exists.
func (c *Client) GetSession(ctx context.Context, sessionID string, includeMessages bool, messageLimit int) (*SessionDetail, error) {
	if messageLimit <= 0 {
		messageLimit = 5000
	}
	res, err := c.sessions().Get(sessionID, &gocb.GetOptions{Context: ctx})
	if err != nil {
		return nil, fmt.Errorf("store: session not found: %s: %w", sessionID, err)
	}
	var session map[string]any
	if err := res.Content(&session); err != nil {
		return nil, fmt.Errorf("store: decode session %s: %w", sessionID, err)
	}
	delete(session, "embedding")

	detail := &SessionDetail{Session: session}

	if includeMessages {
		stmt := fmt.Sprintf(
			"SELECT m.* FROM `%s`.conversations.messages m "+
				"WHERE m.session_id = $session_id ORDER BY m.sequence_number ASC LIMIT %d",
			c.BucketName(), messageLimit)
		rows, err := c.Query(ctx, stmt, map[string]any{"session_id": sessionID})
		if err != nil {
			c.log.Warn("fetch session messages failed: " + err.Error())
			rows = nil
		}
		for _, row := range rows {
			delete(row, "embedding")
		}
		detail.Messages = ReassembleChunkedMessages(rows)
		detail.MessageCount = len(detail.Messages)
	}

	sres, err := c.summaries().Get(SummaryID(sessionID), &gocb.GetOptions{Context: ctx})
	if err == nil {
		var summary map[string]any
		if err := sres.Content(&summary); err == nil {
			delete(summary, "embedding")
			detail.Summary = summary
		}
	}
	return detail, nil
}

// ReassembleChunkedMessages rejoins chunked message groups into whole
// messages: text concatenated in chunk order, the turn's original
// sequence number restored, and everything re-sorted by sequence.
func ReassembleChunkedMessages(messages []map[string]any) []map[string]any {
	grouped := map[string][]map[string]any{}
	var orderedKeys []string
	var passthrough []map[string]any

	for _, m := range messages {
		groupID, _ := m["message_group_id"].(string)
		if groupID == "" {
			passthrough = append(passthrough, m)
			continue
		}
		if _, seen := grouped[groupID]; !seen {
			orderedKeys = append(orderedKeys, groupID)
		}
		grouped[groupID] = append(grouped[groupID], m)
	}

	rebuilt := make([]map[string]any, 0, len(orderedKeys)+len(passthrough))
	for _, key := range orderedKeys {
		chunks := grouped[key]
		sort.SliceStable(chunks, func(i, j int) bool {
			return numField(chunks[i], "chunk_index") < numField(chunks[j], "chunk_index")
		})
		first := make(map[string]any, len(chunks[0]))
		for k, v := range chunks[0] {
			first[k] = v
		}
		text := ""
		for _, chunk := range chunks {
			if s, ok := chunk["text_content"].(string); ok {
				text += s
			}
		}
		first["text_content"] = text
		if original, ok := first["original_sequence_number"]; ok {
			first["sequence_number"] = numValue(original)
		}
		first["chunk_index"] = 0
		first["chunk_count"] = len(chunks)
		rebuilt = append(rebuilt, first)
	}
	rebuilt = append(rebuilt, passthrough...)

	sort.SliceStable(rebuilt, func(i, j int) bool {
		return numField(rebuilt[i], "sequence_number") < numField(rebuilt[j], "sequence_number")
	})
	return rebuilt
}

func numField(m map[string]any, key string) int {
	return numValue(m[key])
}

func numValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}
