package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchbase/gocb/v2"

	"github.com/cserp440/couch-context/internal/scope"
)

// SaveResult reports a stored knowledge item.
type SaveResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Type   string `json:"type"`
}

func (c *Client) effectiveProjectID(projectID string) string {
	return scope.Defaults{
		DefaultProjectID: c.settings.DefaultProjectID,
		CurrentProjectID: c.settings.CurrentProjectID,
	}.EffectiveProjectID(projectID, false)
}

func (c *Client) embedOrWarn(ctx context.Context, emb Embedder, kind, text string) []float32 {
	vec, err := emb.EmbedOne(ctx, text)
	if err != nil {
		c.log.Warn(kind + " embedding failed: " + err.Error())
		return nil
	}
	return vec
}

// DecisionParams describe an architecture or design decision to record.
type DecisionParams struct {
	Title        string
	Description  string
	Context      string
	Alternatives []string
	ProjectID    string
	Tags         []string
	Category     string
}

// SaveDecision records a decision, embedding title, description and
// context together for recall.
func (c *Client) SaveDecision(ctx context.Context, emb Embedder, p DecisionParams) (*SaveResult, error) {
	doc := DecisionDoc{
		ID:           "decision::" + newULID(),
		Title:        p.Title,
		Description:  p.Description,
		Context:      p.Context,
		Alternatives: emptyIfNil(p.Alternatives),
		Consequences: []string{},
		ProjectID:    c.effectiveProjectID(p.ProjectID),
		Tags:         emptyIfNil(p.Tags),
		Category:     p.Category,
		CreatedAt:    time.Now().UTC(),
		Type:         "decision",
	}
	doc.Embedding = c.embedOrWarn(ctx, emb, "decision",
		strings.Join([]string{p.Title, p.Description, p.Context}, "\n"))
	if _, err := c.decisions().Upsert(doc.ID, doc, &gocb.UpsertOptions{Context: ctx}); err != nil {
		return nil, fmt.Errorf("store: save decision: %w", err)
	}
	return &SaveResult{ID: doc.ID, Status: "saved", Type: "decision"}, nil
}

// BugParams describe a bug and how it was fixed.
type BugParams struct {
	Title          string
	Description    string
	RootCause      string
	FixDescription string
	ErrorMessages  []string
	FilesInvolved  []string
	ProjectID      string
	Tags           []string
	Severity       string
}

// SaveBug records a bug fix. Error messages join the embedding text so
// recall can match on pasted stack traces.
func (c *Client) SaveBug(ctx context.Context, emb Embedder, p BugParams) (*SaveResult, error) {
	doc := BugDoc{
		ID:             "bug::" + newULID(),
		Title:          p.Title,
		Description:    p.Description,
		RootCause:      p.RootCause,
		FixDescription: p.FixDescription,
		ErrorMessages:  emptyIfNil(p.ErrorMessages),
		FilesAffected:  emptyIfNil(p.FilesInvolved),
		ProjectID:      c.effectiveProjectID(p.ProjectID),
		Tags:           emptyIfNil(p.Tags),
		Severity:       p.Severity,
		CreatedAt:      time.Now().UTC(),
		Type:           "bug",
	}
	parts := []string{p.Title, p.Description, p.RootCause, p.FixDescription}
	if len(p.ErrorMessages) > 0 {
		parts = append(parts, strings.Join(p.ErrorMessages, "\n"))
	}
	doc.Embedding = c.embedOrWarn(ctx, emb, "bug", strings.Join(parts, "\n"))
	if _, err := c.bugs().Upsert(doc.ID, doc, &gocb.UpsertOptions{Context: ctx}); err != nil {
		return nil, fmt.Errorf("store: save bug: %w", err)
	}
	return &SaveResult{ID: doc.ID, Status: "saved", Type: "bug"}, nil
}

// ThoughtParams describe a free-form note.
type ThoughtParams struct {
	Content   string
	ProjectID string
	Tags      []string
	Category  string
	SessionID string
}

// SaveThought records a free-form thought or observation.
func (c *Client) SaveThought(ctx context.Context, emb Embedder, p ThoughtParams) (*SaveResult, error) {
	doc := ThoughtDoc{
		ID:              "thought::" + newULID(),
		Content:         p.Content,
		ProjectID:       c.effectiveProjectID(p.ProjectID),
		RelatedFiles:    []string{},
		Tags:            emptyIfNil(p.Tags),
		Category:        p.Category,
		SourceSessionID: p.SessionID,
		CreatedAt:       time.Now().UTC(),
		Type:            "thought",
	}
	doc.Embedding = c.embedOrWarn(ctx, emb, "thought", p.Content)
	if _, err := c.thoughts().Upsert(doc.ID, doc, &gocb.UpsertOptions{Context: ctx}); err != nil {
		return nil, fmt.Errorf("store: save thought: %w", err)
	}
	return &SaveResult{ID: doc.ID, Status: "saved", Type: "thought"}, nil
}

// PatternParams describe a reusable code pattern.
type PatternParams struct {
	Title       string
	Description string
	CodeExample string
	Language    string
	UseCases    []string
	ProjectID   string
	Tags        []string
}

// SavePattern records a reusable code pattern with its example.
func (c *Client) SavePattern(ctx context.Context, emb Embedder, p PatternParams) (*SaveResult, error) {
	doc := PatternDoc{
		ID:          "pattern::" + newULID(),
		Title:       p.Title,
		Description: p.Description,
		CodeExample: p.CodeExample,
		Language:    p.Language,
		UseCases:    emptyIfNil(p.UseCases),
		ProjectID:   c.effectiveProjectID(p.ProjectID),
		Tags:        emptyIfNil(p.Tags),
		CreatedAt:   time.Now().UTC(),
		Type:        "pattern",
	}
	doc.Embedding = c.embedOrWarn(ctx, emb, "pattern",
		strings.Join([]string{p.Title, p.Description, p.CodeExample}, "\n"))
	if _, err := c.patterns().Upsert(doc.ID, doc, &gocb.UpsertOptions{Context: ctx}); err != nil {
		return nil, fmt.Errorf("store: save pattern: %w", err)
	}
	return &SaveResult{ID: doc.ID, Status: "saved", Type: "pattern"}, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
