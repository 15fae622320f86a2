// Package importers pulls conversation history out of local coding
// assistant logs and normalizes it into session and message documents.
// Imports are idempotent: a session's messages are replaced from the
// source of truth on every run.
package importers

import (
	"context"

	"go.uber.org/zap"

	"github.com/cserp440/couch-context/internal/store"
)

// Stats summarize one import run.
type Stats struct {
	SessionsImported int    `json:"sessions_imported"`
	MessagesImported int    `json:"messages_imported"`
	SessionsSkipped  int    `json:"sessions_skipped"`
	FilesScanned     int    `json:"files_scanned"`
	Error            string `json:"error,omitempty"`
}

// Store is the persistence slice importers need.
type Store interface {
	UpsertSession(ctx context.Context, doc store.SessionDoc) error
	UpsertMessage(ctx context.Context, doc store.MessageDoc) error
	ReplaceSessionMessages(ctx context.Context, sessionID string) error
}

// Importer is one source of conversation history.
type Importer interface {
	Name() string
	Run(ctx context.Context, path string) Stats
}

// persistSession replaces a session's stored messages and writes the
// session document. Import does not embed; embeddings come from the
// ingest tools, imports favor throughput.
func persistSession(ctx context.Context, st Store, log *zap.Logger, session store.SessionDoc, messages []store.IngestMessage) error {
	// Best effort: upserts still proceed when the sweep fails.
	if err := st.ReplaceSessionMessages(ctx, session.ID); err != nil {
		log.Debug("message replace failed", zap.String("session", session.ID), zap.Error(err))
	}
	for _, doc := range store.BuildChunkedMessages(session.ID, session.ProjectID, messages) {
		if err := st.UpsertMessage(ctx, doc); err != nil {
			return err
		}
	}
	return st.UpsertSession(ctx, session)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' || r == '\r' {
			return s[:i]
		}
	}
	return s
}

func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
