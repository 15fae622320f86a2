package store

import (
	"context"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
)

// SyncStateDoc records the outcome of an import pass, one document per
// source in metadata.sync_state.
type SyncStateDoc struct {
	ID               string    `json:"id"`
	Source           string    `json:"source"`
	Status           string    `json:"status"`
	LastSyncAt       time.Time `json:"last_sync_at"`
	SessionsImported int       `json:"sessions_imported"`
	MessagesImported int       `json:"messages_imported"`
	SessionsSkipped  int       `json:"sessions_skipped"`
	FilesScanned     int       `json:"files_scanned"`
	Type             string    `json:"type"`
}

// RecordSyncState upserts the latest import outcome for a source.
func (c *Client) RecordSyncState(ctx context.Context, doc SyncStateDoc) error {
	doc.ID = "sync::" + doc.Source
	if doc.LastSyncAt.IsZero() {
		doc.LastSyncAt = time.Now().UTC()
	}
	doc.Type = "sync_state"
	if _, err := c.syncState().Upsert(doc.ID, doc, &gocb.UpsertOptions{Context: ctx}); err != nil {
		return fmt.Errorf("store: record sync state %s: %w", doc.Source, err)
	}
	return nil
}
