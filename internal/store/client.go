package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/couchbase/gocb/v2/search"
	"github.com/couchbase/gocb/v2/vector"
	"go.uber.org/zap"

	"github.com/cserp440/couch-context/internal/config"
	"github.com/cserp440/couch-context/internal/retrieval"
)

const connectTimeout = 15 * time.Second

// collectionsByPrefix routes a document id to its scope and collection.
var collectionsByPrefix = []struct {
	prefix     string
	scope      string
	collection string
}{
	{"session::", "conversations", "sessions"},
	{"msg::", "conversations", "messages"},
	{"summary::", "conversations", "summaries"},
	{"decision::", "knowledge", "decisions"},
	{"bug::", "knowledge", "bugs"},
	{"thought::", "knowledge", "thoughts"},
	{"pattern::", "knowledge", "patterns"},
}

// Client is the process-wide handle to the memory bucket. It is opened
// once at startup, shared by every component and closed at shutdown.
type Client struct {
	cluster  *gocb.Cluster
	bucket   *gocb.Bucket
	settings *config.Settings
	log      *zap.Logger
}

// Connect opens the cluster and waits for the bucket to become ready.
func Connect(cfg *config.Settings, log *zap.Logger) (*Client, error) {
	cluster, err := gocb.Connect(cfg.CBConnectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: cfg.CBUsername,
			Password: cfg.CBPassword,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect %s: %w", cfg.CBConnectionString, err)
	}
	bucket := cluster.Bucket(cfg.CBBucket)
	if err := bucket.WaitUntilReady(connectTimeout, nil); err != nil {
		_ = cluster.Close(nil)
		return nil, fmt.Errorf("store: bucket %s not ready: %w", cfg.CBBucket, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cluster: cluster, bucket: bucket, settings: cfg, log: log}, nil
}

// Close releases the cluster connection.
func (c *Client) Close() error {
	if err := c.cluster.Close(nil); err != nil {
		return fmt.Errorf("store: close cluster: %w", err)
	}
	return nil
}

// BucketName returns the bucket addressed in N1QL statements.
func (c *Client) BucketName() string { return c.settings.CBBucket }

// Collection resolves a scope/collection pair on the memory bucket.
func (c *Client) Collection(scopeName, collectionName string) *gocb.Collection {
	return c.bucket.Scope(scopeName).Collection(collectionName)
}

func (c *Client) sessions() *gocb.Collection  { return c.Collection("conversations", "sessions") }
func (c *Client) messages() *gocb.Collection  { return c.Collection("conversations", "messages") }
func (c *Client) summaries() *gocb.Collection { return c.Collection("conversations", "summaries") }
func (c *Client) decisions() *gocb.Collection { return c.Collection("knowledge", "decisions") }
func (c *Client) bugs() *gocb.Collection      { return c.Collection("knowledge", "bugs") }
func (c *Client) thoughts() *gocb.Collection  { return c.Collection("knowledge", "thoughts") }
func (c *Client) patterns() *gocb.Collection  { return c.Collection("knowledge", "patterns") }
func (c *Client) syncState() *gocb.Collection { return c.Collection("metadata", "sync_state") }

// Query executes a N1QL statement with named parameters and drains all
// rows.
func (c *Client) Query(ctx context.Context, statement string, params map[string]any) ([]map[string]any, error) {
	result, err := c.cluster.Query(statement, &gocb.QueryOptions{
		NamedParameters: params,
		Context:         ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	var rows []map[string]any
	for result.Next() {
		var row map[string]any
		if err := result.Row(&row); err != nil {
			return nil, fmt.Errorf("store: query row: %w", err)
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("store: query iterate: %w", err)
	}
	return rows, nil
}

// SearchText runs a full-text match query against an index.
func (c *Client) SearchText(ctx context.Context, index, query string, limit int) ([]retrieval.SearchHit, error) {
	request := gocb.SearchRequest{SearchQuery: search.NewMatchQuery(query)}
	return c.runSearch(ctx, index, request, limit)
}

// SearchVector runs a nearest-neighbor query against an index, asking for
// three times the limit in candidates.
func (c *Client) SearchVector(ctx context.Context, index string, vec []float32, limit int) ([]retrieval.SearchHit, error) {
	request := gocb.SearchRequest{
		SearchQuery: search.NewMatchAllQuery(),
		VectorSearch: vector.NewSearch([]*vector.Query{
			vector.NewQuery("embedding", vec).NumCandidates(uint32(limit * 3)),
		}, nil),
	}
	return c.runSearch(ctx, index, request, limit)
}

func (c *Client) runSearch(ctx context.Context, index string, request gocb.SearchRequest, limit int) ([]retrieval.SearchHit, error) {
	result, err := c.cluster.Search(index, request, &gocb.SearchOptions{
		Limit:   uint32(limit),
		Fields:  []string{"*"},
		Context: ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("store: search %s: %w", index, err)
	}
	var hits []retrieval.SearchHit
	for result.Next() {
		row := result.Row()
		hits = append(hits, retrieval.SearchHit{ID: row.ID, Score: row.Score})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("store: search %s iterate: %w", index, err)
	}
	return hits, nil
}

// FetchDocument loads a document by id, strips its embedding and attaches
// the _scope/_collection markers. Messages also carry their parent
// session's source, project and directory so scope filtering works on
// them.
func (c *Client) FetchDocument(ctx context.Context, id string) (map[string]any, bool) {
	for _, route := range collectionsByPrefix {
		if !strings.HasPrefix(id, route.prefix) {
			continue
		}
		res, err := c.Collection(route.scope, route.collection).Get(id, &gocb.GetOptions{Context: ctx})
		if err != nil {
			return nil, false
		}
		var doc map[string]any
		if err := res.Content(&doc); err != nil {
			return nil, false
		}
		delete(doc, "embedding")
		if route.collection == "messages" {
			if sessionID, ok := doc["session_id"].(string); ok && sessionID != "" {
				c.attachSessionFields(ctx, doc, sessionID)
			}
		}
		doc["_scope"] = route.scope
		doc["_collection"] = route.collection
		return doc, true
	}
	return nil, false
}

func (c *Client) attachSessionFields(ctx context.Context, doc map[string]any, sessionID string) {
	res, err := c.sessions().Get(sessionID, &gocb.GetOptions{Context: ctx})
	if err != nil {
		return
	}
	var session map[string]any
	if err := res.Content(&session); err != nil {
		return
	}
	doc["session_source"] = session["source"]
	doc["session_project_id"] = session["project_id"]
	doc["session_directory"] = session["directory"]
}
