package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/cserp440/couch-context/internal/scope"
)

// Default FTS index names over the conversations and knowledge scopes.
const (
	IndexConversations = "coding-memory-conversations-index"
	IndexKnowledge     = "coding-memory-knowledge-index"
)

// SearchHit is one row from an FTS or vector index query.
type SearchHit struct {
	ID    string
	Score float64
}

// Backend is the slice of the document store the retrieval pipeline needs.
// *store.Client implements it; tests substitute fakes.
type Backend interface {
	// BucketName returns the bucket addressed in N1QL statements.
	BucketName() string
	// Query executes a N1QL statement and returns all rows.
	Query(ctx context.Context, statement string, params map[string]any) ([]map[string]any, error)
	// SearchText runs a full-text match query against an index.
	SearchText(ctx context.Context, index, query string, limit int) ([]SearchHit, error)
	// SearchVector runs a nearest-neighbor query against an index.
	SearchVector(ctx context.Context, index string, vector []float32, limit int) ([]SearchHit, error)
	// FetchDocument loads a document by id with its embedding stripped and
	// _scope/_collection markers attached. Messages carry their parent
	// session's source, project and directory.
	FetchDocument(ctx context.Context, id string) (map[string]any, bool)
}

// Embedder produces the query vector for semantic search.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Summarizer condenses retrieved evidence with an external model. The
// pipeline treats it as best effort and always has a heuristic fallback.
type Summarizer interface {
	Summarize(ctx context.Context, system, prompt string, maxOutputTokens int) (string, error)
}

// Engine runs the tiered retrieval pipeline.
type Engine struct {
	back       Backend
	embed      Embedder
	summarizer Summarizer
	scope      scope.Defaults
	indexes    []string
	tuning     Tuning
	log        *zap.Logger
}

// Options configures an Engine beyond its required collaborators.
type Options struct {
	Summarizer Summarizer
	Scope      scope.Defaults
	Indexes    []string
	Tuning     *Tuning
	Logger     *zap.Logger
}

// New assembles an engine over a backend and an embedder.
func New(back Backend, embed Embedder, opts Options) *Engine {
	e := &Engine{
		back:       back,
		embed:      embed,
		summarizer: opts.Summarizer,
		scope:      opts.Scope,
		indexes:    opts.Indexes,
		tuning:     DefaultTuning(),
		log:        opts.Logger,
	}
	if len(e.indexes) == 0 {
		e.indexes = []string{IndexConversations, IndexKnowledge}
	}
	if opts.Tuning != nil {
		e.tuning = *opts.Tuning
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// ResolveScope applies the configured defaults to request overrides.
func (e *Engine) ResolveScope(req scope.Request) scope.Resolved {
	return e.scope.Resolve(req)
}
