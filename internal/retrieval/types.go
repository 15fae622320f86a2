// Package retrieval implements the tiered search pipeline over the memory
// bucket: vector+FTS first, a keyword KV sweep when semantic recall is
// thin, and a raw chat scan as the floor. Results from every tier are
// merged, deduplicated, scope filtered, grouped and condensed into a
// context bundle for the caller.
package retrieval

import "strings"

// Kind classifies a retrieved document by its id prefix.
type Kind string

const (
	KindSession  Kind = "session"
	KindMessage  Kind = "message"
	KindSummary  Kind = "summary"
	KindDecision Kind = "decision"
	KindBug      Kind = "bug"
	KindPattern  Kind = "pattern"
	KindThought  Kind = "thought"
	KindOther    Kind = "other"
)

// Retrieval source labels recorded on results so the caller can see which
// tier produced each item.
const (
	SourceKVFallback  = "kv-semantic-fallback"
	SourceRawFallback = "raw-chat-fallback"
)

// KindOfID maps a document id to its kind.
func KindOfID(id string) Kind {
	switch {
	case strings.HasPrefix(id, "session::"):
		return KindSession
	case strings.HasPrefix(id, "msg::"):
		return KindMessage
	case strings.HasPrefix(id, "summary::"):
		return KindSummary
	case strings.HasPrefix(id, "decision::"):
		return KindDecision
	case strings.HasPrefix(id, "bug::"):
		return KindBug
	case strings.HasPrefix(id, "pattern::"):
		return KindPattern
	case strings.HasPrefix(id, "thought::"):
		return KindThought
	default:
		return KindOther
	}
}

// Item is one retrieved document with its retrieval metadata. Doc carries
// the raw document fields; embeddings are stripped before an item is built.
type Item struct {
	ID    string
	Kind  Kind
	Score float64
	Doc   map[string]any
}

// NewItem builds an item, deriving the kind from the id.
func NewItem(id string, score float64, doc map[string]any) Item {
	if doc == nil {
		doc = map[string]any{}
	}
	return Item{ID: id, Kind: KindOfID(id), Score: score, Doc: doc}
}

// Str returns a string field of the document, or "".
func (it Item) Str(key string) string {
	s, _ := it.Doc[key].(string)
	return s
}

// Tuning holds the scoring constants of the pipeline. The zero value is
// not useful; start from DefaultTuning.
type Tuning struct {
	// KV fallback scoring.
	KVBaseScore    float64
	KVTermBonus    float64
	KVMissingScore float64
	// Raw chat fallback scoring.
	RawMessageFloor float64
	RawSessionFloor float64
	RawFlatScore    float64
	// Evidence ranking priors per kind.
	LengthBonusCap float64
	PriorKnowledge float64
	PriorPattern   float64
	PriorSession   float64
}

// DefaultTuning is the scoring profile used in production.
func DefaultTuning() Tuning {
	return Tuning{
		KVBaseScore:     1.0,
		KVTermBonus:     1.0,
		KVMissingScore:  0.15,
		RawMessageFloor: 0.25,
		RawSessionFloor: 0.2,
		RawFlatScore:    0.05,
		LengthBonusCap:  0.05,
		PriorKnowledge:  0.08,
		PriorPattern:    0.06,
		PriorSession:    0.04,
	}
}
