// Package store owns the Couchbase side of the memory server: the typed
// documents in the conversations and knowledge scopes, session and
// knowledge persistence, and the query/search surface the retrieval
// pipeline runs on.
package store

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Messages longer than this are split into chunked documents sharing a
// message_group_id.
const MessageChunkSize = 8000

func newULID() string { return ulid.Make().String() }

// NewSessionID mints a session document id.
func NewSessionID() string { return "session::" + newULID() }

// SessionPart strips the session id prefix for use in child document ids.
func SessionPart(sessionID string) string {
	return strings.TrimPrefix(sessionID, "session::")
}

// SummaryID is the deterministic id of a session's summary document.
func SummaryID(sessionID string) string {
	return "summary::" + SessionPart(sessionID)
}

// SessionDoc lives in conversations.sessions.
type SessionDoc struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	ProjectID     string     `json:"project_id"`
	Directory     string     `json:"directory"`
	Source        string     `json:"source"`
	MessageCount  int        `json:"message_count"`
	ToolsUsed     []string   `json:"tools_used"`
	FilesModified []string   `json:"files_modified"`
	Summary       string     `json:"summary"`
	Tags          []string   `json:"tags"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"`
	CreatedAt     time.Time  `json:"created_at"`
	Embedding     []float32  `json:"embedding,omitempty"`
	Type          string     `json:"type"`
}

// NewSessionDoc fills a session with its id, timestamps and type tag.
func NewSessionDoc() SessionDoc {
	now := time.Now().UTC()
	return SessionDoc{
		ID:            NewSessionID(),
		ProjectID:     "default",
		ToolsUsed:     []string{},
		FilesModified: []string{},
		Tags:          []string{},
		StartedAt:     now,
		CreatedAt:     now,
		Type:          "session",
	}
}

// MessageDoc lives in conversations.messages. Long messages are stored as
// several chunk documents; chunk_index zero carries the raw content and
// tool activity for the whole group.
type MessageDoc struct {
	ID                     string           `json:"id"`
	SessionID              string           `json:"session_id"`
	ProjectID              string           `json:"project_id"`
	Role                   string           `json:"role"`
	TextContent            string           `json:"text_content"`
	RawContent             any              `json:"raw_content"`
	ToolCalls              []map[string]any `json:"tool_calls"`
	ToolResults            []map[string]any `json:"tool_results"`
	MessageGroupID         string           `json:"message_group_id"`
	ChunkIndex             int              `json:"chunk_index"`
	ChunkCount             int              `json:"chunk_count"`
	OriginalSequenceNumber int              `json:"original_sequence_number"`
	Timestamp              time.Time        `json:"timestamp"`
	SequenceNumber         int              `json:"sequence_number"`
	CreatedAt              time.Time        `json:"created_at"`
	Embedding              []float32        `json:"embedding,omitempty"`
	Type                   string           `json:"type"`
}

// NewMessageDoc fills a message with timestamps and its type tag. The id
// is set by the caller: chunked ids for ingest, ULID ids for single
// appends.
func NewMessageDoc(sessionID string) MessageDoc {
	now := time.Now().UTC()
	return MessageDoc{
		SessionID:   sessionID,
		ProjectID:   "default",
		ToolCalls:   []map[string]any{},
		ToolResults: []map[string]any{},
		ChunkCount:  1,
		Timestamp:   now,
		CreatedAt:   now,
		Type:        "message",
	}
}

// NewMessageID mints a ULID message id under a session.
func NewMessageID(sessionID string) string {
	return "msg::" + SessionPart(sessionID) + "::" + newULID()
}

// SummaryDoc lives in conversations.summaries, one per session.
type SummaryDoc struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Summary      string    `json:"summary"`
	KeyDecisions []string  `json:"key_decisions"`
	KeyFiles     []string  `json:"key_files"`
	KeyTopics    []string  `json:"key_topics"`
	Outcome      string    `json:"outcome"`
	ProjectID    string    `json:"project_id"`
	CreatedAt    time.Time `json:"created_at"`
	Embedding    []float32 `json:"embedding,omitempty"`
	Type         string    `json:"type"`
}

// DecisionDoc lives in knowledge.decisions.
type DecisionDoc struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Context         string    `json:"context"`
	Alternatives    []string  `json:"alternatives"`
	Consequences    []string  `json:"consequences"`
	Tags            []string  `json:"tags"`
	ProjectID       string    `json:"project_id"`
	SourceSessionID string    `json:"source_session_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Embedding       []float32 `json:"embedding,omitempty"`
	Type            string    `json:"type"`
}

// BugDoc lives in knowledge.bugs.
type BugDoc struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	RootCause       string    `json:"root_cause"`
	FixDescription  string    `json:"fix_description"`
	FilesAffected   []string  `json:"files_affected"`
	ErrorMessages   []string  `json:"error_messages"`
	Severity        string    `json:"severity"`
	Tags            []string  `json:"tags"`
	ProjectID       string    `json:"project_id"`
	SourceSessionID string    `json:"source_session_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Embedding       []float32 `json:"embedding,omitempty"`
	Type            string    `json:"type"`
}

// ThoughtDoc lives in knowledge.thoughts.
type ThoughtDoc struct {
	ID              string    `json:"id"`
	Content         string    `json:"content"`
	Category        string    `json:"category"`
	RelatedFiles    []string  `json:"related_files"`
	Tags            []string  `json:"tags"`
	ProjectID       string    `json:"project_id"`
	SourceSessionID string    `json:"source_session_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Embedding       []float32 `json:"embedding,omitempty"`
	Type            string    `json:"type"`
}

// PatternDoc lives in knowledge.patterns.
type PatternDoc struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	CodeExample     string    `json:"code_example"`
	Language        string    `json:"language"`
	UseCases        []string  `json:"use_cases"`
	Tags            []string  `json:"tags"`
	ProjectID       string    `json:"project_id"`
	SourceSessionID string    `json:"source_session_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Embedding       []float32 `json:"embedding,omitempty"`
	Type            string    `json:"type"`
}

// SplitTextChunks cuts text into chunks of at most chunkSize bytes. Empty
// text yields one empty chunk so every message stores at least one
// document.
func SplitTextChunks(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = MessageChunkSize
	}
	if len(text) <= chunkSize {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(text); start += chunkSize {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}
