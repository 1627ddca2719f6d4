// Package memory implements Lumi's conversational memory: durable storage
// of (user message, assistant response) exchanges with vector embeddings,
// and the retrieval policies that ground reply generation in genuine
// stored history.
//
// The design rule shared by every read path is: never fabricate
// continuity. Retrieval returns either real stored records or an explicit
// "no memory" signal; a transient store failure degrades to the latter,
// not to an error the user ever sees.
package memory

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the memory subsystem. Callers classify failures with
// errors.Is; the concrete cause is carried by wrapping.
var (
	// ErrConnection means the backing store cannot be reached. Recoverable
	// by reconnect; read paths degrade to empty results.
	ErrConnection = errors.New("memory: store unreachable")

	// ErrEmbedding means the embedder was unavailable or returned malformed
	// output. Aborts the current write; similarity queries fall back to
	// recency.
	ErrEmbedding = errors.New("memory: embedding failed")

	// ErrStore means a query or insert against a reachable store failed
	// (constraint violation, malformed vector, ...). Distinct from
	// ErrEmbedding so operators can tell data-layer faults from
	// upstream-model faults apart.
	ErrStore = errors.New("memory: store operation failed")

	// ErrBadLimit is a local precondition failure for a negative limit.
	// It is reported to the immediate caller, never to the end user.
	ErrBadLimit = errors.New("memory: limit must not be negative")
)

// Emotion tags form a fixed small vocabulary. TagProfile and
// TagDailySummary are purpose tags written by the system itself rather
// than by the persona classifier.
const (
	TagHealing      = "healing"
	TagFriend       = "friend"
	TagFunny        = "funny"
	TagKnowledge    = "knowledge"
	TagSoul         = "soul"
	TagWisdom       = "wisdom"
	TagProfile      = "profile"
	TagDailySummary = "daily_summary"
)

// TagVocabulary lists all known tags in a stable order. Dominant-emotion
// ties are broken by position in this slice.
var TagVocabulary = []string{
	TagHealing, TagFriend, TagFunny, TagKnowledge,
	TagSoul, TagWisdom, TagProfile, TagDailySummary,
}

// Record is one stored exchange, the atomic unit of memory. Records are
// immutable after creation and form a per-user append-only log ordered by
// Timestamp (ties broken by ID, which is assigned monotonically).
type Record struct {
	ID                int64
	UserID            string
	UserMessage       string
	AssistantResponse string
	EmotionTag        string // empty = untagged
	Embedding         []float32
	Timestamp         time.Time
}

// Scored pairs a record with its cosine similarity to a query.
type Scored struct {
	Record
	Similarity float64
}

// Statistics summarises a user's stored history.
type Statistics struct {
	TotalCount     int
	TagHistogram   map[string]int
	LastTimestamp  time.Time // zero when the user has no records
	RecentDayCount int       // interactions within the trailing window (7 days)
}

// Embedder produces fixed-length vector embeddings for text.
//
// Contract: empty or whitespace-only input returns the zero vector of
// length Dimensions() rather than an error, so degenerate messages do not
// abort an otherwise valid write. Failures wrap ErrEmbedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Store is the pluggable persistence interface for conversation records.
// The production implementation is SQLiteMemory; tests may substitute
// failing or canned stores. Implementations must be safe for concurrent
// use by multiple in-flight requests.
type Store interface {
	// Append embeds userMessage and persists one exchange record (plus a
	// profile side record when the message is a self-declaration). The
	// write is atomic: on embedding failure nothing is persisted.
	Append(ctx context.Context, userID, userMessage, assistantResponse, emotionTag string) error

	// QueryByRecency returns at most limit most-recent records for the
	// user in chronological (ascending) order.
	QueryByRecency(ctx context.Context, userID string, limit int) ([]Record, error)

	// QueryBySimilarity embeds queryText and returns up to limit records
	// whose cosine similarity to it exceeds minSimilarity, descending by
	// score. On embedder failure it falls back to recency ordering (the
	// returned scores are then zero).
	QueryBySimilarity(ctx context.Context, userID, queryText string, limit int, minSimilarity float64) ([]Scored, error)

	// QueryByKeyword returns records whose user_message contains at least
	// one keyword (case-insensitive substring), newest first.
	QueryByKeyword(ctx context.Context, userID string, keywords []string, limit int) ([]Record, error)

	// QueryByTag filters by exact tag; an empty tag matches any record
	// that has a non-empty tag. Newest first.
	QueryByTag(ctx context.Context, userID, emotionTag string, limit int) ([]Record, error)

	// QueryByDateWindow returns records with start <= timestamp < end in
	// ascending order. A zero end means "unbounded".
	QueryByDateWindow(ctx context.Context, userID string, start, end time.Time, limit int) ([]Record, error)

	// LatestProfileFact returns the declared fact from the most recent
	// profile-tagged record, with the declaration prefix stripped. The
	// boolean is false when the user has no profile records.
	LatestProfileFact(ctx context.Context, userID string) (string, bool, error)

	// Statistics aggregates counts over the user's stored records.
	Statistics(ctx context.Context, userID string) (Statistics, error)
}

// ProfileDetector decides whether a message is a self-declared personal
// fact ("我是莫莫", "I am Alice") and extracts the fact text. The default
// implementation is prefix-based; it is an interface so a better
// classifier can replace it without touching the store contract.
type ProfileDetector interface {
	// Detect returns the declared fact with the declaration prefix
	// stripped, and whether the message is a declaration at all.
	Detect(message string) (fact string, ok bool)
}
