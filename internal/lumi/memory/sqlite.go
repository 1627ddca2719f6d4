package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/lumi-bot/lumi/internal/lumi/store"
)

// recentWindowDays is the trailing window used by Statistics.RecentDayCount.
const recentWindowDays = 7

// SQLiteMemory implements Store over SQLite with brute-force cosine
// similarity computed in Go. Embeddings are JSON-encoded float32 arrays in
// BLOBs; modernc.org/sqlite cannot register custom C functions, and at the
// expected scale (hundreds to low thousands of rows per user) loading the
// user's vectors and scoring them in Go is fast.
//
// Every query attempts one reconnect on failure before surfacing ErrStore;
// callers in the retrieval layer then degrade to an empty result.
type SQLiteMemory struct {
	db       *store.Store
	embedder Embedder
	detector ProfileDetector
	logger   *slog.Logger
	dim      int

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// Config carries the optional collaborators of SQLiteMemory.
type Config struct {
	// Detector classifies self-declaration messages. Defaults to
	// PrefixDetector.
	Detector ProfileDetector

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewSQLiteMemory creates the memory store and pins the embedding
// dimension for the deployment. If the database has already recorded a
// different dimension, an error is returned: a changed vector width
// requires re-embedding the whole store, never silent truncation.
func NewSQLiteMemory(db *store.Store, embedder Embedder, cfg Config) (*SQLiteMemory, error) {
	if cfg.Detector == nil {
		cfg.Detector = PrefixDetector{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &SQLiteMemory{
		db:       db,
		embedder: embedder,
		detector: cfg.Detector,
		logger:   cfg.Logger,
		dim:      embedder.Dimensions(),
		now:      time.Now,
	}
	if err := m.pinDimension(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

// pinDimension records the embedding dimension in store_meta on first use
// and verifies it on every subsequent startup.
func (m *SQLiteMemory) pinDimension(ctx context.Context) error {
	var stored string
	err := m.db.DB().QueryRowContext(ctx,
		`SELECT value FROM store_meta WHERE key = 'embedding_dim'`,
	).Scan(&stored)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now().UTC().Format(time.RFC3339)
		_, err := m.db.DB().ExecContext(ctx, `
			INSERT INTO store_meta (key, value, updated_at)
			VALUES ('embedding_dim', ?, ?)`,
			fmt.Sprintf("%d", m.dim), now,
		)
		if err != nil {
			return fmt.Errorf("%w: pin embedding dimension: %v", ErrStore, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: read embedding dimension: %v", ErrStore, err)
	}

	if stored != fmt.Sprintf("%d", m.dim) {
		return fmt.Errorf("memory: embedding dimension mismatch: store has %s, embedder produces %d (re-embed the store or fix LUMI_EMBEDDING_DIM)", stored, m.dim)
	}
	return nil
}

// Append embeds userMessage and writes the exchange inside one
// transaction. When the message is a self-declaration, a second record
// tagged profile is written in the same transaction, so either both rows
// land or neither does.
func (m *SQLiteMemory) Append(ctx context.Context, userID, userMessage, assistantResponse, emotionTag string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrStore)
	}

	vec, err := m.embedder.Embed(ctx, userMessage)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vec) != m.dim {
		return fmt.Errorf("%w: embedder returned %d dimensions, store is pinned to %d", ErrStore, len(vec), m.dim)
	}

	embeddingJSON, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("%w: marshal embedding: %v", ErrStore, err)
	}

	now := m.now().UTC().Format(time.RFC3339)

	tx, err := m.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin append: %v", ErrStore, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_memories
			(user_id, user_message, assistant_response, emotion_tag, embedding, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, userMessage, assistantResponse, nullable(emotionTag), embeddingJSON, now,
	)
	if err != nil {
		return fmt.Errorf("%w: insert exchange: %v", ErrStore, err)
	}

	// Self-declarations get a second, profile-tagged record whose response
	// restates the extracted fact. The declaration text is identical to
	// the user message, so the same embedding serves both rows.
	if fact, ok := m.detector.Detect(userMessage); ok {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_memories
				(user_id, user_message, assistant_response, emotion_tag, embedding, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)`,
			userID, userMessage, fact, TagProfile, embeddingJSON, now,
		)
		if err != nil {
			return fmt.Errorf("%w: insert profile record: %v", ErrStore, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit append: %v", ErrStore, err)
	}

	m.logger.Debug("memory: stored exchange",
		"user_id", userID,
		"emotion_tag", emotionTag,
		"message_len", len(userMessage),
	)
	return nil
}

// QueryByRecency returns the limit most-recent records for the user,
// oldest first, so callers can render a transcript directly.
func (m *SQLiteMemory) QueryByRecency(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit < 0 {
		return nil, ErrBadLimit
	}
	if limit == 0 {
		return nil, nil
	}

	records, err := m.queryRecords(ctx, `
		SELECT id, user_id, user_message, assistant_response, emotion_tag, embedding, timestamp
		FROM conversation_memories
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}

	// Flip newest-first to chronological order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// QueryBySimilarity embeds queryText and scores every stored record for
// the user with cosine similarity, keeping scores strictly above
// minSimilarity and returning the top limit, descending. When the embedder
// fails, the query degrades to recency ordering with zero scores.
func (m *SQLiteMemory) QueryBySimilarity(ctx context.Context, userID, queryText string, limit int, minSimilarity float64) ([]Scored, error) {
	if limit < 0 {
		return nil, ErrBadLimit
	}
	if limit == 0 {
		return nil, nil
	}

	queryVec, err := m.embedder.Embed(ctx, queryText)
	if err != nil {
		m.logger.Warn("memory: query embedding failed, falling back to recency",
			"user_id", userID, "err", err)
		recent, rerr := m.QueryByRecency(ctx, userID, limit)
		if rerr != nil {
			return nil, rerr
		}
		scored := make([]Scored, len(recent))
		for i, r := range recent {
			scored[i] = Scored{Record: r}
		}
		return scored, nil
	}

	records, err := m.queryRecords(ctx, `
		SELECT id, user_id, user_message, assistant_response, emotion_tag, embedding, timestamp
		FROM conversation_memories
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}

	var candidates []Scored
	for _, r := range records {
		sim := cosineSimilarity(queryVec, r.Embedding)
		if sim > minSimilarity {
			candidates = append(candidates, Scored{Record: r, Similarity: sim})
		}
	}

	sortByScore(candidates)
	if limit > len(candidates) {
		limit = len(candidates)
	}
	return candidates[:limit], nil
}

// QueryByKeyword returns records whose user_message contains at least one
// of the keywords as a case-insensitive substring, newest first.
func (m *SQLiteMemory) QueryByKeyword(ctx context.Context, userID string, keywords []string, limit int) ([]Record, error) {
	if limit < 0 {
		return nil, ErrBadLimit
	}
	if limit == 0 || len(keywords) == 0 {
		return nil, nil
	}

	conds := make([]string, 0, len(keywords))
	args := []any{userID}
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		conds = append(conds, "instr(lower(user_message), lower(?)) > 0")
		args = append(args, kw)
	}
	if len(conds) == 0 {
		return nil, nil
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, user_id, user_message, assistant_response, emotion_tag, embedding, timestamp
		FROM conversation_memories
		WHERE user_id = ? AND (%s)
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		strings.Join(conds, " OR "),
	)
	return m.queryRecords(ctx, query, args...)
}

// QueryByTag filters by exact tag match, newest first. An empty tag
// matches any record carrying a non-empty tag.
func (m *SQLiteMemory) QueryByTag(ctx context.Context, userID, emotionTag string, limit int) ([]Record, error) {
	if limit < 0 {
		return nil, ErrBadLimit
	}
	if limit == 0 {
		return nil, nil
	}

	if emotionTag == "" {
		return m.queryRecords(ctx, `
			SELECT id, user_id, user_message, assistant_response, emotion_tag, embedding, timestamp
			FROM conversation_memories
			WHERE user_id = ? AND emotion_tag IS NOT NULL
			ORDER BY timestamp DESC, id DESC
			LIMIT ?`,
			userID, limit,
		)
	}
	return m.queryRecords(ctx, `
		SELECT id, user_id, user_message, assistant_response, emotion_tag, embedding, timestamp
		FROM conversation_memories
		WHERE user_id = ? AND emotion_tag = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		userID, emotionTag, limit,
	)
}

// QueryByDateWindow returns records with start <= timestamp < end,
// ascending. A zero end leaves the window open on the right. RFC3339 UTC
// strings compare lexicographically, so the filter runs in SQL.
func (m *SQLiteMemory) QueryByDateWindow(ctx context.Context, userID string, start, end time.Time, limit int) ([]Record, error) {
	if limit < 0 {
		return nil, ErrBadLimit
	}
	if limit == 0 {
		return nil, nil
	}

	if end.IsZero() {
		return m.queryRecords(ctx, `
			SELECT id, user_id, user_message, assistant_response, emotion_tag, embedding, timestamp
			FROM conversation_memories
			WHERE user_id = ? AND timestamp >= ?
			ORDER BY timestamp ASC, id ASC
			LIMIT ?`,
			userID, start.UTC().Format(time.RFC3339), limit,
		)
	}
	return m.queryRecords(ctx, `
		SELECT id, user_id, user_message, assistant_response, emotion_tag, embedding, timestamp
		FROM conversation_memories
		WHERE user_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ?`,
		userID, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), limit,
	)
}

// LatestProfileFact returns the fact declared in the most recent
// profile-tagged record, prefix stripped. The stored assistant_response
// already restates the fact, which covers records written by an earlier
// detector whose prefixes the current one no longer recognises.
func (m *SQLiteMemory) LatestProfileFact(ctx context.Context, userID string) (string, bool, error) {
	records, err := m.QueryByTag(ctx, userID, TagProfile, 1)
	if err != nil {
		return "", false, err
	}
	if len(records) == 0 {
		return "", false, nil
	}
	if fact, ok := m.detector.Detect(records[0].UserMessage); ok {
		return fact, true, nil
	}
	return records[0].AssistantResponse, true, nil
}

// Statistics aggregates counts directly from the stored rows.
func (m *SQLiteMemory) Statistics(ctx context.Context, userID string) (Statistics, error) {
	stats := Statistics{TagHistogram: make(map[string]int)}

	err := m.withReconnect(ctx, func() error {
		db := m.db.DB()

		var lastTS sql.NullString
		err := db.QueryRowContext(ctx, `
			SELECT COUNT(*), MAX(timestamp)
			FROM conversation_memories
			WHERE user_id = ?`,
			userID,
		).Scan(&stats.TotalCount, &lastTS)
		if err != nil {
			return err
		}
		if lastTS.Valid {
			t, perr := time.Parse(time.RFC3339, lastTS.String)
			if perr != nil {
				return perr
			}
			stats.LastTimestamp = t
		}

		cutoff := m.now().UTC().AddDate(0, 0, -recentWindowDays).Format(time.RFC3339)
		err = db.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM conversation_memories
			WHERE user_id = ? AND timestamp >= ?`,
			userID, cutoff,
		).Scan(&stats.RecentDayCount)
		if err != nil {
			return err
		}

		rows, err := db.QueryContext(ctx, `
			SELECT emotion_tag, COUNT(*)
			FROM conversation_memories
			WHERE user_id = ? AND emotion_tag IS NOT NULL
			GROUP BY emotion_tag`,
			userID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var tag string
			var count int
			if err := rows.Scan(&tag, &count); err != nil {
				return err
			}
			stats.TagHistogram[tag] = count
		}
		return rows.Err()
	})
	if err != nil {
		return Statistics{}, err
	}
	return stats, nil
}

// Healthy reports store reachability without side effects.
func (m *SQLiteMemory) Healthy(ctx context.Context) bool {
	return m.db.Healthy(ctx)
}

// queryRecords runs a SELECT expected to yield full record rows, with the
// one-reconnect policy applied around the whole read.
func (m *SQLiteMemory) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	var records []Record
	err := m.withReconnect(ctx, func() error {
		rows, err := m.db.DB().QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		records = records[:0]
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				m.logger.Warn("memory: skip malformed row", "err", err)
				continue
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// withReconnect runs fn, and on failure tries exactly once more before
// surfacing ErrStore. The connection is torn down and reopened only when
// the store has actually become unreachable: a query that failed on data
// grounds (scan, parse, constraint) keeps the shared handle intact.
// Context cancellation is never retried.
func (m *SQLiteMemory) withReconnect(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	if !m.db.Healthy(ctx) {
		m.logger.Warn("memory: store unreachable, reconnecting once", "err", err)
		if rerr := m.db.Reconnect(); rerr != nil {
			return fmt.Errorf("%w: reconnect: %v", ErrConnection, rerr)
		}
	}
	if err := fn(); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

// scanRecord reads one row from conversation_memories.
func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec           Record
		tag           sql.NullString
		embeddingJSON []byte
		tsStr         string
	)
	err := rows.Scan(&rec.ID, &rec.UserID, &rec.UserMessage, &rec.AssistantResponse, &tag, &embeddingJSON, &tsStr)
	if err != nil {
		return Record{}, fmt.Errorf("scan row: %w", err)
	}
	if tag.Valid {
		rec.EmotionTag = tag.String
	}
	if err := json.Unmarshal(embeddingJSON, &rec.Embedding); err != nil {
		return Record{}, fmt.Errorf("unmarshal embedding: %w", err)
	}
	t, err := time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return Record{}, fmt.Errorf("parse timestamp: %w", err)
	}
	rec.Timestamp = t
	return rec, nil
}

// nullable maps an empty tag to NULL so the histogram only counts real tags.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 when either vector is empty, mismatched, or zero-magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortByScore sorts scored records by descending similarity. Insertion
// sort is fine for the small candidate sets involved.
func sortByScore(items []Scored) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && items[j].Similarity < key.Similarity {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteMemory)(nil)
