package memory

import (
	"context"
	"log/slog"
	"time"
)

// Default fan-out of the retrieval policies per turn.
const (
	DefaultRecentK       = 5
	DefaultSimilarK      = 3
	DefaultProfileK      = 5
	DefaultSimilarityMin = 0.7
	DefaultLongTermDays  = 7
)

// ProfileKeywords is the coarse vocabulary of personal-fact indicators
// used by the profile policy. It deliberately over-recalls; the stricter
// profile-tag mechanism in the write path complements it.
var ProfileKeywords = []string{
	"喜歡", "討厭", "習慣", "工作", "家人", "生日", "朋友", "養", "住在", "夢想",
	"like", "love", "hate", "work", "family", "birthday", "friend", "hobby", "live in",
}

// Recall is the memory context assembled for one turn. NoMemory is an
// explicit signal, not an omitted field: when true, prompt construction
// must instruct the model not to pretend familiarity with the user.
type Recall struct {
	NoMemory bool

	Recent      []Record // short-term continuity, chronological
	Similar     []Scored // topically relevant older exchanges, by score
	ProfileHits []Record // keyword-matched personal facts, newest first
	ProfileFact string   // latest self-declared fact, "" when none
}

// Policies layers the four read strategies over a Store. Every method
// degrades to an empty result on store failure: memory is an
// enhancement, never a prerequisite for answering the user.
type Policies struct {
	store  Store
	logger *slog.Logger

	RecentK       int
	SimilarK      int
	ProfileK      int
	SimilarityMin float64
	LongTermDays  int
}

// NewPolicies creates a Policies layer with the documented defaults.
func NewPolicies(store Store, logger *slog.Logger) *Policies {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policies{
		store:         store,
		logger:        logger,
		RecentK:       DefaultRecentK,
		SimilarK:      DefaultSimilarK,
		ProfileK:      DefaultProfileK,
		SimilarityMin: DefaultSimilarityMin,
		LongTermDays:  DefaultLongTermDays,
	}
}

// Recent returns the last few exchanges, chronological. Empty on failure.
func (p *Policies) Recent(ctx context.Context, userID string) []Record {
	records, err := p.store.QueryByRecency(ctx, userID, p.RecentK)
	if err != nil {
		p.logger.Warn("retrieval: recency query degraded to empty", "user_id", userID, "err", err)
		return nil
	}
	return records
}

// Similar surfaces topically relevant older exchanges for the current
// message. The similarity threshold favours precision over recall: a
// low-relevance match treated as memory is worse than no memory.
func (p *Policies) Similar(ctx context.Context, userID, message string) []Scored {
	scored, err := p.store.QueryBySimilarity(ctx, userID, message, p.SimilarK, p.SimilarityMin)
	if err != nil {
		p.logger.Warn("retrieval: similarity query degraded to empty", "user_id", userID, "err", err)
		return nil
	}
	return scored
}

// Profile recalls exchanges that mention personal-fact indicators.
func (p *Policies) Profile(ctx context.Context, userID string) []Record {
	records, err := p.store.QueryByKeyword(ctx, userID, ProfileKeywords, p.ProfileK)
	if err != nil {
		p.logger.Warn("retrieval: profile query degraded to empty", "user_id", userID, "err", err)
		return nil
	}
	return records
}

// LongTerm returns the trailing N-day window of exchanges, ascending,
// for "what have we discussed over time" requests.
func (p *Policies) LongTerm(ctx context.Context, userID string, limit int) []Record {
	start := time.Now().AddDate(0, 0, -p.LongTermDays)
	records, err := p.store.QueryByDateWindow(ctx, userID, start, time.Time{}, limit)
	if err != nil {
		p.logger.Warn("retrieval: long-term query degraded to empty", "user_id", userID, "err", err)
		return nil
	}
	return records
}

// Day returns all exchanges within the calendar day containing t, in the
// location of t, ascending. Used by the daily digest.
func (p *Policies) Day(ctx context.Context, userID string, t time.Time, limit int) []Record {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 0, 1)
	records, err := p.store.QueryByDateWindow(ctx, userID, start, end, limit)
	if err != nil {
		p.logger.Warn("retrieval: day query degraded to empty", "user_id", userID, "err", err)
		return nil
	}
	return records
}

// Assemble runs the per-turn policies and combines their results. The
// NoMemory flag is set if and only if every policy came back empty;
// downstream prompt construction relies on this explicit signal.
func (p *Policies) Assemble(ctx context.Context, userID, message string) Recall {
	recall := Recall{
		Recent:      p.Recent(ctx, userID),
		Similar:     p.Similar(ctx, userID, message),
		ProfileHits: p.Profile(ctx, userID),
	}

	if fact, ok, err := p.store.LatestProfileFact(ctx, userID); err != nil {
		p.logger.Warn("retrieval: profile fact degraded to empty", "user_id", userID, "err", err)
	} else if ok {
		recall.ProfileFact = fact
	}

	recall.NoMemory = len(recall.Recent) == 0 &&
		len(recall.Similar) == 0 &&
		len(recall.ProfileHits) == 0 &&
		recall.ProfileFact == ""
	return recall
}
