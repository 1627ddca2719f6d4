package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Memory-strength buckets, by total record count. Display copy only;
// nothing else branches on them.
const (
	StrengthStrong = "strong"
	StrengthMedium = "medium"
	StrengthWeak   = "weak"

	strengthStrongMin = 50
	strengthMediumMin = 20
)

// NoConversationToday is returned by Daily when the user has no records
// for the day. The Generator is not called in that case: summarising
// nothing invites the model to invent a day that never happened.
const NoConversationToday = "今天我們還沒有聊過天喔～隨時歡迎來找我 💝"

// dailyDigestInstruction asks for a warm first-person summary of the
// day's transcript.
const dailyDigestInstruction = "你是Lumi露米。以下是你今天與這位使用者的對話紀錄。" +
	"請用第一人稱、溫暖的語氣，寫一段2-3句的今日對話摘要，提到你們聊了什麼、使用者的心情如何。\n\n%s"

// generator is the minimal slice of the LLM layer the digest needs.
type generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Report is the human-facing aggregate view of a user's memory.
type Report struct {
	Statistics
	MemoryStrength  string
	DominantEmotion string
}

// Digest assembles statistics and daily summaries from stored exchanges.
type Digest struct {
	store     Store
	generator generator
	logger    *slog.Logger

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewDigest creates a Digest over the given store and generator.
func NewDigest(store Store, gen generator, logger *slog.Logger) *Digest {
	if logger == nil {
		logger = slog.Default()
	}
	return &Digest{store: store, generator: gen, logger: logger, now: time.Now}
}

// Overview aggregates the user's statistics into a displayable report.
func (d *Digest) Overview(ctx context.Context, userID string) (Report, error) {
	stats, err := d.store.Statistics(ctx, userID)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Statistics:      stats,
		MemoryStrength:  MemoryStrength(stats.TotalCount),
		DominantEmotion: DominantEmotion(stats.TagHistogram),
	}, nil
}

// Daily summarises the current calendar day's exchanges in first person.
// With zero records for the day it returns NoConversationToday without
// touching the Generator.
func (d *Digest) Daily(ctx context.Context, userID string) (string, error) {
	day := d.now()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	records, err := d.store.QueryByDateWindow(ctx, userID, start, end, 200)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return NoConversationToday, nil
	}

	prompt := fmt.Sprintf(dailyDigestInstruction, Transcript(records))
	summary, err := d.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("memory: daily digest generation: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

// Transcript renders records as a chronological plain-text conversation.
func Transcript(records []Record) string {
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "使用者: %s\nLumi: %s", r.UserMessage, r.AssistantResponse)
	}
	return b.String()
}

// MemoryStrength buckets a total record count into display copy.
func MemoryStrength(total int) string {
	switch {
	case total > strengthStrongMin:
		return StrengthStrong
	case total > strengthMediumMin:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}

// DominantEmotion picks the most frequent tag from the histogram, ties
// broken by position in TagVocabulary so the result is stable. An empty
// histogram defaults to friend, the persona's neutral register.
func DominantEmotion(histogram map[string]int) string {
	best := ""
	bestCount := 0
	for _, tag := range TagVocabulary {
		if count := histogram[tag]; count > bestCount {
			best = tag
			bestCount = count
		}
	}
	if best == "" {
		return TagFriend
	}
	return best
}
