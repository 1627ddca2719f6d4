package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumi-bot/lumi/internal/lumi/memory"
)

// Chat commands give users a direct view into their stored memory.
// They are matched on the trimmed full message, not as substrings, so
// ordinary sentences that happen to mention 記憶 still reach the model.
const (
	cmdStats    = "記憶統計"
	cmdLongTerm = "長期記憶"
	cmdTopics   = "我們聊過什麼"
	cmdDaily    = "今日摘要"

	longTermLimit = 30
)

// strengthDisplay maps memory-strength buckets to display copy.
var strengthDisplay = map[string]string{
	memory.StrengthStrong: "深厚 💪",
	memory.StrengthMedium: "穩固 🌱",
	memory.StrengthWeak:   "萌芽 🌸",
}

// emotionDisplay maps emotion tags to display copy.
var emotionDisplay = map[string]string{
	memory.TagHealing:   "療癒",
	memory.TagFriend:    "朋友",
	memory.TagFunny:     "搞笑",
	memory.TagKnowledge: "知識",
	memory.TagSoul:      "心靈",
	memory.TagWisdom:    "智慧",
}

// handleMemoryCommand intercepts memory chat commands. The boolean is
// false when the message is not a command and the normal reply pipeline
// should run.
func (a *App) handleMemoryCommand(ctx context.Context, userID, text string) (string, bool) {
	switch strings.TrimSpace(text) {
	case cmdStats:
		return a.statsReply(ctx, userID), true
	case cmdLongTerm, cmdTopics:
		return a.longTermReply(ctx, userID), true
	case cmdDaily:
		return a.dailyReply(ctx, userID), true
	default:
		return "", false
	}
}

// statsReply renders the user's memory overview.
func (a *App) statsReply(ctx context.Context, userID string) string {
	report, err := a.digest.Overview(ctx, userID)
	if err != nil {
		a.logger.Error("app: memory stats failed", "user_id", userID, "err", err)
		return "我現在想不太起來耶，等一下再問我一次好嗎？💦"
	}
	if report.TotalCount == 0 {
		return "我們才剛認識，還沒有累積回憶喔！多跟我聊聊吧 💕"
	}

	var b strings.Builder
	b.WriteString("📊 我們的回憶\n")
	fmt.Fprintf(&b, "一共聊了 %d 次\n", report.TotalCount)
	fmt.Fprintf(&b, "記憶強度：%s\n", strengthDisplay[report.MemoryStrength])
	if name, ok := emotionDisplay[report.DominantEmotion]; ok {
		fmt.Fprintf(&b, "最常出現的心情：%s\n", name)
	}
	if !report.LastTimestamp.IsZero() {
		fmt.Fprintf(&b, "上次聊天：%s\n", report.LastTimestamp.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "最近七天聊了 %d 次", report.RecentDayCount)
	return b.String()
}

// longTermReply lists what the user and Lumi discussed over the
// trailing window.
func (a *App) longTermReply(ctx context.Context, userID string) string {
	records := a.policies.LongTerm(ctx, userID, longTermLimit)
	if len(records) == 0 {
		return "最近這陣子我們還沒聊過天喔，現在開始也不遲！💝"
	}

	var b strings.Builder
	b.WriteString("🗂 我們最近聊過：\n")
	for _, r := range records {
		if r.EmotionTag == memory.TagProfile || r.EmotionTag == memory.TagDailySummary {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", r.UserMessage)
	}
	b.WriteString("每一段對話我都記得喔 ✨")
	return b.String()
}

// dailyReply returns the first-person daily digest.
func (a *App) dailyReply(ctx context.Context, userID string) string {
	summary, err := a.digest.Daily(ctx, userID)
	if err != nil {
		a.logger.Error("app: daily digest failed", "user_id", userID, "err", err)
		return "今天的回憶我整理不出來，晚點再試一次好嗎？💦"
	}
	return summary
}
