package app

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/lumi-bot/lumi/internal/lumi/memory"
	"github.com/lumi-bot/lumi/internal/lumi/persona"
)

// noMemoryInstruction is injected when recall came back empty. The
// model must not invent shared history with a stranger.
const noMemoryInstruction = "你和這位使用者還沒有過去的對話紀錄。" +
	"把這當作第一次見面：不要假裝記得對方，不要提及任何過去的互動。"

// BuildPrompt assembles the full generation prompt: persona style,
// phrase-variation guidance, recalled memory (or the explicit no-memory
// instruction), and the current message.
//
// Variation picks are derived from a hash of the message, so the same
// message yields the same prompt. That keeps tests deterministic and
// still varies phrasing across different messages.
func BuildPrompt(p *persona.Persona, recall memory.Recall, text string) string {
	idx := variationIndex(text)

	var b strings.Builder
	b.WriteString(p.Style)
	b.WriteString("\n\n")

	if g := persona.Variation(p.Greetings, idx); g != "" {
		fmt.Fprintf(&b, "可以用類似「%s」的方式開頭。", g)
	}
	if e := persona.Variation(p.Endings, idx); e != "" {
		fmt.Fprintf(&b, "可以用類似「%s」的方式收尾。", e)
	}
	if em := persona.Variation(p.Emojis, idx); em != "" {
		fmt.Fprintf(&b, "適量使用表情符號，例如 %s。", em)
	}
	b.WriteString("\n\n")

	if recall.NoMemory {
		b.WriteString(noMemoryInstruction)
		b.WriteString("\n\n")
	} else {
		writeRecall(&b, recall)
	}

	fmt.Fprintf(&b, "使用者現在說：%s", text)
	return b.String()
}

// writeRecall renders the non-empty recall sections.
func writeRecall(b *strings.Builder, recall memory.Recall) {
	if recall.ProfileFact != "" {
		fmt.Fprintf(b, "關於這位使用者：%s\n\n", recall.ProfileFact)
	}

	if len(recall.Recent) > 0 {
		b.WriteString("最近的對話：\n")
		b.WriteString(memory.Transcript(recall.Recent))
		b.WriteString("\n\n")
	}

	if len(recall.Similar) > 0 {
		b.WriteString("過去聊過的相關話題：\n")
		for _, s := range recall.Similar {
			fmt.Fprintf(b, "- 使用者曾說「%s」，你回應「%s」\n", s.UserMessage, s.AssistantResponse)
		}
		b.WriteString("\n")
	}

	if len(recall.ProfileHits) > 0 {
		b.WriteString("使用者提過的個人資訊：\n")
		for _, r := range recall.ProfileHits {
			fmt.Fprintf(b, "- %s\n", r.UserMessage)
		}
		b.WriteString("\n")
	}

	b.WriteString("自然地延續這些記憶，不要逐條複述。\n\n")
}

// variationIndex maps a message to a stable phrase-pool index.
func variationIndex(text string) int {
	h := fnv.New32a()
	h.Write([]byte(text))
	return int(h.Sum32() % 1024)
}
