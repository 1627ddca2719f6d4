package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lumi-bot/lumi/internal/lumi/llm"
	"github.com/lumi-bot/lumi/internal/lumi/memory"
	"github.com/lumi-bot/lumi/internal/lumi/persona"
)

// stubStore is an in-memory memory.Store good enough for pipeline tests.
type stubStore struct {
	mu        sync.Mutex
	appended  []appendCall
	appendErr error

	recent  []memory.Record
	window  []memory.Record
	keyword []memory.Record
	fact    string
	hasFact bool
	stats   memory.Statistics
}

type appendCall struct {
	userID, userMessage, response, tag string
}

func (s *stubStore) Append(_ context.Context, userID, userMessage, response, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, appendCall{userID, userMessage, response, tag})
	return nil
}

func (s *stubStore) QueryByRecency(context.Context, string, int) ([]memory.Record, error) {
	return s.recent, nil
}

func (s *stubStore) QueryBySimilarity(context.Context, string, string, int, float64) ([]memory.Scored, error) {
	return nil, nil
}

func (s *stubStore) QueryByKeyword(context.Context, string, []string, int) ([]memory.Record, error) {
	return s.keyword, nil
}

func (s *stubStore) QueryByTag(context.Context, string, string, int) ([]memory.Record, error) {
	return nil, nil
}

func (s *stubStore) QueryByDateWindow(context.Context, string, time.Time, time.Time, int) ([]memory.Record, error) {
	return s.window, nil
}

func (s *stubStore) LatestProfileFact(context.Context, string) (string, bool, error) {
	return s.fact, s.hasFact, nil
}

func (s *stubStore) Statistics(context.Context, string) (memory.Statistics, error) {
	return s.stats, nil
}

var _ memory.Store = (*stubStore)(nil)

// stubGenerator returns a canned reply and records prompts.
type stubGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

func newTestApp(t *testing.T, st *stubStore, gen *stubGenerator) *App {
	t.Helper()
	cfg, err := persona.LoadEmbedded()
	if err != nil {
		t.Fatalf("persona.LoadEmbedded(): %v", err)
	}
	emotions, err := persona.NewEmotionState(time.Minute)
	if err != nil {
		t.Fatalf("persona.NewEmotionState(): %v", err)
	}
	t.Cleanup(emotions.Close)

	return New(Config{
		Personas:  cfg,
		Emotions:  emotions,
		Store:     st,
		Generator: gen,
		Logger:    slog.New(slog.DiscardHandler),
	})
}

func TestRespondGeneratesAndRemembers(t *testing.T) {
	st := &stubStore{}
	gen := &stubGenerator{reply: "聽起來真不錯耶！"}
	a := newTestApp(t, st, gen)

	got := a.Respond(context.Background(), "U1", "今天吃了好吃的拉麵")
	if got != "聽起來真不錯耶！" {
		t.Errorf("expected generated reply, got %q", got)
	}

	if len(st.appended) != 1 {
		t.Fatalf("expected 1 appended exchange, got %d", len(st.appended))
	}
	call := st.appended[0]
	if call.userID != "U1" || call.userMessage != "今天吃了好吃的拉麵" || call.response != "聽起來真不錯耶！" {
		t.Errorf("unexpected append call: %+v", call)
	}
	if call.tag != "friend" {
		t.Errorf("expected friend tag for neutral message, got %q", call.tag)
	}
}

func TestRespondTagsByClassifiedPersona(t *testing.T) {
	st := &stubStore{}
	gen := &stubGenerator{reply: "辛苦了，抱抱"}
	a := newTestApp(t, st, gen)

	a.Respond(context.Background(), "U1", "我今天好難過")
	if len(st.appended) != 1 || st.appended[0].tag != "healing" {
		t.Errorf("expected healing tag, got %+v", st.appended)
	}
}

func TestRespondFallsBackOnGenerationFailure(t *testing.T) {
	st := &stubStore{}
	gen := &stubGenerator{err: errors.New("model down")}
	a := newTestApp(t, st, gen)

	got := a.Respond(context.Background(), "U1", "hello")
	if got != a.personas.FallbackReply {
		t.Errorf("expected fallback reply, got %q", got)
	}
}

func TestRespondSwallowsAppendFailure(t *testing.T) {
	st := &stubStore{appendErr: errors.New("disk full")}
	gen := &stubGenerator{reply: "好的！"}
	a := newTestApp(t, st, gen)

	got := a.Respond(context.Background(), "U1", "hello")
	if got != "好的！" {
		t.Errorf("append failure leaked into reply: %q", got)
	}
}

func TestRespondRateLimited(t *testing.T) {
	st := &stubStore{}
	gen := &stubGenerator{reply: "ok"}
	a := newTestApp(t, st, gen)
	a.limiter = llm.NewRateLimiter(1, time.Minute)

	a.Respond(context.Background(), "U1", "first")
	got := a.Respond(context.Background(), "U1", "second")
	if got != busyReply {
		t.Errorf("expected busy reply, got %q", got)
	}
	if len(gen.prompts) != 1 {
		t.Errorf("generator called %d times, want 1", len(gen.prompts))
	}
}

func TestRespondNoMemoryInstructionForFreshUser(t *testing.T) {
	st := &stubStore{}
	gen := &stubGenerator{reply: "初次見面！"}
	a := newTestApp(t, st, gen)

	a.Respond(context.Background(), "U1", "嗨")
	if len(gen.prompts) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[0], noMemoryInstruction) {
		t.Error("expected no-memory instruction in prompt for fresh user")
	}
}

func TestRespondInjectsRecalledMemory(t *testing.T) {
	st := &stubStore{
		recent: []memory.Record{
			{UserMessage: "我養了一隻貓", AssistantResponse: "好可愛！叫什麼名字？"},
		},
		fact:    "Alice",
		hasFact: true,
	}
	gen := &stubGenerator{reply: "貓咪還好嗎？"}
	a := newTestApp(t, st, gen)

	a.Respond(context.Background(), "U1", "今天帶牠去打疫苗")
	prompt := gen.prompts[0]
	if strings.Contains(prompt, noMemoryInstruction) {
		t.Error("no-memory instruction present despite recalled records")
	}
	if !strings.Contains(prompt, "我養了一隻貓") {
		t.Error("recent exchange missing from prompt")
	}
	if !strings.Contains(prompt, "Alice") {
		t.Error("profile fact missing from prompt")
	}
}

func TestPickPersonaKeepsEmotionalContext(t *testing.T) {
	st := &stubStore{}
	gen := &stubGenerator{reply: "ok"}
	a := newTestApp(t, st, gen)

	a.emotions.Set("U1", "healing")
	a.emotions.Wait()

	// A neutral message mid-conversation stays in the healing persona.
	if got := a.pickPersona("U1", "嗯"); got.Name != "healing" {
		t.Errorf("expected healing continuity, got %q", got.Name)
	}

	// An explicit keyword match overrides the cached emotion.
	if got := a.pickPersona("U1", "哈哈好好笑"); got.Name != "funny" {
		t.Errorf("expected funny for keyword match, got %q", got.Name)
	}
}
