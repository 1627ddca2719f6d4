// Package app wires Lumi's reply pipeline: persona classification,
// memory recall, prompt construction, LLM generation, and the
// write-after-reply memory append.
//
// The pipeline's contract with the webhook layer is simple: Respond
// always returns displayable text. Every failure mode inside the
// pipeline resolves to either degraded memory (empty recall) or the
// persona's fixed companionship reply, never to an error the user sees.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/lumi-bot/lumi/internal/lumi/llm"
	"github.com/lumi-bot/lumi/internal/lumi/memory"
	"github.com/lumi-bot/lumi/internal/lumi/persona"
)

const (
	// generateTimeout bounds a single reply generation. The messaging
	// platform invalidates reply tokens quickly, so a slow model is
	// treated as a failed one.
	generateTimeout = 25 * time.Second

	// appendTimeout bounds the write-after-reply memory append.
	appendTimeout = 10 * time.Second

	// busyReply is sent when the per-user rate limit trips.
	busyReply = "我現在訊息有點多，稍等一下下再跟我說好嗎？💦"
)

// App is the reply pipeline.
type App struct {
	personas   *persona.Config
	classifier *persona.Classifier
	emotions   *persona.EmotionState
	policies   *memory.Policies
	digest     *memory.Digest
	store      memory.Store
	generator  llm.Provider
	limiter    *llm.RateLimiter
	logger     *slog.Logger
}

// Config holds the collaborators for New. All fields are required
// except Limiter and Logger.
type Config struct {
	Personas  *persona.Config
	Emotions  *persona.EmotionState
	Store     memory.Store
	Generator llm.Provider
	Limiter   *llm.RateLimiter
	Logger    *slog.Logger
}

// New creates the App and its derived collaborators (classifier,
// retrieval policies, digest).
func New(cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = llm.NewRateLimiter(0, 0)
	}
	return &App{
		personas:   cfg.Personas,
		classifier: persona.NewClassifier(cfg.Personas),
		emotions:   cfg.Emotions,
		policies:   memory.NewPolicies(cfg.Store, logger),
		digest:     memory.NewDigest(cfg.Store, cfg.Generator, logger),
		store:      cfg.Store,
		generator:  cfg.Generator,
		limiter:    limiter,
		logger:     logger,
	}
}

// Respond produces Lumi's reply for one inbound text message.
//
// The rate limit is checked before anything else. Memory commands count
// against the same quota as free-form messages: the digest command runs
// the Generator too, so exempting commands would leave a hole in the
// per-user cap.
func (a *App) Respond(ctx context.Context, userID, text string) string {
	if !a.limiter.Allow(userID) {
		a.logger.Info("app: rate limit tripped", "user_id", userID)
		return busyReply
	}

	if reply, ok := a.handleMemoryCommand(ctx, userID, text); ok {
		return reply
	}

	p := a.pickPersona(userID, text)
	recall := a.policies.Assemble(ctx, userID, text)

	prompt := BuildPrompt(p, recall, text)

	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()
	reply, err := a.generator.Generate(genCtx, prompt)
	if err != nil {
		a.logger.Error("app: generation failed, using fallback reply",
			"user_id", userID, "persona", p.Name, "err", err)
		reply = a.personas.FallbackReply
	}

	a.remember(userID, text, reply, p.Name)
	return reply
}

// pickPersona classifies the message, letting a recent emotional
// context override a default-only classification so a heavy
// conversation doesn't flip tone on one neutral message.
func (a *App) pickPersona(userID, text string) *persona.Persona {
	classified := a.classifier.Classify(text)

	if classified.Name == a.personas.Default && a.emotions != nil {
		if last, ok := a.emotions.Get(userID); ok && last != a.personas.Default {
			classified = a.personas.Get(last)
		}
	}
	if a.emotions != nil {
		a.emotions.Set(userID, classified.Name)
	}
	return classified
}

// remember appends the exchange after the reply has been produced.
// Append failure is logged and swallowed: the user already has their
// reply, and the next turn simply recalls one record less.
func (a *App) remember(userID, userMessage, reply, tag string) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	if err := a.store.Append(ctx, userID, userMessage, reply, tag); err != nil {
		a.logger.Error("app: memory append failed", "user_id", userID, "err", err)
	}
}
