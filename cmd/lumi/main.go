package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumi-bot/lumi/common/environment"
	"github.com/lumi-bot/lumi/common/version"
	"github.com/lumi-bot/lumi/internal/lumi/app"
	"github.com/lumi-bot/lumi/internal/lumi/llm"
	"github.com/lumi-bot/lumi/internal/lumi/memory"
	"github.com/lumi-bot/lumi/internal/lumi/persona"
	"github.com/lumi-bot/lumi/internal/lumi/store"
	"github.com/lumi-bot/lumi/internal/lumi/webhook"
)

func main() {
	fmt.Printf("Lumi AI Companion\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	channelSecret, err := environment.RequiredString("LINE_CHANNEL_SECRET")
	if err != nil {
		return err
	}
	channelToken, err := environment.RequiredString("LINE_CHANNEL_ACCESS_TOKEN")
	if err != nil {
		return err
	}

	dbPath := environment.StringOr("LUMI_DATABASE_PATH", "./lumi.db")
	httpAddr := environment.StringOr("LUMI_HTTP_ADDR", ":8080")
	embeddingDim := environment.IntOr("LUMI_EMBEDDING_DIM", 768)

	// Persistence.
	st, err := store.New(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	// Embedding: Gemini when credentials are present, with the
	// deterministic hash embedder as the offline fallback.
	embedder, err := buildEmbedder(ctx, logger, embeddingDim)
	if err != nil {
		return err
	}

	mem, err := memory.NewSQLiteMemory(st, embedder, memory.Config{Logger: logger})
	if err != nil {
		return err
	}

	// Generation: Gemini preferred, OpenAI-compatible endpoint second.
	generator, err := buildGenerator(ctx, logger)
	if err != nil {
		return err
	}

	personas, err := persona.LoadEmbedded()
	if err != nil {
		return err
	}
	emotions, err := persona.NewEmotionState(
		environment.DurationOr("LUMI_EMOTION_TTL", persona.DefaultEmotionTTL))
	if err != nil {
		return err
	}
	defer emotions.Close()

	limiter := llm.NewRateLimiter(
		environment.IntOr("LUMI_RATE_LIMIT", llm.DefaultRateLimit), time.Minute)

	lumi := app.New(app.Config{
		Personas:  personas,
		Emotions:  emotions,
		Store:     mem,
		Generator: generator,
		Limiter:   limiter,
		Logger:    logger,
	})

	// HTTP surface: health endpoints plus the webhook callback.
	health := app.NewHealthServer(httpAddr, mem)
	replier := webhook.NewReplyClient(channelToken, environment.StringOr("LINE_API_BASE", ""))
	hook := webhook.NewHandler(channelSecret, lumi, replier, logger)
	hook.RegisterRoutes(health)

	if err := health.Start(ctx); err != nil {
		return err
	}
	defer health.Stop()

	logger.Info("lumi ready",
		"db_path", dbPath,
		"http_addr", httpAddr,
		"embedding_dim", embedder.Dimensions())

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// buildEmbedder assembles the embedding chain from the environment.
func buildEmbedder(ctx context.Context, logger *slog.Logger, dim int) (memory.Embedder, error) {
	hash := memory.NewHashEmbedder(dim)

	apiKey, _ := environment.String("GEMINI_API_KEY")
	if apiKey == "" {
		logger.Warn("GEMINI_API_KEY not set, embeddings are hash-based only")
		return hash, nil
	}

	gemini, err := memory.NewGeminiEmbedder(ctx, memory.GeminiEmbedderConfig{
		APIKey:     apiKey,
		Model:      environment.StringOr("LUMI_EMBEDDING_MODEL", ""),
		Dimensions: dim,
	})
	if err != nil {
		return nil, err
	}
	return memory.NewEmbedderChain(logger, gemini, hash)
}

// buildGenerator assembles the generation chain from the environment.
// At least one upstream must be configured.
func buildGenerator(ctx context.Context, logger *slog.Logger) (llm.Provider, error) {
	var providers []llm.Provider

	if apiKey, _ := environment.String("GEMINI_API_KEY"); apiKey != "" {
		gemini, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{
			APIKey: apiKey,
			Model:  environment.StringOr("LUMI_GENERATION_MODEL", ""),
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, gemini)
	}

	if apiKey, _ := environment.String("OPENAI_API_KEY"); apiKey != "" {
		providers = append(providers, llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:  apiKey,
			BaseURL: environment.StringOr("OPENAI_BASE_URL", ""),
			Model:   environment.StringOr("OPENAI_MODEL", ""),
		}))
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no generation provider configured: set GEMINI_API_KEY or OPENAI_API_KEY")
	}
	return llm.NewChain(logger, providers...)
}

// logLevel reads LUMI_LOG_LEVEL (debug, info, warn, error).
func logLevel() slog.Level {
	switch environment.StringOr("LUMI_LOG_LEVEL", "info") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
