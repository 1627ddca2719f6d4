package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel       = "gemini-2.5-flash"
	defaultGeminiTemperature = float32(0.8)
	defaultGeminiMaxTokens   = int32(1024)
)

// GeminiConfig configures the Gemini generation provider.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API.
	APIKey string

	// Model is the generation model. Defaults to gemini-2.5-flash.
	Model string

	// Temperature controls sampling randomness. Zero means the default
	// (0.8, the persona reads better with some variation).
	Temperature float32

	// MaxOutputTokens caps the reply length. Zero means the default.
	MaxOutputTokens int32
}

// GeminiProvider implements Provider using the Gemini generateContent API.
type GeminiProvider struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiProvider creates a Gemini-backed Provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultGeminiTemperature
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = defaultGeminiMaxTokens
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, cfg: cfg}, nil
}

// Generate sends the prompt to Gemini and returns the candidate text.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx,
		p.cfg.Model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(p.cfg.Temperature),
			MaxOutputTokens: p.cfg.MaxOutputTokens,
		},
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == 429 {
			return "", fmt.Errorf("%w: %v", ErrRateLimit, err)
		}
		return "", fmt.Errorf("%w: gemini generate: %v", ErrGeneration, err)
	}

	if resp == nil || len(resp.Candidates) == 0 ||
		resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrGeneration)
	}

	text := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned empty text", ErrGeneration)
	}
	return text, nil
}

// Compile-time interface satisfaction check.
var _ Provider = (*GeminiProvider)(nil)
