package memory

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultEmbeddingModel = "text-embedding-004"
	defaultEmbeddingDim   = 768
)

// GeminiEmbedderConfig configures the Gemini embedding provider.
type GeminiEmbedderConfig struct {
	// APIKey authenticates against the Gemini API.
	APIKey string

	// Model is the embedding model. Defaults to text-embedding-004.
	Model string

	// Dimensions is the output vector width. Defaults to 768. The store
	// pins this value on first use; changing it later is a startup error.
	Dimensions int
}

// GeminiEmbedder implements Embedder using the Gemini embedContent API.
// The same API key used by the generation provider works here.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGeminiEmbedder creates an Embedder backed by the Gemini API.
// The returned embedder is safe for concurrent use.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiEmbedderConfig) (*GeminiEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = defaultEmbeddingModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = defaultEmbeddingDim
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: create genai client: %w", err)
	}

	return &GeminiEmbedder{
		client: client,
		model:  cfg.Model,
		dim:    cfg.Dimensions,
	}, nil
}

// Embed produces a vector embedding for the given text. Empty or
// whitespace-only text returns the zero vector of the configured width,
// per the Embedder contract.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dim), nil
	}

	dim := int32(e.dim)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("memory: embed content: empty response")
	}

	vec := resp.Embeddings[0].Values
	if len(vec) != e.dim {
		return nil, fmt.Errorf("memory: embed content: got %d dimensions, want %d", len(vec), e.dim)
	}
	return vec, nil
}

// Dimensions returns the configured vector width.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dim
}

// Compile-time interface satisfaction check.
var _ Embedder = (*GeminiEmbedder)(nil)
