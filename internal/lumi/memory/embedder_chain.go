package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// EmbedderChain tries an ordered list of embedding providers and returns
// the first success. The fallback order is explicit data, not nested
// error handling, so it can be inspected and tested on its own. All
// providers must produce the same vector width; NewEmbedderChain rejects
// mixed widths because the store pins a single dimension per deployment.
type EmbedderChain struct {
	providers []Embedder
	logger    *slog.Logger
}

// NewEmbedderChain builds a chain from the given providers, first is
// preferred. At least one provider is required.
func NewEmbedderChain(logger *slog.Logger, providers ...Embedder) (*EmbedderChain, error) {
	if len(providers) == 0 {
		return nil, errors.New("memory: embedder chain needs at least one provider")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dim := providers[0].Dimensions()
	for _, p := range providers[1:] {
		if p.Dimensions() != dim {
			return nil, fmt.Errorf("memory: embedder chain has mixed dimensions: %d vs %d", dim, p.Dimensions())
		}
	}
	return &EmbedderChain{providers: providers, logger: logger}, nil
}

// Embed walks the provider list until one succeeds. The errors of all
// failed providers are joined when the whole chain is exhausted.
func (c *EmbedderChain) Embed(ctx context.Context, text string) ([]float32, error) {
	var errs []error
	for i, p := range c.providers {
		vec, err := p.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		errs = append(errs, err)
		if i < len(c.providers)-1 {
			c.logger.Warn("memory: embedder failed, trying next provider",
				"provider", i, "err", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("memory: all embedders failed: %w", errors.Join(errs...))
}

// Dimensions returns the shared vector width of the chain.
func (c *EmbedderChain) Dimensions() int {
	return c.providers[0].Dimensions()
}

// Compile-time interface satisfaction check.
var _ Embedder = (*EmbedderChain)(nil)
