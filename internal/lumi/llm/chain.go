package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumi-bot/lumi/common/retry"
)

// Chain tries an ordered list of generation providers and returns the
// first success. Each provider gets a short retry budget for transient
// failures before the chain moves on; rate-limited providers are skipped
// without retrying, since waiting out a 429 inside a chat request would
// stall the user's reply.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
	retryCfg  retry.Config
}

// NewChain builds a chain from the given providers, first is preferred.
// At least one provider is required.
func NewChain(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, errors.New("llm: chain needs at least one provider")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		logger:    logger,
		retryCfg: retry.Config{
			MaxAttempts:  2,
			InitialDelay: 300 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			ShouldRetry: func(err error) bool {
				return !errors.Is(err, ErrRateLimit)
			},
		},
	}, nil
}

// Generate walks the provider list until one succeeds. The errors of all
// failed providers are joined when the whole chain is exhausted.
func (c *Chain) Generate(ctx context.Context, prompt string) (string, error) {
	var errs []error
	for i, p := range c.providers {
		var reply string
		err := retry.Do(ctx, c.retryCfg, func() error {
			var genErr error
			reply, genErr = p.Generate(ctx, prompt)
			return genErr
		})
		if err == nil {
			return reply, nil
		}
		errs = append(errs, err)
		if i < len(c.providers)-1 {
			c.logger.Warn("llm: provider failed, trying next",
				"provider", i, "err", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("llm: all providers failed: %w", errors.Join(errs...))
}

// Compile-time interface satisfaction check.
var _ Provider = (*Chain)(nil)
