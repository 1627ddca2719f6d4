// Package llm provides the reply-generation layer for Lumi.
//
// The layer sits between the persona prompt builder and the upstream model
// APIs. Its sole responsibility is text completion: take a fully assembled
// prompt and return the model's reply. Prompt construction, memory recall,
// and persona selection all live upstream; this package never sees secret
// values or raw user identifiers beyond what the prompt already contains.
package llm

import (
	"context"
	"errors"
)

// ErrGeneration is returned by a Provider when the upstream model API was
// reached but failed to produce usable text (API error payload, empty
// candidate list). Callers should fall back to the persona's fixed
// companionship reply rather than surfacing the error to the user.
var ErrGeneration = errors.New("llm: generation failed")

// ErrRateLimit is returned by a Provider when the upstream API reports a
// rate-limiting condition (e.g. HTTP 429). Distinct from ErrGeneration so
// a chain can decide to try the next provider immediately instead of
// retrying the throttled one.
var ErrRateLimit = errors.New("llm: upstream rate limit exceeded")

// Provider generates a text reply for a fully assembled prompt.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. When an implementation is unavailable it should return a
// descriptive error wrapping one of the sentinels above; callers degrade
// to the next provider in the chain or to the fixed fallback reply.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
