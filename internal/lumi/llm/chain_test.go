package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

// stubProvider returns a canned reply or a forced error, counting calls.
type stubProvider struct {
	reply string
	err   error
	calls int
}

func (p *stubProvider) Generate(context.Context, string) (string, error) {
	p.calls++
	return p.reply, p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestChainUsesFirstSuccess(t *testing.T) {
	primary := &stubProvider{reply: "from primary"}
	secondary := &stubProvider{reply: "from secondary"}

	chain, err := NewChain(discardLogger(), primary, secondary)
	if err != nil {
		t.Fatalf("NewChain(): %v", err)
	}

	got, err := chain.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate(): %v", err)
	}
	if got != "from primary" {
		t.Errorf("expected primary reply, got %q", got)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary called %d times despite primary success", secondary.calls)
	}
}

func TestChainFallsBackOnFailure(t *testing.T) {
	primary := &stubProvider{err: fmt.Errorf("%w: model offline", ErrGeneration)}
	secondary := &stubProvider{reply: "from secondary"}

	chain, err := NewChain(discardLogger(), primary, secondary)
	if err != nil {
		t.Fatalf("NewChain(): %v", err)
	}

	got, err := chain.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate(): %v", err)
	}
	if got != "from secondary" {
		t.Errorf("expected secondary reply, got %q", got)
	}
}

func TestChainSkipsRetryOnRateLimit(t *testing.T) {
	throttled := &stubProvider{err: fmt.Errorf("%w: HTTP 429", ErrRateLimit)}
	secondary := &stubProvider{reply: "backup"}

	chain, err := NewChain(discardLogger(), throttled, secondary)
	if err != nil {
		t.Fatalf("NewChain(): %v", err)
	}

	got, err := chain.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate(): %v", err)
	}
	if got != "backup" {
		t.Errorf("expected backup reply, got %q", got)
	}
	if throttled.calls != 1 {
		t.Errorf("rate-limited provider retried: %d calls", throttled.calls)
	}
}

func TestChainRetriesTransientFailure(t *testing.T) {
	flaky := &stubProvider{err: fmt.Errorf("%w: transient", ErrGeneration)}

	chain, err := NewChain(discardLogger(), flaky)
	if err != nil {
		t.Fatalf("NewChain(): %v", err)
	}

	if _, err := chain.Generate(context.Background(), "hello"); err == nil {
		t.Fatal("expected error from always-failing provider")
	}
	if flaky.calls != 2 {
		t.Errorf("expected 2 attempts for a transient failure, got %d", flaky.calls)
	}
}

func TestChainJoinsAllErrors(t *testing.T) {
	first := fmt.Errorf("%w: first down", ErrRateLimit)
	second := fmt.Errorf("%w: second down", ErrGeneration)

	chain, err := NewChain(discardLogger(),
		&stubProvider{err: first},
		&stubProvider{err: second},
	)
	if err != nil {
		t.Fatalf("NewChain(): %v", err)
	}

	_, err = chain.Generate(context.Background(), "hello")
	if !errors.Is(err, ErrRateLimit) || !errors.Is(err, ErrGeneration) {
		t.Errorf("expected both sentinel errors joined, got %v", err)
	}
}

func TestChainRequiresProvider(t *testing.T) {
	if _, err := NewChain(discardLogger()); err == nil {
		t.Fatal("expected error for empty chain")
	}
}
