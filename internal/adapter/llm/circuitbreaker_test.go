package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"teamforge/internal/domain"
	"teamforge/internal/infra/config"
)

// flakyProvider fails until failuresLeft reaches zero.
type flakyProvider struct {
	failuresLeft int
	calls        int
}

func (f *flakyProvider) Name() string { return "flaky" }

func (f *flakyProvider) Chat(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	f.calls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, &domain.ProviderError{Provider: "flaky", StatusCode: 503, Retryable: true, Message: "boom"}
	}
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: "ok"}}, nil
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	inner := &flakyProvider{}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{}, slog.New(slog.DiscardHandler))

	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("content = %q", resp.Message.Content)
	}
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyProvider{failuresLeft: 100}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{
		MaxFailures: 3,
		Timeout:     time.Minute,
	}, slog.New(slog.DiscardHandler))

	for i := 0; i < 3; i++ {
		if _, err := cb.Chat(context.Background(), domain.ChatRequest{}); err == nil {
			t.Fatalf("call %d should fail", i)
		}
	}
	callsBefore := inner.calls

	// Circuit is now open: the next call must fail fast without reaching
	// the provider, and the error must be retryable.
	_, err := cb.Chat(context.Background(), domain.ChatRequest{})
	if err == nil {
		t.Fatal("expected fail-fast error")
	}
	if inner.calls != callsBefore {
		t.Errorf("provider was called %d more times with an open circuit", inner.calls-callsBefore)
	}
	if !domain.IsRetryableError(err) {
		t.Errorf("open-circuit error should be retryable: %v", err)
	}
	if !errors.Is(err, domain.ErrProviderCall) {
		t.Errorf("open-circuit error should unwrap to ErrProviderCall: %v", err)
	}
}

func TestCircuitBreakerRecovers(t *testing.T) {
	inner := &flakyProvider{failuresLeft: 2}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     10 * time.Millisecond,
	}, slog.New(slog.DiscardHandler))

	for i := 0; i < 2; i++ {
		_, _ = cb.Chat(context.Background(), domain.ChatRequest{})
	}

	// After the open-state timeout the half-open probe goes through and
	// closes the circuit.
	time.Sleep(20 * time.Millisecond)
	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("content = %q", resp.Message.Content)
	}
}

func TestCircuitBreakerStreamUnsupported(t *testing.T) {
	cb := NewCircuitBreakerProvider(&flakyProvider{}, config.CircuitBreakerConfig{}, slog.New(slog.DiscardHandler))
	if _, err := cb.ChatStream(context.Background(), domain.ChatRequest{}); err == nil {
		t.Error("non-streaming inner provider should be rejected")
	}
}
