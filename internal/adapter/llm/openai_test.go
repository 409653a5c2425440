package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"teamforge/internal/domain"
	"teamforge/internal/infra/config"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*OpenAIProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewOpenAIProvider(config.ProviderConfig{
		Name:    "test",
		BaseURL: srv.URL,
		Model:   "test-model",
	}, slog.New(slog.DiscardHandler))
	return p, srv
}

func TestChatSuccess(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req openaiRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("request body: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q, want default filled in", req.Model)
		}

		_ = json.NewEncoder(w).Encode(openaiResponse{
			ID:    "resp-1",
			Model: "test-model",
			Choices: []openaiChoice{{
				Message: openaiMessage{Role: "assistant", Content: "hi there"},
			}},
			Usage: openaiUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	})

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "hi there" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestChatToolCallArguments(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{
				Message: openaiMessage{
					Role: "assistant",
					ToolCalls: []openaiToolCall{{
						ID:   "call-1",
						Type: "function",
						Function: openaiToolCallFunction{
							Name:      "calculator",
							Arguments: `{"operation":"add","a":2,"b":3}`,
						},
					}},
				},
			}},
		})
	})

	resp, err := p.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.Name != "calculator" || tc.Arguments["operation"] != "add" {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestChatErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"unauthorized", http.StatusUnauthorized, false},
		{"bad request", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "upstream says no", tt.status)
			})

			_, err := p.Chat(context.Background(), domain.ChatRequest{})
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *domain.ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %T, want ProviderError", err)
			}
			if pe.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", pe.StatusCode, tt.status)
			}
			if pe.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", pe.Retryable, tt.retryable)
			}
			if domain.IsRetryableError(err) != tt.retryable {
				t.Errorf("IsRetryableError = %v, want %v", domain.IsRetryableError(err), tt.retryable)
			}
			if !errors.Is(err, domain.ErrProviderCall) {
				t.Error("ProviderError should unwrap to ErrProviderCall")
			}
		})
	}
}

func TestChatNetworkErrorRetryable(t *testing.T) {
	p := NewOpenAIProvider(config.ProviderConfig{
		Name:    "test",
		BaseURL: "http://127.0.0.1:1", // nothing listens here
	}, slog.New(slog.DiscardHandler))

	_, err := p.Chat(context.Background(), domain.ChatRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsRetryableError(err) {
		t.Errorf("network error should be retryable: %v", err)
	}
}

func TestChatStream(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`,
			`data: [DONE]`,
		}
		for _, c := range chunks {
			_, _ = io.WriteString(w, c+"\n\n")
		}
	})

	ch, err := p.ChatStream(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var content strings.Builder
	var sawUsage bool
	for delta := range ch {
		content.WriteString(delta.Content)
		if delta.Usage != nil {
			sawUsage = true
			if delta.Usage.TotalTokens != 6 {
				t.Errorf("usage = %+v", delta.Usage)
			}
		}
	}
	if content.String() != "Hello" {
		t.Errorf("streamed content = %q, want %q", content.String(), "Hello")
	}
	if !sawUsage {
		t.Error("final delta should carry usage")
	}
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	p := NewOpenAIProvider(config.ProviderConfig{Name: "openai"}, slog.New(slog.DiscardHandler))
	if err := r.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Resolve("openai", "gpt-4o")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Name() != "openai" {
		t.Errorf("Name = %q", got.Name())
	}

	_, err = r.Resolve("missing", "")
	if !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Errorf("err = %v, want ErrDependencyUnavailable", err)
	}
}

func TestRegistryDuplicateProvider(t *testing.T) {
	r := NewRegistry()
	p := NewOpenAIProvider(config.ProviderConfig{Name: "dup"}, slog.New(slog.DiscardHandler))
	if err := r.Register(p); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(p); err == nil {
		t.Error("duplicate Register should fail")
	}
}
