// Package llm adapts OpenAI-compatible chat-completion APIs to the
// domain.LLMProvider interface, with circuit-breaker protection and
// upstream error classification.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"teamforge/internal/domain"
	"teamforge/internal/infra/tracer"
)

// maxResponseBody is the maximum response body size read from LLM APIs.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// doJSONRequest performs a JSON POST and returns the response body.
// Non-200 responses come back as a classified *domain.ProviderError.
func doJSONRequest(ctx context.Context, client *http.Client, provider, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, networkError(provider, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, networkError(provider, fmt.Errorf("read response: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(provider, httpResp.StatusCode, respBody)
	}

	return respBody, nil
}

// doStreamRequest performs a JSON POST for SSE streaming and returns the
// open *http.Response; the caller owns the body.
func doStreamRequest(ctx context.Context, client *http.Client, provider, url string, body []byte, headers map[string]string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, networkError(provider, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, mapHTTPError(provider, httpResp.StatusCode, respBody)
	}

	return httpResp, nil
}

// mapHTTPError classifies an HTTP status into a ProviderError. The caller
// of the orchestrator decides whether to retry; we only report the
// upstream classification.
func mapHTTPError(provider string, statusCode int, body []byte) error {
	pe := &domain.ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    string(body),
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		pe.Retryable = true
	case statusCode >= 500:
		pe.Retryable = true
	default:
		// 4xx (auth, bad request, payload too large) won't improve on retry.
		pe.Retryable = false
	}
	return pe
}

// networkError wraps transport-level failures as retryable provider errors.
func networkError(provider string, err error) error {
	return &domain.ProviderError{
		Provider:  provider,
		Retryable: true,
		Message:   err.Error(),
	}
}

// logChatCompleted logs the standard debug message after a successful chat.
func logChatCompleted(logger *slog.Logger, providerName string, result *domain.ChatResponse) {
	logger.Debug("llm chat completed",
		"provider", providerName,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
	)
}
