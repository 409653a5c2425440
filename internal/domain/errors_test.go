package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainErrorFormatting(t *testing.T) {
	err := NewDomainError("Invoker.Invoke", ErrToolNotFound, "calculator")
	want := "Invoker.Invoke: calculator: tool not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := NewDomainError("Store.Agent", ErrAgentNotFound, "")
	if bare.Error() != "Store.Agent: agent not found" {
		t.Errorf("Error() without detail = %q", bare.Error())
	}
}

func TestDomainErrorUnwrapsToSentinel(t *testing.T) {
	err := NewDomainError("Manager.SessionStats", ErrSessionNotFound, "s1")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Error("DomainError must unwrap to its sentinel")
	}
	// One more wrapping layer must not break the chain.
	wrapped := WrapOp("outer", err)
	if !errors.Is(wrapped, ErrSessionNotFound) {
		t.Error("WrapOp must preserve the sentinel chain")
	}
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) must return nil")
	}
}

func TestProviderErrorClassification(t *testing.T) {
	pe := &ProviderError{Provider: "openai", StatusCode: 429, Retryable: true, Message: "slow down"}

	if !errors.Is(pe, ErrProviderCall) {
		t.Error("ProviderError must unwrap to ErrProviderCall")
	}
	if !IsRetryableError(pe) {
		t.Error("429 must be retryable")
	}
	if IsRetryableError(&ProviderError{StatusCode: 401, Retryable: false}) {
		t.Error("401 must not be retryable")
	}

	want := "provider openai: API error 429: slow down"
	if pe.Error() != want {
		t.Errorf("Error() = %q, want %q", pe.Error(), want)
	}
	network := &ProviderError{Provider: "openai", Message: "connection refused"}
	if network.Error() != "provider openai: connection refused" {
		t.Errorf("Error() without status = %q", network.Error())
	}
}

func TestIsRetryableSentinels(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrRateLimit, true},
		{ErrDependencyUnavailable, true},
		{ErrContextOverflow, true},
		{ErrValidation, false},
		{ErrSecurityBlocked, false},
		{ErrToolFailure, false},
		{NewDomainError("op", ErrRateLimit, ""), true},
	}
	for _, tt := range tests {
		if got := IsRetryableError(tt.err); got != tt.want {
			t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{ErrValidation, CodeValidation},
		{NewDomainError("op", ErrSecurityBlocked, "x"), CodeSecurityBlocked},
		{WrapOp("outer", NewDomainError("op", ErrCancelled, "")), CodeCancelled},
		{&ProviderError{StatusCode: 500}, CodeProviderCall},
		{fmt.Errorf("unrelated"), CodeUnknown},
		{nil, CodeUnknown},
	}
	for _, tt := range tests {
		if got := ErrorCodeOf(tt.err); got != tt.want {
			t.Errorf("ErrorCodeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestDomainErrorCode(t *testing.T) {
	if got := NewDomainError("op", ErrToolNotFound, "").Code(); got != CodeToolNotFound {
		t.Errorf("Code() = %q, want %q", got, CodeToolNotFound)
	}
	if got := NewDomainError("op", fmt.Errorf("custom"), "").Code(); got != CodeUnknown {
		t.Errorf("Code() for unknown sentinel = %q, want %q", got, CodeUnknown)
	}
}
