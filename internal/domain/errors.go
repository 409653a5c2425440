package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrValidation            = fmt.Errorf("invalid input")
	ErrDependencyUnavailable = fmt.Errorf("dependency unavailable")
	ErrProviderCall          = fmt.Errorf("provider call failed")
	ErrToolNotFound          = fmt.Errorf("tool not found")
	ErrToolFailure           = fmt.Errorf("tool execution failed")
	ErrSecurityBlocked       = fmt.Errorf("content blocked by security policy")
	ErrRateLimit             = fmt.Errorf("rate limit exceeded")
	ErrContextOverflow       = fmt.Errorf("context window exceeded")
	ErrSessionNotFound       = fmt.Errorf("session not found")
	ErrAgentNotFound         = fmt.Errorf("agent not found")
	ErrCancelled             = fmt.Errorf("operation cancelled")
	ErrAuditWrite            = fmt.Errorf("audit log write failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Invoker.Invoke")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ProviderError carries the upstream provider client's classification of a
// failed call. Retryable is true for rate limits, 5xx responses and network
// faults; false for auth and malformed-request failures.
type ProviderError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: API error %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return ErrProviderCall }

// IsRetryableError reports whether err is a transient error that may succeed
// on retry. ProviderError carries its own upstream classification; rate-limit
// and dependency-lookup failures are retryable by contract.
func IsRetryableError(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrDependencyUnavailable) ||
		errors.Is(err, ErrContextOverflow)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown               ErrorCode = "UNKNOWN"
	CodeValidation            ErrorCode = "VALIDATION"
	CodeDependencyUnavailable ErrorCode = "DEPENDENCY_UNAVAILABLE"
	CodeProviderCall          ErrorCode = "PROVIDER_CALL"
	CodeToolNotFound          ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure           ErrorCode = "TOOL_FAILURE"
	CodeSecurityBlocked       ErrorCode = "SECURITY_BLOCKED"
	CodeRateLimit             ErrorCode = "RATE_LIMIT"
	CodeContextOverflow       ErrorCode = "CONTEXT_OVERFLOW"
	CodeSessionNotFound       ErrorCode = "SESSION_NOT_FOUND"
	CodeAgentNotFound         ErrorCode = "AGENT_NOT_FOUND"
	CodeCancelled             ErrorCode = "CANCELLED"
	CodeAuditWrite            ErrorCode = "AUDIT_WRITE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrValidation:            CodeValidation,
	ErrDependencyUnavailable: CodeDependencyUnavailable,
	ErrProviderCall:          CodeProviderCall,
	ErrToolNotFound:          CodeToolNotFound,
	ErrToolFailure:           CodeToolFailure,
	ErrSecurityBlocked:       CodeSecurityBlocked,
	ErrRateLimit:             CodeRateLimit,
	ErrContextOverflow:       CodeContextOverflow,
	ErrSessionNotFound:       CodeSessionNotFound,
	ErrAgentNotFound:         CodeAgentNotFound,
	ErrCancelled:             CodeCancelled,
	ErrAuditWrite:            CodeAuditWrite,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
