package domain

import (
	"context"
	"time"
)

// AuditEventType classifies audit log entries.
type AuditEventType string

const (
	AuditLLMCall       AuditEventType = "llm_call"
	AuditToolExec      AuditEventType = "tool_exec"
	AuditSecurityBlock AuditEventType = "security_block"
	AuditOutputRedact  AuditEventType = "output_redact"
	AuditPlanCreate    AuditEventType = "plan_create"
	AuditUpsell        AuditEventType = "upsell"
)

// AuditEvent represents a single auditable action. Detail never carries
// message content or tool arguments, only identifiers and outcomes.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      AuditEventType    `json:"type"`
	Actor     string            `json:"actor,omitempty"`
	Resource  string            `json:"resource,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// AuditLogger writes audit events to a persistent log.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	Close() error
}
