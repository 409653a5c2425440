package domain

import (
	"context"
	"time"
)

// CommunicationType classifies an AgentCommunication.
type CommunicationType string

const (
	CommSystem     CommunicationType = "system"
	CommAgent      CommunicationType = "agent"
	CommHandoff    CommunicationType = "handoff"
	CommCompletion CommunicationType = "completion"
	CommError      CommunicationType = "error"
	CommUpsell     CommunicationType = "upsell"
)

// AgentStatusEvent is a point-in-time snapshot of one agent's work.
// Emitted, never persisted by the core itself.
type AgentStatusEvent struct {
	AgentID     string           `json:"agent_id"`
	AgentName   string           `json:"agent_name"`
	Status      AssignmentStatus `json:"status"`
	CurrentTask string           `json:"current_task,omitempty"`
	Progress    int              `json:"progress"`
	Output      string           `json:"output,omitempty"`
	Usage       *Usage           `json:"usage,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// AgentCommunication is one entry in the ordered per-session message stream.
type AgentCommunication struct {
	ID        string            `json:"id"`
	From      string            `json:"from"`
	To        string            `json:"to,omitempty"`
	Type      CommunicationType `json:"type"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// TokenUpdate reports token usage and cost for one provider call.
type TokenUpdate struct {
	Provider string  `json:"provider"`
	Model    string  `json:"model"`
	Tokens   Usage   `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// EventSink receives orchestration events. Implementations must not block
// the orchestrator: buffer or drop with a warning, never deadlock.
type EventSink interface {
	StatusUpdate(ctx context.Context, ev AgentStatusEvent)
	Communication(ctx context.Context, comm AgentCommunication)
	TokenUpdate(ctx context.Context, update TokenUpdate)
}
