package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolInvocation is one requested tool execution.
type ToolInvocation struct {
	ToolID     string         `json:"tool_id"`
	Parameters map[string]any `json:"parameters"`
}

// ToolResult is the outcome of executing a tool. It is never mutated after
// creation; validation failures and execution errors are represented here
// rather than as error returns.
type ToolResult struct {
	Success       bool              `json:"success"`
	Data          any               `json:"data,omitempty"`
	Error         string            `json:"error,omitempty"`
	ExecutionTime time.Duration     `json:"execution_time"`
	Cost          float64           `json:"cost"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ExecContext carries the identity under which a tool runs.
type ExecContext struct {
	UserID    string `json:"user_id"`
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`
}

// Tool is the interface every tool handler must implement. Validate reports
// parameter problems as a list of messages and must not panic on bad input;
// a non-empty list turns into a failed ToolResult, never an error return.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Validate(params map[string]any) []string
	Execute(ctx context.Context, params map[string]any, ec ExecContext) (any, error)
}

// ToolExecutor abstracts tool lookup and execution for the orchestrator.
type ToolExecutor interface {
	Invoke(ctx context.Context, inv ToolInvocation, ec ExecContext) *ToolResult
	InvokeAll(ctx context.Context, invs []ToolInvocation, ec ExecContext) []*ToolResult
	Schemas() []ToolSchema
}
