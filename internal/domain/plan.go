package domain

import (
	"context"
	"time"
)

// RequiredSkill is one skill requirement detected in a task description.
// IsAvailable is set during availability resolution; within one planning
// pass the skill is not mutated afterwards.
type RequiredSkill struct {
	Skill        string `json:"skill"`
	Role         string `json:"role"`
	BoundAgentID string `json:"bound_agent_id,omitempty"`
	IsAvailable  bool   `json:"is_available"`
	Reason       string `json:"reason,omitempty"`
}

// AssignmentStatus is the lifecycle state of one agent assignment.
type AssignmentStatus string

const (
	AssignmentIdle      AssignmentStatus = "idle"
	AssignmentWorking   AssignmentStatus = "working"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentFailed    AssignmentStatus = "failed"
)

// AgentAssignment is one agent participating in a plan. It is owned
// exclusively by the plan and mutated only by the orchestrator.
type AgentAssignment struct {
	AgentID   string           `json:"agent_id"`
	AgentName string           `json:"agent_name"`
	Role      string           `json:"role"`
	Provider  string           `json:"provider"`
	Model     string           `json:"model,omitempty"`
	Status    AssignmentStatus `json:"status"`
	Progress  int              `json:"progress"` // 0-100
}

// ExecutionPlan is the set of skill requirements and agent assignments
// produced for one task submission. AssignedAgents may grow during
// negotiation if an upsell is accepted.
type ExecutionPlan struct {
	ID                string            `json:"id"`
	TaskDescription   string            `json:"task_description"`
	RequiredSkills    []RequiredSkill   `json:"required_skills"`
	AssignedAgents    []AgentAssignment `json:"assigned_agents"`
	EstimatedDuration time.Duration     `json:"estimated_duration"`
	EstimatedCost     float64           `json:"estimated_cost"`
	CreatedAt         time.Time         `json:"created_at"`
}

// AgentDescriptor identifies an agent a user has access to.
type AgentDescriptor struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// AgentDirectory is the external entitlement collaborator: which agents
// the user currently has access to.
type AgentDirectory interface {
	ListAccessibleAgents(ctx context.Context, userID string) ([]AgentDescriptor, error)
}

// AgentCatalog lists every agent that exists, hired or not. Upsell offers
// draw their candidates from it.
type AgentCatalog interface {
	Catalog(ctx context.Context) ([]AgentDescriptor, error)
}

// UpsellRequest describes one missing skill offered to the user.
type UpsellRequest struct {
	Skill     string `json:"skill"`
	Role      string `json:"role"`
	AgentID   string `json:"agent_id,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// UpsellFunc is the caller-supplied decision callback, invoked once per
// missing skill, sequentially. It may wait on human input for an unbounded
// time and must honor context cancellation.
type UpsellFunc func(ctx context.Context, req UpsellRequest) (approved bool, err error)
