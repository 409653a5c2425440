// Package orchestrator drives an execution plan: each assigned agent takes
// one turn through the input guard, the context window, its LLM provider
// and the tool invoker, with status and communication events streamed to
// the caller.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"teamforge/internal/domain"
	"teamforge/internal/infra/config"
	"teamforge/internal/infra/tracer"
	"teamforge/internal/security"
	"teamforge/internal/usecase/contextwindow"
)

// usageCostPerKiloToken is a unit-economics placeholder, not pricing logic.
const usageCostPerKiloToken = 0.002

// UsageLogger receives per-call token usage for persistent accounting.
// Implemented by the host; failures there must not fail the turn.
type UsageLogger interface {
	LogUsage(ctx context.Context, userID, agentID, sessionID string, usage domain.Usage, cost float64)
}

// Orchestrator executes plans. Construct one at process start and share it;
// all per-session state lives in the context window manager and the plan.
type Orchestrator struct {
	providers domain.ProviderResolver
	tools     domain.ToolExecutor
	window    *contextwindow.Manager
	guard     *security.Guard
	audit     domain.AuditLogger
	usage     UsageLogger
	logger    *slog.Logger
	cfg       config.OrchestratorConfig
}

// New wires the orchestrator's collaborators. audit and usage may be nil.
func New(
	providers domain.ProviderResolver,
	tools domain.ToolExecutor,
	window *contextwindow.Manager,
	guard *security.Guard,
	audit domain.AuditLogger,
	usage UsageLogger,
	cfg config.OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if audit == nil {
		audit = security.NopAuditLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		providers: providers,
		tools:     tools,
		window:    window,
		guard:     guard,
		audit:     audit,
		usage:     usage,
		logger:    logger,
		cfg:       cfg,
	}
}

// ExecutePlan runs every assignment in the plan sequentially: one agent's
// full turn, tool calls included, completes before the next begins, since
// downstream agents may consume upstream output via handoff. A blocked or
// failed turn marks its assignment failed and execution proceeds to the
// next assignment; cancellation stops the plan and marks the in-flight
// assignment failed. The returned error aggregates per-assignment
// failures.
func (o *Orchestrator) ExecutePlan(ctx context.Context, userID, sessionID string, plan *domain.ExecutionPlan, sink domain.EventSink) error {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.ExecutePlan")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("plan.id", plan.ID),
		tracer.IntAttr("plan.assignments", len(plan.AssignedAgents)),
	)

	sink.Communication(ctx, domain.AgentCommunication{
		ID:        newEventID(),
		From:      "orchestrator",
		Type:      domain.CommSystem,
		Message:   fmt.Sprintf("starting plan with %d agents", len(plan.AssignedAgents)),
		Timestamp: time.Now(),
	})

	var errs []error
	upstream := plan.TaskDescription
	for i := range plan.AssignedAgents {
		if ctx.Err() != nil {
			o.markCancelled(ctx, &plan.AssignedAgents[i], sink)
			errs = append(errs, domain.NewDomainError("Orchestrator.ExecutePlan", domain.ErrCancelled, ctx.Err().Error()))
			break
		}

		assignment := &plan.AssignedAgents[i]
		output, err := o.runTurn(ctx, userID, sessionID, plan, assignment, upstream, sink)
		if err != nil {
			errs = append(errs, err)
			if errors.Is(err, domain.ErrCancelled) {
				break
			}
			if errors.Is(err, domain.ErrSecurityBlocked) {
				// The hostile message must not propagate to the next
				// agent's turn.
				upstream = "The previous message was withheld by security policy. Continue your part of the plan task."
			}
			continue
		}

		if output != "" {
			upstream = output
		}
		if i < len(plan.AssignedAgents)-1 {
			sink.Communication(ctx, domain.AgentCommunication{
				ID:        newEventID(),
				From:      assignment.AgentName,
				To:        plan.AssignedAgents[i+1].AgentName,
				Type:      domain.CommHandoff,
				Message:   fmt.Sprintf("handing off to %s", plan.AssignedAgents[i+1].AgentName),
				Timestamp: time.Now(),
			})
		}
	}

	sink.Communication(ctx, domain.AgentCommunication{
		ID:        newEventID(),
		From:      "orchestrator",
		Type:      domain.CommCompletion,
		Message:   planSummary(plan),
		Timestamp: time.Now(),
	})

	if len(errs) > 0 {
		err := errors.Join(errs...)
		tracer.RecordError(span, err)
		return err
	}
	tracer.SetOK(span)
	return nil
}

// runTurn executes one agent's turn and returns its validated output.
func (o *Orchestrator) runTurn(ctx context.Context, userID, sessionID string, plan *domain.ExecutionPlan, assignment *domain.AgentAssignment, upstream string, sink domain.EventSink) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.turn")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("agent.id", assignment.AgentID),
		tracer.StringAttr("agent.role", assignment.Role),
	)

	progress := newProgress(ctx, assignment, sink)
	progress.set(domain.AssignmentWorking, 5, "starting turn")

	// Step 1: sanitize the upstream message before it reaches the model.
	san := o.guard.Sanitize(upstream, userID)
	if san.Blocked {
		o.auditEvent(ctx, domain.AuditSecurityBlock, userID, assignment.AgentID, san.BlockReason)
		sink.Communication(ctx, domain.AgentCommunication{
			ID:        newEventID(),
			From:      assignment.AgentName,
			Type:      domain.CommError,
			Message:   "input blocked by security policy: " + san.BlockReason,
			Metadata:  map[string]string{"risk_level": san.RiskLevel.String()},
			Timestamp: time.Now(),
		})
		progress.fail("input blocked")
		err := domain.NewDomainError("Orchestrator.runTurn", domain.ErrSecurityBlocked, san.BlockReason)
		tracer.RecordError(span, err)
		return "", err
	}

	// Step 2: fetch the optimized context, then record the turn input.
	// The ordering matters: the sandwich wrap carries the current turn, so
	// history must end before it or the provider sees the turn twice.
	history := toMessages(o.window.OptimizedContext(sessionID, assignment.Provider, assignment.Model))
	o.window.Append(sessionID, assignment.Provider, assignment.Model, domain.ContextMessage{
		Role:    domain.RoleUser,
		Content: san.SanitizedText,
	})
	progress.set(domain.AssignmentWorking, 25, "context prepared")

	// Step 3: the provider call, the turn's only network suspension point.
	messages := security.BuildSecureMessages(o.systemPrompt(assignment, plan), san.SanitizedText, assignment.AgentName, history)
	provider, err := o.providers.Resolve(assignment.Provider, assignment.Model)
	if err != nil {
		tracer.RecordError(span, err)
		return "", o.failTurn(ctx, assignment, sink, progress, err)
	}

	resp, err := provider.Chat(ctx, domain.ChatRequest{
		Model:    assignment.Model,
		Messages: messages,
		Tools:    o.tools.Schemas(),
	})
	if err != nil {
		if ctx.Err() != nil {
			err = domain.NewDomainError("Orchestrator.runTurn", domain.ErrCancelled, ctx.Err().Error())
		}
		tracer.RecordError(span, err)
		return "", o.failTurn(ctx, assignment, sink, progress, err)
	}
	o.auditEvent(ctx, domain.AuditLLMCall, userID, assignment.Provider, strconv.Itoa(resp.Usage.TotalTokens)+" tokens")
	progress.set(domain.AssignmentWorking, 60, "provider responded")

	// Step 4: tool calls are best effort; a failed tool never fails the
	// turn on its own.
	output := resp.Message.Content
	if len(resp.Message.ToolCalls) > 0 {
		results := o.runTools(ctx, sessionID, userID, assignment, resp.Message.ToolCalls, sink)
		o.window.Append(sessionID, assignment.Provider, assignment.Model, domain.ContextMessage{
			Role:    domain.RoleAssistant,
			Content: toolTranscript(resp.Message.ToolCalls, results),
		})
		progress.set(domain.AssignmentWorking, 85, "tools finished")
	}

	// Step 5: screen the output; a redacted or refused message still
	// completes the turn, the user must never see a raw leak.
	validation := o.guard.ValidateOutput(output, assignment.AgentName)
	if !validation.IsValid {
		o.auditEvent(ctx, domain.AuditOutputRedact, userID, assignment.AgentID, strconv.Itoa(len(validation.Issues))+" issues")
		output = validation.SanitizedOutput
	}
	if output != "" {
		o.window.Append(sessionID, assignment.Provider, assignment.Model, domain.ContextMessage{
			Role:    domain.RoleAssistant,
			Content: output,
		})
	}

	// Step 7: forward usage to the ledger and the caller.
	if resp.Usage.TotalTokens > 0 {
		cost := float64(resp.Usage.TotalTokens) / 1000.0 * usageCostPerKiloToken
		if o.usage != nil {
			o.usage.LogUsage(ctx, userID, assignment.AgentID, sessionID, resp.Usage, cost)
		}
		sink.TokenUpdate(ctx, domain.TokenUpdate{
			Provider: assignment.Provider,
			Model:    assignment.Model,
			Tokens:   resp.Usage,
			Cost:     cost,
		})
	}

	progress.complete(output, resp.Usage)
	sink.Communication(ctx, domain.AgentCommunication{
		ID:        newEventID(),
		From:      assignment.AgentName,
		Type:      domain.CommCompletion,
		Message:   output,
		Timestamp: time.Now(),
	})
	tracer.SetOK(span)
	return output, nil
}

func (o *Orchestrator) runTools(ctx context.Context, sessionID, userID string, assignment *domain.AgentAssignment, calls []domain.ToolCall, sink domain.EventSink) []*domain.ToolResult {
	invs := make([]domain.ToolInvocation, len(calls))
	for i, call := range calls {
		invs[i] = domain.ToolInvocation{ToolID: call.Name, Parameters: call.Arguments}
	}

	results := o.tools.InvokeAll(ctx, invs, domain.ExecContext{
		UserID:    userID,
		AgentID:   assignment.AgentID,
		SessionID: sessionID,
	})
	for i, res := range results {
		if !res.Success {
			o.logger.Warn("tool call failed, continuing turn",
				"tool", invs[i].ToolID,
				"agent", assignment.AgentName,
				"error", res.Error,
			)
		}
	}
	return results
}

func (o *Orchestrator) failTurn(ctx context.Context, assignment *domain.AgentAssignment, sink domain.EventSink, progress *progressTracker, err error) error {
	retryable := domain.IsRetryableError(err)
	sink.Communication(ctx, domain.AgentCommunication{
		ID:      newEventID(),
		From:    assignment.AgentName,
		Type:    domain.CommError,
		Message: err.Error(),
		Metadata: map[string]string{
			"retryable": strconv.FormatBool(retryable),
			"code":      string(domain.ErrorCodeOf(err)),
		},
		Timestamp: time.Now(),
	})
	progress.fail(err.Error())
	o.logger.Error("agent turn failed",
		"agent", assignment.AgentName,
		"retryable", retryable,
		"error", err,
	)
	return err
}

func (o *Orchestrator) markCancelled(ctx context.Context, assignment *domain.AgentAssignment, sink domain.EventSink) {
	if assignment.Status == domain.AssignmentCompleted || assignment.Status == domain.AssignmentFailed {
		return
	}
	assignment.Status = domain.AssignmentFailed
	sink.StatusUpdate(ctx, domain.AgentStatusEvent{
		AgentID:   assignment.AgentID,
		AgentName: assignment.AgentName,
		Status:    domain.AssignmentFailed,
		Progress:  assignment.Progress,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) systemPrompt(assignment *domain.AgentAssignment, plan *domain.ExecutionPlan) string {
	return fmt.Sprintf(
		"You are %s, a %s specialist collaborating on this task: %s\nProduce concrete work for your specialty and summarize it for the next agent.",
		assignment.AgentName, assignment.Role, plan.TaskDescription,
	)
}

func (o *Orchestrator) auditEvent(ctx context.Context, typ domain.AuditEventType, actor, resource, outcome string) {
	_ = o.audit.Log(ctx, domain.AuditEvent{
		Timestamp: time.Now(),
		Type:      typ,
		Actor:     actor,
		Resource:  resource,
		Outcome:   outcome,
	})
}

// progressTracker enforces monotonically non-decreasing progress within a
// turn and keeps the assignment struct in sync with emitted events.
type progressTracker struct {
	ctx        context.Context
	assignment *domain.AgentAssignment
	sink       domain.EventSink
}

func newProgress(ctx context.Context, assignment *domain.AgentAssignment, sink domain.EventSink) *progressTracker {
	return &progressTracker{ctx: ctx, assignment: assignment, sink: sink}
}

func (p *progressTracker) set(status domain.AssignmentStatus, progress int, task string) {
	if progress < p.assignment.Progress {
		progress = p.assignment.Progress
	}
	p.assignment.Status = status
	p.assignment.Progress = progress
	p.sink.StatusUpdate(p.ctx, domain.AgentStatusEvent{
		AgentID:     p.assignment.AgentID,
		AgentName:   p.assignment.AgentName,
		Status:      status,
		CurrentTask: task,
		Progress:    progress,
		Timestamp:   time.Now(),
	})
}

func (p *progressTracker) complete(output string, usage domain.Usage) {
	p.assignment.Status = domain.AssignmentCompleted
	p.assignment.Progress = 100
	p.sink.StatusUpdate(p.ctx, domain.AgentStatusEvent{
		AgentID:   p.assignment.AgentID,
		AgentName: p.assignment.AgentName,
		Status:    domain.AssignmentCompleted,
		Progress:  100,
		Output:    output,
		Usage:     &usage,
		Timestamp: time.Now(),
	})
}

func (p *progressTracker) fail(task string) {
	p.assignment.Status = domain.AssignmentFailed
	p.sink.StatusUpdate(p.ctx, domain.AgentStatusEvent{
		AgentID:     p.assignment.AgentID,
		AgentName:   p.assignment.AgentName,
		Status:      domain.AssignmentFailed,
		CurrentTask: task,
		Progress:    p.assignment.Progress,
		Timestamp:   time.Now(),
	})
}

func toMessages(history []domain.ContextMessage) []domain.Message {
	msgs := make([]domain.Message, len(history))
	for i, m := range history {
		msgs[i] = domain.Message{
			Role:       m.Role,
			Content:    m.Content,
			Timestamp:  m.Timestamp,
			TokenCount: m.TokenCount,
		}
	}
	return msgs
}

func toolTranscript(calls []domain.ToolCall, results []*domain.ToolResult) string {
	var b []byte
	for i, call := range calls {
		outcome := "failed"
		detail := ""
		if i < len(results) {
			if results[i].Success {
				outcome = "ok"
				detail = fmt.Sprintf("%v", results[i].Data)
			} else {
				detail = results[i].Error
			}
		}
		b = fmt.Appendf(b, "tool %s: %s %s\n", call.Name, outcome, detail)
	}
	return string(b)
}

func planSummary(plan *domain.ExecutionPlan) string {
	completed, failed := 0, 0
	for _, a := range plan.AssignedAgents {
		switch a.Status {
		case domain.AssignmentCompleted:
			completed++
		case domain.AssignmentFailed:
			failed++
		}
	}
	return fmt.Sprintf("plan finished: %d completed, %d failed of %d agents", completed, failed, len(plan.AssignedAgents))
}

func newEventID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
