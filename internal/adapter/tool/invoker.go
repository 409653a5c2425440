package tool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"teamforge/internal/domain"
	"teamforge/internal/infra/config"
	"teamforge/internal/infra/tracer"
)

// Invoker executes model-requested tool calls against the registry.
// Validation failures and execution errors become failed ToolResults,
// never error returns: one tool's failure must not prevent the rest of
// the turn's tools from running.
type Invoker struct {
	registry *Registry
	audit    domain.AuditLogger
	logger   *slog.Logger

	baseCost      float64
	maxConcurrent int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

// NewInvoker creates an invoker over the registry. audit may be nil.
func NewInvoker(registry *Registry, cfg config.ToolsConfig, audit domain.AuditLogger, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		registry:      registry,
		audit:         audit,
		logger:        logger,
		baseCost:      cfg.BaseCost,
		maxConcurrent: cfg.MaxConcurrent,
		limiters:      make(map[string]*rate.Limiter),
		perMin:        cfg.RatePerMinute,
	}
}

// Schemas exposes the registry's schemas for the provider request.
func (i *Invoker) Schemas() []domain.ToolSchema {
	return i.registry.Schemas()
}

func (i *Invoker) limiter(toolID string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()
	lim, ok := i.limiters[toolID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(i.perMin)/60.0), i.perMin)
		i.limiters[toolID] = lim
	}
	return lim
}

// Invoke runs one tool call. Unknown tool ids, validation failures, rate
// limiting and execution errors are all reported inside the ToolResult.
func (i *Invoker) Invoke(ctx context.Context, inv domain.ToolInvocation, ec domain.ExecContext) *domain.ToolResult {
	ctx, span := tracer.StartSpan(ctx, "tool.Invoke")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("tool.id", inv.ToolID),
		tracer.StringAttr("session.id", ec.SessionID),
	)

	start := time.Now()
	result := i.invoke(ctx, inv, ec)
	result.ExecutionTime = time.Since(start)
	if result.Success {
		// Base cost scaled by wall-clock execution time.
		result.Cost = i.baseCost * result.ExecutionTime.Seconds()
		tracer.SetOK(span)
	} else {
		span.SetAttributes(tracer.StringAttr("tool.error", result.Error))
	}

	i.logResult(ctx, inv, ec, result)
	return result
}

func (i *Invoker) invoke(ctx context.Context, inv domain.ToolInvocation, ec domain.ExecContext) *domain.ToolResult {
	t, err := i.registry.Get(inv.ToolID)
	if err != nil {
		return &domain.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("unknown tool %q", inv.ToolID),
		}
	}

	if i.perMin > 0 && !i.limiter(inv.ToolID).Allow() {
		return &domain.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("rate limit exceeded for tool %q", inv.ToolID),
		}
	}

	if issues := t.Validate(inv.Parameters); len(issues) > 0 {
		return &domain.ToolResult{
			Success: false,
			Error:   "invalid parameters: " + strings.Join(issues, "; "),
		}
	}

	data, err := t.Execute(ctx, inv.Parameters, ec)
	if err != nil {
		return &domain.ToolResult{
			Success: false,
			Error:   err.Error(),
		}
	}
	return &domain.ToolResult{
		Success: true,
		Data:    data,
		Metadata: map[string]string{
			"tool": inv.ToolID,
		},
	}
}

// InvokeAll runs the turn's tool calls concurrently with a bounded worker
// pool and joins before returning. Results are positionally aligned with
// the input; a failed tool never aborts its siblings.
func (i *Invoker) InvokeAll(ctx context.Context, invs []domain.ToolInvocation, ec domain.ExecContext) []*domain.ToolResult {
	if len(invs) == 0 {
		return nil
	}

	workers := i.maxConcurrent
	if workers <= 0 {
		workers = 1
	}
	if workers > len(invs) {
		workers = len(invs)
	}

	results := make([]*domain.ToolResult, len(invs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for idx, inv := range invs {
		wg.Add(1)
		go func(idx int, inv domain.ToolInvocation) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = i.Invoke(ctx, inv, ec)
		}(idx, inv)
	}
	wg.Wait()
	return results
}

func (i *Invoker) logResult(ctx context.Context, inv domain.ToolInvocation, ec domain.ExecContext, result *domain.ToolResult) {
	outcome := "ok"
	if !result.Success {
		outcome = "failed"
		i.logger.Warn("tool execution failed",
			"tool", inv.ToolID,
			"session_id", ec.SessionID,
			"error", result.Error,
		)
	} else {
		i.logger.Debug("tool executed",
			"tool", inv.ToolID,
			"session_id", ec.SessionID,
			"duration", result.ExecutionTime,
		)
	}

	if i.audit == nil {
		return
	}
	_ = i.audit.Log(ctx, domain.AuditEvent{
		Timestamp: time.Now(),
		Type:      domain.AuditToolExec,
		Actor:     ec.UserID,
		Resource:  inv.ToolID,
		Outcome:   outcome,
		Detail: map[string]string{
			"session_id": ec.SessionID,
			"agent_id":   ec.AgentID,
			"duration":   result.ExecutionTime.String(),
		},
	})
}
