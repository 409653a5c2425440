package planner

import (
	"context"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"teamforge/internal/domain"
	"teamforge/internal/infra/config"
	"teamforge/internal/infra/tracer"
	"teamforge/internal/security"
)

// Planner combines skill analysis and availability resolution into an
// execution plan, and drives the upsell negotiation for missing skills.
type Planner struct {
	analyzer    *Analyzer
	resolver    *Resolver
	catalog     domain.AgentCatalog
	perDuration time.Duration
	perCost     float64
	audit       domain.AuditLogger
	logger      *slog.Logger
}

func NewPlanner(analyzer *Analyzer, resolver *Resolver, catalog domain.AgentCatalog, cfg config.OrchestratorConfig, audit domain.AuditLogger, logger *slog.Logger) *Planner {
	if audit == nil {
		audit = security.NopAuditLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		analyzer:    analyzer,
		resolver:    resolver,
		catalog:     catalog,
		perDuration: cfg.PerSkillDuration,
		perCost:     cfg.PerSkillCost,
		audit:       audit,
		logger:      logger,
	}
}

// CreatePlan analyzes the task, resolves availability for the user and
// builds the plan. Estimates are unit-economics placeholders: skill count
// times a fixed per-skill constant. Available skills become idle
// assignments immediately; missing ones wait for NegotiateMissing.
func (p *Planner) CreatePlan(ctx context.Context, userID, taskText string) (*domain.ExecutionPlan, error) {
	ctx, span := tracer.StartSpan(ctx, "planner.CreatePlan")
	defer span.End()

	skills := p.analyzer.Analyze(taskText)

	agents, available, missing, err := p.resolver.Resolve(ctx, userID, skills)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	now := time.Now()
	plan := &domain.ExecutionPlan{
		ID:                newPlanID(now),
		TaskDescription:   taskText,
		RequiredSkills:    append(append([]domain.RequiredSkill{}, available...), missing...),
		EstimatedDuration: time.Duration(len(skills)) * p.perDuration,
		EstimatedCost:     float64(len(skills)) * p.perCost,
		CreatedAt:         now,
	}

	byID := make(map[string]domain.AgentDescriptor, len(agents))
	for _, ag := range agents {
		byID[ag.ID] = ag
	}
	for _, skill := range available {
		ag, ok := byID[skill.BoundAgentID]
		if !ok {
			continue
		}
		plan.AssignedAgents = append(plan.AssignedAgents, domain.AgentAssignment{
			AgentID:   ag.ID,
			AgentName: ag.Name,
			Role:      ag.Role,
			Provider:  ag.Provider,
			Model:     ag.Model,
			Status:    domain.AssignmentIdle,
		})
	}

	_ = p.audit.Log(ctx, domain.AuditEvent{
		Timestamp: now,
		Type:      domain.AuditPlanCreate,
		Actor:     userID,
		Resource:  plan.ID,
		Outcome:   "created",
		Detail: map[string]string{
			"skills":   strconv.Itoa(len(skills)),
			"assigned": strconv.Itoa(len(plan.AssignedAgents)),
		},
	})
	p.logger.Info("execution plan created",
		"plan_id", plan.ID,
		"skills", len(skills),
		"assigned", len(plan.AssignedAgents),
		"missing", len(missing),
	)
	tracer.SetOK(span)
	return plan, nil
}

// MissingSkills returns the plan's skills that resolution left unbound.
func MissingSkills(plan *domain.ExecutionPlan) []domain.RequiredSkill {
	var missing []domain.RequiredSkill
	for _, s := range plan.RequiredSkills {
		if !s.IsAvailable {
			missing = append(missing, s)
		}
	}
	return missing
}

// NegotiateMissing offers each missing skill to the user, one at a time,
// binding a catalog candidate into the offer so approval yields a runnable
// assignment. Skills no catalog agent covers are skipped without an offer.
// Each decision may wait on human input for an unbounded time, so the loop
// checks ctx between offers and the callback is expected to honor
// cancellation itself. Approval appends an idle assignment to the plan and
// marks the skill bound; rejection skips the skill permanently for this
// plan.
func (p *Planner) NegotiateMissing(ctx context.Context, plan *domain.ExecutionPlan, onUpsell domain.UpsellFunc) error {
	ctx, span := tracer.StartSpan(ctx, "planner.NegotiateMissing")
	defer span.End()

	missing := MissingSkills(plan)
	if len(missing) == 0 {
		tracer.SetOK(span)
		return nil
	}

	candidates, err := p.catalogByRole(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return err
	}

	for _, skill := range missing {
		select {
		case <-ctx.Done():
			err := domain.NewDomainError("Planner.NegotiateMissing", domain.ErrCancelled, ctx.Err().Error())
			tracer.RecordError(span, err)
			return err
		default:
		}

		candidate, ok := candidates[skill.Role]
		if !ok {
			p.logger.Info("no catalog agent for missing skill",
				"plan_id", plan.ID, "skill", skill.Skill, "role", skill.Role)
			continue
		}

		req := domain.UpsellRequest{
			Skill:     skill.Skill,
			Role:      skill.Role,
			AgentID:   candidate.ID,
			AgentName: candidate.Name,
			Reason:    skill.Reason,
		}
		approved, err := onUpsell(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				err = domain.NewDomainError("Planner.NegotiateMissing", domain.ErrCancelled, ctx.Err().Error())
			}
			tracer.RecordError(span, err)
			return err
		}

		outcome := "rejected"
		if approved {
			outcome = "approved"
		}
		_ = p.audit.Log(ctx, domain.AuditEvent{
			Timestamp: time.Now(),
			Type:      domain.AuditUpsell,
			Resource:  plan.ID,
			Outcome:   outcome,
			Detail:    map[string]string{"skill": skill.Skill, "agent_id": candidate.ID},
		})
		if !approved {
			p.logger.Info("upsell rejected", "plan_id", plan.ID, "skill", skill.Skill)
			continue
		}

		plan.AssignedAgents = append(plan.AssignedAgents, domain.AgentAssignment{
			AgentID:   candidate.ID,
			AgentName: candidate.Name,
			Role:      candidate.Role,
			Provider:  candidate.Provider,
			Model:     candidate.Model,
			Status:    domain.AssignmentIdle,
		})
		bindSkill(plan, skill.Skill, candidate.ID)
		p.logger.Info("upsell approved",
			"plan_id", plan.ID, "skill", skill.Skill, "agent_id", candidate.ID)
	}

	tracer.SetOK(span)
	return nil
}

// catalogByRole loads the full catalog and keeps the first agent per role,
// mirroring partition's first-wins rule. A nil catalog means no candidates.
func (p *Planner) catalogByRole(ctx context.Context) (map[string]domain.AgentDescriptor, error) {
	if p.catalog == nil {
		return nil, nil
	}
	agents, err := p.catalog.Catalog(ctx)
	if err != nil {
		return nil, domain.NewDomainError("Planner.NegotiateMissing", domain.ErrDependencyUnavailable, err.Error())
	}
	byRole := make(map[string]domain.AgentDescriptor, len(agents))
	for _, ag := range agents {
		if _, seen := byRole[ag.Role]; !seen {
			byRole[ag.Role] = ag
		}
	}
	return byRole, nil
}

// bindSkill marks the plan's matching skill available once an upsell hires
// an agent for it.
func bindSkill(plan *domain.ExecutionPlan, skill, agentID string) {
	for i := range plan.RequiredSkills {
		if plan.RequiredSkills[i].Skill == skill {
			plan.RequiredSkills[i].IsAvailable = true
			plan.RequiredSkills[i].BoundAgentID = agentID
			return
		}
	}
}

func newPlanID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
