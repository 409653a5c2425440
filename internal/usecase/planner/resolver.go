package planner

import (
	"context"

	"teamforge/internal/domain"
	"teamforge/internal/infra/tracer"
)

// Resolver partitions required skills by whether the user currently has
// access to an agent covering the role.
type Resolver struct {
	directory domain.AgentDirectory
}

func NewResolver(directory domain.AgentDirectory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve queries the entitlement directory and splits skills into
// available and missing, binding the matching agent id on the available
// ones. The accessible descriptors come back too so the caller can turn
// bound skills into assignments without a second lookup. A directory
// lookup failure is surfaced as ErrDependencyUnavailable and is distinct
// from "no agent owned": the caller must not treat it as an empty
// entitlement set.
func (r *Resolver) Resolve(ctx context.Context, userID string, skills []domain.RequiredSkill) (agents []domain.AgentDescriptor, available, missing []domain.RequiredSkill, err error) {
	ctx, span := tracer.StartSpan(ctx, "planner.Resolve")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("user_id", userID), tracer.IntAttr("skills", len(skills)))

	agents, err = r.directory.ListAccessibleAgents(ctx, userID)
	if err != nil {
		err = domain.NewDomainError("Resolver.Resolve", domain.ErrDependencyUnavailable, err.Error())
		tracer.RecordError(span, err)
		return nil, nil, nil, err
	}

	available, missing = partition(agents, skills)
	tracer.SetOK(span)
	return agents, available, missing, nil
}

// partition splits skills by whether an accessible agent covers the role.
// The first agent listed for a role wins.
func partition(agents []domain.AgentDescriptor, skills []domain.RequiredSkill) (available, missing []domain.RequiredSkill) {
	byRole := make(map[string]domain.AgentDescriptor, len(agents))
	for _, ag := range agents {
		if _, seen := byRole[ag.Role]; !seen {
			byRole[ag.Role] = ag
		}
	}

	for _, skill := range skills {
		if ag, ok := byRole[skill.Role]; ok {
			skill.IsAvailable = true
			skill.BoundAgentID = ag.ID
			available = append(available, skill)
			continue
		}
		skill.IsAvailable = false
		missing = append(missing, skill)
	}
	return available, missing
}
