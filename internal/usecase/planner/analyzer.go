package planner

import (
	"fmt"
	"strings"

	"teamforge/internal/domain"
)

// Analyzer maps a task description to the set of required skills. It is a
// pure function over the role taxonomy: deterministic, no side effects,
// and always returns at least one entry.
type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Analyze detects skills by keyword. When more than one specialist skill
// is found, an architect skill is prepended to lead the plan. When nothing
// matches, a single full-stack fallback is returned.
func (a *Analyzer) Analyze(taskText string) []domain.RequiredSkill {
	text := strings.ToLower(taskText)

	var skills []domain.RequiredSkill
	for _, entry := range taxonomy {
		kw, ok := matchesAny(text, entry.Keywords)
		if !ok {
			continue
		}
		skills = append(skills, domain.RequiredSkill{
			Skill:  entry.Skill,
			Role:   entry.Role,
			Reason: fmt.Sprintf("task mentions %q", kw),
		})
	}

	if len(skills) == 0 {
		return []domain.RequiredSkill{{
			Skill:  FallbackSkill,
			Role:   FallbackRole,
			Reason: "no specific skill detected",
		}}
	}

	if len(skills) > 1 {
		skills = append([]domain.RequiredSkill{{
			Skill:  ArchitectSkill,
			Role:   ArchitectRole,
			Reason: "multi-skill plans are led by an architect",
		}}, skills...)
	}
	return skills
}
