// Package planner turns a free-text task description into an execution
// plan: skill detection over a fixed role taxonomy, availability
// resolution against the user's agent entitlements, and the upsell
// negotiation for skills the user does not yet own.
package planner

import "strings"

// roleEntry maps a displayed skill/role pair to the keywords that imply it.
type roleEntry struct {
	Skill    string
	Role     string
	Keywords []string
}

// ArchitectRole leads any plan that needs more than one specialist.
const (
	ArchitectSkill = "Software Architecture"
	ArchitectRole  = "architect"

	FallbackSkill = "Full-Stack Development"
	FallbackRole  = "fullstack"
)

// taxonomy is checked in order; the first keyword hit per entry counts the
// entry once. Keywords are matched case-insensitively on word substrings.
var taxonomy = []roleEntry{
	{
		Skill: "Frontend Development", Role: "frontend",
		Keywords: []string{"frontend", "front-end", "full-stack", "fullstack", "react", "vue", "angular", "css", "user interface", "web app", "landing page", "responsive"},
	},
	{
		Skill: "Backend Development", Role: "backend",
		Keywords: []string{"backend", "back-end", "full-stack", "fullstack", "api", "server", "database", "authentication", "microservice", "rest", "grpc", "endpoint"},
	},
	{
		Skill: "UI/UX Design", Role: "designer",
		Keywords: []string{"design", "mockup", "wireframe", "figma", "branding", "logo", "user experience"},
	},
	{
		Skill: "Data Engineering", Role: "data",
		Keywords: []string{"data pipeline", "etl", "analytics", "machine learning", "dataset", "warehouse", "ml model"},
	},
	{
		Skill: "Quality Assurance", Role: "qa",
		Keywords: []string{"test", "qa", "quality assurance", "regression", "coverage"},
	},
	{
		Skill: "DevOps Engineering", Role: "devops",
		Keywords: []string{"deploy", "ci/cd", "docker", "kubernetes", "terraform", "infrastructure", "monitoring"},
	},
	{
		Skill: "Mobile Development", Role: "mobile",
		Keywords: []string{"mobile", "ios", "android", "flutter", "react native"},
	},
	{
		Skill: "Security Engineering", Role: "security",
		Keywords: []string{"security audit", "penetration", "vulnerability", "encryption", "compliance"},
	},
}

func matchesAny(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}
