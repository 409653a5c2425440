package domain

import "time"

// RiskLevel grades sanitizer findings.
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = [...]string{"none", "low", "medium", "high", "critical"}

func (r RiskLevel) String() string {
	if r < RiskNone || r > RiskCritical {
		return "unknown"
	}
	return riskNames[r]
}

// ParseRiskLevel converts a config string to a RiskLevel.
// Unknown values default to RiskHigh.
func ParseRiskLevel(s string) RiskLevel {
	for i, name := range riskNames {
		if name == s {
			return RiskLevel(i)
		}
	}
	return RiskHigh
}

// SanitizationResult is the outcome of screening one user input.
type SanitizationResult struct {
	SanitizedText string    `json:"sanitized_text"`
	Blocked       bool      `json:"blocked"`
	BlockReason   string    `json:"block_reason,omitempty"`
	RiskLevel     RiskLevel `json:"risk_level"`
	Modifications []string  `json:"modifications,omitempty"`
}

// OutputValidationResult is the outcome of screening one agent output.
type OutputValidationResult struct {
	IsValid         bool     `json:"is_valid"`
	Issues          []string `json:"issues,omitempty"`
	SanitizedOutput string   `json:"sanitized_output,omitempty"`
}

// ContextMessage is one entry in a session's bounded history.
type ContextMessage struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	TokenCount int       `json:"token_count"`
}

// ContextSummary replaces an evicted prefix of a context window.
// At most one live summary exists per window.
type ContextSummary struct {
	Summary      string    `json:"summary"`
	KeyPoints    []string  `json:"key_points,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"message_count"`
}
