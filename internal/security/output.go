package security

import (
	"regexp"

	"teamforge/internal/domain"
)

const (
	// RedactionMarker replaces secret-like spans in agent output.
	RedactionMarker = "[REDACTED]"
	// RefusalMessage replaces the entire output when role confusion or
	// instruction disclosure is detected. Replacing the whole message keeps
	// partial leaks off the wire.
	RefusalMessage = "I can't share that. Let me know how else I can help with your task."
)

// secretPatterns match credential-like spans. Matches are replaced
// individually with the redaction marker.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]{16,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)(?:api[_-]?key|secret|token|password)\s*[:=]\s*["']?[A-Za-z0-9_\-./+]{12,}["']?`),
	regexp.MustCompile(`(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s"']+`),
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`(?m)^(?:export\s+)?[A-Z][A-Z0-9_]{3,}=[^\s]{8,}$`),
}

// disclosurePatterns match an agent narrating its own instructions.
var disclosurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)my\s+system\s+prompt\s+(?:is|says|reads)`),
	regexp.MustCompile(`(?i)my\s+(?:original\s+)?instructions\s+(?:are|were|say)`),
	regexp.MustCompile(`(?i)i\s+was\s+(?:instructed|told|programmed)\s+to\s+(?:never|always|not)`),
	regexp.MustCompile(`(?i)here\s+(?:is|are)\s+(?:my|the)\s+(?:system\s+prompt|hidden\s+instructions)`),
}

// roleConfusionPatterns match an agent claiming to have escaped its role.
var roleConfusionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i\s+am\s+now\s+(?:unrestricted|unfiltered|free\s+of)`),
	regexp.MustCompile(`(?i)jailbr(?:oken|eak)`),
	regexp.MustCompile(`(?i)i\s+(?:can|will)\s+(?:now\s+)?ignore\s+my\s+(?:instructions|guidelines|restrictions)`),
	regexp.MustCompile(`(?i)developer\s+mode\s+(?:enabled|activated|on)`),
	regexp.MustCompile(`(?i)no\s+longer\s+bound\s+by\s+(?:my|any)\s+(?:rules|guidelines|restrictions)`),
}

// ValidateOutput screens one agent output before it is surfaced. Secret-like
// spans are redacted in place; instruction disclosure or role-confusion
// phrasing replaces the entire message with a fixed refusal. A result with
// IsValid=false always carries a safe SanitizedOutput.
func (g *Guard) ValidateOutput(text, agentName string) domain.OutputValidationResult {
	var issues []string

	for _, re := range roleConfusionPatterns {
		if re.MatchString(text) {
			issues = append(issues, "role confusion phrasing")
			g.logger.Warn("agent output replaced by refusal", "agent", agentName, "issue", "role_confusion")
			return domain.OutputValidationResult{
				IsValid:         false,
				Issues:          issues,
				SanitizedOutput: RefusalMessage,
			}
		}
	}

	for _, re := range disclosurePatterns {
		if re.MatchString(text) {
			issues = append(issues, "instruction disclosure phrasing")
			g.logger.Warn("agent output replaced by refusal", "agent", agentName, "issue", "disclosure")
			return domain.OutputValidationResult{
				IsValid:         false,
				Issues:          issues,
				SanitizedOutput: RefusalMessage,
			}
		}
	}

	sanitized := text
	for _, re := range secretPatterns {
		if re.MatchString(sanitized) {
			issues = append(issues, "secret-like content")
			sanitized = re.ReplaceAllString(sanitized, RedactionMarker)
		}
	}

	if len(issues) > 0 {
		g.logger.Warn("agent output redacted", "agent", agentName, "issues", len(issues))
		return domain.OutputValidationResult{
			IsValid:         false,
			Issues:          issues,
			SanitizedOutput: sanitized,
		}
	}

	return domain.OutputValidationResult{IsValid: true}
}
