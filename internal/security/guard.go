package security

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"teamforge/internal/domain"
)

// GuardOptions configures the input/output security boundary.
type GuardOptions struct {
	MaxInputLength int
	StripMarkup    bool
	BlockThreshold domain.RiskLevel
}

// Guard enforces the security boundary around every agent turn: input
// sanitization before text reaches an agent, output validation before an
// agent's text is surfaced. Guard is stateless and safe for concurrent use.
type Guard struct {
	opts   GuardOptions
	logger *slog.Logger
}

// NewGuard creates a Guard. Zero-valued options get defaults: 10000 max
// input length, block threshold high.
func NewGuard(opts GuardOptions, logger *slog.Logger) *Guard {
	if opts.MaxInputLength <= 0 {
		opts.MaxInputLength = 10000
	}
	if opts.BlockThreshold == domain.RiskNone {
		opts.BlockThreshold = domain.RiskHigh
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{opts: opts, logger: logger}
}

// patternFamily is one battery of injection patterns. A match contributes
// weight to the aggregate risk score; no single family name is echoed back
// to the user.
type patternFamily struct {
	name     string
	weight   int // low=1, medium=2, high=3
	patterns []*regexp.Regexp
}

var injectionFamilies = []patternFamily{
	{
		name:   "role_manipulation",
		weight: 3,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)ignore\s+(?:all\s+)?(?:previous|prior|above|earlier)\s+(?:instructions|directions|prompts|rules)`),
			regexp.MustCompile(`(?i)you\s+are\s+no\s+longer\s+(?:a|an|the)`),
			regexp.MustCompile(`(?i)pretend\s+(?:to\s+be|you\s+are|you're)\s`),
			regexp.MustCompile(`(?i)forget\s+(?:everything|all|your)\s+(?:you|your|previous|instructions)`),
			regexp.MustCompile(`(?i)act\s+as\s+(?:if\s+you|though\s+you|an?\s+unrestricted)`),
		},
	},
	{
		name:   "employee_escalation",
		weight: 2,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)i\s+am\s+your\s+(?:creator|developer|administrator|admin|owner|manager|supervisor)`),
			regexp.MustCompile(`(?i)(?:grant|give)\s+(?:me|yourself)\s+(?:admin|root|elevated|full)\s+(?:access|privileges?|permissions?)`),
			regexp.MustCompile(`(?i)as\s+your\s+(?:boss|manager|supervisor|ceo),?\s+i\s+(?:order|command|instruct)`),
			regexp.MustCompile(`(?i)escalat\w*\s+(?:your\s+)?privileges?`),
		},
	},
	{
		name:   "behavior_modification",
		weight: 2,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)from\s+now\s+on,?\s+(?:you|your|respond|answer|always|never)`),
			regexp.MustCompile(`(?i)(?:new|updated)\s+(?:rules?|instructions?|persona|directives?)\s*:`),
			regexp.MustCompile(`(?i)disregard\s+(?:your|all|any)\s+(?:guidelines|rules|training|restrictions)`),
			regexp.MustCompile(`(?i)(?:disable|turn\s+off|bypass|remove)\s+(?:your\s+)?(?:safety|filters?|guards?|restrictions)`),
		},
	},
	{
		name:   "info_extraction",
		weight: 3,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:reveal|show|print|repeat|output|display)\s+(?:me\s+)?(?:your|the)\s+(?:system\s+prompt|initial\s+prompt|instructions|hidden\s+rules)`),
			regexp.MustCompile(`(?i)what\s+(?:are|were)\s+your\s+(?:original\s+)?(?:instructions|rules|directives)`),
			regexp.MustCompile(`(?i)(?:list|dump|print|echo)\s+(?:all\s+)?(?:env|environment\s+variables|secrets|api\s+keys|credentials)`),
		},
	},
	{
		name:   "context_switching",
		weight: 1,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)end\s+of\s+(?:conversation|context|session|transcript)`),
			regexp.MustCompile(`(?i)(?:---+|===+)\s*new\s+(?:conversation|session|context)`),
			regexp.MustCompile(`(?im)^\s*(?:system|assistant)\s*:\s`),
		},
	},
	{
		name:   "tool_injection",
		weight: 3,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<tool_call>|</tool_call>`),
			regexp.MustCompile(`"tool_calls"\s*:`),
			regexp.MustCompile(`(?i)(?:silently|secretly|without\s+asking)\s+(?:call|invoke|run|execute)\s+(?:the\s+)?[a-z_]+\s+tool`),
			regexp.MustCompile(`(?i)function_call\s*[:=]`),
		},
	},
	{
		name:   "formatting_abuse",
		weight: 1,
		patterns: []*regexp.Regexp{
			regexp.MustCompile("[\u200B\u200C\u200D\u200E\u200F\u2060\uFEFF]"),
			regexp.MustCompile(`(?m)^[-=#*_]{10,}\s*$`),
			regexp.MustCompile(`[A-Za-z0-9+/]{200,}={0,2}`),
		},
	},
}

// Markers commonly used to smuggle instructions past the prompt boundary.
var (
	htmlCommentRe   = regexp.MustCompile(`(?s)<!--.*?-->`)
	instMarkerRe    = regexp.MustCompile(`(?i)\[/?(?:INST|SYS)\]|<</?SYS>>|<\|[a-z_]+\|>`)
	systemHeaderRe  = regexp.MustCompile(`(?im)^#{1,6}\s*(?:system|instructions?)\s*$`)
	codeFenceRe     = regexp.MustCompile("(?s)```.*?```|`[^`\n]*`")
	htmlTagRe       = regexp.MustCompile(`<[^>]{1,100}>`)
	whitespaceRunRe = regexp.MustCompile(`\n{4,}`)
)

// Sanitize screens one user turn before it reaches an agent. Empty and
// null-byte-containing input is rejected outright; everything else is
// normalized, stripped of injection markers, and scored against the
// pattern families. Blocked becomes true only once the aggregate risk
// reaches the configured threshold, so a single matched family is usually
// not enough; compound attacks are what block.
func (g *Guard) Sanitize(text, userID string) domain.SanitizationResult {
	if strings.TrimSpace(text) == "" {
		return domain.SanitizationResult{
			Blocked:     true,
			BlockReason: "empty input",
			RiskLevel:   domain.RiskCritical,
		}
	}
	if strings.ContainsRune(text, 0) {
		g.logger.Warn("input contained null byte", "user_id", userID)
		return domain.SanitizationResult{
			Blocked:     true,
			BlockReason: "input contains null bytes",
			RiskLevel:   domain.RiskCritical,
		}
	}

	var mods []string
	sanitized := text

	if len(sanitized) > g.opts.MaxInputLength {
		sanitized = truncateOnRune(sanitized, g.opts.MaxInputLength)
		mods = append(mods, fmt.Sprintf("truncated to %d bytes", g.opts.MaxInputLength))
	}

	for _, re := range []*regexp.Regexp{htmlCommentRe, instMarkerRe, systemHeaderRe} {
		if re.MatchString(sanitized) {
			sanitized = re.ReplaceAllString(sanitized, "")
			mods = append(mods, "removed injection markers")
		}
	}

	if g.opts.StripMarkup {
		if codeFenceRe.MatchString(sanitized) || htmlTagRe.MatchString(sanitized) {
			sanitized = codeFenceRe.ReplaceAllString(sanitized, "")
			sanitized = htmlTagRe.ReplaceAllString(sanitized, "")
			mods = append(mods, "stripped markup")
		}
	}
	sanitized = whitespaceRunRe.ReplaceAllString(sanitized, "\n\n\n")

	score, matched := scoreFamilies(sanitized)
	level := riskFromScore(score)

	result := domain.SanitizationResult{
		SanitizedText: sanitized,
		RiskLevel:     level,
		Modifications: mods,
	}

	if level >= g.opts.BlockThreshold {
		result.Blocked = true
		result.BlockReason = "input matched prompt injection patterns"
		g.logger.Warn("input blocked",
			"user_id", userID,
			"risk", level.String(),
			"families", strings.Join(matched, ","),
		)
	}
	return result
}

// truncateOnRune cuts s to at most max bytes without splitting a rune.
func truncateOnRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// scoreFamilies sums the weights of all matched families. Each family
// counts once no matter how many of its patterns match.
func scoreFamilies(text string) (score int, matched []string) {
	for _, fam := range injectionFamilies {
		for _, re := range fam.patterns {
			if re.MatchString(text) {
				score += fam.weight
				matched = append(matched, fam.name)
				break
			}
		}
	}
	return score, matched
}

// riskFromScore maps the aggregate family score to a risk level.
// The mapping is monotonic: more matched weight never lowers the level.
func riskFromScore(score int) domain.RiskLevel {
	switch {
	case score >= 6:
		return domain.RiskCritical
	case score >= 4:
		return domain.RiskHigh
	case score >= 2:
		return domain.RiskMedium
	case score >= 1:
		return domain.RiskLow
	default:
		return domain.RiskNone
	}
}
