package contextwindow

import "strings"

// DefaultMaxTokens is the conservative budget for unknown provider/model
// pairs.
const DefaultMaxTokens = 4000

// modelBudgets holds the static per-provider/per-model maximum token
// budgets. Keys are "provider/model", lowercase.
var modelBudgets = map[string]int{
	"openai/gpt-4":                8192,
	"openai/gpt-4-turbo":          128000,
	"openai/gpt-4o":               128000,
	"openai/gpt-4o-mini":          128000,
	"openai/gpt-3.5-turbo":        16385,
	"anthropic/claude-3-opus":     200000,
	"anthropic/claude-3-sonnet":   200000,
	"anthropic/claude-3-haiku":    200000,
	"anthropic/claude-3-5-sonnet": 200000,
	"google/gemini-1.5-pro":       1048576,
	"google/gemini-1.5-flash":     1048576,
	"mistral/mistral-large":       128000,
	"ollama/llama3":               8192,
}

// BudgetFor returns the maximum token budget for a provider/model pair,
// falling back to DefaultMaxTokens when the pair is unknown.
func BudgetFor(provider, model string) int {
	key := strings.ToLower(provider) + "/" + strings.ToLower(model)
	if budget, ok := modelBudgets[key]; ok {
		return budget
	}
	return DefaultMaxTokens
}
