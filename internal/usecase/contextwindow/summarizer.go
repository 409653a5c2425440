package contextwindow

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"teamforge/internal/domain"
)

// Summarizer condenses an evicted span of messages into one ContextSummary.
// Implementations must be CPU-bound: summarization runs inline during
// Append and must not block on I/O.
type Summarizer interface {
	Summarize(msgs []domain.ContextMessage, prev *domain.ContextSummary) domain.ContextSummary
}

// ExtractiveSummarizer builds summaries without an LLM: it keeps the lead
// sentence of each turn and harvests decision-like sentences as key points.
// A previous summary's key points are folded forward so the window never
// holds two live summaries.
type ExtractiveSummarizer struct {
	MaxKeyPoints int // default 12
}

var (
	sentenceEndRe = regexp.MustCompile(`[.!?]\s`)
	keyPointRe    = regexp.MustCompile(`(?i)\b(?:decided|agreed|must|should|will|requirement|deadline|todo|blocked|action item)\b`)
)

func (s ExtractiveSummarizer) Summarize(msgs []domain.ContextMessage, prev *domain.ContextSummary) domain.ContextSummary {
	maxPoints := s.MaxKeyPoints
	if maxPoints <= 0 {
		maxPoints = 12
	}

	var keyPoints []string
	if prev != nil {
		keyPoints = append(keyPoints, prev.KeyPoints...)
	}

	var lines []string
	for _, msg := range msgs {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, leadSentence(content)))

		for _, sentence := range splitSentences(content) {
			if keyPointRe.MatchString(sentence) {
				keyPoints = append(keyPoints, strings.TrimSpace(sentence))
			}
		}
	}

	keyPoints = dedupe(keyPoints)
	if len(keyPoints) > maxPoints {
		keyPoints = keyPoints[len(keyPoints)-maxPoints:]
	}

	summaryText := strings.Join(lines, "\n")
	if prev != nil && prev.Summary != "" {
		summaryText = prev.Summary + "\n" + summaryText
	}

	count := len(msgs)
	if prev != nil {
		count += prev.MessageCount
	}

	return domain.ContextSummary{
		Summary:      summaryText,
		KeyPoints:    keyPoints,
		Timestamp:    time.Now(),
		MessageCount: count,
	}
}

// leadSentence returns the first sentence of content, capped at 200 bytes.
// The cap never splits a multi-byte rune.
func leadSentence(content string) string {
	if loc := sentenceEndRe.FindStringIndex(content); loc != nil {
		content = content[:loc[0]+1]
	}
	if len(content) > 200 {
		cut := 200
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	return content
}

func splitSentences(content string) []string {
	return sentenceEndRe.Split(content, -1)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
