// Package contextwindow maintains the bounded per-session message history
// sent to LLM providers: token accounting, summarization of old spans and
// sliding-window retrieval under a per-model budget.
package contextwindow

import (
	"log/slog"
	"sync"
	"time"

	"teamforge/internal/domain"
)

// Thresholds relative to a window's token budget.
const (
	summarizeAt       = 0.8 // Append triggers summarization above this
	summaryUseAt      = 0.7 // OptimizedContext prefers the summary above this
	slidingCapAt      = 0.9 // sliding window accumulation stops at this
	keepRatio         = 0.3 // newest share kept verbatim by summarization
	recentWithSummary = 10
)

// window is one session's bounded history. Mutations are serialized by mu
// so concurrent turns on the same session preserve the token accounting
// invariant; different sessions never contend.
type window struct {
	mu          sync.Mutex
	messages    []domain.ContextMessage
	summary     *domain.ContextSummary
	totalTokens int
	maxTokens   int
	provider    string
	model       string
}

// Stats is a read-only snapshot of one window.
type Stats struct {
	Messages    int    `json:"messages"`
	TotalTokens int    `json:"total_tokens"`
	MaxTokens   int    `json:"max_tokens"`
	HasSummary  bool   `json:"has_summary"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
}

// Manager owns the session map: one window per session, lifetime bound to
// the session. Construct one instance at process start and share it by
// reference.
type Manager struct {
	mu         sync.RWMutex
	sessions   map[string]*window
	counter    TokenCounter
	summarizer Summarizer
	logger     *slog.Logger
}

// NewManager creates a Manager. A nil counter defaults to the heuristic
// counter; a nil summarizer defaults to the extractive summarizer.
func NewManager(counter TokenCounter, summarizer Summarizer, logger *slog.Logger) *Manager {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	if summarizer == nil {
		summarizer = ExtractiveSummarizer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:   make(map[string]*window),
		counter:    counter,
		summarizer: summarizer,
		logger:     logger,
	}
}

func (m *Manager) getOrCreate(sessionID, provider, model string) *window {
	m.mu.RLock()
	w, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return w
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok = m.sessions[sessionID]; ok {
		return w
	}
	w = &window{
		maxTokens: BudgetFor(provider, model),
		provider:  provider,
		model:     model,
	}
	m.sessions[sessionID] = w
	return w
}

// Append adds a message to the session's window, creating the window on
// first use with the provider/model budget. The message is token-counted
// if it does not carry a count. When the window passes 80% of its budget,
// the oldest 70% of messages is folded into a single summary; summarization
// runs at most once per Append.
func (m *Manager) Append(sessionID, provider, model string, msg domain.ContextMessage) {
	w := m.getOrCreate(sessionID, provider, model)

	w.mu.Lock()
	defer w.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.TokenCount <= 0 {
		msg.TokenCount = m.counter.Count(msg.Content)
	}

	w.messages = append(w.messages, msg)
	w.totalTokens += msg.TokenCount

	if float64(w.totalTokens) > summarizeAt*float64(w.maxTokens) {
		m.summarizeLocked(sessionID, w)
	}
}

// summarizeLocked replaces the oldest 70% of held messages with one summary
// and recomputes totalTokens from the retained tail. The previous summary,
// if any, is folded into the new one so at most one summary is live. Caller
// holds w.mu.
func (m *Manager) summarizeLocked(sessionID string, w *window) {
	keep := int(float64(len(w.messages)) * keepRatio)
	if keep < 1 {
		keep = 1
	}
	evictCount := len(w.messages) - keep
	if evictCount < 1 {
		return
	}

	evicted := w.messages[:evictCount]
	summary := m.summarizer.Summarize(evicted, w.summary)
	w.summary = &summary

	tail := make([]domain.ContextMessage, keep)
	copy(tail, w.messages[evictCount:])
	w.messages = tail

	w.totalTokens = 0
	for _, msg := range w.messages {
		w.totalTokens += msg.TokenCount
	}

	m.logger.Debug("context window summarized",
		"session_id", sessionID,
		"evicted", evictCount,
		"kept", keep,
		"total_tokens", w.totalTokens,
	)
}

// OptimizedContext returns the message slice to send to the provider for
// this session. With a live summary and a window still over 70% of budget
// it returns the summary as a synthetic system message plus the last 10
// raw messages; under budget it returns the full history; otherwise it
// scans backward from the newest message, accumulating until 90% of the
// budget would be exceeded (older messages are dropped from the returned
// slice only, not from storage). Calling it twice without an intervening
// Append yields identical output.
func (m *Manager) OptimizedContext(sessionID, provider, model string) []domain.ContextMessage {
	m.mu.RLock()
	w, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.summary != nil && float64(w.totalTokens) > summaryUseAt*float64(w.maxTokens) {
		recent := w.messages
		if len(recent) > recentWithSummary {
			recent = recent[len(recent)-recentWithSummary:]
		}
		out := make([]domain.ContextMessage, 0, len(recent)+1)
		out = append(out, summaryMessage(w.summary))
		out = append(out, recent...)
		return out
	}

	if w.totalTokens <= w.maxTokens {
		out := make([]domain.ContextMessage, len(w.messages))
		copy(out, w.messages)
		return out
	}

	// Over budget without a usable summary: slide backward from the newest
	// message until the next one would push past 90% of the budget.
	cap90 := int(slidingCapAt * float64(w.maxTokens))
	total := 0
	start := len(w.messages)
	for i := len(w.messages) - 1; i >= 0; i-- {
		if total+w.messages[i].TokenCount > cap90 {
			break
		}
		total += w.messages[i].TokenCount
		start = i
	}
	out := make([]domain.ContextMessage, len(w.messages)-start)
	copy(out, w.messages[start:])
	return out
}

func summaryMessage(s *domain.ContextSummary) domain.ContextMessage {
	content := "Summary of earlier conversation:\n" + s.Summary
	if len(s.KeyPoints) > 0 {
		content += "\nKey points:"
		for _, kp := range s.KeyPoints {
			content += "\n- " + kp
		}
	}
	return domain.ContextMessage{
		Role:      domain.RoleSystem,
		Content:   content,
		Timestamp: s.Timestamp,
	}
}

// Clear removes the session's window entirely.
func (m *Manager) Clear(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// SessionStats returns a snapshot of one window.
func (m *Manager) SessionStats(sessionID string) (Stats, error) {
	m.mu.RLock()
	w, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Stats{}, domain.NewDomainError("Manager.SessionStats", domain.ErrSessionNotFound, sessionID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Messages:    len(w.messages),
		TotalTokens: w.totalTokens,
		MaxTokens:   w.maxTokens,
		HasSummary:  w.summary != nil,
		Provider:    w.provider,
		Model:       w.model,
	}, nil
}

// Sessions returns the IDs of all live windows.
func (m *Manager) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}
