package contextwindow

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"teamforge/internal/domain"
)

// charCounter makes token math exact in tests: one token per byte.
type charCounter struct{}

func (charCounter) Count(text string) int { return len(text) }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(charCounter{}, ExtractiveSummarizer{}, slog.New(slog.DiscardHandler))
}

func appendN(m *Manager, session string, n, size int) {
	for i := 0; i < n; i++ {
		m.Append(session, "ollama", "llama3", domain.ContextMessage{
			Role:    domain.RoleUser,
			Content: strings.Repeat("x", size-1) + fmt.Sprintf("%01d", i%10),
		})
	}
}

func TestAppendCountsTokens(t *testing.T) {
	m := newTestManager(t)
	m.Append("s1", "ollama", "llama3", domain.ContextMessage{Role: domain.RoleUser, Content: "hello"})

	st, err := m.SessionStats("s1")
	if err != nil {
		t.Fatalf("SessionStats: %v", err)
	}
	if st.TotalTokens != 5 {
		t.Errorf("TotalTokens = %d, want 5", st.TotalTokens)
	}
	if st.Messages != 1 {
		t.Errorf("Messages = %d, want 1", st.Messages)
	}
}

func TestAppendKeepsExplicitCount(t *testing.T) {
	m := newTestManager(t)
	m.Append("s1", "ollama", "llama3", domain.ContextMessage{
		Role: domain.RoleUser, Content: "hello", TokenCount: 42,
	})

	st, _ := m.SessionStats("s1")
	if st.TotalTokens != 42 {
		t.Errorf("TotalTokens = %d, want explicit 42", st.TotalTokens)
	}
}

func TestTotalTokensMatchesHeldMessages(t *testing.T) {
	m := newTestManager(t)
	// Enough volume to cross the summarization threshold several times.
	appendN(m, "s1", 200, 100)

	st, err := m.SessionStats("s1")
	if err != nil {
		t.Fatalf("SessionStats: %v", err)
	}

	m.mu.RLock()
	w := m.sessions["s1"]
	m.mu.RUnlock()
	w.mu.Lock()
	sum := 0
	for _, msg := range w.messages {
		sum += msg.TokenCount
	}
	w.mu.Unlock()

	if st.TotalTokens != sum {
		t.Errorf("TotalTokens = %d, sum of held messages = %d", st.TotalTokens, sum)
	}
}

func TestSummarizationEvictsOldest(t *testing.T) {
	m := newTestManager(t)
	// Budget for ollama/llama3 is BudgetFor("ollama", "llama3"); fill past 80%.
	budget := BudgetFor("ollama", "llama3")
	size := budget / 10
	appendN(m, "s1", 9, size) // 90% of budget crosses the 80% trigger

	st, _ := m.SessionStats("s1")
	if !st.HasSummary {
		t.Fatal("expected a summary after crossing 80% of the budget")
	}
	if st.Messages >= 9 {
		t.Errorf("Messages = %d, expected oldest span evicted", st.Messages)
	}
	if float64(st.TotalTokens) > 0.8*float64(budget) {
		t.Errorf("TotalTokens = %d, expected below trigger after summarization", st.TotalTokens)
	}
}

func TestSingleLiveSummary(t *testing.T) {
	m := newTestManager(t)
	budget := BudgetFor("ollama", "llama3")
	// Cross the trigger repeatedly; each pass must fold into one summary.
	appendN(m, "s1", 50, budget/10)

	m.mu.RLock()
	w := m.sessions["s1"]
	m.mu.RUnlock()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.summary == nil {
		t.Fatal("expected a live summary")
	}
	if w.summary.MessageCount == 0 {
		t.Error("summary should carry a message count")
	}
}

func TestOptimizedContextIdempotent(t *testing.T) {
	m := newTestManager(t)
	appendN(m, "s1", 30, 200)

	first := m.OptimizedContext("s1", "ollama", "llama3")
	second := m.OptimizedContext("s1", "ollama", "llama3")

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Content != second[i].Content || first[i].Role != second[i].Role {
			t.Errorf("message %d differs between calls", i)
		}
	}
}

func TestOptimizedContextUnderBudgetReturnsAll(t *testing.T) {
	m := newTestManager(t)
	appendN(m, "s1", 3, 50)

	out := m.OptimizedContext("s1", "ollama", "llama3")
	if len(out) != 3 {
		t.Errorf("len = %d, want all 3 messages", len(out))
	}
}

func TestOptimizedContextUsesSummary(t *testing.T) {
	m := newTestManager(t)
	budget := BudgetFor("ollama", "llama3")
	appendN(m, "s1", 9, budget/10)
	// Push back over 70% after the summarization pass.
	for {
		st, _ := m.SessionStats("s1")
		if float64(st.TotalTokens) > 0.7*float64(budget) {
			break
		}
		m.Append("s1", "ollama", "llama3", domain.ContextMessage{
			Role: domain.RoleUser, Content: strings.Repeat("y", budget/20),
		})
	}

	out := m.OptimizedContext("s1", "ollama", "llama3")
	if len(out) == 0 {
		t.Fatal("empty optimized context")
	}
	if out[0].Role != domain.RoleSystem {
		t.Errorf("first message role = %q, want synthetic system summary", out[0].Role)
	}
	if !strings.Contains(out[0].Content, "Summary of earlier conversation") {
		t.Error("first message should carry the summary text")
	}
	if len(out) > recentWithSummary+1 {
		t.Errorf("len = %d, want at most summary + %d recent", len(out), recentWithSummary)
	}
}

func TestOptimizedContextSlidingWindowWithoutSummary(t *testing.T) {
	m := newTestManager(t)
	budget := BudgetFor("ollama", "llama3")
	// One oversized message cannot be split, so no summarization happens
	// and the window sits over budget with no summary.
	m.Append("s1", "ollama", "llama3", domain.ContextMessage{
		Role: domain.RoleUser, Content: strings.Repeat("z", budget*2),
	})

	out := m.OptimizedContext("s1", "ollama", "llama3")
	if len(out) != 0 {
		t.Errorf("len = %d, want 0: the single message exceeds 90%% of the budget", len(out))
	}
}

func TestOptimizedUnknownSession(t *testing.T) {
	m := newTestManager(t)
	if out := m.OptimizedContext("nope", "ollama", "llama3"); out != nil {
		t.Errorf("expected nil for unknown session, got %d messages", len(out))
	}
}

func TestClearRemovesWindow(t *testing.T) {
	m := newTestManager(t)
	m.Append("s1", "ollama", "llama3", domain.ContextMessage{Role: domain.RoleUser, Content: "hi"})
	m.Clear("s1")

	_, err := m.SessionStats("s1")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionsListsLiveWindows(t *testing.T) {
	m := newTestManager(t)
	m.Append("a", "ollama", "llama3", domain.ContextMessage{Role: domain.RoleUser, Content: "1"})
	m.Append("b", "ollama", "llama3", domain.ContextMessage{Role: domain.RoleUser, Content: "2"})

	ids := m.Sessions()
	if len(ids) != 2 {
		t.Errorf("Sessions = %v, want two entries", ids)
	}
}

func TestBudgetFor(t *testing.T) {
	tests := []struct {
		provider, model string
		wantDefault     bool
	}{
		{"openai", "gpt-4o", false},
		{"unknown", "nonexistent", true},
	}
	for _, tt := range tests {
		got := BudgetFor(tt.provider, tt.model)
		if tt.wantDefault && got != DefaultMaxTokens {
			t.Errorf("BudgetFor(%s/%s) = %d, want default %d", tt.provider, tt.model, got, DefaultMaxTokens)
		}
		if !tt.wantDefault && got == 0 {
			t.Errorf("BudgetFor(%s/%s) = 0", tt.provider, tt.model)
		}
	}
}

func TestLeadSentenceKeepsRunesIntact(t *testing.T) {
	// A long run of multi-byte runes with no sentence break forces the cap.
	got := leadSentence(strings.Repeat("ü", 150))
	if !utf8.ValidString(got) {
		t.Fatalf("cap split a rune: %q", got)
	}
	if len(got) > 200 {
		t.Errorf("len = %d, want at most 200 bytes", len(got))
	}
}

func TestHeuristicCounter(t *testing.T) {
	c := HeuristicCounter{}
	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
	short := c.Count("hello world")
	long := c.Count(strings.Repeat("hello world ", 50))
	if long <= short {
		t.Errorf("longer text should count more tokens: %d vs %d", long, short)
	}
}
