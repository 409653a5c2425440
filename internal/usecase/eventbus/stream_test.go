package eventbus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"go.uber.org/goleak"

	"teamforge/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestHub(buffer int) *Hub {
	return NewHub(buffer, slog.New(slog.DiscardHandler))
}

func TestPublishOrderPreserved(t *testing.T) {
	h := newTestHub(16)
	s := h.Session("s1")
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		s.StatusUpdate(ctx, domain.AgentStatusEvent{AgentName: "a", Progress: i * 10})
	}
	h.CloseSession("s1")

	var last = -1
	for ev := range s.Events() {
		if ev.Kind != KindStatus {
			t.Fatalf("kind = %q", ev.Kind)
		}
		if ev.Status.Progress <= last {
			t.Errorf("progress %d arrived after %d", ev.Status.Progress, last)
		}
		last = ev.Status.Progress
	}
	if last != 90 {
		t.Errorf("final progress = %d, want 90", last)
	}
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	h := newTestHub(2)
	s := h.Session("s1")
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			s.Communication(ctx, domain.AgentCommunication{Type: domain.CommAgent, Message: "m"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full buffer")
	}
	if s.Dropped() != 8 {
		t.Errorf("Dropped = %d, want 8 of 10 with buffer 2", s.Dropped())
	}
	h.CloseSession("s1")
	for range s.Events() {
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	h := newTestHub(4)
	a := h.Session("a")
	b := h.Session("b")
	ctx := context.Background()

	a.TokenUpdate(ctx, domain.TokenUpdate{Provider: "openai", Tokens: domain.Usage{TotalTokens: 5}})
	h.Close()

	if ev, ok := <-a.Events(); !ok || ev.Kind != KindToken {
		t.Errorf("session a: ev=%+v ok=%v", ev, ok)
	}
	if _, ok := <-b.Events(); ok {
		t.Error("session b should be empty and closed")
	}
}

func TestSessionReturnsSameStream(t *testing.T) {
	h := newTestHub(4)
	if h.Session("x") != h.Session("x") {
		t.Error("same session should share one stream")
	}
	h.Close()
}

func TestCloseSessionIdempotent(t *testing.T) {
	h := newTestHub(4)
	h.Session("s1")
	h.CloseSession("s1")
	h.CloseSession("s1")
	h.Close()
}

func TestEventKinds(t *testing.T) {
	h := newTestHub(8)
	s := h.Session("s1")
	ctx := context.Background()

	s.StatusUpdate(ctx, domain.AgentStatusEvent{AgentName: "a", Status: domain.AssignmentWorking})
	s.Communication(ctx, domain.AgentCommunication{From: "a", Type: domain.CommCompletion, Message: "done"})
	s.TokenUpdate(ctx, domain.TokenUpdate{Provider: "openai", Model: "gpt-4o", Cost: 0.02})
	h.CloseSession("s1")

	var kinds []EventKind
	for ev := range s.Events() {
		kinds = append(kinds, ev.Kind)
		if ev.Timestamp.IsZero() {
			t.Error("event timestamp should be set")
		}
	}
	want := []EventKind{KindStatus, KindCommunication, KindToken}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %q, want %q", i, kinds[i], want[i])
		}
	}
}
