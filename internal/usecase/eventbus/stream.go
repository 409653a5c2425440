// Package eventbus carries orchestration events from the orchestrator to
// the host over typed per-session channels. The orchestrator publishes,
// the host drains; publishing never blocks.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"teamforge/internal/domain"
)

// EventKind discriminates the Event union.
type EventKind string

const (
	KindStatus        EventKind = "status"
	KindCommunication EventKind = "communication"
	KindToken         EventKind = "token"
)

// Event is one entry in a session's ordered event stream. Exactly one of
// Status, Comm and Token is set, per Kind.
type Event struct {
	Kind      EventKind                  `json:"kind"`
	Status    *domain.AgentStatusEvent   `json:"status,omitempty"`
	Comm      *domain.AgentCommunication `json:"communication,omitempty"`
	Token     *domain.TokenUpdate        `json:"token,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`
}

// Stream is one session's bounded event queue. It implements
// domain.EventSink; events are delivered in publish order. When the host
// stops draining and the buffer fills, new events are dropped with a
// warning rather than blocking the orchestrator.
type Stream struct {
	sessionID string
	ch        chan Event
	logger    *slog.Logger
	dropped   atomic.Uint64
	closeOnce sync.Once
}

func newStream(sessionID string, buffer int, logger *slog.Logger) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	return &Stream{
		sessionID: sessionID,
		ch:        make(chan Event, buffer),
		logger:    logger,
	}
}

// Events is the host's end of the queue. It is closed by Hub.CloseSession.
func (s *Stream) Events() <-chan Event { return s.ch }

// Dropped reports how many events were discarded on a full buffer.
func (s *Stream) Dropped() uint64 { return s.dropped.Load() }

func (s *Stream) publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
		s.logger.Warn("event dropped, stream buffer full",
			"session_id", s.sessionID,
			"kind", string(ev.Kind),
			"dropped_total", s.dropped.Load(),
		)
	}
}

// StatusUpdate implements domain.EventSink.
func (s *Stream) StatusUpdate(_ context.Context, ev domain.AgentStatusEvent) {
	s.publish(Event{Kind: KindStatus, Status: &ev, Timestamp: ev.Timestamp})
}

// Communication implements domain.EventSink.
func (s *Stream) Communication(_ context.Context, comm domain.AgentCommunication) {
	s.publish(Event{Kind: KindCommunication, Comm: &comm, Timestamp: comm.Timestamp})
}

// TokenUpdate implements domain.EventSink.
func (s *Stream) TokenUpdate(_ context.Context, update domain.TokenUpdate) {
	s.publish(Event{Kind: KindToken, Token: &update})
}

func (s *Stream) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Hub owns the per-session streams. One Hub per process; sessions are
// independent and never share a queue.
type Hub struct {
	mu      sync.Mutex
	streams map[string]*Stream
	buffer  int
	logger  *slog.Logger
}

// NewHub creates a Hub whose streams buffer up to buffer events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		streams: make(map[string]*Stream),
		buffer:  buffer,
		logger:  logger,
	}
}

// Session returns the session's stream, creating it on first use. The
// orchestrator passes the result as its EventSink; the host ranges over
// Events().
func (h *Hub) Session(sessionID string) *Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[sessionID]
	if !ok {
		s = newStream(sessionID, h.buffer, h.logger)
		h.streams[sessionID] = s
	}
	return s
}

// CloseSession closes the session's stream so host drains terminate. The
// caller must stop publishing to the session first.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	s, ok := h.streams[sessionID]
	delete(h.streams, sessionID)
	h.mu.Unlock()
	if ok {
		s.close()
	}
}

// Close closes every live stream.
func (h *Hub) Close() {
	h.mu.Lock()
	streams := make([]*Stream, 0, len(h.streams))
	for _, s := range h.streams {
		streams = append(streams, s)
	}
	h.streams = make(map[string]*Stream)
	h.mu.Unlock()
	for _, s := range streams {
		s.close()
	}
}
