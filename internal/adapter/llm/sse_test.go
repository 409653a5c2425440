package llm

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"teamforge/internal/domain"
)

func collectDeltas(ch <-chan domain.StreamDelta) []domain.StreamDelta {
	var out []domain.StreamDelta
	for d := range ch {
		out = append(out, d)
	}
	return out
}

func textParser(data []byte) (*domain.StreamDelta, error) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &domain.StreamDelta{Content: payload.Text}, nil
}

func TestParseSSEStreamDeliversDeltasAndDone(t *testing.T) {
	raw := "data: {\"text\":\"hello\"}\n\ndata: {\"text\":\"world\"}\n\ndata: [DONE]\n\n"
	ch := parseSSEStream(context.Background(), io.NopCloser(strings.NewReader(raw)), textParser)

	deltas := collectDeltas(ch)
	if len(deltas) != 3 {
		t.Fatalf("got %d deltas, want 2 content + done", len(deltas))
	}
	if deltas[0].Content != "hello" || deltas[1].Content != "world" {
		t.Errorf("contents = %q, %q", deltas[0].Content, deltas[1].Content)
	}
	if !deltas[2].Done {
		t.Error("final delta should carry Done")
	}
}

func TestParseSSEStreamIgnoresOtherFields(t *testing.T) {
	raw := ": keepalive\nevent: message\nid: 7\nretry: 100\ndata: {\"text\":\"ok\"}\n\n"
	ch := parseSSEStream(context.Background(), io.NopCloser(strings.NewReader(raw)), textParser)

	deltas := collectDeltas(ch)
	if len(deltas) != 1 || deltas[0].Content != "ok" {
		t.Fatalf("deltas = %v, want the single data payload", deltas)
	}
}

func TestParseSSEStreamNoSpaceAfterColon(t *testing.T) {
	raw := "data:{\"text\":\"tight\"}\n\ndata:[DONE]\n\n"
	ch := parseSSEStream(context.Background(), io.NopCloser(strings.NewReader(raw)), textParser)

	deltas := collectDeltas(ch)
	if len(deltas) != 2 || deltas[0].Content != "tight" || !deltas[1].Done {
		t.Fatalf("deltas = %v, want payload + done without the optional space", deltas)
	}
}

func TestParseSSEStreamLongLine(t *testing.T) {
	// Larger than bufio's 64K default token size.
	big := strings.Repeat("a", 200*1024)
	raw := "data: {\"text\":\"" + big + "\"}\n\ndata: [DONE]\n\n"
	ch := parseSSEStream(context.Background(), io.NopCloser(strings.NewReader(raw)), textParser)

	deltas := collectDeltas(ch)
	if len(deltas) != 2 {
		t.Fatalf("got %d deltas, want oversized payload + done", len(deltas))
	}
	if len(deltas[0].Content) != len(big) {
		t.Errorf("content length = %d, want %d", len(deltas[0].Content), len(big))
	}
}

func TestParseSSEStreamSkipsUnparseable(t *testing.T) {
	raw := "data: not json\ndata: {\"text\":\"good\"}\n\n"
	ch := parseSSEStream(context.Background(), io.NopCloser(strings.NewReader(raw)), textParser)

	deltas := collectDeltas(ch)
	if len(deltas) != 1 || deltas[0].Content != "good" {
		t.Fatalf("deltas = %v, want only the parseable payload", deltas)
	}
}

func TestParseSSEStreamContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		for i := 0; i < 100; i++ {
			if _, err := pw.Write([]byte("data: {\"text\":\"x\"}\n\n")); err != nil {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	deltas := collectDeltas(parseSSEStream(ctx, pr, textParser))
	if len(deltas) >= 100 {
		t.Fatalf("got %d deltas, cancellation should stop the stream early", len(deltas))
	}
}
