package llm

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"teamforge/internal/domain"
)

// Provider deltas can carry whole tool-call argument objects on one line,
// so the scanner needs far more room than bufio's 64K default.
const sseMaxLine = 1 << 20

var sseDone = []byte("[DONE]")

// parseSSEStream reads SSE-formatted lines from body and converts each data
// payload into a StreamDelta using the provider-specific parseData function.
// The returned channel is closed when the stream ends, the body is closed,
// or ctx is cancelled.
func parseSSEStream(ctx context.Context, body io.ReadCloser, parseData func(data []byte) (*domain.StreamDelta, error)) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64*1024), sseMaxLine)

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			data, ok := ssePayload(scanner.Bytes())
			if !ok {
				continue
			}
			if bytes.Equal(data, sseDone) {
				ch <- domain.StreamDelta{Done: true}
				return
			}

			delta, err := parseData(data)
			if err != nil || delta == nil {
				// Skip unparseable lines.
				continue
			}

			select {
			case ch <- *delta:
			case <-ctx.Done():
				return
			}
			if delta.Done {
				return
			}
		}
		// A non-EOF scanner error means the stream died mid-flight; tell
		// consumers it terminated.
		if err := scanner.Err(); err != nil {
			select {
			case ch <- domain.StreamDelta{Done: true}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}

// ssePayload extracts the data field from one SSE line. Blank lines,
// comments and the other field names (event, id, retry) carry no payload.
// The space after the colon is optional per the SSE grammar.
func ssePayload(line []byte) ([]byte, bool) {
	if len(line) == 0 || line[0] == ':' {
		return nil, false
	}
	rest, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return nil, false
	}
	return bytes.TrimPrefix(rest, []byte(" ")), true
}
