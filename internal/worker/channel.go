// Package worker implements the duplex JSON-line request/response exchange
// with a single attached container stream (spec §4.2, Worker Channel).
// A Channel is bound to one session; its Exchange method is the only
// operation it offers, and it serializes every caller onto the session's
// mutex since the worker protocol carries no correlation id.
package worker

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ehrlich-b/gatekeeper/internal/containerrt"
	"github.com/ehrlich-b/gatekeeper/internal/dockerstream"
	"github.com/ehrlich-b/gatekeeper/internal/metrics"
)

// deadlineSetter is satisfied by real attached sockets (Docker's hijacked
// net.Conn, or net.Pipe in tests) but not required by containerrt.Stream
// itself, so fully synchronous fakes still compile.
type deadlineSetter interface {
	SetReadDeadline(t time.Time) error
}

// pollInterval is the sub-timeout each read poll uses so the overall
// exchange deadline is noticed promptly rather than after a single
// unbounded blocking read (spec §4.2 "Blocking discipline").
const pollInterval = 1 * time.Second

// Channel serializes exchanges against one attached container stream.
type Channel struct {
	stream containerrt.Stream
	mu     sync.Mutex
	// frameCarry holds raw bytes read from the stream that do not yet form
	// a complete docker-stream frame (spec §4.1 decode contract).
	frameCarry []byte
	// lineBuf holds decoded UTF-8 text not yet cut into a complete line
	// (spec §4.1 "Line extraction").
	lineBuf string
	timeout time.Duration
}

// New wraps an attached stream. timeout is the default per-exchange
// deadline (spec default 60s).
func New(stream containerrt.Stream, timeout time.Duration) *Channel {
	return &Channel{stream: stream, timeout: timeout}
}

// Exchange sends one command object as a JSON line and waits for one
// complete JSON-line response, holding the channel's lock for the entire
// round trip so at most one exchange is ever in flight on this stream.
//
// Exchange never returns a transport error to the caller: on timeout,
// EOF, or malformed JSON it synthesizes {"status":"error","message":...}
// exactly as the worker itself would report a failure, per spec §4.2.
func (c *Channel) Exchange(cmd any) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	defer func() { metrics.Default.RecordExchange(time.Since(start)) }()

	payload, err := json.Marshal(cmd)
	if err != nil {
		return errorResponse(fmt.Sprintf("encode command: %v", err))
	}
	payload = append(payload, '\n')

	if _, err := c.stream.Write(payload); err != nil {
		return errorResponse(fmt.Sprintf("write to worker: %v", err))
	}

	line, err := c.readLine()
	if err != nil {
		return errorResponse(err.Error())
	}

	line = extractJSONLine(line)
	var resp map[string]any
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return errorResponse(fmt.Sprintf("malformed response: %v", err))
	}
	return resp
}

// readLine reads from the stream, decoding frames and accumulating carry
// bytes, until a complete newline-terminated line is available or the
// channel's deadline elapses.
func (c *Channel) readLine() (string, error) {
	deadline := time.Now().Add(c.timeout)
	setter, hasDeadline := c.stream.(deadlineSetter)

	buf := make([]byte, 4096)
	for {
		if nl := strings.IndexByte(c.lineBuf, '\n'); nl >= 0 {
			line := c.lineBuf[:nl]
			c.lineBuf = c.lineBuf[nl+1:]
			return line, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("timeout waiting for worker response")
		}

		if hasDeadline {
			pollUntil := time.Now().Add(pollInterval)
			if pollUntil.After(deadline) {
				pollUntil = deadline
			}
			setter.SetReadDeadline(pollUntil)
		}

		n, err := c.stream.Read(buf)
		if n > 0 {
			text, carry := dockerstream.Decode(append(c.frameCarry, buf[:n]...))
			c.frameCarry = carry
			c.lineBuf += text
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return "", fmt.Errorf("worker stream closed: %w", err)
		}
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	t, ok := err.(timeout)
	return ok && t.Timeout()
}

// extractJSONLine finds the first JSON object in a line that may be
// prefixed by stray debug output from the worker, discarding the prefix.
// Mirrors the original implementation's tolerance for non-protocol prints.
func extractJSONLine(line string) string {
	line = strings.TrimSpace(line)
	if json.Valid([]byte(line)) {
		return line
	}
	if idx := strings.IndexByte(line, '{'); idx >= 0 {
		candidate := line[idx:]
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}
	return line
}

func errorResponse(msg string) map[string]any {
	return map[string]any{"status": "error", "message": msg}
}
