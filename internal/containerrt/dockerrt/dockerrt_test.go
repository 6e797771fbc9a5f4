package dockerrt

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
)

// TestHijackedStream_SetReadDeadline_EnforcesTimeout guards against the
// stream silently losing deadline support: without a SetReadDeadline
// method, worker.Channel's poll-read loop can never interrupt a blocked
// Read against a real attached container, and the 60s exchange timeout
// (spec §4.2, §5) would never fire in production.
func TestHijackedStream_SetReadDeadline_EnforcesTimeout(t *testing.T) {
	host, peer := net.Pipe()
	defer peer.Close()

	s := &hijackedStream{resp: types.HijackedResponse{Conn: host, Reader: bufio.NewReader(host)}}

	if err := s.SetReadDeadline(time.Now().Add(20 * time.Millisecond)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}

	start := time.Now()
	buf := make([]byte, 16)
	_, err := s.Read(buf)
	if err == nil {
		t.Fatal("expected a timeout error from Read once the deadline elapsed")
	}
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	if !ok || !te.Timeout() {
		t.Fatalf("expected a net timeout error, got %v (%T)", err, err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Read blocked far longer than the deadline: %v", elapsed)
	}
}
