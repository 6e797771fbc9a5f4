package dockerstream

import (
	"encoding/binary"
	"testing"
)

func frame(kind byte, payload []byte) []byte {
	hdr := make([]byte, headerLen)
	hdr[0] = kind
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	return append(hdr, payload...)
}

func TestDecode_RoundTrip(t *testing.T) {
	a := []byte("hello ")
	b := []byte("world\n")
	buf := append(frame(KindStdout, a), frame(KindStderr, b)...)

	text, carry := Decode(buf)
	if text != "hello world\n" {
		t.Fatalf("got %q", text)
	}
	if len(carry) != 0 {
		t.Fatalf("expected empty carry, got %d bytes", len(carry))
	}
}

func TestDecode_TruncatedTrailingFrame(t *testing.T) {
	complete := frame(KindStdout, []byte("ok"))
	hdr := make([]byte, headerLen)
	hdr[0] = KindStdout
	binary.BigEndian.PutUint32(hdr[4:8], 10) // declares 10 bytes, supplies none
	buf := append(complete, hdr...)

	text, carry := Decode(buf)
	if text != "ok" {
		t.Fatalf("got %q", text)
	}
	if len(carry) != headerLen {
		t.Fatalf("expected carry to retain the partial header, got %d bytes", len(carry))
	}
}

func TestDecode_StdinFramesDropped(t *testing.T) {
	buf := append(frame(KindStdin, []byte("ignored")), frame(KindStdout, []byte("kept"))...)
	text, _ := Decode(buf)
	if text != "kept" {
		t.Fatalf("got %q", text)
	}
}

// Scenario 5 from the spec: a read that lands mid-header (three bytes,
// 01 00 00 — the kind byte plus two of the three reserved zero bytes of a
// real frame's header), followed by a read that completes that header, its
// payload, and a second complete frame's header + payload. Output must
// equal the concatenation of the two payloads with no header bytes leaking
// into the text, and the carry from the split read must not itself appear
// in the decoded text.
func TestDecode_FramingResilienceScenario(t *testing.T) {
	full := append(frame(KindStdout, []byte("hello")), frame(KindStdout, []byte("world"))...)

	lead := full[:3]
	if lead[0] != 0x01 || lead[1] != 0x00 || lead[2] != 0x00 {
		t.Fatalf("test setup: expected lead bytes 01 00 00, got % x", lead)
	}
	rest := full[3:]

	text1, carry1 := Decode(lead)
	if text1 != "" {
		t.Fatalf("a 3-byte partial header must decode nothing yet, got %q", text1)
	}
	if len(carry1) != 3 {
		t.Fatalf("expected the partial header held entirely in carry, got %d bytes", len(carry1))
	}

	text2, carry2 := Decode(append(append([]byte(nil), carry1...), rest...))
	if text2 != "helloworld" {
		t.Fatalf("expected the concatenation of both payloads with no header bytes, got %q", text2)
	}
	if len(carry2) != 0 {
		t.Fatalf("expected no carry once both frames are complete, got %d bytes", len(carry2))
	}
}

func TestDecode_RawFallbackOnUnknownKind(t *testing.T) {
	buf := append([]byte{0x09, 0, 0, 0, 0, 0, 0, 4}, []byte("text")...)
	text, carry := Decode(buf)
	if text == "" {
		t.Fatalf("expected raw fallback text")
	}
	if len(carry) != 0 {
		t.Fatalf("raw fallback should consume entire buffer into text, got carry=%d", len(carry))
	}
}

func TestDecode_OverrunLengthFallsBack(t *testing.T) {
	hdr := make([]byte, headerLen)
	hdr[0] = KindStdout
	binary.BigEndian.PutUint32(hdr[4:8], 1<<20) // declares far more than is present
	buf := append(hdr, []byte("short")...)

	text, carry := Decode(buf)
	if text == "" {
		t.Fatalf("expected fallback text for overrun length")
	}
	if len(carry) != 0 {
		t.Fatalf("expected fallback to consume rest of buffer, got carry=%d", len(carry))
	}
}

func TestDecode_EmptyInput(t *testing.T) {
	text, carry := Decode(nil)
	if text != "" || carry != nil {
		t.Fatalf("expected empty output for empty input, got %q / %v", text, carry)
	}
}
