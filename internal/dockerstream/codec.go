// Package dockerstream decodes the multiplexed frame format Docker's
// container attach endpoint uses on its combined stdout/stderr stream:
// an 8-byte header (stream kind, 3 zero bytes, big-endian uint32 length)
// followed by exactly that many payload bytes, repeated back to back.
//
// Writes to stdin are never framed by the daemon, so this package only
// ever decodes.
package dockerstream

import (
	"encoding/binary"
	"unicode/utf8"
)

// Stream kind byte values per Docker's attach/stdcopy framing.
const (
	KindStdin  = 0
	KindStdout = 1
	KindStderr = 2

	headerLen = 8
)

// Decode consumes as many complete frames as buf holds and returns the
// concatenated stdout+stderr payloads decoded as UTF-8 (replacement chars
// for invalid sequences), plus any trailing bytes that do not yet form a
// complete frame — callers prepend that carry to the next read.
//
// If a frame's kind byte isn't a recognized stream kind, or the first frame
// in buf declares a length that would run past the end of buf, Decode falls
// back to treating the rest of buf as raw text. This tolerates daemons that
// skip framing entirely (for example when the container was started with a
// TTY attached). A frame that overruns buf after at least one complete frame
// has been decoded is a truncated trailing frame and is returned as carry.
func Decode(buf []byte) (text string, carry []byte) {
	var out []byte
	pos := 0
	for pos < len(buf) {
		if pos+headerLen > len(buf) {
			break
		}
		kind := buf[pos]
		if kind != KindStdin && kind != KindStdout && kind != KindStderr {
			return string(decodeUTF8(out)) + string(decodeUTF8(buf[pos:])), nil
		}
		length := binary.BigEndian.Uint32(buf[pos+4 : pos+8])
		end := pos + headerLen + int(length)
		if end > len(buf) || end < pos {
			if pos > 0 {
				// Truncated trailing frame — keep it as carry.
				break
			}
			// Declared payload would overrun the buffer — raw fallback.
			return string(decodeUTF8(out)) + string(decodeUTF8(buf[pos:])), nil
		}
		if kind == KindStdout || kind == KindStderr {
			out = append(out, buf[pos+headerLen:end]...)
		}
		pos = end
	}
	return string(decodeUTF8(out)), append([]byte(nil), buf[pos:]...)
}

// decodeUTF8 replaces invalid byte sequences with the Unicode replacement
// character, matching Python's errors="replace" decoding behavior.
func decodeUTF8(b []byte) []byte {
	if utf8.Valid(b) {
		return b
	}
	out := make([]byte, 0, len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			out = append(out, []byte(string(utf8.RuneError))...)
		} else {
			out = append(out, b[:size]...)
		}
		b = b[size:]
	}
	return out
}
