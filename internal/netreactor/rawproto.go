package netreactor

import (
	"strings"

	"go1090/internal/modes"
)

const hexDigits = "0123456789ABCDEF"

// FormatRawLine renders a RawFrame as the raw-hex wire format:
// "*" + upper-case hex of the payload + ";\n".
func FormatRawLine(frame modes.RawFrame) string {
	n := frame.Bits / 8
	if n == 0 || n > len(frame.Payload) {
		n = len(frame.Payload)
	}
	var sb strings.Builder
	sb.Grow(n*2 + 3)
	sb.WriteByte('*')
	for i := 0; i < n; i++ {
		b := frame.Payload[i]
		sb.WriteByte(hexDigits[b>>4])
		sb.WriteByte(hexDigits[b&0x0F])
	}
	sb.WriteString(";\n")
	return sb.String()
}

// ParseRawLine parses one line of the raw-hex wire format back into a
// RawFrame. Leading '*'/':' markers and a trailing ';' are optional on
// input to tolerate the small format variations real feeder clients send;
// any line that doesn't decode to an even number of hex digits, or whose
// byte count doesn't match a known message length, is rejected.
func ParseRawLine(line string) (modes.RawFrame, bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, "*")
	s = strings.TrimPrefix(s, ":")
	s = strings.TrimSuffix(s, ";")

	if len(s)%2 != 0 || len(s) == 0 {
		return modes.RawFrame{}, false
	}

	var frame modes.RawFrame
	n := len(s) / 2
	if n > len(frame.Payload) {
		return modes.RawFrame{}, false
	}
	for i := 0; i < n; i++ {
		hi, ok1 := hexVal(s[2*i])
		lo, ok2 := hexVal(s[2*i+1])
		if !ok1 || !ok2 {
			return modes.RawFrame{}, false
		}
		frame.Payload[i] = hi<<4 | lo
	}
	frame.Bits = n * 8
	if frame.Bits != 56 && frame.Bits != 112 {
		return modes.RawFrame{}, false
	}
	return frame, true
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
