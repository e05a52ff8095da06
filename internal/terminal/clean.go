package terminal

import (
	"regexp"
	"strings"
)

var (
	// CSI: cursor movement, colours, erase, private modes.
	csiSeq = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)
	// OSC: window titles, hyperlinks; terminated by BEL or ST.
	oscSeq = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)
	// Charset selection and single-character escapes (keypad modes, save/restore cursor).
	shortSeq = regexp.MustCompile(`\x1b[()*+][0-9A-Za-z]|\x1b[=>78DEHMNOPZc\\]`)
)

// Clean removes terminal control sequences and stray control characters from
// captured text. A backspace erases the rune before it on the same line, the
// way a terminal renders an echoed "x\b \b". Invalid UTF-8 is replaced rather
// than rejected.
func Clean(raw []byte) string {
	s := strings.ToValidUTF8(string(raw), "�")
	s = oscSeq.ReplaceAllString(s, "")
	s = csiSeq.ReplaceAllString(s, "")
	s = shortSeq.ReplaceAllString(s, "")
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r == '\b':
			if n := len(out); n > 0 && out[n-1] != '\n' {
				out = out[:n-1]
			}
		case r == '\n' || r == '\t':
			out = append(out, r)
		case r < 0x20 || r == 0x7f:
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
