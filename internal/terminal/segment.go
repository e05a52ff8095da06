package terminal

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Chiody/openbbox/internal/exchange"
)

// DefaultMinResponseChars is the cleaned response length a reply must exceed to be recorded.
const DefaultMinResponseChars = 20

// Segmenter splits a relayed session into prompt/response exchanges.
//
// Each line terminator typed by the user is a boundary: the child output since
// the previous boundary closes the pending exchange, and the text typed since
// the previous boundary becomes the next pending prompt. Segmenter only looks
// at copies of the stream; it never alters what is relayed.
type Segmenter struct {
	minChars int
	now      func() time.Time
	emit     func(exchange.RawExchange)
	// OnPrompt, if set, is told when a prompt opens and, with a zero time, when none is open.
	OnPrompt func(time.Time)

	typed    []byte
	output   []byte
	prompt   string
	promptAt time.Time
	lastCR   bool
}

// NewSegmenter returns a Segmenter calling emit for every significant exchange.
func NewSegmenter(minChars int, emit func(exchange.RawExchange)) *Segmenter {
	if minChars <= 0 {
		minChars = DefaultMinResponseChars
	}
	return &Segmenter{minChars: minChars, now: time.Now, emit: emit}
}

// Input records bytes typed by the user.
func (s *Segmenter) Input(p []byte) {
	for _, b := range p {
		switch b {
		case '\r':
			s.lastCR = true
			s.boundary()
			continue
		case '\n':
			if !s.lastCR {
				s.boundary()
			}
		case 0x7f, 0x08:
			s.typed = dropLastRune(s.typed)
		case 0x15: // ^U kills the line
			s.typed = s.typed[:0]
		default:
			s.typed = append(s.typed, b)
		}
		s.lastCR = false
	}
}

// Output records bytes produced by the child.
func (s *Segmenter) Output(p []byte) {
	s.output = append(s.output, p...)
}

// Close flushes a still-pending prompt and response under the usual significance rule.
func (s *Segmenter) Close() {
	s.closePending("")
	s.prompt = ""
	s.output = s.output[:0]
	s.typed = s.typed[:0]
	if s.OnPrompt != nil {
		s.OnPrompt(time.Time{})
	}
}

func (s *Segmenter) boundary() {
	next := strings.TrimSpace(Clean(s.typed))
	s.closePending(next)
	s.prompt = next
	s.promptAt = s.now()
	s.typed = s.typed[:0]
	s.output = s.output[:0]
	if s.OnPrompt != nil {
		if next == "" {
			s.OnPrompt(time.Time{})
		} else {
			s.OnPrompt(s.promptAt)
		}
	}
}

// closePending emits the pending exchange. echo is the line just submitted,
// which the child's terminal has already echoed back at the tail of output.
func (s *Segmenter) closePending(echo string) {
	if s.prompt == "" {
		return
	}
	response := strings.TrimSpace(Clean(s.output))
	// Pasted lines are echoed after the boundary, at the head of the reply.
	response = strings.TrimSpace(strings.TrimPrefix(response, s.prompt))
	if echo != "" {
		response = strings.TrimSpace(strings.TrimSuffix(response, echo))
	}
	if utf8.RuneCountInString(response) <= s.minChars {
		return
	}
	if s.emit != nil {
		s.emit(exchange.RawExchange{Timestamp: s.promptAt, Prompt: s.prompt, Response: response})
	}
}

func dropLastRune(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	_, size := utf8.DecodeLastRune(b)
	return b[:len(b)-size]
}
