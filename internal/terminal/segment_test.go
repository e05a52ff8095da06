package terminal

import (
	"strings"
	"testing"
	"time"

	"github.com/Chiody/openbbox/internal/exchange"
)

func newTestSegmenter(t *testing.T) (*Segmenter, *[]exchange.RawExchange) {
	t.Helper()
	var got []exchange.RawExchange
	s := NewSegmenter(DefaultMinResponseChars, func(r exchange.RawExchange) { got = append(got, r) })
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s, &got
}

func TestSegmenterSignificanceThreshold(t *testing.T) {
	s, got := newTestSegmenter(t)
	s.Input([]byte("first prompt\r"))
	s.Output([]byte(strings.Repeat("a", 15)))
	s.Input([]byte("second prompt\r"))
	if len(*got) != 0 {
		t.Fatalf("15 characters should not emit, got %+v", *got)
	}
	s.Output([]byte(strings.Repeat("b", 25)))
	s.Input([]byte("third\r"))
	if len(*got) != 1 {
		t.Fatalf("25 characters should emit once, got %d", len(*got))
	}
	ex := (*got)[0]
	if ex.Prompt != "second prompt" || ex.Response != strings.Repeat("b", 25) {
		t.Fatalf("unexpected exchange: %+v", ex)
	}
	// The second boundary is the second clock reading.
	if want := time.Date(2026, 1, 2, 3, 4, 7, 0, time.UTC); !ex.Timestamp.Equal(want) {
		t.Fatalf("timestamp %v want %v", ex.Timestamp, want)
	}
}

func TestSegmenterIgnoresControlSequencesForLength(t *testing.T) {
	s, got := newTestSegmenter(t)
	s.Input([]byte("go\r"))
	s.Output([]byte("\x1b[32m\x1b]0;a very long window title here\x07\x1b[2Kshort\x1b[0m\x1b[10;1H"))
	s.Close()
	if len(*got) != 0 {
		t.Fatalf("control sequences should not count, got %+v", *got)
	}
}

func TestSegmenterFlushesOnClose(t *testing.T) {
	s, got := newTestSegmenter(t)
	s.Input([]byte("explain the code\r\n"))
	s.Output([]byte("\r\nThis function parses the config file.\r\n"))
	s.Close()
	if len(*got) != 1 {
		t.Fatalf("expected one exchange on close, got %d", len(*got))
	}
	if (*got)[0].Response != "This function parses the config file." {
		t.Fatalf("response -> %q", (*got)[0].Response)
	}
	s.Close()
	if len(*got) != 1 {
		t.Fatalf("second close must not re-emit")
	}
}

func TestSegmenterLineEditing(t *testing.T) {
	s, got := newTestSegmenter(t)
	s.Input([]byte("helx\x7flo wö\x7f\x7fworld"))
	s.Input([]byte("\r"))
	s.Output([]byte(strings.Repeat("z", 30)))
	s.Close()
	if len(*got) != 1 || (*got)[0].Prompt != "hello world" {
		t.Fatalf("unexpected prompt: %+v", *got)
	}
}

func TestSegmenterKillLine(t *testing.T) {
	s, got := newTestSegmenter(t)
	s.Input([]byte("discard me\x15keep me\r"))
	s.Output([]byte(strings.Repeat("z", 30)))
	s.Close()
	if len(*got) != 1 || (*got)[0].Prompt != "keep me" {
		t.Fatalf("unexpected prompt: %+v", *got)
	}
}

func TestSegmenterTrimsEcho(t *testing.T) {
	s, got := newTestSegmenter(t)
	s.Input([]byte("first\r"))
	s.Output([]byte("\r\nthe answer to the first question\r\n> second"))
	s.Input([]byte("second\r"))
	if len(*got) != 1 {
		t.Fatalf("expected one exchange, got %d", len(*got))
	}
	if (*got)[0].Response != "the answer to the first question\n>" {
		t.Fatalf("echo not trimmed: %q", (*got)[0].Response)
	}
}

func TestSegmenterNoPromptNoEmit(t *testing.T) {
	s, got := newTestSegmenter(t)
	s.Output([]byte(strings.Repeat("banner ", 10)))
	s.Input([]byte("\r"))
	s.Output([]byte(strings.Repeat("reply ", 10)))
	s.Close()
	if len(*got) != 0 {
		t.Fatalf("exchanges without a prompt must not emit: %+v", *got)
	}
}

func TestCleanReplacesInvalidUTF8(t *testing.T) {
	got := Clean([]byte{'o', 'k', 0xff, '\x1b', '[', '1', 'm', '!'})
	if got != "ok�!" {
		t.Fatalf("Clean -> %q", got)
	}
}

func TestSegmenterTrimsEditedEcho(t *testing.T) {
	s, got := newTestSegmenter(t)
	s.Input([]byte("first\r"))
	s.Output([]byte("\r\nthe answer to the first question\r\n> secx\b \bond"))
	s.Input([]byte("secx\x7fond\r"))
	if len(*got) != 1 {
		t.Fatalf("expected one exchange, got %d", len(*got))
	}
	if (*got)[0].Response != "the answer to the first question\n>" {
		t.Fatalf("edited echo not trimmed: %q", (*got)[0].Response)
	}
}

func TestSegmenterReportsOpenPrompt(t *testing.T) {
	s, _ := newTestSegmenter(t)
	var opened []time.Time
	s.OnPrompt = func(at time.Time) { opened = append(opened, at) }
	s.Input([]byte("first\r"))
	s.Input([]byte("\r"))
	s.Input([]byte("second\r"))
	s.Close()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	want := []time.Time{base.Add(time.Second), {}, base.Add(3 * time.Second), {}}
	if len(opened) != len(want) {
		t.Fatalf("open prompt notifications %v want %v", opened, want)
	}
	for i := range want {
		if !opened[i].Equal(want[i]) {
			t.Fatalf("notification %d: %v want %v", i, opened[i], want[i])
		}
	}
}

func TestCleanAppliesBackspaces(t *testing.T) {
	cases := map[string]string{
		"fixx\b \b":  "fix",
		"ab\bc":      "ac",
		"line\n\bok": "line\nok",
		"\b\bstart":  "start",
	}
	for in, want := range cases {
		if got := Clean([]byte(in)); got != want {
			t.Fatalf("Clean(%q) -> %q want %q", in, got, want)
		}
	}
}
