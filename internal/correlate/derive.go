package correlate

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxTitleRunes     = 80
	maxReasoningRunes = 500
	minParagraphRunes = 30
)

var (
	wrapperTags = regexp.MustCompile(`</?(?:user_query|system_reminder)>`)
	shortTags   = regexp.MustCompile(`<[^>]{1,30}>`)
	whitespace  = regexp.MustCompile(`\s+`)
	thinking    = regexp.MustCompile(`(?is)\[Thinking:?\s*(.*?)\]`)
)

// fillerPrefixes are conversational openers dropped from titles, matched case-insensitively.
// At most one is removed.
var fillerPrefixes = []string{
	"please ", "help me ", "can you ", "i want to ", "i need to ",
	"请", "帮我", "你能", "我想", "我需要", "你好 ", "嗨 ",
}

var codeLinePrefixes = []string{"```", "import ", "from ", "def ", "class ", "func ", "package "}

// Title derives a short headline from a raw prompt.
func Title(prompt string) string {
	clean := wrapperTags.ReplaceAllString(strings.TrimSpace(prompt), "")
	clean = shortTags.ReplaceAllString(clean, "")
	clean = strings.TrimSpace(whitespace.ReplaceAllString(clean, " "))
	for _, prefix := range fillerPrefixes {
		if len(clean) >= len(prefix) && strings.EqualFold(clean[:len(prefix)], prefix) {
			clean = strings.TrimSpace(clean[len(prefix):])
			break
		}
	}
	if clean == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(clean)
	clean = string(unicode.ToUpper(r)) + clean[size:]
	if utf8.RuneCountInString(clean) > maxTitleRunes {
		clean = truncateRunes(clean, maxTitleRunes-3) + "..."
	}
	return clean
}

// Reasoning extracts the assistant's rationale: a [Thinking: ...] block, else
// the first prose paragraph, else the start of the response.
func Reasoning(response string) string {
	clean := strings.TrimSpace(response)
	if clean == "" {
		return ""
	}
	if m := thinking.FindStringSubmatch(clean); m != nil {
		return truncateRunes(strings.TrimSpace(m[1]), maxReasoningRunes)
	}
	for _, para := range strings.Split(clean, "\n\n") {
		para = strings.TrimSpace(para)
		if utf8.RuneCountInString(para) > minParagraphRunes && !hasAnyPrefix(para, codeLinePrefixes) {
			return truncateRunes(para, maxReasoningRunes)
		}
	}
	return truncateRunes(clean, maxReasoningRunes)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
