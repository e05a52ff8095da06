package correlate

import (
	"math"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/Chiody/openbbox/internal/exchange"
)

// Signal weights; they sum to one.
const (
	WeightTime    = 0.5
	WeightFile    = 0.3
	WeightKeyword = 0.2
)

// Breakdown is a match score with its individual signals.
type Breakdown struct {
	Time    float64
	File    float64
	Keyword float64
}

// Total combines the weighted signals.
func (b Breakdown) Total() float64 {
	return WeightTime*b.Time + WeightFile*b.File + WeightKeyword*b.Keyword
}

// Score rates how likely diffs and changes were caused by the exchange.
func Score(raw exchange.RawExchange, diffs []exchange.FileDiff, changes []exchange.FileChangeEvent) Breakdown {
	if len(diffs) == 0 && len(changes) == 0 {
		return Breakdown{}
	}
	return Breakdown{
		Time:    timeScore(raw.Timestamp, changes),
		File:    fileScore(raw.ContextFiles, diffs),
		Keyword: keywordScore(raw.Prompt, diffs),
	}
}

// timeScore is 1/(1+Δ/10) for the smallest gap Δ in seconds between the exchange and any change.
func timeScore(at time.Time, changes []exchange.FileChangeEvent) float64 {
	if len(changes) == 0 {
		return 0
	}
	minDelta := math.Inf(1)
	for _, c := range changes {
		d := math.Abs(c.Timestamp.Sub(at).Seconds())
		if d < minDelta {
			minDelta = d
		}
	}
	return 1 / (1 + minDelta/10)
}

// fileScore is the share of declared context files, compared by base name, that appear in the diffs.
func fileScore(contextFiles []string, diffs []exchange.FileDiff) float64 {
	declared := baseNames(contextFiles)
	changed := make(map[string]struct{}, len(diffs))
	for _, d := range diffs {
		if d.Path != "" {
			changed[baseName(d.Path)] = struct{}{}
		}
	}
	if len(declared) == 0 || len(changed) == 0 {
		return 0
	}
	overlap := 0
	for name := range declared {
		if _, ok := changed[name]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(max(1, len(declared)))
}

func baseNames(paths []string) map[string]struct{} {
	out := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if strings.TrimSpace(p) != "" {
			out[baseName(p)] = struct{}{}
		}
	}
	return out
}

func baseName(p string) string {
	return path.Base(strings.ReplaceAll(p, "\\", "/"))
}

// keywordScore is the share of prompt tokens that also occur in the diff hunks.
func keywordScore(prompt string, diffs []exchange.FileDiff) float64 {
	promptTokens := Tokens(prompt)
	if len(promptTokens) == 0 || len(diffs) == 0 {
		return 0
	}
	var hunks strings.Builder
	for _, d := range diffs {
		if d.Hunk != "" {
			hunks.WriteString(d.Hunk)
			hunks.WriteByte(' ')
		}
	}
	diffTokens := Tokens(hunks.String())
	if len(diffTokens) == 0 {
		return 0
	}
	overlap := 0
	for tok := range promptTokens {
		if _, ok := diffTokens[tok]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(max(1, len(promptTokens)))
}

var identifier = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]{2,}`)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {}, "that": {}, "from": {},
	"import": {}, "def": {}, "class": {}, "return": {}, "self": {}, "None": {},
	"True": {}, "False": {}, "async": {}, "await": {}, "function": {}, "const": {},
	"let": {}, "var": {},
}

// Tokens extracts identifier-shaped words of three or more characters, minus stop words.
// Matching is case-sensitive, so "Login" and "login" are different tokens.
func Tokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range identifier.FindAllString(text, -1) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}
