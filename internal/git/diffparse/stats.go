package diffparse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Chiody/openbbox/internal/exchange"
)

// FileStats counts changed lines for one file.
type FileStats struct {
	Path    string            `json:"path"`
	Kind    exchange.DiffKind `json:"kind"`
	Added   int               `json:"added"`
	Deleted int               `json:"deleted"`
}

// Total returns added + deleted.
func (f FileStats) Total() int { return f.Added + f.Deleted }

func (f FileStats) String() string {
	var parts []string
	if f.Added > 0 {
		parts = append(parts, fmt.Sprintf("+%d", f.Added))
	}
	if f.Deleted > 0 {
		parts = append(parts, fmt.Sprintf("-%d", f.Deleted))
	}
	if len(parts) == 0 {
		return f.Path
	}
	return fmt.Sprintf("%s (%s)", f.Path, strings.Join(parts, ", "))
}

// Summary aggregates FileStats across a change set.
type Summary struct {
	Files []FileStats `json:"files"`
}

func (s Summary) Additions() int {
	n := 0
	for _, f := range s.Files {
		n += f.Added
	}
	return n
}

func (s Summary) Deletions() int {
	n := 0
	for _, f := range s.Files {
		n += f.Deleted
	}
	return n
}

// Short renders "N file(s), +A -D".
func (s Summary) Short() string {
	return fmt.Sprintf("%d file(s), +%d -%d", len(s.Files), s.Additions(), s.Deletions())
}

// Stats counts added and deleted lines per diff. Hunk headers and context are not counted.
func Stats(diffs []exchange.FileDiff) Summary {
	summary := Summary{Files: make([]FileStats, 0, len(diffs))}
	for _, d := range diffs {
		fs := FileStats{Path: d.Path, Kind: d.Kind}
		for _, line := range strings.Split(d.Hunk, "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				fs.Added++
			case strings.HasPrefix(line, "-"):
				fs.Deleted++
			}
		}
		summary.Files = append(summary.Files, fs)
	}
	return summary
}

var kindIcons = map[exchange.DiffKind]string{
	exchange.DiffAdded:    "+",
	exchange.DiffDeleted:  "-",
	exchange.DiffModified: "~",
	exchange.DiffRenamed:  "→",
}

// Describe renders a human-readable summary of a change set.
func Describe(diffs []exchange.FileDiff) string {
	if len(diffs) == 0 {
		return "No code changes detected."
	}
	s := Stats(diffs)
	var b strings.Builder
	fmt.Fprintf(&b, "Changed %d file(s): +%d additions, -%d deletions\n", len(s.Files), s.Additions(), s.Deletions())
	for _, f := range s.Files {
		icon, ok := kindIcons[f.Kind]
		if !ok {
			icon = "~"
		}
		fmt.Fprintf(&b, "\n  %s %s", icon, f.String())
	}
	return b.String()
}

var fencedBlock = regexp.MustCompile("(?s)```(?:\\w+)?\\n(.*?)```")

// CodeBlocks returns the bodies of fenced code blocks in an assistant response.
func CodeBlocks(response string) []string {
	var blocks []string
	for _, m := range fencedBlock.FindAllStringSubmatch(response, -1) {
		if code := strings.TrimSpace(m[1]); code != "" {
			blocks = append(blocks, code)
		}
	}
	return blocks
}
