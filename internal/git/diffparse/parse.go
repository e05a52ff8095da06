// Package diffparse turns unified diff text into per-file records.
//
// The parser is a line-oriented state machine. A "diff --git" line closes the
// file section that is currently open and opens the next one; marker lines set
// the kind of the open section; hunk lines are copied verbatim. Sections that
// never accumulate a hunk line (pure renames, mode changes, binary files) are
// dropped. Lines seen while no section is open are ignored.
package diffparse

import (
	"strconv"
	"strings"

	"github.com/Chiody/openbbox/internal/exchange"
)

const boundaryPrefix = "diff --git "

type section struct {
	path   string
	kind   exchange.DiffKind
	inHunk bool
	lines  []string
}

func (s *section) emit(out []exchange.FileDiff) []exchange.FileDiff {
	if s == nil || s.path == "" || len(s.lines) == 0 {
		return out
	}
	return append(out, exchange.FileDiff{Path: s.path, Kind: s.kind, Hunk: strings.Join(s.lines, "\n")})
}

// Parse converts raw diff text, possibly several concatenated diffs, into FileDiff entries in source order.
func Parse(raw string) []exchange.FileDiff {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var (
		out []exchange.FileDiff
		cur *section
	)
	for _, line := range strings.Split(raw, "\n") {
		marker := strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(marker, boundaryPrefix) {
			out = cur.emit(out)
			cur = &section{path: postImagePath(marker), kind: exchange.DiffModified}
			continue
		}
		if cur == nil {
			continue
		}
		if !cur.inHunk {
			switch {
			case strings.HasPrefix(marker, "new file"):
				cur.kind = exchange.DiffAdded
				continue
			case strings.HasPrefix(marker, "deleted file"):
				cur.kind = exchange.DiffDeleted
				continue
			case strings.HasPrefix(marker, "rename from"), strings.HasPrefix(marker, "rename to"):
				cur.kind = exchange.DiffRenamed
				continue
			case strings.HasPrefix(marker, "+++ "):
				if p := headerPath(marker[4:]); p != "" {
					cur.path = p
				}
				continue
			case strings.HasPrefix(marker, "--- "):
				continue
			}
		}
		if isHunkLine(line) {
			if strings.HasPrefix(line, "@@") {
				cur.inHunk = true
			}
			cur.lines = append(cur.lines, line)
		}
	}
	return cur.emit(out)
}

func isHunkLine(line string) bool {
	if line == "" {
		return false
	}
	switch line[0] {
	case '@':
		return strings.HasPrefix(line, "@@")
	case '+', '-', ' ':
		return true
	}
	return false
}

// postImagePath extracts the "b/" side of a "diff --git a/X b/Y" line.
func postImagePath(line string) string {
	rest := strings.TrimPrefix(line, boundaryPrefix)
	if strings.HasPrefix(rest, "\"") {
		if idx := strings.LastIndex(rest, " \"b/"); idx >= 0 {
			return headerPath(rest[idx+1:])
		}
	}
	// Identical a/ and b/ paths split the line exactly in half, which is the
	// only reliable cut when the path itself contains " b/".
	if n := len(rest); n%2 == 1 {
		half := n / 2
		a, b := rest[:half], rest[half+1:]
		if strings.HasPrefix(a, "a/") && strings.HasPrefix(b, "b/") && a[2:] == b[2:] {
			return b[2:]
		}
	}
	if idx := strings.LastIndex(rest, " b/"); idx >= 0 {
		return rest[idx+3:]
	}
	return ""
}

// headerPath decodes a "+++"/"diff --git" path token, returning "" for /dev/null.
func headerPath(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "\"") {
		if decoded, err := strconv.Unquote(token); err == nil {
			token = decoded
		}
	}
	if token == "/dev/null" {
		return ""
	}
	return strings.TrimPrefix(token, "b/")
}

// Synthesize builds hunk-less entries from watcher events, one per distinct path, keeping the latest kind.
func Synthesize(events []exchange.FileChangeEvent) []exchange.FileDiff {
	if len(events) == 0 {
		return nil
	}
	index := make(map[string]int, len(events))
	out := make([]exchange.FileDiff, 0, len(events))
	for _, ev := range events {
		if ev.Path == "" {
			continue
		}
		kind := exchange.DiffKindFor(ev.Kind)
		if i, ok := index[ev.Path]; ok {
			out[i].Kind = kind
			continue
		}
		index[ev.Path] = len(out)
		out = append(out, exchange.FileDiff{Path: ev.Path, Kind: kind})
	}
	return out
}
