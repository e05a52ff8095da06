package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Chiody/openbbox/internal/exchange"
	"github.com/Chiody/openbbox/internal/git/diffparse"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func humanTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

// printSummary writes one line per record.
func printSummary(w io.Writer, recs []exchange.CorrelatedExchange) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No exchanges recorded.")
		return
	}
	for _, rec := range recs {
		fmt.Fprintf(w, "%s  %s  %-10s %4.2f  %s\n",
			shortID(rec.ID), humanTime(rec.Timestamp), rec.Source.IDE, rec.Score, shorten(rec.Title, 60))
		if len(rec.AffectedFiles) > 0 {
			fmt.Fprintf(w, "          %s\n", shorten(strings.Join(rec.AffectedFiles, ", "), 90))
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printRecord(w io.Writer, rec exchange.CorrelatedExchange, hunks bool) {
	fmt.Fprintf(w, "%s\n", rec.Title)
	fmt.Fprintf(w, "  id:       %s\n", rec.ID)
	fmt.Fprintf(w, "  when:     %s\n", humanTime(rec.Timestamp))
	fmt.Fprintf(w, "  source:   %s", rec.Source.IDE)
	if rec.Source.ModelName != "" {
		fmt.Fprintf(w, " (%s)", rec.Source.ModelName)
	}
	fmt.Fprintln(w)
	if rec.ProjectName != "" {
		fmt.Fprintf(w, "  project:  %s\n", rec.ProjectName)
	}
	fmt.Fprintf(w, "  score:    %.2f\n", rec.Score)
	fmt.Fprintf(w, "\nPrompt:\n%s\n", indent(rec.Prompt))
	if rec.ReasoningExcerpt != "" {
		fmt.Fprintf(w, "\nReasoning:\n%s\n", indent(rec.ReasoningExcerpt))
	}
	fmt.Fprintf(w, "\n%s\n", diffparse.Describe(rec.Diffs))
	if blocks := diffparse.CodeBlocks(rec.Response); len(blocks) > 0 {
		fmt.Fprintf(w, "\nResponse contains %d code block(s).\n", len(blocks))
	}
	if hunks {
		for _, d := range rec.Diffs {
			if d.Hunk == "" {
				continue
			}
			fmt.Fprintf(w, "\n--- %s\n%s\n", d.Path, strings.TrimRight(d.Hunk, "\n"))
		}
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
