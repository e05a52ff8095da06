package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Chiody/openbbox/internal/exchange"
	"github.com/Chiody/openbbox/internal/git/diffparse"
	"github.com/Chiody/openbbox/internal/storage/history"
)

const exportLimit = 10000

var exportFormats = []string{"prompts", "markdown", "json"}

func newExportCmd(global *globalFlags, project *string) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded exchanges as a prompt list, markdown or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			render, ok := exporters[format]
			if !ok {
				return fmt.Errorf("unknown format %q (want %s)", format, strings.Join(exportFormats, ", "))
			}
			limit := exportLimit
			if f := cmd.Flags().Lookup("limit"); f != nil && f.Changed {
				limit, _ = cmd.Flags().GetInt("limit")
			}
			return withStore(global, func(a *app) error {
				recs, err := a.repo.List(cmd.Context(), history.ListParams{ProjectID: *project, Limit: limit})
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), "No data to export.")
					return nil
				}
				var buf bytes.Buffer
				if err := render(&buf, recs); err != nil {
					return err
				}
				if output == "" {
					_, err := cmd.OutOrStdout().Write(buf.Bytes())
					return err
				}
				if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d exchange(s) to %s\n", len(recs), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "prompts", "Output format: "+strings.Join(exportFormats, ", "))
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

var exporters = map[string]func(io.Writer, []exchange.CorrelatedExchange) error{
	"prompts":  exportPrompts,
	"markdown": exportMarkdown,
	"json":     exportJSON,
}

// exportPrompts writes prompts oldest first, one numbered entry each.
func exportPrompts(w io.Writer, recs []exchange.CorrelatedExchange) error {
	for i := range recs {
		rec := recs[len(recs)-1-i]
		fmt.Fprintf(w, "%d. %s\n", i+1, strings.TrimSpace(rec.Prompt))
	}
	return nil
}

func exportMarkdown(w io.Writer, recs []exchange.CorrelatedExchange) error {
	fmt.Fprintf(w, "# OpenBBox Export\n\n%d exchange(s)\n", len(recs))
	for i := range recs {
		rec := recs[len(recs)-1-i]
		fmt.Fprintf(w, "\n## %d. %s\n\n", i+1, rec.Title)
		fmt.Fprintf(w, "- **When:** %s\n- **Source:** %s\n", rec.Timestamp.UTC().Format(time.RFC3339), rec.Source.IDE)
		if rec.ProjectName != "" {
			fmt.Fprintf(w, "- **Project:** %s\n", rec.ProjectName)
		}
		fmt.Fprintf(w, "- **Score:** %.2f\n", rec.Score)
		fmt.Fprintf(w, "\n### Prompt\n\n%s\n", strings.TrimSpace(rec.Prompt))
		if rec.ReasoningExcerpt != "" {
			fmt.Fprintf(w, "\n### Reasoning\n\n%s\n", rec.ReasoningExcerpt)
		}
		if len(rec.Diffs) > 0 {
			fmt.Fprintf(w, "\n### Changes\n\n```\n%s\n```\n", diffparse.Describe(rec.Diffs))
		}
	}
	return nil
}

type exportDocument struct {
	Title      string                        `json:"title"`
	ExportedAt time.Time                     `json:"exportedAt"`
	Count      int                           `json:"count"`
	Exchanges  []exchange.CorrelatedExchange `json:"exchanges"`
}

func exportJSON(w io.Writer, recs []exchange.CorrelatedExchange) error {
	return writeJSON(w, exportDocument{
		Title:      "OpenBBox Export",
		ExportedAt: time.Now().UTC(),
		Count:      len(recs),
		Exchanges:  recs,
	})
}
