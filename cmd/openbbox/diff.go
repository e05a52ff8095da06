package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Chiody/openbbox/internal/git/capture"
	"github.com/Chiody/openbbox/internal/git/diffparse"
)

type diffFlags struct {
	repo     string
	staged   bool
	unstaged bool
	stat     bool
	asJSON   bool
	status   bool
	commits  int
}

func newDiffCmd(global *globalFlags) *cobra.Command {
	var flags diffFlags
	cmd := &cobra.Command{
		Use:   "diff [paths...]",
		Short: "Show the pending changes openbbox would attribute",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(global, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			repo := flags.repo
			if repo == "" {
				if repo, err = os.Getwd(); err != nil {
					return fmt.Errorf("resolve working directory: %w", err)
				}
			}
			c := capture.New(repo, capture.Options{GitBin: a.cfg.Git.Binary, Timeout: a.cfg.GitTimeout(), Logger: a.logger})
			ctx := cmd.Context()
			diffs := c.CombinedDiff(ctx, args...)
			switch {
			case flags.staged:
				diffs = c.StagedDiff(ctx)
			case flags.unstaged:
				diffs = c.UnstagedDiff(ctx)
			}

			out := cmd.OutOrStdout()
			if flags.asJSON {
				return writeJSON(out, map[string]any{
					"root":    c.Root(),
					"branch":  c.Branch(),
					"diffs":   diffs,
					"stats":   diffparse.Stats(diffs),
					"dirty":   c.DirtyFiles(ctx),
					"status":  c.Status(),
					"commits": c.RecentCommits(flags.commits),
				})
			}
			if branch := c.Branch(); branch != "" {
				fmt.Fprintf(out, "%s on %s\n\n", c.Root(), branch)
			}
			fmt.Fprintln(out, diffparse.Describe(diffs))
			if flags.status {
				fmt.Fprintln(out, "\nWorking tree:")
				for _, st := range c.Status() {
					fmt.Fprintf(out, "  %-2s %s\n", st.Code, st.Path)
				}
			}
			if !flags.stat {
				for _, d := range diffs {
					fmt.Fprintf(out, "\n--- %s (%s)\n%s\n", d.Path, d.Kind, strings.TrimRight(d.Hunk, "\n"))
				}
			}
			if commits := c.RecentCommits(flags.commits); len(commits) > 0 {
				fmt.Fprintln(out, "\nRecent commits:")
				for _, commit := range commits {
					subject, _, _ := strings.Cut(commit.Message, "\n")
					fmt.Fprintf(out, "  %s %s (%d file(s), %s)\n", commit.Hash, subject, commit.FilesChanged, humanTime(commit.When))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.repo, "repo", "", "Repository to inspect (default current directory)")
	cmd.Flags().BoolVar(&flags.staged, "staged", false, "Only staged changes")
	cmd.Flags().BoolVar(&flags.unstaged, "unstaged", false, "Only unstaged changes")
	cmd.Flags().BoolVar(&flags.stat, "stat", false, "Print the summary without hunks")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&flags.status, "status", false, "Also list working tree status codes")
	cmd.Flags().IntVar(&flags.commits, "commits", 0, "Also list this many recent commits")
	cmd.MarkFlagsMutuallyExclusive("staged", "unstaged")
	return cmd
}
