package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Chiody/openbbox/internal/storage/history"
)

func newHistoryCmd(global *globalFlags) *cobra.Command {
	var (
		project string
		limit   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"log"},
		Short:   "Browse recorded exchanges",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(global, func(a *app) error {
				recs, err := a.repo.List(cmd.Context(), history.ListParams{ProjectID: project, Limit: limit})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), recs)
				}
				printSummary(cmd.OutOrStdout(), recs)
				return nil
			})
		},
	}
	cmd.PersistentFlags().StringVarP(&project, "project", "p", "", "Only records for this project path")
	cmd.PersistentFlags().IntVarP(&limit, "limit", "n", 20, "Maximum records")
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Output as JSON")

	showHunks := false
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one exchange with its attributed diffs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(global, func(a *app) error {
				rec, err := a.repo.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), rec)
				}
				printRecord(cmd.OutOrStdout(), rec, showHunks)
				return nil
			})
		},
	}
	show.Flags().BoolVar(&showHunks, "diff", false, "Include diff hunks")

	search := &cobra.Command{
		Use:   "search <text>",
		Short: "Search prompts, responses and titles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(global, func(a *app) error {
				recs, err := a.repo.Search(cmd.Context(), strings.Join(args, " "), history.ListParams{ProjectID: project, Limit: limit})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), recs)
				}
				printSummary(cmd.OutOrStdout(), recs)
				return nil
			})
		},
	}

	projects := &cobra.Command{
		Use:   "projects",
		Short: "List projects with recorded exchanges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(global, func(a *app) error {
				list, err := a.repo.ListProjects(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), list)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No projects recorded.")
				}
				for _, p := range list {
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s %4d  %s  %s\n", shorten(p.DisplayName, 20), p.Exchanges, humanTime(p.LastSeenAt), p.Path)
				}
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an exchange",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(global, func(a *app) error {
				rec, err := a.repo.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := a.repo.Delete(cmd.Context(), rec.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", rec.ID)
				return nil
			})
		},
	}

	cmd.AddCommand(show, search, projects, remove, newExportCmd(global, &project))
	return cmd
}

func withStore(global *globalFlags, fn func(*app) error) error {
	a, err := newApp(global, appOptions{openStore: true})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
