package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Chiody/openbbox/internal/correlate"
	"github.com/Chiody/openbbox/internal/exchange"
	"github.com/Chiody/openbbox/internal/git/capture"
	"github.com/Chiody/openbbox/internal/recorder"
	"github.com/Chiody/openbbox/internal/terminal"
	"github.com/Chiody/openbbox/internal/watcher"
)

type wrapFlags struct {
	source  string
	repo    string
	project string
	shell   bool
	noWatch bool
	quiet   bool
}

func newWrapCmd(global *globalFlags) *cobra.Command {
	var flags wrapFlags
	cmd := &cobra.Command{
		Use:   "wrap [command] [args...]",
		Short: "Run an AI agent under the recorder",
		Long: `wrap runs the agent (default "claude") on a pseudo-terminal, segments the
session into prompt/response exchanges and links them to repository changes.
Everything after the command name is passed to the agent unchanged.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrap(cmd, global, flags, args)
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&flags.source, "source", string(exchange.SourceClaudeCode), "Source tool recorded with each exchange")
	cmd.Flags().StringVar(&flags.repo, "repo", "", "Repository to observe (default current directory)")
	cmd.Flags().StringVar(&flags.project, "project", "", "Project name (default repository directory name)")
	cmd.Flags().BoolVar(&flags.shell, "shell", false, "Wrap your login shell instead of an agent")
	cmd.Flags().BoolVar(&flags.noWatch, "no-watch", false, "Disable the file watcher")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Do not print a session summary")
	return cmd
}

func wrapCommand(flags wrapFlags, args []string) (string, []string) {
	switch {
	case flags.shell:
		shell := terminal.DetectShell()
		return shell, terminal.ShellArgs(shell)
	case len(args) == 0:
		return terminal.DefaultCommand(), nil
	default:
		return args[0], args[1:]
	}
}

func runWrap(cmd *cobra.Command, global *globalFlags, flags wrapFlags, args []string) error {
	a, err := newApp(global, appOptions{logToFile: true, openStore: true})
	if err != nil {
		return err
	}
	defer a.Close()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	repoDir := flags.repo
	if repoDir == "" {
		repoDir = cwd
	}
	diffs := capture.New(repoDir, capture.Options{
		GitBin:  a.cfg.Git.Binary,
		Timeout: a.cfg.GitTimeout(),
		Logger:  a.logger,
	})
	root := diffs.Root()
	project := flags.project
	if project == "" {
		project = filepath.Base(root)
	}

	var rec *recorder.Recorder
	opts := recorder.Options{
		Engine: correlate.New(correlate.Options{Window: a.cfg.Window(), Logger: a.logger}),
		Diffs:  diffs,
		Store:  a.repo,
		Origin: correlate.Origin{
			Source:      exchange.ParseSource(flags.source),
			ProjectID:   root,
			ProjectName: project,
		},
		FlushInterval: a.cfg.FlushInterval(),
		Logger:        a.logger,
	}
	if a.cfg.WatcherEnabled() && !flags.noWatch {
		opts.Watcher = watcher.New(root, func(ev exchange.FileChangeEvent) { rec.HandleChange(ev) }, watcher.Options{
			Debounce: a.cfg.WatcherDebounce(),
			Ignore:   a.cfg.Watcher.Ignore,
			Logger:   a.logger,
		})
	}
	rec = recorder.New(opts)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rec.Start(ctx)

	command, childArgs := wrapCommand(flags, args)
	a.logger.Info("wrapping command", "command", command, "args", len(childArgs), "repo", root, "branch", diffs.Branch())
	proxy := &terminal.Proxy{
		Dir:              cwd,
		MinResponseChars: a.cfg.MinResponseChars,
		OnExchange:       rec.HandleExchange,
		OnPrompt:         rec.HandlePrompt,
		Logger:           a.logger,
	}
	status, runErr := proxy.Start(ctx, command, childArgs...)

	// Flush even when ctx was cancelled.
	stats := rec.Close(context.WithoutCancel(ctx))
	a.logger.Info("session finished", "status", status, "exchanges", stats.Exchanges, "dropped", stats.Dropped, "saved", stats.Saved, "failed", stats.Failed, "changes", stats.Changes)
	if runErr != nil {
		return runErr
	}
	if !flags.quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "openbbox: recorded %d exchange(s), %d file change(s) in %s\n", stats.Saved, stats.Changes, project)
	}
	if status != 0 {
		return &exitError{code: status}
	}
	return nil
}
