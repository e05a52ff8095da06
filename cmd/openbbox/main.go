// Command openbbox records AI coding sessions and attributes repository changes to them.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// exitError carries the wrapped command's exit status out of cobra.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

type globalFlags struct {
	configPath string
	dataDir    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:   "openbbox",
		Short: "openbbox - a flight recorder for AI coding sessions",
		Long: `openbbox sits between you and an AI coding agent, captures each prompt and
response, and links them to the code changes that followed.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to config.yaml (default $OPENBBOX_CONFIG or <data dir>/config.yaml)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Override the data directory")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(newWrapCmd(&flags))
	root.AddCommand(newDiffCmd(&flags))
	root.AddCommand(newHistoryCmd(&flags))
	root.AddCommand(newConfigCmd(&flags))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the openbbox version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "openbbox %s\n", version)
			return nil
		},
	}
}
