package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rbridge/internal/version"
)

// newRootCmd creates the root rbridge command with all subcommands
// attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rbridge",
		Short:         "Drive a long-lived R process from the command line",
		Long:          "rbridge launches an R subprocess and exchanges code and typed data with it.\nIt provides a REPL, a script runner, a script watcher and a transcript log.",
		Version:       fmt.Sprintf("rbridge %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newReplCmd(),
		newRunCmd(),
		newWatchCmd(),
		newLogsCmd(),
	)

	return cmd
}
