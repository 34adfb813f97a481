package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rbridge/pkg/config"
)

// newRunCmd creates the "rbridge run" subcommand.
func newRunCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run <script.R>",
		Short: "Execute an R script through the bridge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if quiet {
				cfg.Echo = false
			}

			code, err := os.ReadFile(args[0]) //nolint:gosec // user names the script to run
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}

			ses, cleanup, err := launchSession(cfg, cmd.OutOrStdout(), false)
			if err != nil {
				return err
			}
			defer cleanup()

			return ses.EvalContext(cmd.Context(), string(code))
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress engine output")

	return cmd
}
