package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rbridge/pkg/config"
	"rbridge/pkg/history"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	tail     int
	op       string
	session  string
	sessions bool
}

// newLogsCmd creates the "rbridge logs" subcommand.
func newLogsCmd() *cobra.Command {
	var lc logsConfig

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query the session transcript database",
		Long:  "Displays recorded eval/assign/pull operations.\nUse --sessions to list sessions, --session to filter to one.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.HistoryDB == "" {
				return fmt.Errorf("transcript recording is disabled (history_db is empty)")
			}

			store, err := history.Open(cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if lc.sessions {
				sums, err := store.Sessions(cmd.Context())
				if err != nil {
					return err
				}
				for _, s := range sums {
					fmt.Fprintf(out, "%s  %4d ops  %s .. %s\n",
						s.SessionID, s.Ops,
						s.First.Format("2006-01-02 15:04:05"),
						s.Last.Format("2006-01-02 15:04:05"))
				}
				return nil
			}

			entries, err := store.Query(cmd.Context(), history.QueryOpts{
				SessionID: lc.session,
				Op:        lc.op,
				Limit:     lc.tail,
			})
			if err != nil {
				return err
			}
			for _, e := range entries {
				status := "ok"
				if !e.OK {
					status = "fail"
				}
				fmt.Fprintf(out, "%s  %-6s %-4s %s\n",
					e.CreatedAt.Format("15:04:05"), e.Op, status, e.Code)
				if e.Detail != "" {
					fmt.Fprintf(out, "          %s\n", e.Detail)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&lc.tail, "tail", 20, "number of recent operations to show")
	cmd.Flags().StringVar(&lc.op, "op", "", "filter by operation (eval, assign, pull)")
	cmd.Flags().StringVar(&lc.session, "session", "", "filter by session id")
	cmd.Flags().BoolVar(&lc.sessions, "sessions", false, "list sessions instead of operations")

	return cmd
}
