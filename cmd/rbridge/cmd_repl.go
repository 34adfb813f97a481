package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"rbridge/pkg/bridge"
	"rbridge/pkg/config"
)

var (
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	continueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// newReplCmd creates the "rbridge repl" subcommand.
func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive R session with multi-line input",
		Long:  "Starts R and reads statements from stdin.\nIncomplete lines accumulate until the engine reports the fragment parseable.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			interactive := isatty.IsTerminal(os.Stdin.Fd())
			ses, cleanup, err := launchSession(cfg, cmd.OutOrStdout(), interactive)
			if err != nil {
				return err
			}
			defer cleanup()
			return runRepl(cmd, ses, interactive)
		},
	}
}

// runRepl is the accumulate/probe/eval loop. Interrupting with Ctrl-C
// cancels the in-flight eval without ending the session.
func runRepl(cmd *cobra.Command, ses *bridge.Session, interactive bool) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())

	if interactive {
		if v, err := ses.EngineVersion(); err == nil {
			fmt.Fprintln(out, v)
		}
	}

	var pending []string
	prompt := func() {
		if !interactive {
			return
		}
		if len(pending) == 0 {
			fmt.Fprint(out, promptStyle.Render(">")+" ")
		} else {
			fmt.Fprint(out, continueStyle.Render("+")+" ")
		}
	}

	for prompt(); scanner.Scan(); prompt() {
		line := scanner.Text()
		if len(pending) == 0 && strings.TrimSpace(line) == "" {
			continue
		}
		pending = append(pending, line)
		code := strings.Join(pending, "\n")

		probe, err := ses.IsComplete(code)
		if err != nil {
			return err
		}
		switch probe.State {
		case bridge.Incomplete:
			continue
		case bridge.Unrecoverable:
			fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf(
				"parse error at %d:%d: %s", probe.Line, probe.Column, probe.Offending)))
			pending = nil
			continue
		}
		pending = nil

		if err := evalInterruptible(cmd.Context(), ses, code); err != nil {
			var parseErr *bridge.ParseError
			switch {
			case errors.Is(err, bridge.ErrInterrupted):
				fmt.Fprintln(out, errorStyle.Render("interrupted"))
			case errors.As(err, &parseErr):
				fmt.Fprintln(out, errorStyle.Render(parseErr.Error()))
			default:
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if interactive {
		fmt.Fprintln(out)
	}
	return nil
}

// evalInterruptible runs one eval with Ctrl-C wired to engine
// interruption for its duration only.
func evalInterruptible(parent context.Context, ses *bridge.Session, code string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()
	return ses.EvalContext(ctx, code)
}
