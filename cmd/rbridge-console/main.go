// Package main is the rbridge console: a full-screen interactive R
// session built on Bubble Tea.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"rbridge/pkg/bridge"
	"rbridge/pkg/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rbridge-console: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	sink := &captureSink{}
	ses, err := bridge.Launch(bridge.Config{
		ExecutablePath: cfg.RPath,
		Args:           cfg.Args,
		BasePort:       cfg.BasePort,
		PortWidth:      cfg.PortWidth,
		Transient:      cfg.Transient,
		Echo:           true,
		Sink:           sink,
		Interactive:    true,
	})
	if err != nil {
		return err
	}
	defer ses.Shutdown() //nolint:errcheck // best-effort teardown on exit

	p := tea.NewProgram(newModel(ses, sink), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run console: %w", err)
	}
	return nil
}
