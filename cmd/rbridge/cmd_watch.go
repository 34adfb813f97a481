package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"rbridge/pkg/bridge"
	"rbridge/pkg/config"
)

// watchDebounce coalesces rapid-fire editor save events into one
// re-source.
const watchDebounce = 200 * time.Millisecond

// newWatchCmd creates the "rbridge watch" subcommand.
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <script.R>",
		Short: "Re-source an R script whenever it changes",
		Long:  "Runs the script once, then watches it and re-evaluates on every save.\nThe R session persists across runs, so state accumulates.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ses, cleanup, err := launchSession(cfg, cmd.OutOrStdout(), false)
			if err != nil {
				return err
			}
			defer cleanup()
			return watchScript(cmd.Context(), ses, args[0])
		},
	}
}

// watchScript evaluates path once, then on every debounced change
// event until ctx is cancelled.
func watchScript(ctx context.Context, ses *bridge.Session, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	runOnce := func() {
		code, err := os.ReadFile(path) //nolint:gosec // user names the script to watch
		if err != nil {
			log.Printf("read %s: %v", path, err)
			return
		}
		if err := ses.EvalContext(ctx, string(code)); err != nil {
			var parseErr *bridge.ParseError
			if errors.As(err, &parseErr) || errors.Is(err, bridge.ErrInterrupted) {
				log.Printf("%s: %v", path, err)
				return
			}
			log.Printf("eval %s: %v", path, err)
		}
	}
	runOnce()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on
	// save, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()
	pending := false

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			evAbs, err := filepath.Abs(event.Name)
			if err != nil || evAbs != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending && !debounce.Stop() {
				<-debounce.C
			}
			debounce.Reset(watchDebounce)
			pending = true

		case <-debounce.C:
			pending = false
			runOnce()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("watcher error: %v", err)
		}
	}
}
