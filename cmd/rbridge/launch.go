package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"rbridge/pkg/bridge"
	"rbridge/pkg/config"
	"rbridge/pkg/history"
)

// launchSession builds a bridge session from the resolved config,
// wiring in the transcript store when one is configured. The returned
// cleanup shuts the session down and closes the store.
func launchSession(cfg config.Config, sink io.Writer, interactive bool) (*bridge.Session, func(), error) {
	var rec bridge.Recorder
	var store *history.Store
	if cfg.HistoryDB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.HistoryDB), 0o700); err != nil {
			log.Printf("warning: create history dir: %v (transcript disabled)", err)
		} else if st, err := history.Open(cfg.HistoryDB); err != nil {
			log.Printf("warning: open transcript db: %v (transcript disabled)", err)
		} else {
			store = st
			rec = st
		}
	}

	ses, err := bridge.Launch(bridge.Config{
		ExecutablePath: cfg.RPath,
		Args:           cfg.Args,
		BasePort:       cfg.BasePort,
		PortWidth:      cfg.PortWidth,
		Transient:      cfg.Transient,
		Echo:           cfg.Echo,
		Sink:           sink,
		Interactive:    interactive,
		Recorder:       rec,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, nil, err
	}

	startup, err := config.LoadStartup(cfg.Startup)
	if err != nil {
		_ = ses.Shutdown()
		if store != nil {
			_ = store.Close()
		}
		return nil, nil, err
	}
	for _, stmt := range startup {
		if err := ses.Eval(stmt); err != nil {
			_ = ses.Shutdown()
			if store != nil {
				_ = store.Close()
			}
			return nil, nil, fmt.Errorf("startup statement %q: %w", stmt, err)
		}
	}

	cleanup := func() {
		_ = ses.Shutdown()
		if store != nil {
			_ = store.Close()
		}
	}
	return ses, cleanup, nil
}
