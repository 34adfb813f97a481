package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"rbridge/pkg/engine"
	"rbridge/pkg/protocol"
)

// ansiPrefix matches leading terminal escape sequences some engine
// builds emit ahead of output lines. They are stripped before sink
// delivery.
var ansiPrefix = regexp.MustCompile(`^(\x1b\[[0-9;]*[A-Za-z])+`)

// Eval submits code and blocks until the engine signals completion.
func (s *Session) Eval(code string) error {
	return s.EvalContext(context.Background(), code)
}

// EvalContext is Eval with cancellation: when ctx is cancelled the
// engine is interrupted, the read loop drains to its sentinel so no
// control debris is left on the text channel, and ErrInterrupted is
// returned. Eval is the only cancellable operation; Assign, Pull and
// the probes must never be interrupted mid-transfer.
func (s *Session) EvalContext(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("eval"); err != nil {
		return err
	}

	// Incomplete or broken code short-circuits before anything is
	// sent: the engine never sees text that cannot run to the
	// sentinel.
	probe, err := s.probeLocked(code)
	if err != nil {
		return err
	}
	if probe.State != Complete {
		s.record("eval", code, false, "parse: "+probe.State.String())
		return &ParseError{Code: code, Result: probe}
	}

	s.counter++
	run := s.counter

	// A failed text-channel write means the engine is gone: the pipe
	// only breaks when the process exits.
	for _, line := range strings.Split(code, "\n") {
		if err := s.eng.WriteLine(line); err != nil {
			s.record("eval", code, false, "engine closed")
			return &engine.ClosedError{Op: "eval"}
		}
	}
	if err := s.eng.WriteLine(sentinelStatement(run)); err != nil {
		s.record("eval", code, false, "engine closed")
		return &engine.ClosedError{Op: "eval"}
	}

	// The interrupt hook lives exactly as long as the read loop. A
	// cancellation arriving after the matching sentinel was consumed
	// is a no-op.
	stop := context.AfterFunc(ctx, func() { _ = s.eng.Interrupt() })
	defer stop()

	for {
		line, err := s.eng.ReadLine()
		if err != nil {
			var closed *engine.ClosedError
			if errors.Is(err, io.EOF) || errors.As(err, &closed) {
				s.record("eval", code, false, "engine closed")
				return &engine.ClosedError{Op: "eval"}
			}
			return err
		}

		if n, ok := parseSentinel(line); ok {
			if n != run {
				// Stale sentinel from an abandoned run: noise, not
				// completion, and never forwarded to the sink.
				continue
			}
			if ctx.Err() != nil {
				s.record("eval", code, false, "interrupted")
				return fmt.Errorf("eval %q: %w", code, ErrInterrupted)
			}
			s.record("eval", code, true, "")
			return nil
		}

		s.deliver(line)
	}
}

// parseSentinel recognizes the engine's echo of a completion sentinel
// and extracts its run counter.
func parseSentinel(line string) (uint64, bool) {
	prefix := `[1] "` + protocol.EvalFlag + `.`
	if !strings.HasPrefix(line, prefix) || !strings.HasSuffix(line, `"`) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(line, prefix), `"`)
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// deliver forwards one echoed output line to the configured sink,
// stripping control prefixes first.
func (s *Session) deliver(line string) {
	if !s.cfg.Echo || s.cfg.Sink == nil {
		return
	}
	line = ansiPrefix.ReplaceAllString(line, "")
	line = strings.TrimPrefix(line, protocol.StderrFlag)
	fmt.Fprintln(s.cfg.Sink, line)
}
