// Package engine owns the statistical-engine subprocess: it spawns the
// child, holds its line-oriented stdin/stdout pair, tracks liveness,
// delivers interrupts and terminates it. Higher layers never touch the
// pipes directly; everything goes through WriteLine/ReadLine so the
// text-channel framing stays in one place.
package engine

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"
)

// maxLineBytes bounds a single engine output line. Engine output is
// human-oriented text; a line past this means something is wrong.
const maxLineBytes = 4 << 20

// terminateGrace is how long Terminate waits for the engine to honor
// the clean-exit directive before force-killing it.
const terminateGrace = 3 * time.Second

// Manager drives one engine subprocess. All methods are safe for
// concurrent use, but the text protocol itself is strictly
// request/response: callers must not interleave WriteLine/ReadLine
// sequences from multiple goroutines.
type Manager struct {
	proc    Process
	stdin   io.Writer
	scanner *bufio.Scanner

	mu     sync.Mutex
	closed bool
	exited bool
}

// Launch spawns the engine at path with args via the given spawner and
// wires up its text channel. A spawn failure surfaces as *LaunchError.
func Launch(spawner Spawner, path string, args []string) (*Manager, error) {
	proc, err := spawner.Spawn(path, args)
	if err != nil {
		return nil, &LaunchError{Path: path, Err: err}
	}

	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	m := &Manager{
		proc:    proc,
		stdin:   proc.Stdin(),
		scanner: scanner,
	}

	// Reap in the background to avoid zombies and to flip liveness.
	go func() {
		_ = proc.Wait()
		m.mu.Lock()
		m.exited = true
		m.mu.Unlock()
	}()

	return m, nil
}

// Alive reports whether the engine process is still running and the
// manager has not been terminated.
func (m *Manager) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && !m.exited
}

// WriteLine sends one line of engine source text on the text channel.
func (m *Manager) WriteLine(line string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return &ClosedError{Op: "write"}
	}
	stdin := m.stdin
	m.mu.Unlock()

	if _, err := io.WriteString(stdin, line+"\n"); err != nil {
		return fmt.Errorf("write text channel: %w", err)
	}
	return nil
}

// ReadLine blocks for the next line of engine output. It returns
// io.EOF when the stream closes; callers map that to an engine-closed
// condition on the in-flight operation.
func (m *Manager) ReadLine() (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", &ClosedError{Op: "read"}
	}
	m.mu.Unlock()

	if !m.scanner.Scan() {
		if err := m.scanner.Err(); err != nil {
			return "", fmt.Errorf("read text channel: %w", err)
		}
		return "", io.EOF
	}
	return m.scanner.Text(), nil
}

// Interrupt delivers the platform cancellation signal to the engine so
// an in-flight evaluation stops. The text stream itself is left alone;
// the eval pipeline resynchronizes on its run-counter sentinel.
func (m *Manager) Interrupt() error {
	m.mu.Lock()
	if m.closed || m.exited {
		m.mu.Unlock()
		return &ClosedError{Op: "interrupt"}
	}
	proc := m.proc
	m.mu.Unlock()

	if err := proc.Interrupt(); err != nil {
		return fmt.Errorf("interrupt engine: %w", err)
	}
	return nil
}

// Terminate asks the engine to exit cleanly by writing exitDirective,
// waits a short grace period, then force-kills whatever is left and
// closes the text channel. Calling it twice is safe; the second call
// is a no-op returning nil.
func (m *Manager) Terminate(exitDirective string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	proc := m.proc
	stdin := m.stdin
	exited := m.exited
	m.mu.Unlock()

	if !exited && exitDirective != "" {
		// Best effort: the engine may already be gone.
		_, _ = io.WriteString(stdin, exitDirective+"\n")
	}
	if c, ok := stdin.(io.Closer); ok {
		_ = c.Close()
	}

	deadline := time.After(terminateGrace)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		m.mu.Lock()
		exited = m.exited
		m.mu.Unlock()
		if exited {
			return nil
		}
		select {
		case <-deadline:
			_ = proc.Kill()
			return nil
		case <-tick.C:
		}
	}
}
