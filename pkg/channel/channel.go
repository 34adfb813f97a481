// Package channel manages the private binary socket between host and
// engine. The host listens, the engine dials back in response to a
// snippet injected on the text channel, and the two sides rendezvous
// before any data flows.
package channel

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"
)

// Policy fixes the socket lifetime for a session.
type Policy int

const (
	// Persistent keeps the accepted socket open across calls. This is
	// the default: one handshake per session.
	Persistent Policy = iota

	// Transient closes the socket after every call. Slower, but safer
	// when something else might touch the port between calls.
	Transient
)

// maxBindAttempts bounds the bind-conflict retry loop.
const maxBindAttempts = 50

// DefaultAcceptTimeout bounds how long the host waits for the engine
// to dial back during the bootstrap rendezvous.
const DefaultAcceptTimeout = 10 * time.Second

// Announcer tells the engine to dial back on the given port, typically
// by injecting a connect snippet on the text channel. It must not
// return before the engine has been instructed to connect.
type Announcer func(port int) error

// Manager owns the host side of the binary channel. It is not safe for
// concurrent use; the owning session serializes access.
type Manager struct {
	host     string
	basePort int
	width    int
	policy   Policy
	announce Announcer

	acceptTimeout time.Duration

	mu   sync.Mutex
	ln   net.Listener
	conn net.Conn
	port int
}

// New creates a Manager listening lazily on 127.0.0.1 at basePort plus
// a random offset in [0, width). width < 1 is treated as 1 (fixed
// port, tight retry on conflict).
func New(basePort, width int, policy Policy, announce Announcer) *Manager {
	if width < 1 {
		width = 1
	}
	return &Manager{
		host:          "127.0.0.1",
		basePort:      basePort,
		width:         width,
		policy:        policy,
		announce:      announce,
		acceptTimeout: DefaultAcceptTimeout,
	}
}

// SetAcceptTimeout overrides the rendezvous deadline.
func (m *Manager) SetAcceptTimeout(d time.Duration) { m.acceptTimeout = d }

// Port reports the bound port, or 0 before first use.
func (m *Manager) Port() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port
}

// With runs fn with a connected socket, establishing one if needed.
// Under the transient policy, or whenever fn returns an error, the
// socket is closed and dropped so the next call starts from a clean
// framing state.
func (m *Manager) With(fn func(net.Conn) error) error {
	conn, err := m.ensureConn()
	if err != nil {
		return err
	}

	err = fn(conn)
	if err != nil || m.policy == Transient {
		m.dropConn()
	}
	return err
}

// Close tears down the socket and the listener. Safe to call twice.
func (m *Manager) Close() error {
	m.dropConn()
	m.mu.Lock()
	ln := m.ln
	m.ln = nil
	m.mu.Unlock()
	if ln != nil {
		if err := ln.Close(); err != nil {
			return fmt.Errorf("close listener: %w", err)
		}
	}
	return nil
}

func (m *Manager) dropConn() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (m *Manager) ensureConn() (net.Conn, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn != nil {
		return conn, nil
	}

	if err := m.ensureListener(); err != nil {
		return nil, err
	}

	// The accept and the engine's dial race: run the accept on a
	// background goroutine, announce the port, then join. This is a
	// rendezvous, not ongoing concurrency.
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	ch := make(chan acceptResult, 1)
	ln := m.ln
	go func() {
		if tcp, ok := ln.(*net.TCPListener); ok {
			_ = tcp.SetDeadline(time.Now().Add(m.acceptTimeout))
		}
		c, err := ln.Accept()
		ch <- acceptResult{c, err}
	}()

	if err := m.announce(m.port); err != nil {
		// Unblock the accept goroutine; its result is discarded.
		_ = ln.Close()
		m.mu.Lock()
		m.ln = nil
		m.mu.Unlock()
		return nil, fmt.Errorf("announce binary channel: %w", err)
	}

	res := <-ch
	if res.err != nil {
		return nil, fmt.Errorf("accept engine connection: %w", res.err)
	}

	m.mu.Lock()
	m.conn = res.conn
	m.mu.Unlock()
	return res.conn, nil
}

// ensureListener binds basePort plus a random offset, retrying on bind
// conflicts. With width 1 this is a tight retry on the single port;
// otherwise each attempt resamples the offset.
func (m *Manager) ensureListener() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln != nil {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < maxBindAttempts; attempt++ {
		port := m.basePort
		if m.width > 1 {
			port += rand.Intn(m.width) //nolint:gosec // port spreading does not need crypto rand
		}
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", m.host, port))
		if err != nil {
			lastErr = err
			continue
		}
		m.ln = ln
		m.port = ln.Addr().(*net.TCPAddr).Port
		return nil
	}
	return fmt.Errorf("bind binary channel after %d attempts: %w", maxBindAttempts, lastErr)
}
