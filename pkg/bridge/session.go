// Package bridge composes the engine process, the binary channel and
// the wire codec into the host-facing R session: Eval, Assign, Pull,
// the completeness oracle, interruption and shutdown.
package bridge

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"rbridge/pkg/channel"
	"rbridge/pkg/engine"
	"rbridge/pkg/protocol"
)

// Default handshake parameters. The base port sits high in the
// registered range where collisions with common services are unlikely,
// and the width spreads concurrent sessions so two hosts on one
// machine rarely contend for the same port.
const (
	DefaultBasePort  = 38442
	DefaultPortWidth = 1000
)

// DefaultArgs are the engine flags for a quiet, line-driven slave
// process with no workspace persistence.
var DefaultArgs = []string{"--slave", "--no-save"}

// Recorder observes completed operations, typically to persist a
// transcript. Implementations must be cheap; they run inside the
// session lock.
type Recorder interface {
	Record(sessionID, op, code string, ok bool, detail string)
}

// Config parameterizes Launch. Zero values select defaults.
type Config struct {
	// ExecutablePath locates the engine binary. Required; executable
	// discovery is the caller's concern.
	ExecutablePath string

	// Args passed to the engine. Nil selects DefaultArgs.
	Args []string

	// BasePort and PortWidth control the binary-channel handshake:
	// the host listens on BasePort plus a random offset in
	// [0, PortWidth).
	BasePort  int
	PortWidth int

	// Transient closes the binary socket after every call instead of
	// keeping it open for the session.
	Transient bool

	// Echo forwards engine output lines to Sink during Eval.
	Echo bool

	// Sink receives echoed output. Nil suppresses echo regardless of
	// the Echo flag.
	Sink io.Writer

	// Interactive marks the session as user-driven; callers consult
	// it for prompt decisions, the bridge core only stores it.
	Interactive bool

	// ByteOrder fixes the binary-channel endianness for the session,
	// on both the host codec and the generated engine helpers. Nil
	// selects network byte order; only binary.BigEndian and
	// binary.LittleEndian are accepted.
	ByteOrder binary.ByteOrder

	// Spawner overrides subprocess creation, letting tests substitute
	// an in-memory engine. Nil selects engine.ExecSpawner.
	Spawner engine.Spawner

	// Recorder, when non-nil, observes completed operations.
	Recorder Recorder
}

// Session is one engine subprocess plus its two channels. All
// operations are serialized by an internal mutex: the protocol is
// strictly request/response with no pipelining.
type Session struct {
	id    string
	cfg   Config
	codec *protocol.Codec

	mu      sync.Mutex
	eng     *engine.Manager
	chn     *channel.Manager
	counter uint64
	closed  bool
	version string
}

// Launch spawns the engine, sends the bootstrap helper definitions and
// synchronizes on the first sentinel. On success the session is ready
// for Eval/Assign/Pull. Spawn failures surface as *engine.LaunchError.
func Launch(cfg Config) (*Session, error) {
	if cfg.ExecutablePath == "" {
		return nil, fmt.Errorf("launch: executable path is required")
	}
	if cfg.Args == nil {
		cfg.Args = DefaultArgs
	}
	if cfg.BasePort == 0 {
		cfg.BasePort = DefaultBasePort
	}
	if cfg.PortWidth == 0 {
		cfg.PortWidth = DefaultPortWidth
	}
	order := cfg.ByteOrder
	if order == nil {
		order = binary.BigEndian
	}
	// The engine-side helpers are generated for exactly these two
	// orders; anything else would desynchronize the binary channel.
	if order != binary.BigEndian && order != binary.LittleEndian {
		return nil, fmt.Errorf("launch: unsupported byte order %v", order)
	}
	spawner := cfg.Spawner
	if spawner == nil {
		spawner = engine.ExecSpawner{}
	}

	eng, err := engine.Launch(spawner, cfg.ExecutablePath, cfg.Args)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:    uuid.New().String(),
		cfg:   cfg,
		codec: protocol.NewCodec(order),
		eng:   eng,
	}

	policy := channel.Persistent
	if cfg.Transient {
		policy = channel.Transient
	}
	s.chn = channel.New(cfg.BasePort, cfg.PortWidth, policy, func(port int) error {
		return s.eng.WriteLine(glueConnect(port))
	})

	if err := s.bootstrap(); err != nil {
		_ = eng.Terminate(exitDirective)
		return nil, &engine.LaunchError{Path: cfg.ExecutablePath, Err: err}
	}
	return s, nil
}

// bootstrap sends the helper definitions and waits for the engine to
// echo the first sentinel, proving the text channel is live.
func (s *Session) bootstrap() error {
	for _, line := range bootstrapLines(s.codec.Order()) {
		if err := s.eng.WriteLine(line); err != nil {
			return fmt.Errorf("send bootstrap: %w", err)
		}
	}
	s.counter++
	if err := s.eng.WriteLine(sentinelStatement(s.counter)); err != nil {
		return fmt.Errorf("send bootstrap sentinel: %w", err)
	}
	for {
		line, err := s.eng.ReadLine()
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("engine exited during bootstrap")
			}
			return err
		}
		if line == sentinelEcho(s.counter) {
			return nil
		}
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Interactive reports the flag the session was launched with.
func (s *Session) Interactive() bool { return s.cfg.Interactive }

// Alive reports whether the session is usable.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.eng.Alive()
}

// SetEcho adjusts output forwarding for subsequent Eval calls.
func (s *Session) SetEcho(enabled bool, sink io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Echo = enabled
	if sink != nil {
		s.cfg.Sink = sink
	}
}

// Interrupt delivers the cancellation signal to the engine. Prefer
// cancelling the context passed to EvalContext; this entry point
// exists for callers driving the session from a signal handler.
func (s *Session) Interrupt() error {
	return s.eng.Interrupt()
}

// EngineVersion pulls the engine's version string, caching it for the
// session's lifetime.
func (s *Session) EngineVersion() (string, error) {
	s.mu.Lock()
	if v := s.version; v != "" {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err := s.Pull("R.version.string")
	if err != nil {
		return "", err
	}
	strs, ok := v.([]string)
	if !ok || len(strs) != 1 {
		return "", fmt.Errorf("engine version: unexpected shape %T", v)
	}
	s.mu.Lock()
	s.version = strs[0]
	s.mu.Unlock()
	return strs[0], nil
}

// Shutdown asks the engine to exit cleanly, then tears down both
// channels. Idempotent: the second call is a no-op returning nil.
// Every operation after Shutdown fails with an engine-closed error.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	chErr := s.chn.Close()
	if err := s.eng.Terminate(exitDirective); err != nil {
		return err
	}
	return chErr
}

// checkOpen translates the closed flag into the error every
// post-shutdown operation must surface.
func (s *Session) checkOpen(op string) error {
	if s.closed {
		return &engine.ClosedError{Op: op}
	}
	return nil
}

// record notifies the configured Recorder, if any.
func (s *Session) record(op, code string, ok bool, detail string) {
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.Record(s.id, op, code, ok, detail)
	}
}
