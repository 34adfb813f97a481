package bridge

import (
	"fmt"
	"net"

	"rbridge/pkg/protocol"
)

// Assign converts value under the encoding policy (see
// protocol.FromAny), validates that name is assignable, then streams
// the value over the binary channel behind a generated assignment
// statement. Matrices travel row-major; the engine rebuilds them
// column-major.
func (s *Session) Assign(name string, value any) error {
	v, err := protocol.FromAny(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("assign"); err != nil {
		return err
	}

	ok, err := s.assignableLocked(name)
	if err != nil {
		return err
	}
	if !ok {
		s.record("assign", name, false, "not assignable")
		return &ParseError{Code: name, Result: ProbeResult{State: Unrecoverable, Offending: name}}
	}

	err = s.chn.With(func(conn net.Conn) error {
		if err := s.eng.WriteLine(glueAssign(name)); err != nil {
			return err
		}
		if err := s.codec.Encode(conn, v); err != nil {
			return fmt.Errorf("send %s: %w", name, err)
		}
		return nil
	})
	s.record("assign", name, err == nil, "")
	return err
}

// Pull evaluates name engine-side and decodes the result to a native
// Go value. A one-element non-text vector unwraps to a scalar. A name
// that does not resolve yields nil (the missing-value result); an
// engine value with no wire encoding yields *UnsupportedTypeError.
func (s *Session) Pull(name string) (any, error) {
	return s.pull(name, false)
}

// PullSingleton is Pull without scalar unwrapping: one-element vectors
// stay slices.
func (s *Session) PullSingleton(name string) (any, error) {
	return s.pull(name, true)
}

func (s *Session) pull(name string, singleton bool) (any, error) {
	v, err := s.PullValue(name)
	if err != nil {
		return nil, err
	}
	if v.Kind == protocol.KindNotFound {
		return nil, nil
	}
	return v.ToAny(singleton), nil
}

// PullValue is Pull at the wire level: it returns the decoded tagged
// value untouched, including KindNotFound.
func (s *Session) PullValue(name string) (protocol.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("pull"); err != nil {
		return protocol.Value{}, err
	}

	// The name must at least parse as an expression before it is
	// spliced into engine-side evaluation.
	probe, err := s.probeLocked(name)
	if err != nil {
		return protocol.Value{}, err
	}
	if probe.State != Complete {
		s.record("pull", name, false, "parse: "+probe.State.String())
		return protocol.Value{}, &ParseError{Code: name, Result: probe}
	}

	var v protocol.Value
	err = s.chn.With(func(conn net.Conn) error {
		if err := s.eng.WriteLine(gluePullLoad); err != nil {
			return err
		}
		if err := s.codec.Encode(conn, protocol.Characters([]string{name})); err != nil {
			return fmt.Errorf("send pull target: %w", err)
		}
		if err := s.eng.WriteLine(gluePullRun); err != nil {
			return err
		}
		v, err = s.codec.Decode(conn)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		s.record("pull", name, false, err.Error())
		return protocol.Value{}, err
	}

	if v.Kind == protocol.KindUnknown {
		s.record("pull", name, false, "unsupported: "+v.Diagnostic)
		return protocol.Value{}, &UnsupportedTypeError{Name: name, Diagnostic: v.Diagnostic}
	}
	s.record("pull", name, true, v.Kind.String())
	return v, nil
}
