package bridge

import (
	"fmt"
	"net"

	"rbridge/pkg/protocol"
)

// Completeness classifies a code fragment.
type Completeness int

const (
	// Complete code parses as-is and may be submitted.
	Complete Completeness = iota

	// Incomplete code fails to parse only because input ended early;
	// a REPL should accumulate another line.
	Incomplete

	// Unrecoverable code will never parse no matter what is appended.
	Unrecoverable
)

func (c Completeness) String() string {
	switch c {
	case Complete:
		return "complete"
	case Incomplete:
		return "incomplete"
	case Unrecoverable:
		return "unrecoverable"
	default:
		return "invalid"
	}
}

// ProbeResult is the oracle's verdict on one fragment. Position fields
// are populated only for non-Complete states. Results are derived
// fresh per call and never cached across engine mutations.
type ProbeResult struct {
	State     Completeness
	Line      int
	Column    int
	AtEnd     bool
	Offending string
}

// IsComplete asks the engine itself whether code is syntactically
// complete. The fragment travels as a Character value into a temporary
// engine-side slot; the engine parses it and reports a status integer,
// plus structured position data when parsing failed.
func (s *Session) IsComplete(code string) (ProbeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probeLocked(code)
}

// probeLocked runs the probe round trips. Caller holds s.mu.
func (s *Session) probeLocked(code string) (ProbeResult, error) {
	if err := s.checkOpen("probe"); err != nil {
		return ProbeResult{}, err
	}

	var res ProbeResult
	err := s.chn.With(func(conn net.Conn) error {
		if err := s.eng.WriteLine(glueProbeLoad); err != nil {
			return err
		}
		if err := s.codec.Encode(conn, protocol.Characters([]string{code})); err != nil {
			return fmt.Errorf("send probe code: %w", err)
		}
		if err := s.eng.WriteLine(glueProbeRun); err != nil {
			return err
		}
		status, err := s.readStatus(conn, "probe status")
		if err != nil {
			return err
		}

		switch status {
		case 0:
			res.State = Complete
			return nil
		case 1:
			res.State = Incomplete
		default:
			res.State = Unrecoverable
		}

		// Second round trip: structured parse-position data.
		if err := s.eng.WriteLine(glueProbeDetail); err != nil {
			return err
		}
		pos, err := s.codec.Decode(conn)
		if err != nil {
			return fmt.Errorf("read probe position: %w", err)
		}
		if pos.Kind == protocol.KindInteger && pos.Len() == 3 {
			res.Line = int(pos.Int(0))
			res.Column = int(pos.Int(1))
			res.AtEnd = pos.Int(2) == 1
		}
		off, err := s.codec.Decode(conn)
		if err != nil {
			return fmt.Errorf("read probe detail: %w", err)
		}
		if off.Kind == protocol.KindCharacter && off.Len() == 1 && !off.IsNA(0) {
			res.Offending = off.Str(0)
		}
		return nil
	})
	if err != nil {
		return ProbeResult{}, err
	}
	return res, nil
}

// IsAssignable reports whether name is a valid assignment target. An
// unparseable name is a *ParseError; a parseable name that the engine
// cannot assign to (a locked binding, say) reports false without
// propagating the engine's own error text.
func (s *Session) IsAssignable(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignableLocked(name)
}

func (s *Session) assignableLocked(name string) (bool, error) {
	probe, err := s.probeLocked(name)
	if err != nil {
		return false, err
	}
	if probe.State != Complete {
		return false, &ParseError{Code: name, Result: probe}
	}

	ok := false
	err = s.chn.With(func(conn net.Conn) error {
		if err := s.eng.WriteLine(glueAssignableLoad); err != nil {
			return err
		}
		if err := s.codec.Encode(conn, protocol.Characters([]string{name})); err != nil {
			return fmt.Errorf("send assignable target: %w", err)
		}
		if err := s.eng.WriteLine(glueAssignableRun); err != nil {
			return err
		}
		status, err := s.readStatus(conn, "assignable status")
		if err != nil {
			return err
		}
		ok = status == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// readStatus decodes a single-element Integer reply.
func (s *Session) readStatus(conn net.Conn, what string) (int32, error) {
	v, err := s.codec.Decode(conn)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", what, err)
	}
	if v.Kind != protocol.KindInteger || v.Len() != 1 {
		return 0, &protocol.ProtocolError{
			Op:     "decode " + what,
			Detail: fmt.Sprintf("expected one integer, got %s of length %d", v.Kind, v.Len()),
		}
	}
	return v.Int(0), nil
}
