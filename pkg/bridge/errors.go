package bridge

import (
	"errors"
	"fmt"
)

// ErrInterrupted reports that an evaluation was cancelled and the
// engine interrupted. It is a result, not a failure: the session
// remains usable and the caller decides whether to continue.
var ErrInterrupted = errors.New("evaluation interrupted")

// ParseError reports code the completeness oracle refused: incomplete
// or unrecoverable fragments, or an invalid assignment target. It is
// recoverable; the caller may re-prompt.
type ParseError struct {
	Code   string
	Result ProbeResult
}

func (e *ParseError) Error() string {
	switch e.Result.State {
	case Incomplete:
		return fmt.Sprintf("incomplete code %q", e.Code)
	case Unrecoverable:
		return fmt.Sprintf("unparseable code %q at %d:%d: %s",
			e.Code, e.Result.Line, e.Result.Column, e.Result.Offending)
	default:
		return fmt.Sprintf("invalid code %q", e.Code)
	}
}

// UnsupportedTypeError reports an engine-side value with no wire
// encoding. Diagnostic names the engine-side class. Recoverable: the
// caller may coerce engine-side and retry.
type UnsupportedTypeError struct {
	Name       string
	Diagnostic string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("value %q has no wire encoding (engine type %s)", e.Name, e.Diagnostic)
}
