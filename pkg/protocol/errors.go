package protocol

import "fmt"

// ProtocolError reports a framing or tag violation on the binary
// channel. Once one occurs the stream position can no longer be
// trusted, so the owning session must be torn down rather than reused.
type ProtocolError struct {
	Op     string // operation in progress ("decode tag", "decode length", ...)
	Detail string // human-readable description
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error during %s: %s", e.Op, e.Detail)
}

// LengthError is a ProtocolError specialization for declared lengths
// that exceed the decoder's sanity ceiling. It enables errors.As
// discrimination when a caller wants to distinguish "stream is
// garbage" from "value is legitimately huge".
type LengthError struct {
	Kind     Kind
	Declared int64
	Ceiling  int64
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("declared %s length %d exceeds sanity ceiling %d",
		e.Kind, e.Declared, e.Ceiling)
}

// ConversionError reports a Go value that has no wire encoding under
// the assign policy (unsupported type, ragged matrix, and so on).
type ConversionError struct {
	GoType string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot encode Go value of type %s: %s", e.GoType, e.Reason)
}
