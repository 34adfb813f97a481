package protocol

import "math"

// Kind is the wire type tag carried ahead of every encoded value.
type Kind int32

// Wire type tags. Negative tags are control results produced by the
// engine when a requested object cannot be serialized.
const (
	// KindNotFound reports that the requested name does not exist in
	// the engine's environment.
	KindNotFound Kind = -2

	// KindUnknown reports that the engine-side value has no wire
	// encoding; the payload carries a diagnostic string.
	KindUnknown Kind = -1

	// KindDouble is a vector of 64-bit floats with a trailing
	// missing-index list.
	KindDouble Kind = 0

	// KindInteger is a vector of 32-bit signed ints; NAInteger marks
	// a missing element.
	KindInteger Kind = 1

	// KindCharacter is a vector of length-prefixed byte strings; a
	// negative length marks a missing element.
	KindCharacter Kind = 2

	// KindLogical is a vector of tri-state booleans stored as int32
	// (0 false, 1 true, NAInteger missing).
	KindLogical Kind = 3

	// KindMatrix wraps an element vector with row/column extents.
	// Elements travel row-major.
	KindMatrix Kind = 4
)

// NAInteger is the reserved bit pattern meaning "missing" in Integer
// and Logical payloads. It matches the engine's native NA_integer_
// representation, so a legitimate integer with this value must be
// promoted to Double before transmission.
const NAInteger int32 = math.MinInt32

// MaxInteger and MinInteger bound the values representable as wire
// integers. Anything outside promotes to Double.
const (
	MaxInteger = int64(math.MaxInt32)
	MinInteger = int64(math.MinInt32) + 1
)

// MissingString is the byte length written for a missing Character
// element. No payload bytes follow it.
const MissingString int32 = -1

// Text-channel sentinel flags. These strings are embedded in generated
// engine-side statements once per session and matched against echoed
// output for the session's lifetime.
const (
	// EvalFlag prefixes the completion sentinel. The full sentinel is
	// EvalFlag + "." + runCounter, printed by the engine and echoed
	// back as a quoted string.
	EvalFlag = "RBRIDGE.EVAL.FLAG"

	// StderrFlag prefixes message-stream lines when stderr capture is
	// enabled. The pipeline strips it before delivering the line.
	StderrFlag = "RBRIDGE.STDERR.FLAG"
)

// DefaultMaxElements is the decode sanity ceiling: a declared vector
// length or string byte length above this is a protocol error, since
// it almost certainly means the stream framing has been lost.
const DefaultMaxElements = 1 << 26

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "notfound"
	case KindUnknown:
		return "unknown"
	case KindDouble:
		return "double"
	case KindInteger:
		return "integer"
	case KindCharacter:
		return "character"
	case KindLogical:
		return "logical"
	case KindMatrix:
		return "matrix"
	default:
		return "invalid"
	}
}
