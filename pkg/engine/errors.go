package engine

import "fmt"

// LaunchError reports that the engine subprocess could not be spawned.
// It is fatal: there is no session to recover.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch engine %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ClosedError reports an operation attempted after the engine was
// terminated or its text stream closed. It is never retried
// automatically; the session must be relaunched.
type ClosedError struct {
	Op string
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("engine closed (%s)", e.Op)
}
