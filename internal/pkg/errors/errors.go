package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnavailable marks an optional collaborator that is not configured or not reachable.
	ErrUnavailable = errors.New("unavailable")
)

// ConnectionError marks a collaborator (source database, graph store) that
// could not be opened or reached at startup. It is fatal for a run.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return "connect " + e.Target + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }
