package supervisor

import (
	"errors"
	"fmt"
)

// softError marks outcomes that are reported to the UI as info events.
type softError string

func (e softError) Error() string { return string(e) }

// Soft reports true; see relay.IsSoft.
func (softError) Soft() bool { return true }

var (
	// ErrAlreadyRunning is returned by Start while a worker is alive.
	ErrAlreadyRunning error = softError("already running")

	// ErrNotRunning is returned by Stop when there is nothing to stop.
	ErrNotRunning error = softError("not running")
)

// ErrClosed is returned by Start after Teardown.
var ErrClosed = errors.New("supervisor closed")

// SpawnError is an OS-level failure to create the worker process.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
