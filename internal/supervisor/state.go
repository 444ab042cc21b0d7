// Package supervisor owns the single openceci worker process.
package supervisor

// State represents the current state of the supervisor.
type State int

const (
	// StateIdle means no worker handle exists.
	StateIdle State = iota

	// StateRunning means a worker process has been spawned and not yet reaped.
	StateRunning
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}
