package process

// State represents the lifecycle state of a Handle.
type State int

const (
	// StateStarting indicates the process is being spawned.
	StateStarting State = iota

	// StateRunning indicates the process is running.
	StateRunning

	// StateExited indicates the process exited on its own.
	StateExited

	// StateKilled indicates the process was terminated through the Handle.
	StateKilled
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the process is gone.
func (s State) IsTerminal() bool {
	return s == StateExited || s == StateKilled
}
