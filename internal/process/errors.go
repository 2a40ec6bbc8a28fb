package process

import "fmt"

// SpawnError reports that a process could not be created: the executable
// was not found or the OS refused to start it. Spawns are never retried.
type SpawnError struct {
	Command Command
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command.Name(), e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
