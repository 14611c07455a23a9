package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRunning is returned when a command or stop is issued with no live process.
	ErrNotRunning = errors.New("game server is not running")

	// ErrStopInProgress is returned when a start is attempted while a previous
	// process is still being shut down.
	ErrStopInProgress = errors.New("game server stop is in progress")

	// ErrCommandRequired is returned when no server command is configured.
	ErrCommandRequired = errors.New("server command is required")

	// ErrRunNotFound is returned when a run record is not found.
	ErrRunNotFound = errors.New("run not found")
)

// SpawnError reports a failure to launch the game server process, such as a
// missing binary, a permission problem, or a bad working directory.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
