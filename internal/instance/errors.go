package instance

import (
	"errors"
	"fmt"
)

// State errors are caller misuse, returned synchronously and never logged as
// faults. The caller may retry once the state permits.
var (
	ErrAlreadyStarting = errors.New("instance is already starting")
	ErrAlreadyStopping = errors.New("instance is already stopping")
	ErrAlreadyRunning  = errors.New("instance is already running")
	ErrNotRunning      = errors.New("instance is not running")
	ErrStdinClosed     = errors.New("stdin is not open")

	ErrAdminChannelNotConnected = errors.New("admin channel is not connected")
)

// SpawnError reports that the OS failed to create the child process. The
// instance reverts to Stopped.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn server process: %v", e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
