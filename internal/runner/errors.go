package runner

import "errors"

var (
	// ErrProcessRunning is returned when a run is requested while one is active.
	ErrProcessRunning = errors.New("process already running")
	// ErrDisconnected is returned when a run is requested without a live channel.
	ErrDisconnected = errors.New("not connected")
	// ErrInvalidPath is returned when the run path is empty after normalization.
	ErrInvalidPath = errors.New("invalid path")
	// ErrNotRunning is returned by stop when no process is running.
	ErrNotRunning = errors.New("no process running")
)
