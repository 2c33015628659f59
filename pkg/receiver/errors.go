// ABOUTME: Error types surfaced by the receiver
// ABOUTME: Config and bind failures reach Start's caller, the rest become status
package receiver

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start when the server is not Idle
	ErrAlreadyRunning = errors.New("server already running")

	// ErrSinkStopped is returned when feeding a stopped sink
	ErrSinkStopped = errors.New("playback sink stopped")

	// ErrNoBackend is returned by Start when Options.Backend is nil
	ErrNoBackend = errors.New("no audio backend configured")
)

// ConfigError reports an invalid Config. Nothing has been acquired when it
// is returned.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// BindError reports that the listening socket could not be opened
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}
