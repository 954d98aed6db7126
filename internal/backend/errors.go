package backend

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Check after Close.
var ErrClosed = errors.New("backend closed")

// ConfigError reports invalid or missing backend parameters. It is fatal at
// startup and never retried.
type ConfigError struct {
	Field string
	Msg   string
	Err   error
}

func (e *ConfigError) Error() string {
	msg := "invalid backend configuration"
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// LaunchError reports that a checking process could not be started after
// all attempts.
type LaunchError struct {
	Command  string
	Attempts int
	Err      error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s failed after %d attempt(s): %v", e.Command, e.Attempts, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ConnectionError reports that a single request failed after all retries.
type ConnectionError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("check request to %s failed after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConfig reports whether err is a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsLaunch reports whether err is a LaunchError.
func IsLaunch(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}

// IsConnection reports whether err is a ConnectionError.
func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
