package session

import (
	"errors"
	"fmt"
)

// ConfigError reports a missing or unusable setting. Nothing has been
// touched when it is returned.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

var ErrMissingCredential = &ConfigError{
	Field: "api_key",
	Err:   errors.New("no API key configured (run: pulse setkey <key>)"),
}

var ErrAlreadyActive = errors.New("session already connecting or connected")

// DeviceError reports a microphone that could not be opened.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("microphone: %v", e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// TransportError reports a failure of the live connection. Op is one of
// dial, send, recv or remote.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("live %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
