// Package apperr defines the error taxonomy shared by the client packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConfiguration  = errors.New("configuration error")
	ErrTransport      = errors.New("connection error")
	ErrAuthentication = errors.New("authentication failed")
	ErrAPI            = errors.New("api error")
	ErrCorruptMarker  = errors.New("corrupt marker")
	ErrWrite          = errors.New("write error")
	ErrCancelled      = errors.New("cancelled")
)

// Configuration returns an error wrapping ErrConfiguration.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// APIError is returned for any non-auth HTTP error status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return ErrAPI }

// CorruptMarkerError reports a marker whose stored form cannot be decoded.
type CorruptMarkerError struct {
	Key string
	Err error
}

func (e *CorruptMarkerError) Error() string {
	return fmt.Sprintf("corrupt marker %s: %v", e.Key, e.Err)
}

func (e *CorruptMarkerError) Unwrap() []error { return []error{ErrCorruptMarker, e.Err} }

// WriteError reports a failure to persist output.
type WriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *WriteError) Unwrap() []error { return []error{ErrWrite, e.Err} }
