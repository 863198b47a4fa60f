package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrInvalidGeometry   = fmt.Errorf("geometry: %w", ErrInvalidInput)
	ErrNoRegion          = fmt.Errorf("no active region: %w", ErrConflict)
	ErrNoResult          = fmt.Errorf("no extraction result: %w", ErrConflict)
	ErrAlreadyInProgress = fmt.Errorf("extraction already in progress: %w", ErrConflict)
	ErrRegionChanged     = fmt.Errorf("region changed during extraction, result discarded: %w", ErrConflict)
	ErrSessionNotFound   = fmt.Errorf("session: %w", ErrNotFound)
	ErrTooManySessions   = fmt.Errorf("session limit reached: %w", ErrUnavailable)
	ErrTransport         = fmt.Errorf("transport: %w", ErrUnavailable)
	ErrUnknownFormat     = fmt.Errorf("export format: %w", ErrInvalidInput)
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// GeometryError reports a malformed region.
type GeometryError struct {
	Index  int    // Offending vertex, -1 for the ring as a whole
	Reason string // Human-readable reason
	Err    error  // Underlying validation error, if any
}

// Error implements the error interface.
func (e *GeometryError) Error() string {
	msg := "invalid geometry: " + e.Reason
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s at point %d", msg, e.Index)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns ErrInvalidGeometry and the underlying cause.
func (e *GeometryError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidGeometry}
	}
	return []error{ErrInvalidGeometry, e.Err}
}

// TransportError represents a failed call to the remote spatial query service.
type TransportError struct {
	Status  int    // HTTP status code, 0 if no response was received
	Message string // Response excerpt or description
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("transport error (status %d): %s: %v", e.Status, e.Message, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("transport error (status %d): %s", e.Status, e.Message)
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("transport error: %s: %v", e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("transport error: %v", e.Err)
	default:
		return "transport error: " + e.Message
	}
}

// Unwrap returns ErrTransport and the underlying cause.
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// StorageError represents an error during export storage operations.
type StorageError struct {
	Operation string // Operation that failed (save, encode, ...)
	Key       string // Object key or file name
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
