package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Registry errors
	ErrTransport           = errors.New("registry transport failure")
	ErrRegistryUnreachable = errors.New("no registry endpoint reachable")
	ErrRequestRejected     = errors.New("registry rejected request")
	ErrRegistrationFailed  = errors.New("registration failed")

	// State errors
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
)

// Error kinds used in ClientError.Kind
const (
	KindConfig    = "config"
	KindTransport = "transport"
	KindRegistry  = "registry"
	KindState     = "state"
)

// ClientError provides structured error information with context
// It implements the error interface and supports error wrapping
type ClientError struct {
	Op      string // Operation that failed (e.g., "registry.Register")
	Kind    string // Error kind (e.g., "transport", "registry", "config")
	ID      string // Optional ID of the entity involved (endpoint URL, instance ID)
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *ClientError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *ClientError) Unwrap() error {
	return e.Err
}

// NewClientError creates a new ClientError
func NewClientError(op, kind string, err error) *ClientError {
	return &ClientError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// ConfigError builds a ClientError of kind config around one of the
// configuration sentinels.
func ConfigError(op, message string, sentinel error) *ClientError {
	return &ClientError{
		Op:      op,
		Kind:    KindConfig,
		Message: message,
		Err:     fmt.Errorf("%s: %w", message, sentinel),
	}
}

// IsTransportError reports whether err is a single-endpoint transport failure.
// Transport failures are what make the endpoint set move on to the next URL.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsUnreachable reports whether every configured registry endpoint failed
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrRegistryUnreachable)
}

// IsRejected reports whether a registry answered with a non-success status
func IsRejected(err error) bool {
	return errors.Is(err, ErrRequestRejected)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// IsStateError checks if an error is related to invalid state transitions
func IsStateError(err error) bool {
	return errors.Is(err, ErrAlreadyStarted) ||
		errors.Is(err, ErrNotStarted)
}
