package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")

	// ErrNotImplemented indicates a capability is not implemented
	ErrNotImplemented = errors.New("not implemented")
)

// Call session errors

var (
	// ErrConnection indicates a transport-level failure on the telephony or backend leg
	ErrConnection = errors.New("connection error")

	// ErrProtocol indicates a malformed control or event message
	ErrProtocol = errors.New("protocol error")

	// ErrTranscode indicates a per-frame audio conversion failure
	ErrTranscode = errors.New("transcode error")

	// ErrConfiguration indicates no route or agent could be resolved for a call
	ErrConfiguration = errors.New("configuration error")

	// ErrSessionClosed indicates the session reached a terminal state
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidTransition indicates a disallowed session state transition
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrDuplicateSession indicates a session id is already owned by an orchestrator
	ErrDuplicateSession = errors.New("session id already registered")
)

// Tool dispatch errors

var (
	// ErrTool indicates a tool handler failed
	ErrTool = errors.New("tool error")

	// ErrToolNotGranted indicates a tool name outside the agent allowlist
	ErrToolNotGranted = errors.New("capability not granted")

	// ErrToolDeadline indicates a tool invocation exceeded its deadline
	ErrToolDeadline = errors.New("tool deadline exceeded")
)

// Backend stream errors

var (
	// ErrBackendClosed indicates the model stream ended from the remote side
	ErrBackendClosed = errors.New("backend stream closed")

	// ErrBackendRetryable indicates a transport fault worth one reconnect attempt
	ErrBackendRetryable = errors.New("retryable backend transport error")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MultiError wraps multiple errors
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors (%d): %v", len(m.Errors), m.Errors[0])
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
