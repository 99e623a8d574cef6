package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider and orchestration failures. The orchestrator
// branches on the kind, never on provider-specific error codes.
type ErrorKind string

const (
	// ErrorKindNotFound indicates the target resource does not exist.
	// Tolerated during every delete step.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindTimeout indicates a readiness wait elapsed before the
	// resource reported ready.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindValidation indicates the provider (or the orchestrator itself)
	// rejected the request as malformed.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindConflict indicates the resource already exists or is still
	// referenced by something else.
	ErrorKindConflict ErrorKind = "conflict"

	// ErrorKindUnavailable covers transport failures, throttling and any
	// provider error that does not fit another kind.
	ErrorKindUnavailable ErrorKind = "unavailable"
)

// Error is a classified error with the resource and operation that produced it.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is the provider error code, if any (e.g. "NoSuchEntity").
	Code string `json:"code,omitempty"`

	// Resource is the name or ARN of the resource involved.
	Resource string `json:"resource,omitempty"`

	// Operation is the provider operation being performed.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	switch {
	case e.Resource != "" && e.Operation != "":
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s)", e.Kind, msg, e.Resource, e.Operation)
	case e.Resource != "":
		return fmt.Sprintf("[%s] %s (resource=%s)", e.Kind, msg, e.Resource)
	default:
		return fmt.Sprintf("[%s] %s", e.Kind, msg)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. An empty Code on
// the target matches any code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// KindName returns the kind as a plain string for metric labels.
func (e *Error) KindName() string {
	return string(e.Kind)
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(message string, err error) *Error {
	return NewError(ErrorKindNotFound, message, err)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(message string, err error) *Error {
	return NewError(ErrorKindTimeout, message, err)
}

// NewValidationError creates a validation error.
func NewValidationError(message string, err error) *Error {
	return NewError(ErrorKindValidation, message, err)
}

// NewConflictError creates a conflict error.
func NewConflictError(message string, err error) *Error {
	return NewError(ErrorKindConflict, message, err)
}

// NewUnavailableError creates an unavailable error.
func NewUnavailableError(message string, err error) *Error {
	return NewError(ErrorKindUnavailable, message, err)
}

// WithResource adds resource context to an error.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCode adds a provider error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or
// ErrorKindUnavailable for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindUnavailable
}

// IsNotFound returns true if the error is classified as not found.
func IsNotFound(err error) bool {
	return isKind(err, ErrorKindNotFound)
}

// IsTimeout returns true if the error is classified as a timeout.
func IsTimeout(err error) bool {
	return isKind(err, ErrorKindTimeout)
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	return isKind(err, ErrorKindValidation)
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	return isKind(err, ErrorKindConflict)
}

// IsUnavailable returns true if the error is classified as unavailable.
func IsUnavailable(err error) bool {
	return isKind(err, ErrorKindUnavailable)
}

func isKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
