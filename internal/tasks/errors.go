package tasks

import (
	"errors"
	"fmt"
)

type ErrorType int

const (
	ErrValidation ErrorType = iota
	ErrNotFound
	ErrConflict
	ErrCollaborator
	ErrTimeout
	ErrInfrastructure
)

func (t ErrorType) String() string {
	switch t {
	case ErrValidation:
		return "Validation"
	case ErrNotFound:
		return "NotFound"
	case ErrConflict:
		return "Conflict"
	case ErrCollaborator:
		return "Collaborator"
	case ErrTimeout:
		return "Timeout"
	case ErrInfrastructure:
		return "Infrastructure"
	default:
		return "Unknown"
	}
}

// Error is the domain error: a type from the taxonomy above, a message, and
// an optional cause. Validation, NotFound and Conflict errors are surfaced
// synchronously to callers; Collaborator failures are recorded on exactly one
// translation row; Infrastructure failures are retried by the dispatcher.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

func Errorf(errorType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errorType, Message: fmt.Sprintf(format, args...)}
}

func WrapError(err error, errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message, Cause: err}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsErrorType reports whether err (or anything it wraps) is a domain error
// of the given type.
func IsErrorType(err error, errorType ErrorType) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Type == errorType
	}
	return false
}
