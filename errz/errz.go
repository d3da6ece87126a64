// Package errz defines the error taxonomy shared by the runtime core.
package errz

import (
	"errors"
	"fmt"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// ErrType indicates a wrong argument shape or arity.
	ErrType ErrorKind = iota
	// ErrValue indicates a value that is present but outside its allowed domain.
	ErrValue
	// ErrIO indicates a native syscall or reactor failure.
	ErrIO
	// ErrSerialize indicates an encode failure in the binary codec.
	ErrSerialize
	// ErrDeserialize indicates a decode failure in the binary codec,
	// including integrity-check failures and truncated input.
	ErrDeserialize
	// ErrThread indicates misuse of a concurrency primitive.
	ErrThread
	// ErrRuntime indicates a general runtime error.
	ErrRuntime
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrType:
		return "type error"
	case ErrValue:
		return "value error"
	case ErrIO:
		return "io error"
	case ErrSerialize:
		return "serialize error"
	case ErrDeserialize:
		return "deserialize error"
	case ErrThread:
		return "thread error"
	case ErrRuntime:
		return "runtime error"
	default:
		return "error"
	}
}

// Error is a categorized error with an optional underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCause wraps the error with a cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// New creates a new Error with the given kind and message.
func New(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err if it is (or wraps) an *Error, along with
// whether such an error was found.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
