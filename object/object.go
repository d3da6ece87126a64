// Package object provides the closed set of value types that the runtime
// core operates on.
//
// Callers will often type assert an object.Object to a specific type:
//
//	switch obj := obj.(type) {
//	case *object.String:
//		// do something with obj.Value()
//	case *object.Float:
//		// do something with obj.Value()
//	}
//
// The Type() method of each object may also be used to get a string
// name of the object type, such as "string" or "float".
package object

import (
	"context"

	"github.com/tembo-lang/tembo/errz"
)

// Type of an object as a string.
type Type string

// Type constants
const (
	BOOL    Type = "bool"
	BUILTIN Type = "builtin"
	BYTES   Type = "bytes"
	ERROR   Type = "error"
	FLOAT   Type = "float"
	HOLE    Type = "hole"
	LIST    Type = "list"
	MAP     Type = "map"
	MODULE  Type = "module"
	NIL     Type = "nil"
	RANGE   Type = "range"
	REGEX   Type = "regex"
	STRING  Type = "string"
	TIME    Type = "time"
)

var (
	Nil   = &NilType{}
	True  = &Bool{value: true}
	False = &Bool{value: false}
)

// Object is the interface that all value types must implement.
type Object interface {
	// Type of the object.
	Type() Type

	// Inspect returns a string representation of the given object.
	Inspect() string

	// Interface converts the given object to a native Go value.
	Interface() interface{}

	// Returns true if the given object is equal to this object.
	Equals(other Object) bool

	// GetAttr returns the attribute with the given name from this object.
	GetAttr(name string) (Object, bool)

	// SetAttr sets the attribute with the given name on this object.
	SetAttr(name string, value Object) error

	// IsTruthy returns true if the object is considered "truthy".
	IsTruthy() bool
}

// Callable is an interface for objects that can be invoked as functions.
// Builtins implement it directly; interpreted function handles supplied by
// an embedding evaluator are expected to implement it as well.
type Callable interface {
	// Call invokes the callable with the given arguments and returns the result.
	Call(ctx context.Context, args ...Object) (Object, error)
}

// NewBool returns the Bool singleton for the given value.
func NewBool(value bool) *Bool {
	if value {
		return True
	}
	return False
}

// TypeErrorf returns an Error object containing a type error.
func TypeErrorf(format string, args ...interface{}) *Error {
	return NewError(errz.Errorf(errz.ErrType, format, args...))
}

// ArgsErrorf returns an Error object containing an arguments error. The
// format is expected to carry its own "args error:" prefix.
func ArgsErrorf(format string, args ...interface{}) *Error {
	return Errorf(format, args...)
}

// ValueErrorf returns an Error object containing a value error.
func ValueErrorf(format string, args ...interface{}) *Error {
	return NewError(errz.Errorf(errz.ErrValue, format, args...))
}
