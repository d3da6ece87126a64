package object

import (
	"fmt"

	"github.com/tembo-lang/tembo/errz"
)

// Error wraps a Go error interface and implements Object.
type Error struct {
	*base
	err    error
	raised bool
}

func (e *Error) Type() Type {
	return ERROR
}

func (e *Error) Inspect() string {
	return fmt.Sprintf("error(%q)", e.err.Error())
}

func (e *Error) String() string {
	return e.err.Error()
}

func (e *Error) Value() error {
	return e.err
}

func (e *Error) Interface() interface{} {
	return e.err
}

func (e *Error) Equals(other Object) bool {
	otherError, ok := other.(*Error)
	if !ok {
		return false
	}
	return e.Message().Value() == otherError.Message().Value() && e.raised == otherError.raised
}

func (e *Error) GetAttr(name string) (Object, bool) {
	switch name {
	case "message":
		return e.Message(), true
	case "kind":
		if kind, ok := errz.KindOf(e.err); ok {
			return NewString(kind.String()), true
		}
		return NewString("error"), true
	}
	return nil, false
}

func (e *Error) Message() *String {
	return NewString(e.err.Error())
}

func (e *Error) WithRaised(value bool) *Error {
	e.raised = value
	return e
}

func (e *Error) IsRaised() bool {
	return e.raised
}

func (e *Error) Error() string {
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

func Errorf(format string, a ...interface{}) *Error {
	var args []interface{}
	for _, arg := range a {
		if obj, ok := arg.(Object); ok {
			args = append(args, obj.Interface())
		} else {
			args = append(args, arg)
		}
	}
	return &Error{err: fmt.Errorf(format, args...), raised: true}
}

func NewError(err error) *Error {
	if inner, ok := err.(*Error); ok {
		// unwrap to get the inner error, to avoid unhelpful nesting
		return &Error{err: inner.Unwrap(), raised: true}
	}
	return &Error{err: err, raised: true}
}

func IsError(obj Object) bool {
	if obj != nil {
		return obj.Type() == ERROR
	}
	return false
}
