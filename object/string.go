package object

import (
	"fmt"
	"strings"
)

// String wraps string and implements the Object interface.
type String struct {
	value string
}

func (s *String) GetAttr(name string) (Object, bool) {
	return nil, false
}

func (s *String) SetAttr(name string, value Object) error {
	return TypeErrorf("string has no attribute %q", name)
}

func (s *String) Type() Type {
	return STRING
}

func (s *String) Value() string {
	return s.value
}

func (s *String) Inspect() string {
	return fmt.Sprintf("%q", s.value)
}

func (s *String) String() string {
	return s.value
}

func (s *String) Interface() interface{} {
	return s.value
}

func (s *String) Equals(other Object) bool {
	otherStr, ok := other.(*String)
	if !ok {
		return false
	}
	return s.value == otherStr.value
}

func (s *String) IsTruthy() bool {
	return s.value != ""
}

func (s *String) Len() int {
	return len(s.value)
}

func (s *String) HasPrefix(prefix string) bool {
	return strings.HasPrefix(s.value, prefix)
}

func NewString(value string) *String {
	return &String{value: value}
}
