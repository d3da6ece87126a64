package object

import (
	"math"
	"strconv"
)

// Float wraps float64 and implements the Object interface. It is the one
// numeric type in the value model.
type Float struct {
	value float64
}

func (f *Float) GetAttr(name string) (Object, bool) {
	return nil, false
}

func (f *Float) SetAttr(name string, value Object) error {
	return TypeErrorf("float has no attribute %q", name)
}

func (f *Float) Inspect() string {
	return strconv.FormatFloat(f.value, 'f', -1, 64)
}

func (f *Float) Type() Type {
	return FLOAT
}

func (f *Float) Value() float64 {
	return f.value
}

func (f *Float) Interface() interface{} {
	return f.value
}

func (f *Float) String() string {
	return f.Inspect()
}

func (f *Float) Equals(other Object) bool {
	otherFloat, ok := other.(*Float)
	if !ok {
		return false
	}
	if math.IsNaN(f.value) && math.IsNaN(otherFloat.value) {
		return true
	}
	return f.value == otherFloat.value
}

func (f *Float) IsTruthy() bool {
	return f.value != 0.0
}

func NewFloat(value float64) *Float {
	return &Float{value: value}
}
