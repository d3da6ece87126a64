package object

import (
	"context"
	"fmt"
)

var _ Callable = (*Builtin)(nil) // Ensure that *Builtin implements Callable

// BuiltinFunction holds the type of a built-in function.
type BuiltinFunction func(ctx context.Context, args ...Object) (Object, error)

// Builtin wraps func and implements Object interface.
type Builtin struct {
	// The function that this object wraps.
	fn BuiltinFunction

	// The name of the function.
	name string

	// The module the function originates from (optional).
	module *Module
}

func (b *Builtin) SetAttr(name string, value Object) error {
	return TypeErrorf("builtin has no attribute %q", name)
}

func (b *Builtin) IsTruthy() bool {
	return true
}

func (b *Builtin) Type() Type {
	return BUILTIN
}

func (b *Builtin) Value() BuiltinFunction {
	return b.fn
}

func (b *Builtin) Interface() interface{} {
	return nil
}

func (b *Builtin) Call(ctx context.Context, args ...Object) (Object, error) {
	return b.fn(ctx, args...)
}

func (b *Builtin) Inspect() string {
	if b.module == nil {
		return fmt.Sprintf("builtin(%s)", b.name)
	}
	return fmt.Sprintf("builtin(%s.%s)", b.module.name, b.name)
}

func (b *Builtin) String() string {
	return b.Inspect()
}

func (b *Builtin) Name() string {
	return b.name
}

func (b *Builtin) GetAttr(name string) (Object, bool) {
	switch name {
	case "__name__":
		return NewString(b.Key()), true
	case "__module__":
		if b.module != nil {
			return b.module, true
		}
		return Nil, true
	}
	return nil, false
}

// Returns a string that uniquely identifies this builtin function.
func (b *Builtin) Key() string {
	if b.module == nil {
		return b.name
	}
	return fmt.Sprintf("%s.%s", b.module.name, b.name)
}

func (b *Builtin) Equals(other Object) bool {
	otherBuiltin, ok := other.(*Builtin)
	if !ok {
		return false
	}
	return b == otherBuiltin
}

// NewBuiltin creates a new builtin function with the given name and function.
func NewBuiltin(name string, fn BuiltinFunction) *Builtin {
	return &Builtin{fn: fn, name: name}
}
