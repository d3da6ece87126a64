package object

import (
	"context"
	"fmt"
)

// Module is a named collection of builtins exposed to interpreted code.
type Module struct {
	name     string
	builtins map[string]Object
	callable BuiltinFunction
}

func (m *Module) GetAttr(name string) (Object, bool) {
	if name == "__name__" {
		return NewString(m.name), true
	}
	if builtin, found := m.builtins[name]; found {
		return builtin, true
	}
	return nil, false
}

func (m *Module) SetAttr(name string, value Object) error {
	return TypeErrorf("cannot modify module attributes")
}

func (m *Module) IsTruthy() bool {
	return true
}

func (m *Module) Type() Type {
	return MODULE
}

func (m *Module) Inspect() string {
	return m.String()
}

func (m *Module) Interface() interface{} {
	return nil
}

func (m *Module) String() string {
	return fmt.Sprintf("module(%s)", m.name)
}

func (m *Module) Name() *String {
	return NewString(m.name)
}

func (m *Module) Equals(other Object) bool {
	otherModule, ok := other.(*Module)
	if !ok {
		return false
	}
	return m == otherModule
}

func (m *Module) Call(ctx context.Context, args ...Object) (Object, error) {
	if m.callable == nil {
		return nil, TypeErrorf("module %q is not callable", m.name)
	}
	return m.callable(ctx, args...)
}

func NewBuiltinsModule(name string, contents map[string]Object, callableOption ...BuiltinFunction) *Module {
	builtins := map[string]Object{}
	for k, v := range contents {
		builtins[k] = v
	}
	var callable BuiltinFunction
	if len(callableOption) > 0 {
		callable = callableOption[0]
	}
	m := &Module{
		name:     name,
		builtins: builtins,
		callable: callable,
	}
	for _, v := range builtins {
		if builtin, ok := v.(*Builtin); ok {
			builtin.module = m
		}
	}
	return m
}
