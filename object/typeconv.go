package object

// AsString converts the object to a *String, returning an *Error on mismatch.
func AsString(obj Object) (*String, *Error) {
	s, ok := obj.(*String)
	if !ok {
		return nil, TypeErrorf("expected a string (%s given)", obj.Type())
	}
	return s, nil
}

// AsStringValue converts the object to its Go string value.
func AsStringValue(obj Object) (string, *Error) {
	s, ok := obj.(*String)
	if !ok {
		return "", TypeErrorf("expected a string (%s given)", obj.Type())
	}
	return s.value, nil
}

// AsFloat converts the object to its Go float64 value.
func AsFloat(obj Object) (float64, *Error) {
	f, ok := obj.(*Float)
	if !ok {
		return 0, TypeErrorf("expected a number (%s given)", obj.Type())
	}
	return f.value, nil
}

// AsInt converts a numeric object to a Go int.
func AsInt(obj Object) (int, *Error) {
	f, ok := obj.(*Float)
	if !ok {
		return 0, TypeErrorf("expected a number (%s given)", obj.Type())
	}
	return int(f.value), nil
}

// AsBool converts the object to its Go bool value.
func AsBool(obj Object) (bool, *Error) {
	b, ok := obj.(*Bool)
	if !ok {
		return false, TypeErrorf("expected a bool (%s given)", obj.Type())
	}
	return b.value, nil
}

// AsBytes converts the object to a *Bytes, returning an *Error on mismatch.
func AsBytes(obj Object) (*Bytes, *Error) {
	b, ok := obj.(*Bytes)
	if !ok {
		return nil, TypeErrorf("expected bytes (%s given)", obj.Type())
	}
	return b, nil
}

// AsList converts the object to a *List, returning an *Error on mismatch.
func AsList(obj Object) (*List, *Error) {
	ls, ok := obj.(*List)
	if !ok {
		return nil, TypeErrorf("expected a list (%s given)", obj.Type())
	}
	return ls, nil
}

// AsMap converts the object to a *Map, returning an *Error on mismatch.
func AsMap(obj Object) (*Map, *Error) {
	m, ok := obj.(*Map)
	if !ok {
		return nil, TypeErrorf("expected a map (%s given)", obj.Type())
	}
	return m, nil
}

// AsCallable converts the object to a Callable, returning an *Error on
// mismatch. Builtins and evaluator-supplied function handles both qualify.
func AsCallable(obj Object) (Callable, *Error) {
	fn, ok := obj.(Callable)
	if !ok {
		return nil, TypeErrorf("expected a function (%s given)", obj.Type())
	}
	return fn, nil
}
