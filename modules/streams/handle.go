package streams

import (
	"context"

	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/stream"
)

// Handle wraps a stream as a script-visible map of builtins.
func Handle(st *stream.Stream) *object.Map {
	h := object.NewEmptyMap()
	h.Set("id", object.NewFloat(float64(st.ID())))
	h.Set("kind", object.NewString(string(st.Kind())))

	h.Set("on", object.NewBuiltin("on", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("on", 2, args); err != nil {
			return nil, err
		}
		event, argErr := object.AsStringValue(args[0])
		if argErr != nil {
			return nil, argErr
		}
		fn, argErr := object.AsCallable(args[1])
		if argErr != nil {
			return nil, argErr
		}
		if err := st.On(event, fn); err != nil {
			return nil, err
		}
		return object.Nil, nil
	}))

	h.Set("off", object.NewBuiltin("off", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.RequireRange("off", 1, 2, args); err != nil {
			return nil, err
		}
		event, argErr := object.AsStringValue(args[0])
		if argErr != nil {
			return nil, argErr
		}
		var fn object.Callable
		if len(args) == 2 && args[1] != object.Nil {
			callable, argErr := object.AsCallable(args[1])
			if argErr != nil {
				return nil, argErr
			}
			fn = callable
		}
		st.Off(event, fn)
		return object.Nil, nil
	}))

	h.Set("listenerCount", object.NewBuiltin("listenerCount", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("listenerCount", 1, args); err != nil {
			return nil, err
		}
		event, argErr := object.AsStringValue(args[0])
		if argErr != nil {
			return nil, argErr
		}
		return object.NewFloat(float64(st.ListenerCount(event))), nil
	}))

	h.Set("push", object.NewBuiltin("push", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("push", 1, args); err != nil {
			return nil, err
		}
		chunk, err := chunkBytes(args[0])
		if err != nil {
			return nil, err
		}
		return object.NewBool(st.Push(chunk)), nil
	}))

	h.Set("read", object.NewBuiltin("read", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.RequireRange("read", 0, 1, args); err != nil {
			return nil, err
		}
		n := -1
		if len(args) == 1 && args[0] != object.Nil {
			count, argErr := object.AsInt(args[0])
			if argErr != nil {
				return nil, argErr
			}
			n = count
		}
		data := st.Read(n)
		if data == nil {
			return object.Nil, nil
		}
		return object.NewBytesWithEncoding(data, st.Options().Encoding), nil
	}))

	h.Set("write", object.NewBuiltin("write", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("write", 1, args); err != nil {
			return nil, err
		}
		chunk, err := chunkBytes(args[0])
		if err != nil {
			return nil, err
		}
		ok, err := st.Write(chunk)
		if err != nil {
			return nil, err
		}
		return object.NewBool(ok), nil
	}))

	h.Set("end", object.NewBuiltin("end", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.RequireRange("end", 0, 1, args); err != nil {
			return nil, err
		}
		var chunk []byte
		if len(args) == 1 && args[0] != object.Nil {
			data, err := chunkBytes(args[0])
			if err != nil {
				return nil, err
			}
			chunk = data
		}
		if err := st.End(chunk); err != nil {
			return nil, err
		}
		return object.Nil, nil
	}))

	h.Set("pause", object.NewBuiltin("pause", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		st.Pause()
		return object.Nil, nil
	}))

	h.Set("resume", object.NewBuiltin("resume", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		st.Resume()
		return object.Nil, nil
	}))

	h.Set("pipe", object.NewBuiltin("pipe", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("pipe", 1, args); err != nil {
			return nil, err
		}
		dest, err := handleStream(args[0])
		if err != nil {
			return nil, err
		}
		st.Pipe(dest)
		return args[0], nil
	}))

	h.Set("unpipe", object.NewBuiltin("unpipe", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("unpipe", 1, args); err != nil {
			return nil, err
		}
		dest, err := handleStream(args[0])
		if err != nil {
			return nil, err
		}
		st.Unpipe(dest)
		return object.Nil, nil
	}))

	h.Set("destroy", object.NewBuiltin("destroy", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		st.Destroy()
		return object.Nil, nil
	}))

	h.Set("state", object.NewBuiltin("state", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return object.NewString(string(st.State())), nil
	}))

	h.Set("__stream__", &streamRef{st: st})
	return h
}

// streamRef threads the native stream through a handle map so pipe and
// unpipe can recover it from another handle.
type streamRef struct {
	st *stream.Stream
}

func (r *streamRef) Type() object.Type             { return "stream" }
func (r *streamRef) Inspect() string               { return "stream" }
func (r *streamRef) Interface() interface{}        { return r.st }
func (r *streamRef) IsTruthy() bool                { return true }
func (r *streamRef) Equals(other object.Object) bool {
	o, ok := other.(*streamRef)
	return ok && o.st == r.st
}
func (r *streamRef) GetAttr(name string) (object.Object, bool) { return nil, false }
func (r *streamRef) SetAttr(name string, value object.Object) error {
	return object.TypeErrorf("cannot modify stream attributes")
}

func handleStream(arg object.Object) (*stream.Stream, error) {
	m, err := object.AsMap(arg)
	if err != nil {
		return nil, err
	}
	ref, found := m.Get("__stream__")
	if !found {
		return nil, object.TypeErrorf("expected a stream handle (map given)")
	}
	r, ok := ref.(*streamRef)
	if !ok {
		return nil, object.TypeErrorf("expected a stream handle (map given)")
	}
	return r.st, nil
}

func chunkBytes(arg object.Object) ([]byte, error) {
	switch value := arg.(type) {
	case *object.String:
		return []byte(value.Value()), nil
	case *object.Bytes:
		return value.Value(), nil
	default:
		return nil, object.TypeErrorf("expected a string or bytes (%s given)", arg.Type())
	}
}
