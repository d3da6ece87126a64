package streams

import (
	"context"

	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/reactor"
	"github.com/tembo-lang/tembo/stream"
)

// Service exposes the stream engine to interpreted code.
type Service struct {
	loop     *reactor.Loop
	registry *stream.Registry
}

func NewService(loop *reactor.Loop, registry *stream.Registry) *Service {
	return &Service{loop: loop, registry: registry}
}

// parseOptions reads an optional trailing options map argument.
func parseOptions(args []object.Object, index int) (stream.Options, error) {
	if len(args) <= index || args[index] == object.Nil {
		return stream.DefaultOptions(), nil
	}
	m, err := object.AsMap(args[index])
	if err != nil {
		return stream.Options{}, err
	}
	return stream.ParseOptions(m), nil
}

// Readable opens path as a flowing file-backed readable stream.
func (s *Service) Readable(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.RequireRange("readable", 1, 2, args); err != nil {
		return nil, err
	}
	path, argErr := object.AsStringValue(args[0])
	if argErr != nil {
		return nil, argErr
	}
	opts, err := parseOptions(args, 1)
	if err != nil {
		return nil, err
	}
	st, err := stream.ReadableFile(s.loop, s.registry, path, opts)
	if err != nil {
		return nil, err
	}
	return Handle(st), nil
}

// Writable opens path as a file-backed writable stream with synchronous
// writes.
func (s *Service) Writable(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.RequireRange("writable", 1, 2, args); err != nil {
		return nil, err
	}
	path, argErr := object.AsStringValue(args[0])
	if argErr != nil {
		return nil, argErr
	}
	opts, err := parseOptions(args, 1)
	if err != nil {
		return nil, err
	}
	st, err := stream.WritableFile(s.registry, path, opts)
	if err != nil {
		return nil, err
	}
	return Handle(st), nil
}

// Create builds an in-memory stream: source is optional initial content
// (string or buffer), mode names the stream kind, and an optional
// transform callable rewrites each chunk on the write path.
func (s *Service) Create(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.RequireRange("create", 2, 3, args); err != nil {
		return nil, err
	}
	var source []byte
	switch value := args[0].(type) {
	case *object.NilType:
	case *object.String:
		source = []byte(value.Value())
	case *object.Bytes:
		source = value.Value()
	default:
		return nil, object.TypeErrorf("expected a string or bytes (%s given)", args[0].Type())
	}
	mode, argErr := object.AsStringValue(args[1])
	if argErr != nil {
		return nil, argErr
	}
	var kind stream.Kind
	switch stream.Kind(mode) {
	case stream.Readable, stream.Writable, stream.Duplex, stream.Transform:
		kind = stream.Kind(mode)
	default:
		return nil, object.ValueErrorf("unknown stream mode %q", mode)
	}
	var transform object.Callable
	if len(args) == 3 && args[2] != object.Nil {
		fn, argErr := object.AsCallable(args[2])
		if argErr != nil {
			return nil, argErr
		}
		transform = fn
	}
	st := s.registry.New(kind, stream.DefaultOptions(), transform)
	if len(source) > 0 {
		st.Push(source)
	}
	return Handle(st), nil
}

func (s *Service) Module() *object.Module {
	return object.NewBuiltinsModule("streams", map[string]object.Object{
		"readable": object.NewBuiltin("readable", s.Readable),
		"writable": object.NewBuiltin("writable", s.Writable),
		"create":   object.NewBuiltin("create", s.Create),
	})
}
