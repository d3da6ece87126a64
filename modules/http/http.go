package http

import (
	"context"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/httpd"
	"github.com/tembo-lang/tembo/modules/streams"
	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/reactor"
	"github.com/tembo-lang/tembo/stream"
)

// Service exposes the raw HTTP server to interpreted code. Handlers run
// on the interpreter thread: each parsed request is dispatched through
// the callback bridge with script-visible request and response objects.
type Service struct {
	loop    *reactor.Loop
	br      *bridge.Bridge
	streams *stream.Registry
}

func NewService(loop *reactor.Loop, br *bridge.Bridge, registry *stream.Registry) *Service {
	return &Service{loop: loop, br: br, streams: registry}
}

// CreateServer builds a server around a handler callable and returns a
// handle with listen and close.
func (s *Service) CreateServer(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.Require("createServer", 1, args); err != nil {
		return nil, err
	}
	handler, argErr := object.AsCallable(args[0])
	if argErr != nil {
		return nil, argErr
	}

	srv := httpd.NewServer(s.loop, s.streams, func(req *httpd.Request, res *httpd.Response) {
		s.br.Enqueue(handler, requestObject(req), responseObject(res))
	})

	h := object.NewEmptyMap()
	h.Set("listen", object.NewBuiltin("listen", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.RequireRange("listen", 1, 2, args); err != nil {
			return nil, err
		}
		addr, argErr := object.AsStringValue(args[0])
		if argErr != nil {
			return nil, argErr
		}
		if err := srv.Listen(addr); err != nil {
			return nil, err
		}
		if len(args) == 2 && args[1] != object.Nil {
			callback, argErr := object.AsCallable(args[1])
			if argErr != nil {
				return nil, argErr
			}
			s.br.Enqueue(callback, object.NewString(srv.Addr().String()))
		}
		return object.Nil, nil
	}))
	h.Set("close", object.NewBuiltin("close", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := srv.Close(); err != nil {
			return nil, err
		}
		return object.Nil, nil
	}))
	h.Set("address", object.NewBuiltin("address", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		addr := srv.Addr()
		if addr == nil {
			return object.Nil, nil
		}
		return object.NewString(addr.String()), nil
	}))
	return h, nil
}

// requestObject builds the script-visible request map. The body is a
// string only for recognized-text content types, otherwise a raw buffer.
func requestObject(req *httpd.Request) *object.Map {
	m := object.NewEmptyMap()
	m.Set("method", object.NewString(req.Method))
	m.Set("path", object.NewString(req.Path))

	query := object.NewEmptyMap()
	for key, value := range req.Query {
		query.Set(key, object.NewString(value))
	}
	m.Set("query", query)

	headers := object.NewEmptyMap()
	for name, value := range req.Headers {
		headers.Set(name, object.NewString(value))
	}
	m.Set("headers", headers)

	if text, ok := req.BodyText(); ok {
		m.Set("body", object.NewString(text))
	} else if len(req.Body) > 0 {
		m.Set("body", object.NewBytes(req.Body))
	} else {
		m.Set("body", object.Nil)
	}

	if req.Stream != nil {
		m.Set("stream", streams.Handle(req.Stream))
	}
	return m
}

// responseObject builds the script-visible response map.
func responseObject(res *httpd.Response) *object.Map {
	m := object.NewEmptyMap()

	m.Set("writeHead", object.NewBuiltin("writeHead", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.RequireRange("writeHead", 1, 2, args); err != nil {
			return nil, err
		}
		code, argErr := object.AsInt(args[0])
		if argErr != nil {
			return nil, argErr
		}
		headers := map[string]string{}
		if len(args) == 2 && args[1] != object.Nil {
			headerMap, argErr := object.AsMap(args[1])
			if argErr != nil {
				return nil, argErr
			}
			var convErr error
			headerMap.Each(func(key string, value object.Object) {
				s, err := object.AsStringValue(value)
				if err != nil {
					convErr = err
					return
				}
				headers[key] = s
			})
			if convErr != nil {
				return nil, convErr
			}
		}
		res.WriteHead(code, headers)
		return object.Nil, nil
	}))

	m.Set("status", object.NewBuiltin("status", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("status", 1, args); err != nil {
			return nil, err
		}
		code, argErr := object.AsInt(args[0])
		if argErr != nil {
			return nil, argErr
		}
		res.Status(code)
		return object.Nil, nil
	}))

	m.Set("message", object.NewBuiltin("message", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("message", 1, args); err != nil {
			return nil, err
		}
		reason, argErr := object.AsStringValue(args[0])
		if argErr != nil {
			return nil, argErr
		}
		res.Message(reason)
		return object.Nil, nil
	}))

	m.Set("setHeader", object.NewBuiltin("setHeader", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("setHeader", 2, args); err != nil {
			return nil, err
		}
		name, argErr := object.AsStringValue(args[0])
		if argErr != nil {
			return nil, argErr
		}
		value, argErr := object.AsStringValue(args[1])
		if argErr != nil {
			return nil, argErr
		}
		res.SetHeader(name, value)
		return object.Nil, nil
	}))

	m.Set("getHeader", object.NewBuiltin("getHeader", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("getHeader", 1, args); err != nil {
			return nil, err
		}
		name, argErr := object.AsStringValue(args[0])
		if argErr != nil {
			return nil, argErr
		}
		value, found := res.GetHeader(name)
		if !found {
			return object.Nil, nil
		}
		return object.NewString(value), nil
	}))

	m.Set("write", object.NewBuiltin("write", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("write", 1, args); err != nil {
			return nil, err
		}
		chunk, err := bodyBytes(args[0])
		if err != nil {
			return nil, err
		}
		if err := res.Write(chunk); err != nil {
			return nil, err
		}
		return object.Nil, nil
	}))

	m.Set("end", object.NewBuiltin("end", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.RequireRange("end", 0, 1, args); err != nil {
			return nil, err
		}
		var data []byte
		if len(args) == 1 && args[0] != object.Nil {
			chunk, err := bodyBytes(args[0])
			if err != nil {
				return nil, err
			}
			data = chunk
		}
		if err := res.End(data); err != nil {
			return nil, err
		}
		return object.Nil, nil
	}))
	return m
}

func bodyBytes(arg object.Object) ([]byte, error) {
	switch value := arg.(type) {
	case *object.String:
		return []byte(value.Value()), nil
	case *object.Bytes:
		return value.Value(), nil
	default:
		return nil, object.TypeErrorf("expected a string or bytes (%s given)", arg.Type())
	}
}

func (s *Service) Module() *object.Module {
	return object.NewBuiltinsModule("http", map[string]object.Object{
		"createServer": object.NewBuiltin("createServer", s.CreateServer),
	})
}
