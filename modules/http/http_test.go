package http

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/reactor"
	"github.com/tembo-lang/tembo/stream"
)

func newService(t *testing.T) (*Service, *bridge.Bridge) {
	t.Helper()
	loop := reactor.New()
	loop.Start()
	t.Cleanup(loop.Stop)
	br := bridge.New()
	return NewService(loop, br, stream.NewRegistry()), br
}

func call(t *testing.T, handle *object.Map, name string, args ...object.Object) object.Object {
	t.Helper()
	fn, found := handle.Get(name)
	require.True(t, found, name)
	result, err := fn.(*object.Builtin).Call(context.Background(), args...)
	require.NoError(t, err)
	return result
}

// serve starts a server whose handler runs on the draining goroutine and
// returns its address.
func serve(t *testing.T, s *Service, br *bridge.Bridge, handler object.BuiltinFunction) string {
	t.Helper()
	result, err := s.CreateServer(context.Background(), object.NewBuiltin("handler", handler))
	require.NoError(t, err)
	server := result.(*object.Map)
	call(t, server, "listen", object.NewString("127.0.0.1:0"))
	t.Cleanup(func() { call(t, server, "close") })

	addr := call(t, server, "address")
	require.NotEqual(t, object.Nil, addr)

	// The handler crosses the bridge; drain it in the background for the
	// duration of the test.
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				br.Drain(context.Background())
				time.Sleep(time.Millisecond)
			}
		}
	}()
	return addr.(*object.String).Value()
}

func roundTrip(t *testing.T, addr, raw string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	response, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(response)
}

func TestRequestAndResponseObjects(t *testing.T) {
	s, br := newService(t)

	addr := serve(t, s, br, func(ctx context.Context, args ...object.Object) (object.Object, error) {
		req := args[0].(*object.Map)
		res := args[1].(*object.Map)

		method, _ := req.Get("method")
		path, _ := req.Get("path")
		query, _ := req.Get("query")
		name, _ := query.(*object.Map).Get("name")
		body, _ := req.Get("body")

		assert.Equal(t, "POST", method.(*object.String).Value())
		assert.Equal(t, "/greet", path.(*object.String).Value())
		assert.Equal(t, "world", name.(*object.String).Value())
		assert.Equal(t, `{"x":1}`, body.(*object.String).Value())

		call(t, res, "setHeader", object.NewString("X-Served-By"), object.NewString("tembo"))
		header := call(t, res, "getHeader", object.NewString("X-Served-By"))
		assert.Equal(t, "tembo", header.(*object.String).Value())

		call(t, res, "end", object.NewString("greeted"))
		return object.Nil, nil
	})

	response := roundTrip(t, addr,
		"POST /greet?name=world HTTP/1.1\r\nHost: t\r\nContent-Type: application/json\r\nContent-Length: 7\r\n\r\n{\"x\":1}")
	assert.True(t, strings.HasPrefix(response, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, response, "X-Served-By: tembo\r\n")
	assert.True(t, strings.HasSuffix(response, "\r\n\r\ngreeted"))
}

func TestChunkedWriteFromScript(t *testing.T) {
	s, br := newService(t)

	addr := serve(t, s, br, func(ctx context.Context, args ...object.Object) (object.Object, error) {
		res := args[1].(*object.Map)
		call(t, res, "writeHead", object.NewFloat(200))
		call(t, res, "write", object.NewString("part1"))
		call(t, res, "write", object.NewString("part2"))
		call(t, res, "end")
		return object.Nil, nil
	})

	response := roundTrip(t, addr, "GET / HTTP/1.1\r\nHost: t\r\n\r\n")
	assert.Contains(t, response, "Transfer-Encoding: chunked\r\n")
	assert.Contains(t, response, "5\r\npart1\r\n")
	assert.Contains(t, response, "5\r\npart2\r\n")
	assert.True(t, strings.HasSuffix(response, "0\r\n\r\n"))
}

func TestBinaryBodyExposedAsBuffer(t *testing.T) {
	s, br := newService(t)

	addr := serve(t, s, br, func(ctx context.Context, args ...object.Object) (object.Object, error) {
		req := args[0].(*object.Map)
		res := args[1].(*object.Map)
		body, _ := req.Get("body")
		b, ok := body.(*object.Bytes)
		assert.True(t, ok)
		assert.Equal(t, []byte{0x00, 0x01, 0x02}, b.Value())
		call(t, res, "status", object.NewFloat(204))
		call(t, res, "end")
		return object.Nil, nil
	})

	response := roundTrip(t, addr,
		"POST / HTTP/1.1\r\nHost: t\r\nContent-Type: application/octet-stream\r\nContent-Length: 3\r\n\r\n\x00\x01\x02")
	assert.True(t, strings.HasPrefix(response, "HTTP/1.1 204 No Content\r\n"))
}

func TestCreateServerValidation(t *testing.T) {
	s, _ := newService(t)
	_, err := s.CreateServer(context.Background(), object.NewString("not callable"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a function")
}
