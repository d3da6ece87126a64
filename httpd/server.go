package httpd

import (
	"bytes"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/reactor"
	"github.com/tembo-lang/tembo/stream"
)

const (
	maxHeaderLen = 64 * 1024
	maxBodyLen   = 16 * 1024 * 1024
	readChunk    = 4096
)

var headerTerminator = []byte("\r\n\r\n")

// Handler receives each fully buffered request with its response writer.
// The server invokes it from the connection goroutine; callers that need
// the interpreter thread re-dispatch through the bridge.
type Handler func(req *Request, res *Response)

// Server is a minimal HTTP/1.1 server built directly on raw accept, read
// and write. One request per connection; the connection closes when the
// response ends.
type Server struct {
	loop    *reactor.Loop
	streams *stream.Registry
	handler Handler

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// NewServer builds a server. The stream registry is optional; when
// present each request carries a readable stream view of its body.
func NewServer(loop *reactor.Loop, streams *stream.Registry, handler Handler) *Server {
	return &Server{loop: loop, streams: streams, handler: handler}
}

// Listen binds addr and starts accepting. The bind itself is serialized
// onto the reactor goroutine; the server holds the loop pending until
// Close.
func (s *Server) Listen(addr string) error {
	type bindResult struct {
		listener net.Listener
		err      error
	}
	done := make(chan bindResult, 1)
	if err := s.loop.Submit(func() {
		listener, err := net.Listen("tcp", addr)
		done <- bindResult{listener, err}
	}); err != nil {
		return err
	}
	result := <-done
	if result.err != nil {
		return errz.Errorf(errz.ErrIO, "listen %s: %s", addr, result.err).WithCause(result.err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		result.listener.Close()
		return errz.New(errz.ErrIO, "server is closed")
	}
	s.listener = result.listener
	s.mu.Unlock()

	s.loop.AddPending()
	log.Debug().Str("addr", result.listener.Addr().String()).Msg("http server listening")
	go s.acceptLoop(result.listener)
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting, serialized onto the reactor goroutine. Safe to
// call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	s.mu.Unlock()

	if listener == nil {
		return nil
	}
	done := make(chan error, 1)
	if err := s.loop.Submit(func() {
		done <- listener.Close()
	}); err != nil {
		// Reactor already gone; close inline.
		listener.Close()
		return nil
	}
	err := <-done
	s.loop.DonePending()
	log.Debug().Msg("http server closed")
	return err
}

func (s *Server) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

// handleConn accumulates bytes across reads until the header terminator,
// parses the request, keeps buffering until the declared body length has
// arrived, then hands the request/response pair to the handler.
func (s *Server) handleConn(conn net.Conn) {
	var buf []byte
	chunk := make([]byte, readChunk)

	headerEnd := -1
	for headerEnd < 0 {
		if len(buf) > maxHeaderLen {
			writeError(conn, 431, "Request Header Fields Too Large")
			return
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			headerEnd = bytes.Index(buf, headerTerminator)
		}
		if err != nil {
			if headerEnd < 0 {
				conn.Close()
				return
			}
		}
	}

	req, err := parseRequest(buf[:headerEnd])
	if err != nil {
		log.Debug().Err(err).Msg("bad http request")
		writeError(conn, 400, "Bad Request")
		return
	}

	contentLength := 0
	if value, found := req.Header("content-length"); found {
		contentLength, err = strconv.Atoi(value)
		if err != nil || contentLength < 0 {
			writeError(conn, 400, "Bad Request")
			return
		}
	}
	if contentLength > maxBodyLen {
		writeError(conn, 413, "Payload Too Large")
		return
	}

	body := buf[headerEnd+len(headerTerminator):]
	for len(body) < contentLength {
		n, err := conn.Read(chunk)
		if n > 0 {
			body = append(body, chunk[:n]...)
		}
		if err != nil {
			conn.Close()
			return
		}
	}
	req.Body = body[:contentLength]

	if s.streams != nil {
		view := s.streams.New(stream.Readable, stream.DefaultOptions(), nil)
		if len(req.Body) > 0 {
			view.Push(req.Body)
		}
		view.Push(nil)
		req.Stream = view
	}

	s.handler(req, newResponse(conn))
}

// parseRequest parses the request line and headers from the raw header
// block (without the terminator).
func parseRequest(head []byte) (*Request, error) {
	lines := strings.Split(string(head), "\r\n")
	if len(lines) == 0 {
		return nil, errz.New(errz.ErrValue, "empty request")
	}
	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "HTTP/1.1") {
		return nil, errz.Errorf(errz.ErrValue, "malformed request line %q", lines[0])
	}

	req := &Request{
		Method:  parts[0],
		Path:    parts[1],
		Query:   map[string]string{},
		Headers: map[string]string{},
	}
	if i := strings.IndexByte(req.Path, '?'); i >= 0 {
		rawQuery := req.Path[i+1:]
		req.Path = req.Path[:i]
		values, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, errz.Errorf(errz.ErrValue, "malformed query %q", rawQuery).WithCause(err)
		}
		for key := range values {
			req.Query[key] = values.Get(key)
		}
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return nil, errz.Errorf(errz.ErrValue, "malformed header %q", line)
		}
		req.Headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	return req, nil
}

// writeError sends a minimal error response and closes the connection.
func writeError(conn net.Conn, code int, reason string) {
	res := newResponse(conn)
	res.Status(code)
	res.Message(reason)
	res.End(nil)
}
