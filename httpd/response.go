package httpd

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/tembo-lang/tembo/errz"
)

// Response writes one HTTP/1.1 response to the raw connection. End sends
// a buffered body with Content-Length; Write switches the response into
// chunked transfer encoding on first use. The connection closes after the
// response completes.
type Response struct {
	mu          sync.Mutex
	conn        net.Conn
	status      int
	reason      string
	headerNames []string
	headers     map[string]string
	headersSent bool
	chunked     bool
	ended       bool
}

func newResponse(conn net.Conn) *Response {
	return &Response{
		conn:    conn,
		status:  200,
		headers: map[string]string{},
	}
}

// Status sets the response status code.
func (r *Response) Status(code int) {
	r.mu.Lock()
	r.status = code
	r.mu.Unlock()
}

// Message overrides the reason phrase on the status line.
func (r *Response) Message(reason string) {
	r.mu.Lock()
	r.reason = reason
	r.mu.Unlock()
}

// SetHeader sets a response header, preserving first-set order.
func (r *Response) SetHeader(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setHeaderLocked(name, value)
}

func (r *Response) setHeaderLocked(name, value string) {
	key := strings.ToLower(name)
	if _, found := r.headers[key]; !found {
		r.headerNames = append(r.headerNames, name)
	}
	r.headers[key] = value
}

// GetHeader returns a previously set header value.
func (r *Response) GetHeader(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, found := r.headers[strings.ToLower(name)]
	return value, found
}

// WriteHead sets the status code and a batch of headers in one call.
func (r *Response) WriteHead(code int, headers map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = code
	for name, value := range headers {
		r.setHeaderLocked(name, value)
	}
}

func (r *Response) reasonLocked() string {
	if r.reason != "" {
		return r.reason
	}
	if text := http.StatusText(r.status); text != "" {
		return text
	}
	return "Unknown"
}

// sendHeadersLocked writes the status line and headers once.
func (r *Response) sendHeadersLocked() error {
	if r.headersSent {
		return nil
	}
	r.headersSent = true
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.status, r.reasonLocked())
	for _, name := range r.headerNames {
		fmt.Fprintf(&b, "%s: %s\r\n", name, r.headers[strings.ToLower(name)])
	}
	b.WriteString("\r\n")
	if _, err := r.conn.Write([]byte(b.String())); err != nil {
		return errz.Errorf(errz.ErrIO, "response write: %s", err).WithCause(err)
	}
	return nil
}

// Write sends a body chunk, switching the response into chunked transfer
// encoding on first use: the headers go out immediately with
// Transfer-Encoding: chunked, then each chunk as a hex-length-prefixed
// segment.
func (r *Response) Write(chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return errz.New(errz.ErrIO, "write after end")
	}
	if !r.chunked {
		r.chunked = true
		r.setHeaderLocked("Transfer-Encoding", "chunked")
		if err := r.sendHeadersLocked(); err != nil {
			return err
		}
	}
	if len(chunk) == 0 {
		return nil
	}
	segment := fmt.Sprintf("%x\r\n%s\r\n", len(chunk), chunk)
	if _, err := r.conn.Write([]byte(segment)); err != nil {
		return errz.Errorf(errz.ErrIO, "response write: %s", err).WithCause(err)
	}
	return nil
}

// omitBody reports whether the status code forbids a response body.
func (r *Response) omitBody() bool {
	return r.status == 204 || r.status == 304
}

// End completes the response. In buffered mode it sets Content-Length and
// writes the body in one shot, omitting the body for 204/304; in chunked
// mode it sends the terminating zero-length chunk. The connection is
// closed either way. Safe to call more than once.
func (r *Response) End(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return nil
	}
	r.ended = true
	defer r.conn.Close()

	if r.chunked {
		if len(data) > 0 {
			segment := fmt.Sprintf("%x\r\n%s\r\n", len(data), data)
			if _, err := r.conn.Write([]byte(segment)); err != nil {
				return errz.Errorf(errz.ErrIO, "response write: %s", err).WithCause(err)
			}
		}
		if _, err := r.conn.Write([]byte("0\r\n\r\n")); err != nil {
			return errz.Errorf(errz.ErrIO, "response write: %s", err).WithCause(err)
		}
		return nil
	}

	if r.omitBody() {
		data = nil
	} else {
		r.setHeaderLocked("Content-Length", fmt.Sprintf("%d", len(data)))
	}
	if err := r.sendHeadersLocked(); err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := r.conn.Write(data); err != nil {
			return errz.Errorf(errz.ErrIO, "response write: %s", err).WithCause(err)
		}
	}
	return nil
}
