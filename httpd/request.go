package httpd

import (
	"strings"

	"github.com/tembo-lang/tembo/stream"
)

// Content types whose bodies are safe to auto-decode to text. Anything
// else is exposed only as a raw buffer.
var textContentTypes = []string{
	"text/",
	"application/json",
	"application/javascript",
	"application/xml",
	"application/x-www-form-urlencoded",
}

// Request is one fully buffered HTTP/1.1 request: the request line and
// headers plus the Content-Length-delimited body.
type Request struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	Body    []byte

	// Stream is a readable byte-stream view of the request body,
	// present when the server was built with a stream registry.
	Stream *stream.Stream
}

// Header returns a header value by case-insensitive name.
func (r *Request) Header(name string) (string, bool) {
	value, found := r.Headers[strings.ToLower(name)]
	return value, found
}

// ContentType returns the media type portion of the Content-Type header.
func (r *Request) ContentType() string {
	value, found := r.Header("content-type")
	if !found {
		return ""
	}
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(strings.ToLower(value))
}

// IsTextBody reports whether the body's content type is on the
// recognized-text allowlist.
func (r *Request) IsTextBody() bool {
	contentType := r.ContentType()
	for _, allowed := range textContentTypes {
		if strings.HasPrefix(contentType, allowed) {
			return true
		}
	}
	return false
}

// BodyText returns the body decoded to a string when the content type is
// on the text allowlist, otherwise ("", false).
func (r *Request) BodyText() (string, bool) {
	if !r.IsTextBody() {
		return "", false
	}
	return string(r.Body), true
}
