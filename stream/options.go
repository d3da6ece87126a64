package stream

import (
	"github.com/spf13/cast"

	"github.com/tembo-lang/tembo/object"
)

// Options configures a stream at creation time.
type Options struct {
	// HighWaterMark is the buffered-byte threshold above which backpressure
	// is signaled.
	HighWaterMark int

	// Encoding is an advisory label attached to delivered chunks.
	Encoding string

	// AutoClose closes the backing file on stream end or destroy.
	AutoClose bool

	// ChunkSize is the read granularity for file sources.
	ChunkSize int
}

// DefaultOptions returns the stock stream configuration.
func DefaultOptions() Options {
	return Options{
		HighWaterMark: 16384,
		Encoding:      "binary",
		AutoClose:     true,
		ChunkSize:     4096,
	}
}

// ParseOptions reads a script-supplied option map, falling back to the
// defaults for absent or malformed entries.
func ParseOptions(m *object.Map) Options {
	opts := DefaultOptions()
	if m == nil {
		return opts
	}
	if v, found := m.Get("highWaterMark"); found {
		if n := cast.ToInt(v.Interface()); n > 0 {
			opts.HighWaterMark = n
		}
	}
	if v, found := m.Get("encoding"); found {
		if s := cast.ToString(v.Interface()); s != "" {
			opts.Encoding = s
		}
	}
	if v, found := m.Get("autoClose"); found {
		opts.AutoClose = cast.ToBool(v.Interface())
	}
	if v, found := m.Get("chunkSize"); found {
		if n := cast.ToInt(v.Interface()); n > 0 {
			opts.ChunkSize = n
		}
	}
	return opts
}
