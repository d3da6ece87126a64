package stream

import (
	"sync"

	"github.com/tembo-lang/tembo/object"
)

// Registry is the process-scoped owner of live streams, keyed by id.
// Reactor callbacks resolve streams through the registry so a concurrently
// destroyed stream is observed as a lookup miss rather than a stale handle.
type Registry struct {
	mu      sync.Mutex
	streams map[uint64]*Stream
	nextID  uint64
}

func NewRegistry() *Registry {
	return &Registry{streams: map[uint64]*Stream{}}
}

// New creates a stream of the given kind and registers it. Plain streams
// start OPEN and buffer pushes; the file and socket adapters switch their
// readable sides to FLOWING themselves.
func (r *Registry) New(kind Kind, opts Options, transform object.Callable) *Stream {
	r.mu.Lock()
	r.nextID++
	s := &Stream{
		id:        r.nextID,
		kind:      kind,
		opts:      opts,
		registry:  r,
		state:     Open,
		listeners: map[string][]object.Callable{},
		transform: transform,
	}
	r.streams[s.id] = s
	r.mu.Unlock()
	return s
}

// Get resolves a stream by id.
func (r *Registry) Get(id uint64) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, found := r.streams[id]
	return s, found
}

// Len returns the number of live streams.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	delete(r.streams, id)
	r.mu.Unlock()
}

// CloseAll destroys every live stream.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	streams := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.mu.Unlock()

	for _, s := range streams {
		s.Destroy()
	}
}
