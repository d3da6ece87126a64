// Package stream implements buffered, backpressure-aware byte streams with
// four flavors (readable, writable, duplex, transform), piping, and
// adapters for files and network sockets.
package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/object"
)

// Kind of a stream.
type Kind string

const (
	Readable  Kind = "readable"
	Writable  Kind = "writable"
	Duplex    Kind = "duplex"
	Transform Kind = "transform"
)

// State of a stream. Transitions are monotonic except the PAUSED/FLOWING
// toggle; CLOSED, DESTROYED and ERRORED are terminal.
type State string

const (
	Open      State = "open"
	Flowing   State = "flowing"
	Paused    State = "paused"
	Closed    State = "closed"
	Destroyed State = "destroyed"
	Errored   State = "errored"
)

// The supported event names.
var supportedEvents = map[string]bool{
	"data":   true,
	"end":    true,
	"error":  true,
	"close":  true,
	"drain":  true,
	"finish": true,
	"pipe":   true,
	"unpipe": true,
}

// Stream is the mutable state of one logical byte stream. All exported
// methods are safe for concurrent use; listener callbacks are invoked
// synchronously in arrival order, outside the stream lock.
type Stream struct {
	id       uint64
	kind     Kind
	opts     Options
	registry *Registry

	mu        sync.Mutex
	state     State
	fifo      [][]byte
	buffered  int
	ended     bool
	endFired  bool
	listeners map[string][]object.Callable
	pipes     []*Stream
	transform object.Callable

	// Backing resource hooks, set by the file and socket adapters. writeFn
	// runs with the stream lock held.
	writeFn    func(chunk []byte) error
	asyncFn    func(chunk []byte) (bool, error)
	releaseFn  func()
	closeOnEnd func()

	pendingWrites int
}

func (s *Stream) ID() uint64 {
	return s.id
}

func (s *Stream) Kind() Kind {
	return s.kind
}

func (s *Stream) Options() Options {
	return s.opts
}

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BufferedSize returns the byte count currently held in the FIFO.
func (s *Stream) BufferedSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered
}

// On registers a listener for the given event.
func (s *Stream) On(event string, fn object.Callable) error {
	if !supportedEvents[event] {
		return errz.Errorf(errz.ErrValue, "unsupported stream event %q", event)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], fn)
	return nil
}

// Off removes one listener for the event, or all of the event's listeners
// when fn is nil.
func (s *Stream) Off(event string, fn object.Callable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.listeners, event)
		return
	}
	list := s.listeners[event]
	for i, registered := range list {
		if registered == fn {
			s.listeners[event] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of listeners registered for the event.
func (s *Stream) ListenerCount(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[event])
}

// emit invokes the event's listeners synchronously, outside the lock.
// Listener failures are discarded: a misbehaving listener must not take
// down the producer that emitted the event.
func (s *Stream) emit(event string, args ...object.Object) {
	s.mu.Lock()
	list := make([]object.Callable, len(s.listeners[event]))
	copy(list, s.listeners[event])
	s.mu.Unlock()
	for _, fn := range list {
		s.safeCall(fn, args...)
	}
}

func (s *Stream) safeCall(fn object.Callable, args ...object.Object) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Uint64("stream_id", s.id).
				Msg(fmt.Sprintf("stream listener panic discarded: %v", r))
		}
	}()
	if _, err := fn.Call(context.Background(), args...); err != nil {
		log.Debug().Err(err).Uint64("stream_id", s.id).
			Msg("stream listener error discarded")
	}
}

// Push delivers a chunk into the stream from its producer side. A nil
// chunk is the end-of-data sentinel: it marks the stream ended, fires
// the end listeners exactly once, and ends any piped destinations the
// same way End does. The return value is the backpressure
// signal: false tells the producer the buffer has reached the high-water
// mark. Pushes into a destroyed stream are dropped.
func (s *Stream) Push(chunk []byte) bool {
	s.mu.Lock()
	if s.state == Destroyed || s.state == Closed || s.state == Errored {
		s.mu.Unlock()
		return false
	}
	if chunk == nil {
		alreadyEnded := s.ended
		s.ended = true
		fireEnd := !alreadyEnded && !s.endFired
		if fireEnd {
			s.endFired = true
		}
		var pipes []*Stream
		if fireEnd {
			pipes = make([]*Stream, len(s.pipes))
			copy(pipes, s.pipes)
		}
		s.mu.Unlock()
		if fireEnd {
			s.emit("end")
			for _, dest := range pipes {
				if err := dest.End(nil); err != nil {
					log.Debug().Err(err).Uint64("stream_id", dest.id).
						Msg("pipe destination end failed")
				}
			}
		}
		return false
	}
	if s.state == Flowing {
		s.mu.Unlock()
		s.emit("data", object.NewBytes(chunk))
		s.forward(chunk)
		return true
	}
	s.fifo = append(s.fifo, chunk)
	s.buffered += len(chunk)
	ok := s.buffered < s.opts.HighWaterMark
	s.mu.Unlock()
	return ok
}

// Read drains up to n bytes from the FIFO, splitting a chunk if a partial
// read is required. n <= 0 drains everything buffered. Returns nil when
// the FIFO is empty.
func (s *Stream) Read(n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffered == 0 {
		return nil
	}
	if n <= 0 || n > s.buffered {
		n = s.buffered
	}
	out := make([]byte, 0, n)
	for n > 0 && len(s.fifo) > 0 {
		chunk := s.fifo[0]
		if len(chunk) <= n {
			out = append(out, chunk...)
			n -= len(chunk)
			s.buffered -= len(chunk)
			s.fifo = s.fifo[1:]
		} else {
			out = append(out, chunk[:n]...)
			s.fifo[0] = chunk[n:]
			s.buffered -= n
			n = 0
		}
	}
	return out
}

// Write accepts a chunk on the writable side. File-backed streams write
// synchronously; socket-backed streams issue an async write (see the
// socket adapter); transform streams run the transform callback and push
// its output to the readable side. The return value is the backpressure
// signal.
func (s *Stream) Write(chunk []byte) (bool, error) {
	s.mu.Lock()
	if s.state == Destroyed || s.state == Closed || s.state == Errored {
		s.mu.Unlock()
		return false, errz.New(errz.ErrValue, "stream is not writable")
	}
	if s.ended {
		s.mu.Unlock()
		return false, errz.New(errz.ErrValue, "write after end")
	}
	writeFn := s.writeFn
	asyncFn := s.asyncFn
	transform := s.transform
	s.mu.Unlock()

	if transform != nil {
		return s.writeTransformed(transform, chunk)
	}
	if asyncFn != nil {
		return asyncFn(chunk)
	}
	if writeFn != nil {
		s.mu.Lock()
		err := writeFn(chunk)
		buffered := s.buffered
		hwm := s.opts.HighWaterMark
		s.mu.Unlock()
		if err != nil {
			s.fail(err)
			return false, err
		}
		return buffered < hwm, nil
	}
	// No backing resource: the writable side buffers like a readable FIFO
	// so duplex streams can be read back.
	return s.Push(chunk), nil
}

func (s *Stream) writeTransformed(transform object.Callable, chunk []byte) (bool, error) {
	result, err := transform.Call(context.Background(), object.NewBytes(chunk))
	if err != nil {
		return false, errz.Errorf(errz.ErrRuntime, "transform failed: %s", err).WithCause(err)
	}
	switch result := result.(type) {
	case *object.Bytes:
		return s.Push(result.Value()), nil
	case *object.String:
		return s.Push([]byte(result.Value())), nil
	case *object.NilType, nil:
		return true, nil
	default:
		return false, errz.Errorf(errz.ErrType,
			"transform must return bytes or string (%s given)", result.Type())
	}
}

// Pause switches a flowing stream to buffering mode.
func (s *Stream) Pause() {
	s.mu.Lock()
	if s.state == Flowing || s.state == Open {
		s.state = Paused
	}
	s.mu.Unlock()
}

// Resume flushes buffered chunks to the data listeners in FIFO order, then
// switches to flowing so new chunks are delivered immediately.
func (s *Stream) Resume() {
	s.mu.Lock()
	if s.state == Destroyed || s.state == Closed || s.state == Errored {
		s.mu.Unlock()
		return
	}
	flushed := s.fifo
	s.fifo = nil
	s.buffered = 0
	s.state = Flowing
	s.mu.Unlock()
	for _, chunk := range flushed {
		s.emit("data", object.NewBytes(chunk))
		s.forward(chunk)
	}
}

// Pipe forwards this stream's data and end events into dest's write/end
// path and returns dest for chaining.
func (s *Stream) Pipe(dest *Stream) *Stream {
	s.mu.Lock()
	s.pipes = append(s.pipes, dest)
	s.mu.Unlock()
	dest.emit("pipe")
	return dest
}

// Unpipe detaches dest, or every piped destination when dest is nil.
func (s *Stream) Unpipe(dest *Stream) {
	s.mu.Lock()
	var detached []*Stream
	if dest == nil {
		detached = s.pipes
		s.pipes = nil
	} else {
		for i, p := range s.pipes {
			if p == dest {
				detached = []*Stream{p}
				s.pipes = append(s.pipes[:i], s.pipes[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	for _, p := range detached {
		p.emit("unpipe")
	}
}

// forward relays a delivered chunk into each piped destination.
func (s *Stream) forward(chunk []byte) {
	s.mu.Lock()
	pipes := make([]*Stream, len(s.pipes))
	copy(pipes, s.pipes)
	s.mu.Unlock()
	for _, dest := range pipes {
		if _, err := dest.Write(chunk); err != nil {
			log.Debug().Err(err).Uint64("stream_id", dest.id).
				Msg("pipe destination write failed")
		}
	}
}

// End optionally writes a final chunk, marks the stream ended, and fires
// finish. Piped destinations are ended as well.
func (s *Stream) End(chunk []byte) error {
	if chunk != nil {
		if _, err := s.Write(chunk); err != nil {
			return err
		}
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	fireEnd := !s.endFired
	s.endFired = true
	closeOnEnd := s.closeOnEnd
	s.closeOnEnd = nil
	pipes := make([]*Stream, len(s.pipes))
	copy(pipes, s.pipes)
	s.mu.Unlock()

	if fireEnd {
		s.emit("end")
	}
	s.emit("finish")
	if closeOnEnd != nil {
		closeOnEnd()
	}
	for _, dest := range pipes {
		if err := dest.End(nil); err != nil {
			log.Debug().Err(err).Uint64("stream_id", dest.id).
				Msg("pipe destination end failed")
		}
	}
	return nil
}

// Destroy transitions the stream to DESTROYED, releases its backing
// resource, fires close, and removes it from the registry. Idempotent:
// a second call observes DESTROYED and no-ops.
func (s *Stream) Destroy() {
	s.mu.Lock()
	if s.state == Destroyed {
		s.mu.Unlock()
		return
	}
	s.state = Destroyed
	s.fifo = nil
	s.buffered = 0
	release := s.releaseFn
	s.releaseFn = nil
	s.mu.Unlock()

	if release != nil {
		release()
	}
	s.emit("close")
	if s.registry != nil {
		s.registry.remove(s.id)
	}
}

// fail transitions the stream to ERRORED, releases the backing resource,
// and emits the error to listeners.
func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.state == Destroyed || s.state == Errored {
		s.mu.Unlock()
		return
	}
	s.state = Errored
	release := s.releaseFn
	s.releaseFn = nil
	s.mu.Unlock()

	if release != nil {
		release()
	}
	s.emit("error", object.NewError(err))
	if s.registry != nil {
		s.registry.remove(s.id)
	}
}

// drainCheck emits drain once the buffered size has dropped back below the
// high-water mark. Called by the socket adapter from write completions.
func (s *Stream) drainCheck() {
	s.mu.Lock()
	below := s.buffered < s.opts.HighWaterMark && s.pendingWrites == 0
	s.mu.Unlock()
	if below {
		s.emit("drain")
	}
}
