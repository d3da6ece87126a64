package stream

import (
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/reactor"
)

// SocketReadable wraps a live connection in a flowing readable stream. A
// read loop starts immediately, pushing chunks into the FIFO/listener
// machinery, the end sentinel on orderly close, and an error event on
// abnormal close. The loop's pending registration is the keep-alive: it is
// held while a read is outstanding and released exactly once when reading
// stops, so the reactor cannot go idle under a pending read.
func SocketReadable(loop *reactor.Loop, registry *Registry, conn net.Conn, opts Options) (*Stream, error) {
	if loop == nil {
		return nil, reactor.ErrNoReactor
	}
	s := registry.New(Readable, opts, nil)
	var closeOnce sync.Once
	release := func() {
		closeOnce.Do(func() {
			if err := conn.Close(); err != nil {
				log.Debug().Err(err).Msg("socket close failed")
			}
		})
	}
	s.mu.Lock()
	s.state = Flowing
	s.releaseFn = release
	s.mu.Unlock()

	loop.AddPending()
	var keepAliveOnce sync.Once
	done := func() {
		keepAliveOnce.Do(loop.DonePending)
	}
	go func() {
		defer done()
		buf := make([]byte, opts.ChunkSize)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				s.Push(chunk)
			}
			if err != nil {
				if err == io.EOF {
					s.Push(nil)
				} else if s.State() != Destroyed {
					s.fail(errz.Errorf(errz.ErrIO, "socket read: %s", err).WithCause(err))
				}
				return
			}
			if s.State() == Destroyed {
				return
			}
		}
	}()
	return s, nil
}

// SocketWritable wraps a live connection in a writable stream. Each write
// copies the chunk (the caller's buffer cannot be assumed valid past the
// call), counts it as pending, and issues the native write on the reactor
// goroutine so writes stay ordered. The completion decrements the pending
// count and re-checks backpressure, emitting drain once the buffer falls
// below the high-water mark.
func SocketWritable(loop *reactor.Loop, registry *Registry, conn net.Conn, opts Options) (*Stream, error) {
	if loop == nil {
		return nil, reactor.ErrNoReactor
	}
	s := registry.New(Writable, opts, nil)
	var closeOnce sync.Once
	release := func() {
		closeOnce.Do(func() {
			if err := conn.Close(); err != nil {
				log.Debug().Err(err).Msg("socket close failed")
			}
		})
	}
	s.mu.Lock()
	s.releaseFn = release
	s.asyncFn = func(chunk []byte) (bool, error) {
		buf := make([]byte, len(chunk))
		copy(buf, chunk)

		s.mu.Lock()
		s.buffered += len(buf)
		s.pendingWrites++
		below := s.buffered < s.opts.HighWaterMark
		s.mu.Unlock()

		loop.AddPending()
		err := loop.Submit(func() {
			defer loop.DonePending()
			_, writeErr := conn.Write(buf)

			s.mu.Lock()
			s.buffered -= len(buf)
			s.pendingWrites--
			s.mu.Unlock()

			if writeErr != nil {
				if s.State() != Destroyed {
					s.fail(errz.Errorf(errz.ErrIO, "socket write: %s", writeErr).WithCause(writeErr))
				}
				return
			}
			s.drainCheck()
		})
		if err != nil {
			s.mu.Lock()
			s.buffered -= len(buf)
			s.pendingWrites--
			s.mu.Unlock()
			loop.DonePending()
			return false, err
		}
		return below, nil
	}
	s.mu.Unlock()
	return s, nil
}
