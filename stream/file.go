package stream

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/reactor"
)

// ReadableFile opens path synchronously and returns a flowing readable
// stream fed by a read loop on the reactor goroutine. The loop reads up to
// ChunkSize bytes at a time, backing off briefly while the stream is paused
// or over the high-water mark, until EOF or destruction.
func ReadableFile(loop *reactor.Loop, registry *Registry, path string, opts Options) (*Stream, error) {
	if loop == nil {
		return nil, reactor.ErrNoReactor
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errz.Errorf(errz.ErrIO, "cannot open %s: %s", path, err).WithCause(err)
	}
	s := registry.New(Readable, opts, nil)
	var closeOnce sync.Once
	release := func() {
		closeOnce.Do(func() {
			if err := file.Close(); err != nil {
				log.Debug().Err(err).Str("path", path).Msg("file close failed")
			}
		})
	}
	s.mu.Lock()
	s.state = Flowing
	s.releaseFn = release
	s.mu.Unlock()

	loop.AddPending()
	var step func()
	step = func() {
		// The stream may have been destroyed while this step was queued.
		if _, live := registry.Get(s.id); !live {
			loop.DonePending()
			return
		}
		state := s.State()
		if state == Paused || s.BufferedSize() >= opts.HighWaterMark {
			if _, err := loop.After(time.Millisecond, step); err != nil {
				loop.DonePending()
			}
			return
		}
		buf := make([]byte, opts.ChunkSize)
		n, err := file.Read(buf)
		if n > 0 {
			s.Push(buf[:n])
		}
		if err == io.EOF {
			s.Push(nil)
			if opts.AutoClose {
				release()
			}
			loop.DonePending()
			return
		}
		if err != nil {
			s.fail(errz.Errorf(errz.ErrIO, "read %s: %s", path, err).WithCause(err))
			loop.DonePending()
			return
		}
		if err := loop.Submit(step); err != nil {
			loop.DonePending()
		}
	}
	if err := loop.Submit(step); err != nil {
		loop.DonePending()
		release()
		registry.remove(s.id)
		return nil, err
	}
	return s, nil
}

// WritableFile opens (creating or truncating) path synchronously and
// returns a writable stream whose writes go straight to the file. File
// writes are synchronous: callers rely on write-then-read ordering.
func WritableFile(registry *Registry, path string, opts Options) (*Stream, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errz.Errorf(errz.ErrIO, "cannot open %s: %s", path, err).WithCause(err)
	}
	s := registry.New(Writable, opts, nil)
	var closeOnce sync.Once
	release := func() {
		closeOnce.Do(func() {
			if err := file.Close(); err != nil {
				log.Debug().Err(err).Str("path", path).Msg("file close failed")
			}
		})
	}
	s.mu.Lock()
	s.writeFn = func(chunk []byte) error {
		if _, err := file.Write(chunk); err != nil {
			return errz.Errorf(errz.ErrIO, "write %s: %s", path, err).WithCause(err)
		}
		return nil
	}
	s.releaseFn = release
	if opts.AutoClose {
		s.closeOnEnd = release
	}
	s.mu.Unlock()
	return s, nil
}
