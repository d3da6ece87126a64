// Package reactor provides the event loop that serializes all native handle
// mutations onto a single goroutine and tracks outstanding async work.
package reactor

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tembo-lang/tembo/errz"
)

// Loop runs submitted closures on a single dedicated goroutine. Socket
// binds, listens, and similar native-handle mutations are unsafe from
// arbitrary goroutines and must be submitted here.
//
// A nil *Loop is the "no reactor active" sentinel: every method fails
// gracefully on a nil receiver, so callers can propagate the error instead
// of crashing.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	timers  map[*Timer]struct{}
	pending int
	running bool
	stopped bool
	done    chan struct{}
}

// ErrNoReactor is returned when async I/O is requested with no active loop.
var ErrNoReactor = errz.New(errz.ErrIO, "no reactor is active")

func New() *Loop {
	l := &Loop{
		timers: map[*Timer]struct{}{},
		done:   make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Start launches the loop goroutine. Starting twice is a no-op.
func (l *Loop) Start() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()
	go l.run()
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped && len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
	}
}

// Submit schedules a closure to run on the loop goroutine. Submissions from
// one goroutine execute in submission order.
func (l *Loop) Submit(fn func()) error {
	if l == nil {
		return ErrNoReactor
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return ErrNoReactor
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return nil
}

// AddPending records one outstanding native operation. The loop is not idle
// until every AddPending is matched by DonePending.
func (l *Loop) AddPending() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.pending++
	l.mu.Unlock()
}

// DonePending releases one outstanding native operation.
func (l *Loop) DonePending() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if l.pending > 0 {
		l.pending--
	}
	l.mu.Unlock()
}

// HasPending reports whether any work keeps the loop alive: queued closures,
// armed one-shot timers, or unreleased pending registrations.
func (l *Loop) HasPending() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) > 0 || len(l.timers) > 0 || l.pending > 0
}

// Stop drains any queued closures, stops all timers, and waits for the loop
// goroutine to exit. Safe to call more than once.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.stopped = true
	timers := make([]*Timer, 0, len(l.timers))
	for t := range l.timers {
		timers = append(timers, t)
	}
	wasRunning := l.running
	l.cond.Broadcast()
	l.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	if wasRunning {
		<-l.done
	} else {
		close(l.done)
	}
	log.Debug().Msg("reactor loop stopped")
}

func (l *Loop) removeTimer(t *Timer) {
	l.mu.Lock()
	delete(l.timers, t)
	l.mu.Unlock()
}
