// Package bridge implements the callback bridge: the single sanctioned
// channel by which any goroutine hands an interpreter-visible function
// invocation back to the interpreter's home goroutine.
package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tembo-lang/tembo/object"
)

// Payload is one pending invocation: a target function handle and its
// argument list. A payload is created by any goroutine and consumed exactly
// once by the home goroutine.
type Payload struct {
	Fn   object.Callable
	Args []object.Object
}

// DiagnosticFunc observes errors raised by user-supplied listeners. Listener
// failures are discarded at the bridge boundary so a misbehaving listener
// cannot take down the reactor; the hook is the only way to see them.
type DiagnosticFunc func(p *Payload, err error)

// Bridge is a process-scoped FIFO of pending invocations. Enqueue is safe
// from any goroutine; Drain and DrainOne must only be called from the
// interpreter's home goroutine.
type Bridge struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Payload
	closed bool
	diag   DiagnosticFunc
}

func New() *Bridge {
	b := &Bridge{
		diag: func(p *Payload, err error) {
			log.Debug().Err(err).Msg("listener error discarded at bridge boundary")
		},
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// SetDiagnostic replaces the hook invoked for discarded listener errors.
// A nil hook disables diagnostics entirely.
func (b *Bridge) SetDiagnostic(fn DiagnosticFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.diag = fn
}

// Enqueue appends an invocation to the queue. Payloads from a single
// goroutine are delivered in enqueue order; payloads racing from different
// goroutines are totally ordered but the winner is unspecified. Enqueue on
// a closed bridge is a no-op.
func (b *Bridge) Enqueue(fn object.Callable, args ...object.Object) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.queue = append(b.queue, &Payload{Fn: fn, Args: args})
	b.cond.Signal()
}

// Len returns the number of pending invocations.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// DrainOne invokes the oldest pending payload, if any, and reports whether
// one was invoked.
func (b *Bridge) DrainOne(ctx context.Context) bool {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return false
	}
	p := b.queue[0]
	b.queue = b.queue[1:]
	diag := b.diag
	b.mu.Unlock()
	b.invoke(ctx, p, diag)
	return true
}

// Drain invokes every payload pending at the time of the call, plus any
// enqueued while draining, and returns the number invoked.
func (b *Bridge) Drain(ctx context.Context) int {
	var count int
	for b.DrainOne(ctx) {
		count++
	}
	return count
}

// Wait blocks until at least one payload is pending or the bridge is
// closed, reporting whether a payload is available.
func (b *Bridge) Wait() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.queue) == 0 && !b.closed {
		b.cond.Wait()
	}
	return len(b.queue) > 0
}

// Close discards all pending payloads and releases any waiters. Further
// enqueues are ignored.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.queue = nil
	b.cond.Broadcast()
}

// invoke runs one payload, catching both returned errors and panics. This
// is the swallow point: a failing listener must not crash the reactor.
func (b *Bridge) invoke(ctx context.Context, p *Payload, diag DiagnosticFunc) {
	defer func() {
		if r := recover(); r != nil {
			if diag != nil {
				diag(p, fmt.Errorf("listener panic: %v", r))
			}
		}
	}()
	result, err := p.Fn.Call(ctx, p.Args...)
	if err == nil {
		if errObj, ok := result.(*object.Error); ok && errObj.IsRaised() {
			err = errObj.Value()
		}
	}
	if err != nil && diag != nil {
		diag(p, err)
	}
}
