package threads

import (
	"context"
	"sync"

	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/object"
)

// MaxPoolWorkers caps the lighter-weight function-worker variant. Extra
// worker creation past the cap fails immediately rather than queuing.
const MaxPoolWorkers = 2

// FuncPool runs callables on transient goroutines, capped at
// MaxPoolWorkers concurrently active. It has none of the script Worker's
// isolation or message queues; each task carries its result back through
// its own handle.
type FuncPool struct {
	mu     sync.Mutex
	active int
}

// Task is the join handle for one pool worker.
type Task struct {
	done   chan struct{}
	result object.Object
	err    error
}

func NewFuncPool() *FuncPool {
	return &FuncPool{}
}

// Active reports the number of currently running tasks.
func (p *FuncPool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Go starts fn(args...) on its own goroutine. Creation past the cap is
// rejected with a thread error.
func (p *FuncPool) Go(ctx context.Context, fn object.Callable, args ...object.Object) (*Task, error) {
	p.mu.Lock()
	if p.active >= MaxPoolWorkers {
		p.mu.Unlock()
		return nil, errz.Errorf(errz.ErrThread,
			"too many active workers (max %d)", MaxPoolWorkers)
	}
	p.active++
	p.mu.Unlock()

	t := &Task{done: make(chan struct{})}
	go func() {
		defer func() {
			p.mu.Lock()
			p.active--
			p.mu.Unlock()
			close(t.done)
		}()
		t.result, t.err = fn.Call(ctx, args...)
	}()
	return t, nil
}

// Join blocks until the task finishes and returns its result.
func (t *Task) Join() (object.Object, error) {
	<-t.done
	return t.result, t.err
}

// Detach abandons the task; it keeps running but its result is dropped.
func (t *Task) Detach() {}
