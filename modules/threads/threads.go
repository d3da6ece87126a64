package threads

import (
	"context"
	goruntime "runtime"
	"time"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/reactor"
	"github.com/tembo-lang/tembo/threads"
)

// Service exposes worker threads and the shared-value primitives to
// interpreted code.
type Service struct {
	loop    *reactor.Loop
	br      *bridge.Bridge
	workers *threads.Registry
	shared  *threads.SharedStore
	pool    *threads.FuncPool
	factory threads.EngineFactory
}

func NewService(loop *reactor.Loop, br *bridge.Bridge, workers *threads.Registry, shared *threads.SharedStore, pool *threads.FuncPool, factory threads.EngineFactory) *Service {
	return &Service{
		loop:    loop,
		br:      br,
		workers: workers,
		shared:  shared,
		pool:    pool,
		factory: factory,
	}
}

// Worker starts a worker. With a script path it spawns an isolated
// interpreter thread and returns a message-passing handle; with a
// callable it runs the lighter-weight capped pool variant and returns a
// join handle.
func (s *Service) Worker(ctx context.Context, args ...object.Object) (object.Object, error) {
	if len(args) == 0 {
		return nil, object.ArgsErrorf("args error: worker() takes at least 1 argument (0 given)")
	}
	if fn, ok := args[0].(object.Callable); ok {
		task, err := s.pool.Go(ctx, fn, args[1:]...)
		if err != nil {
			return nil, err
		}
		return taskHandle(task), nil
	}
	if err := object.RequireRange("worker", 1, 2, args); err != nil {
		return nil, err
	}
	scriptPath, argErr := object.AsStringValue(args[0])
	if argErr != nil {
		return nil, argErr
	}
	var workerData object.Object = object.Nil
	if len(args) == 2 {
		workerData = args[1]
	}
	w, err := s.workers.Spawn(s.loop, s.br, s.factory, scriptPath, workerData)
	if err != nil {
		return nil, err
	}
	return workerHandle(w), nil
}

func workerHandle(w *threads.Worker) *object.Map {
	h := object.NewEmptyMap()
	h.Set("id", object.NewFloat(float64(w.ID())))

	h.Set("postMessage", object.NewBuiltin("postMessage", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("postMessage", 1, args); err != nil {
			return nil, err
		}
		if err := w.PostMessage(args[0]); err != nil {
			return nil, err
		}
		return object.Nil, nil
	}))

	h.Set("on", object.NewBuiltin("on", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("on", 2, args); err != nil {
			return nil, err
		}
		event, argErr := object.AsStringValue(args[0])
		if argErr != nil {
			return nil, argErr
		}
		fn, argErr := object.AsCallable(args[1])
		if argErr != nil {
			return nil, argErr
		}
		if err := w.On(event, fn); err != nil {
			return nil, err
		}
		return object.Nil, nil
	}))

	h.Set("terminate", object.NewBuiltin("terminate", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		w.Terminate()
		return object.Nil, nil
	}))

	h.Set("isRunning", object.NewBuiltin("isRunning", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return object.NewBool(w.IsRunning()), nil
	}))
	return h
}

func taskHandle(task *threads.Task) *object.Map {
	h := object.NewEmptyMap()
	h.Set("join", object.NewBuiltin("join", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		result, err := task.Join()
		if err != nil {
			return nil, err
		}
		if result == nil {
			return object.Nil, nil
		}
		return result, nil
	}))
	h.Set("detach", object.NewBuiltin("detach", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		task.Detach()
		return object.Nil, nil
	}))
	return h
}

// Lock acquires the named mutex, creating it on first use.
func (s *Service) Lock(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.Require("lock", 1, args); err != nil {
		return nil, err
	}
	key, argErr := object.AsStringValue(args[0])
	if argErr != nil {
		return nil, argErr
	}
	s.shared.Lock(key)
	return object.Nil, nil
}

// Unlock releases the named mutex. Pairing with lock is the caller's
// responsibility.
func (s *Service) Unlock(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.Require("unlock", 1, args); err != nil {
		return nil, err
	}
	key, argErr := object.AsStringValue(args[0])
	if argErr != nil {
		return nil, argErr
	}
	s.shared.Unlock(key)
	return object.Nil, nil
}

// SetShared stores a value in the shared store.
func (s *Service) SetShared(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.Require("setShared", 2, args); err != nil {
		return nil, err
	}
	key, argErr := object.AsStringValue(args[0])
	if argErr != nil {
		return nil, argErr
	}
	s.shared.SetShared(key, args[1])
	return object.Nil, nil
}

// GetShared returns a shared value, or nil when absent.
func (s *Service) GetShared(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.Require("getShared", 1, args); err != nil {
		return nil, err
	}
	key, argErr := object.AsStringValue(args[0])
	if argErr != nil {
		return nil, argErr
	}
	return s.shared.GetShared(key), nil
}

// Sleep blocks the calling thread for the given number of milliseconds.
func Sleep(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.Require("sleep", 1, args); err != nil {
		return nil, err
	}
	ms, argErr := object.AsFloat(args[0])
	if argErr != nil {
		return nil, argErr
	}
	select {
	case <-time.After(time.Duration(ms * float64(time.Millisecond))):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return object.Nil, nil
}

// ActiveCount reports the number of running script workers.
func (s *Service) ActiveCount(ctx context.Context, args ...object.Object) (object.Object, error) {
	return object.NewFloat(float64(s.workers.ActiveCount())), nil
}

// HardwareConcurrency reports the number of logical CPUs.
func HardwareConcurrency(ctx context.Context, args ...object.Object) (object.Object, error) {
	return object.NewFloat(float64(goruntime.NumCPU())), nil
}

func (s *Service) Module() *object.Module {
	return object.NewBuiltinsModule("threads", map[string]object.Object{
		"worker":              object.NewBuiltin("worker", s.Worker),
		"lock":                object.NewBuiltin("lock", s.Lock),
		"unlock":              object.NewBuiltin("unlock", s.Unlock),
		"setShared":           object.NewBuiltin("setShared", s.SetShared),
		"getShared":           object.NewBuiltin("getShared", s.GetShared),
		"sleep":               object.NewBuiltin("sleep", Sleep),
		"activeCount":         object.NewBuiltin("activeCount", s.ActiveCount),
		"hardwareConcurrency": object.NewBuiltin("hardwareConcurrency", HardwareConcurrency),
	})
}
