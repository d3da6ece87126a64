package threads

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/reactor"
)

// Engine evaluates script source inside one isolated interpreter context.
// Each worker builds its own Engine from the factory; engines are never
// shared across threads.
type Engine interface {
	Evaluate(ctx context.Context, source string) (object.Object, error)
}

// EngineFactory constructs a fresh isolated Engine whose global
// environment includes the supplied values.
type EngineFactory func(globals map[string]object.Object) (Engine, error)

// errorPrefix marks an outbox entry carrying a script failure instead of
// a message. The owner-side poller routes such entries to the error
// callback.
const errorPrefix = "__ERROR__:"

// pollInterval bounds worker-to-owner delivery latency.
const pollInterval = 50 * time.Millisecond

// Worker runs a script on its own OS thread with an isolated interpreter
// context. Messages cross the boundary as plain bytes: the owner's
// PostMessage lands in the worker's inbox, the worker's postMessage lands
// in its outbox, and a reactor timer drains the outbox toward the owner's
// callbacks through the bridge.
type Worker struct {
	id       int
	script   string
	registry *Registry
	br       *bridge.Bridge

	inMu   sync.Mutex
	inCond *sync.Cond
	inbox  []string
	stop   bool

	outMu  sync.Mutex
	outbox []string

	stateMu   sync.Mutex
	running   bool
	onMessage object.Callable
	onError   object.Callable
	handler   object.Callable

	poll *reactor.Timer
	done chan struct{}
}

// Registry tracks the live workers and owns their ids.
type Registry struct {
	mu      sync.Mutex
	workers map[int]*Worker
	nextID  int
}

func NewRegistry() *Registry {
	return &Registry{workers: map[int]*Worker{}}
}

func (r *Registry) Get(id int) (*Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, found := r.workers[id]
	return w, found
}

// ActiveCount reports how many workers are still running.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, w := range r.workers {
		if w.IsRunning() {
			count++
		}
	}
	return count
}

func (r *Registry) remove(id int) {
	r.mu.Lock()
	delete(r.workers, id)
	r.mu.Unlock()
}

// TerminateAll stops every live worker without waiting for them.
func (r *Registry) TerminateAll() {
	r.mu.Lock()
	workers := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.mu.Unlock()
	for _, w := range workers {
		w.Terminate()
	}
}

// Spawn reads the script at scriptPath and starts a worker thread running
// it via a fresh engine from the factory. The worker's globals carry
// workerData and a parentPort map exposing postMessage and on.
func (r *Registry) Spawn(loop *reactor.Loop, br *bridge.Bridge, factory EngineFactory, scriptPath string, workerData object.Object) (*Worker, error) {
	if factory == nil {
		return nil, errz.New(errz.ErrThread, "no engine factory configured")
	}
	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, errz.Errorf(errz.ErrIO, "cannot read %s: %s", scriptPath, err).WithCause(err)
	}
	if workerData == nil {
		workerData = object.Nil
	}

	w := &Worker{
		script:   scriptPath,
		registry: r,
		br:       br,
		running:  true,
		done:     make(chan struct{}),
	}
	w.inCond = sync.NewCond(&w.inMu)

	r.mu.Lock()
	r.nextID++
	w.id = r.nextID
	r.workers[w.id] = w
	r.mu.Unlock()

	poll, err := loop.Every(pollInterval, w.drainOutbox)
	if err != nil {
		r.remove(w.id)
		return nil, err
	}
	w.poll = poll

	go w.run(factory, string(source), workerData)
	log.Debug().Int("worker", w.id).Str("script", scriptPath).Msg("worker started")
	return w, nil
}

// run executes on the worker's own goroutine: evaluate the script, then
// serve inbound messages until told to stop.
func (w *Worker) run(factory EngineFactory, source string, workerData object.Object) {
	defer func() {
		w.stateMu.Lock()
		w.running = false
		w.stateMu.Unlock()
		close(w.done)
	}()

	globals := map[string]object.Object{
		"workerData": workerData,
		"parentPort": w.parentPort(),
	}
	engine, err := factory(globals)
	if err != nil {
		w.postError(err)
		return
	}
	if _, err := engine.Evaluate(context.Background(), source); err != nil {
		w.postError(err)
		return
	}

	for {
		w.inMu.Lock()
		for len(w.inbox) == 0 && !w.stop {
			w.inCond.Wait()
		}
		if w.stop {
			w.inMu.Unlock()
			return
		}
		pending := w.inbox
		w.inbox = nil
		w.inMu.Unlock()

		w.stateMu.Lock()
		handler := w.handler
		w.stateMu.Unlock()
		if handler == nil {
			continue
		}
		for _, msg := range pending {
			if _, err := handler.Call(context.Background(), object.NewString(msg)); err != nil {
				log.Debug().Err(err).Int("worker", w.id).Msg("worker message handler failed")
			}
		}
	}
}

// parentPort builds the worker-side endpoint injected into the script's
// globals: postMessage enqueues on the outbox, on registers the single
// inbound-message handler.
func (w *Worker) parentPort() *object.Map {
	port := object.NewEmptyMap()
	port.Set("postMessage", object.NewBuiltin("postMessage", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("postMessage", 1, args); err != nil {
			return nil, err
		}
		w.enqueueOutbox(stringify(args[0]))
		return object.Nil, nil
	}))
	port.Set("on", object.NewBuiltin("on", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("on", 2, args); err != nil {
			return nil, err
		}
		event, argErr := object.AsStringValue(args[0])
		if argErr != nil {
			return nil, argErr
		}
		if event != "message" {
			return nil, object.ValueErrorf("unsupported event %q", event)
		}
		fn, argErr := object.AsCallable(args[1])
		if argErr != nil {
			return nil, argErr
		}
		w.stateMu.Lock()
		w.handler = fn
		w.stateMu.Unlock()
		return object.Nil, nil
	}))
	return port
}

// stringify renders a value for the thread boundary: strings and buffers
// pass as their raw content, everything else as its inspected form.
func stringify(value object.Object) string {
	switch value := value.(type) {
	case *object.String:
		return value.Value()
	case *object.Bytes:
		return string(value.Value())
	default:
		return value.Inspect()
	}
}

func (w *Worker) enqueueOutbox(msg string) {
	w.outMu.Lock()
	w.outbox = append(w.outbox, msg)
	w.outMu.Unlock()
}

func (w *Worker) postError(err error) {
	log.Debug().Err(err).Int("worker", w.id).Str("script", w.script).
		Msg("worker script failed")
	w.enqueueOutbox(errorPrefix + err.Error())
}

// drainOutbox runs on the reactor goroutine at the poll interval and
// routes queued messages to the owner's callbacks through the bridge.
// Delivery latency is bounded by the interval; order within one worker's
// stream is preserved.
func (w *Worker) drainOutbox() {
	w.outMu.Lock()
	pending := w.outbox
	w.outbox = nil
	w.outMu.Unlock()
	if len(pending) == 0 {
		return
	}

	w.stateMu.Lock()
	onMessage := w.onMessage
	onError := w.onError
	w.stateMu.Unlock()

	for _, msg := range pending {
		if rest, failed := strings.CutPrefix(msg, errorPrefix); failed {
			if onError != nil {
				w.br.Enqueue(onError, object.NewError(errz.New(errz.ErrThread, rest)))
			}
			continue
		}
		if onMessage != nil {
			w.br.Enqueue(onMessage, object.NewString(msg))
		}
	}
}

func (w *Worker) ID() int {
	return w.id
}

func (w *Worker) IsRunning() bool {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.running
}

// On registers the owner-side message or error callback. Each slot holds
// a single callback; registering again replaces it.
func (w *Worker) On(event string, fn object.Callable) error {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	switch event {
	case "message":
		w.onMessage = fn
	case "error":
		w.onError = fn
	default:
		return object.ValueErrorf("unsupported event %q", event)
	}
	return nil
}

// PostMessage enqueues a string or buffer on the worker's inbox. Other
// types are rejected.
func (w *Worker) PostMessage(value object.Object) error {
	switch value.(type) {
	case *object.String, *object.Bytes:
	default:
		return errz.Errorf(errz.ErrType,
			"postMessage() requires a string or buffer (%s given)", value.Type())
	}
	w.inMu.Lock()
	if w.stop {
		w.inMu.Unlock()
		return errz.New(errz.ErrThread, "worker is terminated")
	}
	w.inbox = append(w.inbox, stringify(value))
	w.inMu.Unlock()
	w.inCond.Signal()
	return nil
}

// Terminate stops the worker without blocking the caller: the stop flag
// is set, the condition variable notified, and the join happens on a
// detached goroutine. Safe to call more than once.
func (w *Worker) Terminate() {
	w.inMu.Lock()
	if w.stop {
		w.inMu.Unlock()
		return
	}
	w.stop = true
	w.inMu.Unlock()
	w.inCond.Broadcast()

	go func() {
		<-w.done
		w.poll.Stop()
		w.drainOutbox()
		w.registry.remove(w.id)
		log.Debug().Int("worker", w.id).Msg("worker terminated")
	}()
}
