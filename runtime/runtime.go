// Package runtime assembles the process-scoped owner object: one reactor
// loop, one callback bridge, and the registries for streams, child
// processes, workers and signal watches, with an explicit lifecycle from
// construction to teardown.
package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/httpd"
	"github.com/tembo-lang/tembo/process"
	"github.com/tembo-lang/tembo/reactor"
	"github.com/tembo-lang/tembo/stream"
	"github.com/tembo-lang/tembo/threads"
)

// Runtime owns every native-side registry and the two threads of the
// concurrency model: the interpreter home thread (the caller of Run) and
// the reactor loop. Handles are only reachable through the registries, so
// a concurrently destroyed entry surfaces as a lookup miss rather than a
// dangling reference.
type Runtime struct {
	loop     *reactor.Loop
	br       *bridge.Bridge
	streams  *stream.Registry
	children *process.Registry
	workers  *threads.Registry
	signals  *process.SignalTable
	ipc      *process.ChildIPC
	shared   *threads.SharedStore
	pool     *threads.FuncPool
	factory  threads.EngineFactory

	mu      sync.Mutex
	servers []*httpd.Server
	closed  bool
}

// New constructs a runtime and starts its reactor loop. The engine
// factory builds isolated interpreter contexts for worker threads; it may
// be nil when workers are not used.
func New(factory threads.EngineFactory) *Runtime {
	loop := reactor.New()
	loop.Start()
	br := bridge.New()
	return &Runtime{
		loop:     loop,
		br:       br,
		streams:  stream.NewRegistry(),
		children: process.NewRegistry(),
		workers:  threads.NewRegistry(),
		signals:  process.NewSignalTable(br),
		ipc:      process.NewChildIPC(br),
		shared:   threads.NewSharedStore(),
		pool:     threads.NewFuncPool(),
		factory:  factory,
	}
}

func (r *Runtime) Loop() *reactor.Loop            { return r.loop }
func (r *Runtime) Bridge() *bridge.Bridge         { return r.br }
func (r *Runtime) Streams() *stream.Registry      { return r.streams }
func (r *Runtime) Children() *process.Registry    { return r.children }
func (r *Runtime) Workers() *threads.Registry     { return r.workers }
func (r *Runtime) Signals() *process.SignalTable  { return r.signals }
func (r *Runtime) IPC() *process.ChildIPC         { return r.ipc }
func (r *Runtime) Shared() *threads.SharedStore   { return r.shared }
func (r *Runtime) Pool() *threads.FuncPool        { return r.pool }
func (r *Runtime) Factory() threads.EngineFactory { return r.factory }

// NewServer builds an HTTP server bound to this runtime's loop and stream
// registry and tracks it for teardown.
func (r *Runtime) NewServer(handler httpd.Handler) *httpd.Server {
	srv := httpd.NewServer(r.loop, r.streams, handler)
	r.mu.Lock()
	r.servers = append(r.servers, srv)
	r.mu.Unlock()
	return srv
}

// Run drains bridge callbacks on the calling goroutine until no async
// work remains: the bridge queue is empty, the loop has nothing pending,
// and no worker is running. This is the interpreter home thread's idle
// loop after top-level evaluation completes.
func (r *Runtime) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.br.Drain(ctx)
		if r.br.Len() == 0 && !r.loop.HasPending() && r.workers.ActiveCount() == 0 {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

// Close tears everything down in dependency order, aggregating failures.
// Safe to call more than once.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	servers := r.servers
	r.mu.Unlock()

	var errs *multierror.Error
	for _, srv := range servers {
		if err := srv.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	r.workers.TerminateAll()
	if err := r.children.KillAll(); err != nil {
		errs = multierror.Append(errs, err)
	}
	r.streams.CloseAll()
	r.signals.Close()
	r.ipc.Close()
	r.loop.Stop()
	r.br.Close()
	if err := errs.ErrorOrNil(); err != nil {
		log.Debug().Err(err).Msg("runtime teardown reported errors")
		return err
	}
	return nil
}
