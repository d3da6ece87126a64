// Package tembo assembles the async runtime's native services into the
// global environment of an embedding interpreter: binary serialization,
// byte streams, child processes, worker threads, signals, and a raw
// HTTP server, all delivering callbacks through a single bridge.
package tembo

import (
	"context"

	"github.com/tembo-lang/tembo/bridge"
	modHTTP "github.com/tembo-lang/tembo/modules/http"
	modProcess "github.com/tembo-lang/tembo/modules/process"
	modSerialize "github.com/tembo-lang/tembo/modules/serialize"
	modStreams "github.com/tembo-lang/tembo/modules/streams"
	modSubprocess "github.com/tembo-lang/tembo/modules/subprocess"
	modThreads "github.com/tembo-lang/tembo/modules/threads"
	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/runtime"
	"github.com/tembo-lang/tembo/threads"
)

// Option configures an App.
type Option func(*options)

type options struct {
	factory    threads.EngineFactory
	diagnostic bridge.DiagnosticFunc
}

// WithEngineFactory supplies the constructor for isolated interpreter
// contexts used by worker threads. Without it, threads.worker with a
// script path fails.
func WithEngineFactory(factory threads.EngineFactory) Option {
	return func(o *options) {
		o.factory = factory
	}
}

// WithDiagnostic installs a hook receiving errors raised by user
// listeners, which are otherwise swallowed at the bridge boundary.
func WithDiagnostic(fn bridge.DiagnosticFunc) Option {
	return func(o *options) {
		o.diagnostic = fn
	}
}

// App owns one runtime and its interpreter-facing modules.
type App struct {
	rt *runtime.Runtime
}

// New builds an App and starts its reactor loop.
func New(opts ...Option) *App {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	rt := runtime.New(o.factory)
	if o.diagnostic != nil {
		rt.Bridge().SetDiagnostic(o.diagnostic)
	}
	return &App{rt: rt}
}

// Runtime exposes the underlying owner object.
func (a *App) Runtime() *runtime.Runtime {
	return a.rt
}

// Globals returns the module map an embedding interpreter installs into
// its global environment.
func (a *App) Globals() map[string]object.Object {
	rt := a.rt
	return map[string]object.Object{
		"serialize": modSerialize.Module(),
		"streams":   modStreams.NewService(rt.Loop(), rt.Streams()).Module(),
		"subprocess": modSubprocess.NewService(
			rt.Loop(), rt.Bridge(), rt.Children()).Module(),
		"threads": modThreads.NewService(
			rt.Loop(), rt.Bridge(), rt.Workers(), rt.Shared(), rt.Pool(),
			rt.Factory()).Module(),
		"process": modProcess.NewService(rt.IPC(), rt.Signals()).Module(),
		"http": modHTTP.NewService(
			rt.Loop(), rt.Bridge(), rt.Streams()).Module(),
	}
}

// Run drains async callbacks on the calling goroutine until no work
// remains. This is the embedding interpreter's idle loop after top-level
// evaluation.
func (a *App) Run(ctx context.Context) error {
	return a.rt.Run(ctx)
}

// Close tears the runtime down. Safe to call more than once.
func (a *App) Close() error {
	return a.rt.Close()
}
