package process

import (
	"context"
	"os"

	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/process"
)

// Service exposes the current process to interpreted code: the fork IPC
// channel (when this process is a forked child), signal handling, pid and
// exit.
type Service struct {
	ipc     *process.ChildIPC
	signals *process.SignalTable

	// exit allows tests to intercept process termination.
	exit func(code int)
}

func NewService(ipc *process.ChildIPC, signals *process.SignalTable) *Service {
	return &Service{ipc: ipc, signals: signals, exit: os.Exit}
}

// Send writes a value up the fork IPC channel. In a non-forked process
// this is a silent no-op.
func (s *Service) Send(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.Require("send", 1, args); err != nil {
		return nil, err
	}
	if err := s.ipc.Send(args[0]); err != nil {
		return nil, err
	}
	return object.Nil, nil
}

// On registers a listener: "message" for inbound IPC chunks, "signal" for
// the catch-all signal event, or a signal name/number for one signal.
func (s *Service) On(ctx context.Context, args ...object.Object) (object.Object, error) {
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
	switch event {
	case "message":
		s.ipc.OnMessage(fn)
	case "signal":
		s.signals.OnAny(fn)
	default:
		if err := s.signals.On(event, fn); err != nil {
			return nil, err
		}
	}
	return object.Nil, nil
}

// Off removes signal listeners: no arguments removes everything, event
// names remove those events' listeners, and an event plus a callable
// removes that one listener.
func (s *Service) Off(ctx context.Context, args ...object.Object) (object.Object, error) {
	var events []string
	var fn object.Callable
	for _, arg := range args {
		switch value := arg.(type) {
		case *object.String:
			events = append(events, value.Value())
		default:
			callable, argErr := object.AsCallable(arg)
			if argErr != nil {
				return nil, argErr
			}
			fn = callable
		}
	}
	if err := s.signals.Off(events, fn); err != nil {
		return nil, err
	}
	return object.Nil, nil
}

// Pid returns the current process id.
func Pid(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.Require("pid", 0, args); err != nil {
		return nil, err
	}
	return object.NewFloat(float64(os.Getpid())), nil
}

// Exit terminates the process with the given code (default 0).
func (s *Service) Exit(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.RequireRange("exit", 0, 1, args); err != nil {
		return nil, err
	}
	code := 0
	if len(args) == 1 {
		n, argErr := object.AsInt(args[0])
		if argErr != nil {
			return nil, argErr
		}
		code = n
	}
	s.exit(code)
	return object.Nil, nil
}

// IsForked reports whether this process was started by fork.
func IsForked(ctx context.Context, args ...object.Object) (object.Object, error) {
	return object.NewBool(process.IsForkedChild()), nil
}

func (s *Service) Module() *object.Module {
	return object.NewBuiltinsModule("process", map[string]object.Object{
		"send":     object.NewBuiltin("send", s.Send),
		"on":       object.NewBuiltin("on", s.On),
		"off":      object.NewBuiltin("off", s.Off),
		"pid":      object.NewBuiltin("pid", Pid),
		"exit":     object.NewBuiltin("exit", s.Exit),
		"isForked": object.NewBuiltin("isForked", IsForked),
	})
}
