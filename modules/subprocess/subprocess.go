package subprocess

import (
	"context"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/process"
	"github.com/tembo-lang/tembo/reactor"
)

// Service exposes child-process management to interpreted code.
type Service struct {
	loop     *reactor.Loop
	br       *bridge.Bridge
	registry *process.Registry
}

func NewService(loop *reactor.Loop, br *bridge.Bridge, registry *process.Registry) *Service {
	return &Service{loop: loop, br: br, registry: registry}
}

func parseArgs(arg object.Object) ([]string, error) {
	if arg == object.Nil {
		return nil, nil
	}
	list, err := object.AsList(arg)
	if err != nil {
		return nil, err
	}
	items := make([]string, 0, list.Len())
	for _, item := range list.Value() {
		s, err := object.AsStringValue(item)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, nil
}

func parseOptions(args []object.Object, index int) (process.SpawnOptions, error) {
	if len(args) <= index || args[index] == object.Nil {
		return process.SpawnOptions{}, nil
	}
	m, err := object.AsMap(args[index])
	if err != nil {
		return process.SpawnOptions{}, err
	}
	return process.ParseSpawnOptions(m)
}

// Spawn launches a child process and returns its handle.
func (s *Service) Spawn(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.RequireRange("spawn", 1, 3, args); err != nil {
		return nil, err
	}
	command, argErr := object.AsStringValue(args[0])
	if argErr != nil {
		return nil, argErr
	}
	var cmdArgs []string
	if len(args) >= 2 {
		parsed, err := parseArgs(args[1])
		if err != nil {
			return nil, err
		}
		cmdArgs = parsed
	}
	opts, err := parseOptions(args, 2)
	if err != nil {
		return nil, err
	}
	child, err := s.registry.Spawn(s.loop, s.br, command, cmdArgs, opts)
	if err != nil {
		return nil, err
	}
	return Handle(child), nil
}

// Exec runs a command under the shell. With a callback the call returns
// immediately and delivers callback(error, {stdout, stderr, code}); with
// no callback it blocks and returns the result map.
func (s *Service) Exec(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.RequireRange("exec", 1, 2, args); err != nil {
		return nil, err
	}
	command, argErr := object.AsStringValue(args[0])
	if argErr != nil {
		return nil, argErr
	}
	if len(args) == 2 && args[1] != object.Nil {
		callback, argErr := object.AsCallable(args[1])
		if argErr != nil {
			return nil, argErr
		}
		process.ExecAsync(s.loop, s.br, command, callback)
		return object.Nil, nil
	}
	result, err := process.Exec(command)
	if err != nil {
		return nil, err
	}
	return result.Map(), nil
}

// Fork re-executes the host binary running scriptPath, with a private IPC
// channel. The handle additionally supports send and "message" listeners.
func (s *Service) Fork(ctx context.Context, args ...object.Object) (object.Object, error) {
	if err := object.RequireRange("fork", 1, 3, args); err != nil {
		return nil, err
	}
	scriptPath, argErr := object.AsStringValue(args[0])
	if argErr != nil {
		return nil, argErr
	}
	var cmdArgs []string
	if len(args) >= 2 {
		parsed, err := parseArgs(args[1])
		if err != nil {
			return nil, err
		}
		cmdArgs = parsed
	}
	opts, err := parseOptions(args, 2)
	if err != nil {
		return nil, err
	}
	child, err := s.registry.Fork(s.loop, s.br, scriptPath, cmdArgs, opts)
	if err != nil {
		return nil, err
	}
	return Handle(child), nil
}

// Handle wraps a child process as a script-visible map of builtins.
func Handle(child *process.Child) *object.Map {
	h := object.NewEmptyMap()
	h.Set("pid", object.NewFloat(float64(child.Pid())))

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
		if err := child.On(event, fn); err != nil {
			return nil, err
		}
		return object.Nil, nil
	}))

	h.Set("kill", object.NewBuiltin("kill", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.RequireRange("kill", 0, 1, args); err != nil {
			return nil, err
		}
		signalName := ""
		if len(args) == 1 && args[0] != object.Nil {
			s, argErr := object.AsStringValue(args[0])
			if argErr != nil {
				return nil, argErr
			}
			signalName = s
		}
		if err := child.Kill(signalName); err != nil {
			return nil, err
		}
		return object.Nil, nil
	}))

	h.Set("send", object.NewBuiltin("send", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("send", 1, args); err != nil {
			return nil, err
		}
		if err := child.Send(args[0]); err != nil {
			return nil, err
		}
		return object.Nil, nil
	}))

	h.Set("write", object.NewBuiltin("write", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		if err := object.Require("write", 1, args); err != nil {
			return nil, err
		}
		var data []byte
		switch value := args[0].(type) {
		case *object.String:
			data = []byte(value.Value())
		case *object.Bytes:
			data = value.Value()
		default:
			return nil, object.TypeErrorf("expected a string or bytes (%s given)", args[0].Type())
		}
		if err := child.WriteStdin(data); err != nil {
			return nil, err
		}
		return object.Nil, nil
	}))

	h.Set("isRunning", object.NewBuiltin("isRunning", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return object.NewBool(child.IsRunning()), nil
	}))
	return h
}

func (s *Service) Module() *object.Module {
	return object.NewBuiltinsModule("subprocess", map[string]object.Object{
		"spawn": object.NewBuiltin("spawn", s.Spawn),
		"exec":  object.NewBuiltin("exec", s.Exec),
		"fork":  object.NewBuiltin("fork", s.Fork),
	})
}
