package threads

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/reactor"
	"github.com/tembo-lang/tembo/threads"
)

type echoEngine struct {
	globals map[string]object.Object
}

func (e *echoEngine) Evaluate(ctx context.Context, source string) (object.Object, error) {
	port := e.globals["parentPort"].(*object.Map)
	on, _ := port.Get("on")
	post, _ := port.Get("postMessage")
	handler := object.NewBuiltin("handler", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return post.(*object.Builtin).Call(ctx, args[0])
	})
	return on.(*object.Builtin).Call(ctx, object.NewString("message"), handler)
}

func newService(t *testing.T) (*Service, *bridge.Bridge) {
	t.Helper()
	loop := reactor.New()
	loop.Start()
	t.Cleanup(loop.Stop)
	br := bridge.New()
	factory := func(globals map[string]object.Object) (threads.Engine, error) {
		return &echoEngine{globals: globals}, nil
	}
	registry := threads.NewRegistry()
	t.Cleanup(registry.TerminateAll)
	return NewService(loop, br, registry, threads.NewSharedStore(), threads.NewFuncPool(), factory), br
}

func script(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "echo.tm")
	require.NoError(t, os.WriteFile(path, []byte("echo"), 0o644))
	return path
}

func call(t *testing.T, handle *object.Map, name string, args ...object.Object) object.Object {
	t.Helper()
	fn, found := handle.Get(name)
	require.True(t, found, name)
	result, err := fn.(*object.Builtin).Call(context.Background(), args...)
	require.NoError(t, err)
	return result
}

func TestScriptWorkerThroughModule(t *testing.T) {
	s, br := newService(t)

	result, err := s.Worker(context.Background(), object.NewString(script(t)), object.Nil)
	require.NoError(t, err)
	handle := result.(*object.Map)

	received := make(chan string, 1)
	call(t, handle, "on", object.NewString("message"), object.NewBuiltin("message", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		s, _ := object.AsString(args[0])
		received <- s.Value()
		return object.Nil, nil
	}))
	call(t, handle, "postMessage", object.NewString("ping"))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-received:
			assert.Equal(t, "ping", msg)
			call(t, handle, "terminate")
			return
		case <-deadline:
			t.Fatal("no echo from worker")
		default:
			br.Drain(context.Background())
			time.Sleep(time.Millisecond)
		}
	}
}

func TestFunctionWorkerVariant(t *testing.T) {
	s, _ := newService(t)

	fn := object.NewBuiltin("sum", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		a, _ := object.AsFloat(args[0])
		b, _ := object.AsFloat(args[1])
		return object.NewFloat(a + b), nil
	})
	result, err := s.Worker(context.Background(), fn, object.NewFloat(2), object.NewFloat(3))
	require.NoError(t, err)
	handle := result.(*object.Map)

	joined := call(t, handle, "join")
	assert.Equal(t, 5.0, joined.(*object.Float).Value())
}

func TestFunctionWorkerCap(t *testing.T) {
	s, _ := newService(t)
	release := make(chan struct{})
	blocker := object.NewBuiltin("block", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		<-release
		return object.Nil, nil
	})
	defer close(release)

	_, err := s.Worker(context.Background(), blocker)
	require.NoError(t, err)
	_, err = s.Worker(context.Background(), blocker)
	require.NoError(t, err)
	_, err = s.Worker(context.Background(), blocker)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many active workers")
}

func TestSharedValueBuiltins(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.SetShared(ctx, object.NewString("k"), object.NewFloat(7))
	require.NoError(t, err)
	value, err := s.GetShared(ctx, object.NewString("k"))
	require.NoError(t, err)
	assert.Equal(t, 7.0, value.(*object.Float).Value())

	missing, err := s.GetShared(ctx, object.NewString("absent"))
	require.NoError(t, err)
	assert.Equal(t, object.Nil, missing)

	_, err = s.Lock(ctx, object.NewString("k"))
	require.NoError(t, err)
	_, err = s.Unlock(ctx, object.NewString("k"))
	require.NoError(t, err)
}

func TestSleepAndCounts(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	start := time.Now()
	_, err := Sleep(ctx, object.NewFloat(20))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	count, err := s.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, count.(*object.Float).Value())

	cpus, err := HardwareConcurrency(ctx)
	require.NoError(t, err)
	assert.Greater(t, cpus.(*object.Float).Value(), 0.0)
}

func TestWorkerArity(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Worker(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "takes at least 1 argument")
}
