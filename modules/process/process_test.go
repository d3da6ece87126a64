package process

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/process"
)

func newService() *Service {
	br := bridge.New()
	return NewService(process.NewChildIPC(br), process.NewSignalTable(br))
}

func noop() *object.Builtin {
	return object.NewBuiltin("noop", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return object.Nil, nil
	})
}

func TestPid(t *testing.T) {
	result, err := Pid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(os.Getpid()), result.(*object.Float).Value())
}

func TestSendOutsideForkIsNoOp(t *testing.T) {
	s := newService()
	result, err := s.Send(context.Background(), object.NewString("ping"))
	require.NoError(t, err)
	assert.Equal(t, object.Nil, result)
}

func TestOnRoutesEvents(t *testing.T) {
	s := newService()
	ctx := context.Background()

	_, err := s.On(ctx, object.NewString("message"), noop())
	require.NoError(t, err)
	_, err = s.On(ctx, object.NewString("signal"), noop())
	require.NoError(t, err)
	_, err = s.On(ctx, object.NewString("SIGUSR2"), noop())
	require.NoError(t, err)

	_, err = s.On(ctx, object.NewString("SIGKILL"), noop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be caught")

	_, err = s.On(ctx, object.NewString("SIGNOPE"), noop())
	require.Error(t, err)
}

func TestOffBatchRemoval(t *testing.T) {
	s := newService()
	ctx := context.Background()

	listener := noop()
	_, err := s.On(ctx, object.NewString("SIGUSR1"), listener)
	require.NoError(t, err)
	_, err = s.On(ctx, object.NewString("SIGUSR2"), listener)
	require.NoError(t, err)

	// Batch removal by event names.
	_, err = s.Off(ctx, object.NewString("SIGUSR1"), object.NewString("SIGUSR2"))
	require.NoError(t, err)

	// One specific listener.
	_, err = s.On(ctx, object.NewString("SIGUSR1"), listener)
	require.NoError(t, err)
	_, err = s.Off(ctx, object.NewString("SIGUSR1"), listener)
	require.NoError(t, err)

	// Everything.
	_, err = s.Off(ctx)
	require.NoError(t, err)
}

func TestExitIntercepted(t *testing.T) {
	s := newService()
	var exitCode = -1
	s.exit = func(code int) { exitCode = code }

	_, err := s.Exit(context.Background(), object.NewFloat(3))
	require.NoError(t, err)
	assert.Equal(t, 3, exitCode)

	_, err = s.Exit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)
}

func TestModuleSurface(t *testing.T) {
	m := newService().Module()
	for _, name := range []string{"send", "on", "off", "pid", "exit", "isForked"} {
		_, found := m.GetAttr(name)
		assert.True(t, found, name)
	}
}
