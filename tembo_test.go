package tembo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/object"
)

func TestGlobalsSurface(t *testing.T) {
	app := New()
	defer app.Close()

	globals := app.Globals()
	for _, name := range []string{"serialize", "streams", "subprocess", "threads", "process", "http"} {
		module, found := globals[name]
		require.True(t, found, name)
		assert.Equal(t, object.MODULE, module.Type())
	}
}

func TestEndToEndSerializeModule(t *testing.T) {
	app := New()
	defer app.Close()

	serialize := app.Globals()["serialize"].(*object.Module)
	encode, _ := serialize.GetAttr("serialize")
	decode, _ := serialize.GetAttr("deserialize")

	ctx := context.Background()
	encoded, err := encode.(*object.Builtin).Call(ctx, object.NewString("round trip"))
	require.NoError(t, err)
	decoded, err := decode.(*object.Builtin).Call(ctx, encoded)
	require.NoError(t, err)
	assert.Equal(t, "round trip", decoded.(*object.String).Value())
}

func TestRunCompletesAfterTimerWork(t *testing.T) {
	app := New()
	defer app.Close()

	fired := false
	callback := object.NewBuiltin("cb", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		fired = true
		return object.Nil, nil
	})
	_, err := app.Runtime().Loop().After(10*time.Millisecond, func() {
		app.Runtime().Bridge().Enqueue(callback)
	})
	require.NoError(t, err)

	require.NoError(t, app.Run(context.Background()))
	assert.True(t, fired)
}

func TestDiagnosticOption(t *testing.T) {
	var seen error
	app := New(WithDiagnostic(func(p *bridge.Payload, err error) {
		seen = err
	}))
	defer app.Close()

	failing := object.NewBuiltin("fail", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return nil, assert.AnError
	})
	app.Runtime().Bridge().Enqueue(failing)
	app.Runtime().Bridge().Drain(context.Background())
	assert.ErrorIs(t, seen, assert.AnError)
}
