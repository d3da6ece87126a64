package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembo-lang/tembo/object"
)

func TestEnqueueDrainOrder(t *testing.T) {
	b := New()
	var got []float64
	record := object.NewBuiltin("record", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		v, err := object.AsFloat(args[0])
		require.Nil(t, err)
		got = append(got, v)
		return object.Nil, nil
	})
	for i := 0; i < 5; i++ {
		b.Enqueue(record, object.NewFloat(float64(i)))
	}
	require.Equal(t, 5, b.Len())
	count := b.Drain(context.Background())
	require.Equal(t, 5, count)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, got)
	assert.Equal(t, 0, b.Len())
}

func TestExactlyOnceAcrossGoroutines(t *testing.T) {
	b := New()
	var mu sync.Mutex
	calls := 0
	fn := object.NewBuiltin("count", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return object.Nil, nil
	})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Enqueue(fn)
			}
		}()
	}
	wg.Wait()
	b.Drain(context.Background())
	assert.Equal(t, 1000, calls)
}

func TestListenerErrorIsSwallowed(t *testing.T) {
	b := New()
	var seen error
	b.SetDiagnostic(func(p *Payload, err error) {
		seen = err
	})
	boom := object.NewBuiltin("boom", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return nil, errors.New("listener failed")
	})
	after := object.NewBuiltin("after", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return object.Nil, nil
	})
	b.Enqueue(boom)
	b.Enqueue(after)

	// Both payloads run; the failure is reported to the hook, not raised.
	count := b.Drain(context.Background())
	require.Equal(t, 2, count)
	require.Error(t, seen)
	assert.Equal(t, "listener failed", seen.Error())
}

func TestListenerPanicIsSwallowed(t *testing.T) {
	b := New()
	var seen error
	b.SetDiagnostic(func(p *Payload, err error) {
		seen = err
	})
	b.Enqueue(object.NewBuiltin("panic", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		panic("oops")
	}))
	require.NotPanics(t, func() {
		b.Drain(context.Background())
	})
	require.Error(t, seen)
	assert.Contains(t, seen.Error(), "oops")
}

func TestCloseDiscardsPending(t *testing.T) {
	b := New()
	fn := object.NewBuiltin("noop", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return object.Nil, nil
	})
	b.Enqueue(fn)
	b.Close()
	assert.Equal(t, 0, b.Len())
	b.Enqueue(fn)
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.Wait())
}
