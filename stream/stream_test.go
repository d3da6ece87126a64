package stream

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembo-lang/tembo/object"
)

// collector records data chunks delivered to a listener.
type collector struct {
	mu     sync.Mutex
	chunks [][]byte
	ends   int
}

func (c *collector) dataListener() object.Callable {
	return object.NewBuiltin("data", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		b, err := object.AsBytes(args[0])
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.chunks = append(c.chunks, b.Value())
		c.mu.Unlock()
		return object.Nil, nil
	})
}

func (c *collector) endListener() object.Callable {
	return object.NewBuiltin("end", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		c.mu.Lock()
		c.ends++
		c.mu.Unlock()
		return object.Nil, nil
	})
}

func (c *collector) joined() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Join(c.chunks, nil)
}

func newTestStream(t *testing.T, kind Kind) (*Registry, *Stream) {
	t.Helper()
	registry := NewRegistry()
	return registry, registry.New(kind, DefaultOptions(), nil)
}

func TestBackpressureAndResumeOrder(t *testing.T) {
	registry := NewRegistry()
	opts := DefaultOptions()
	opts.HighWaterMark = 10
	s := registry.New(Readable, opts, nil)
	s.Pause()

	var c collector
	require.NoError(t, s.On("data", c.dataListener()))

	// Below the mark the push reports capacity; at or above it signals
	// backpressure.
	assert.True(t, s.Push([]byte("1234")))
	assert.True(t, s.Push([]byte("5678")))
	assert.False(t, s.Push([]byte("9abc")))
	assert.Equal(t, 12, s.BufferedSize())
	assert.Empty(t, c.chunks)

	s.Resume()
	assert.Equal(t, "123456789abc", string(c.joined()))
	assert.Equal(t, 0, s.BufferedSize())

	// Live flow-through after resume.
	s.Push([]byte("live"))
	assert.Equal(t, "123456789abclive", string(c.joined()))
}

func TestEndSentinelFiresOnce(t *testing.T) {
	_, s := newTestStream(t, Readable)
	var c collector
	require.NoError(t, s.On("end", c.endListener()))
	assert.False(t, s.Push(nil))
	assert.False(t, s.Push(nil))
	assert.Equal(t, 1, c.ends)
}

func TestReadPartialSplitsChunk(t *testing.T) {
	_, s := newTestStream(t, Readable)
	s.Push([]byte("hello"))
	s.Push([]byte("world"))

	assert.Equal(t, []byte("hel"), s.Read(3))
	assert.Equal(t, []byte("lowor"), s.Read(5))
	assert.Equal(t, []byte("ld"), s.Read(0))
	assert.Nil(t, s.Read(0))
}

func TestIdempotentDestroy(t *testing.T) {
	registry, s := newTestStream(t, Readable)
	closes := 0
	require.NoError(t, s.On("close", object.NewBuiltin("close", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		closes++
		return object.Nil, nil
	})))

	s.Destroy()
	assert.Equal(t, Destroyed, s.State())
	assert.Equal(t, 0, registry.Len())

	require.NotPanics(t, s.Destroy)
	assert.Equal(t, 1, closes)
	assert.Equal(t, 0, registry.Len())

	// Pushes into a destroyed stream are dropped.
	assert.False(t, s.Push([]byte("late")))
	assert.Equal(t, 0, s.BufferedSize())
}

func TestPipeForwarding(t *testing.T) {
	registry := NewRegistry()
	src := registry.New(Readable, DefaultOptions(), nil)
	dest := registry.New(Writable, DefaultOptions(), nil)

	var destData collector
	require.NoError(t, dest.On("data", destData.dataListener()))
	var destEnded collector
	require.NoError(t, dest.On("end", destEnded.endListener()))

	assert.Same(t, dest, src.Pipe(dest))

	src.Resume()
	src.Push([]byte("abc"))
	src.Push([]byte("def"))
	require.NoError(t, src.End(nil))

	// dest has no backing resource, so written chunks land in its buffer.
	dest.Resume()
	assert.Equal(t, "abcdef", string(destData.joined()))
	assert.Equal(t, 1, destEnded.ends)
}

func TestPipeEndsDestOnEndSentinel(t *testing.T) {
	registry := NewRegistry()
	src := registry.New(Readable, DefaultOptions(), nil)
	dest := registry.New(Writable, DefaultOptions(), nil)

	var destEnded collector
	require.NoError(t, dest.On("end", destEnded.endListener()))
	src.Pipe(dest)
	src.Resume()

	src.Push([]byte("hello"))
	src.Push(nil)

	assert.Equal(t, 1, destEnded.ends)
	_, err := dest.Write([]byte("late"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write after end")

	// A repeated sentinel must not re-end the destination.
	src.Push(nil)
	assert.Equal(t, 1, destEnded.ends)
}

func TestUnpipe(t *testing.T) {
	registry := NewRegistry()
	src := registry.New(Readable, DefaultOptions(), nil)
	dest := registry.New(Writable, DefaultOptions(), nil)
	src.Pipe(dest)
	src.Resume()

	src.Push([]byte("one"))
	src.Unpipe(dest)
	src.Push([]byte("two"))

	assert.Equal(t, 3, dest.BufferedSize())
}

func TestWriteAfterEnd(t *testing.T) {
	_, s := newTestStream(t, Writable)
	require.NoError(t, s.End(nil))
	_, err := s.Write([]byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write after end")
}

func TestTransformStream(t *testing.T) {
	registry := NewRegistry()
	upper := object.NewBuiltin("upper", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		b, errObj := object.AsBytes(args[0])
		if errObj != nil {
			return nil, errObj
		}
		return object.NewBytes(bytes.ToUpper(b.Value())), nil
	})
	s := registry.New(Transform, DefaultOptions(), upper)
	s.Resume()

	var c collector
	require.NoError(t, s.On("data", c.dataListener()))
	_, err := s.Write([]byte("shout"))
	require.NoError(t, err)
	assert.Equal(t, "SHOUT", string(c.joined()))
}

func TestFinishFiresOnEnd(t *testing.T) {
	_, s := newTestStream(t, Writable)
	finishes := 0
	require.NoError(t, s.On("finish", object.NewBuiltin("finish", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		finishes++
		return object.Nil, nil
	})))
	require.NoError(t, s.End([]byte("last")))
	assert.Equal(t, 1, finishes)
	assert.Equal(t, 4, s.BufferedSize())
}

func TestUnsupportedEventRejected(t *testing.T) {
	_, s := newTestStream(t, Readable)
	err := s.On("bogus", object.NewBuiltin("x", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		return object.Nil, nil
	}))
	require.Error(t, err)
}

func TestOffRemovesListeners(t *testing.T) {
	_, s := newTestStream(t, Readable)
	var c collector
	fn := c.dataListener()
	require.NoError(t, s.On("data", fn))
	require.NoError(t, s.On("data", c.dataListener()))
	assert.Equal(t, 2, s.ListenerCount("data"))

	s.Off("data", fn)
	assert.Equal(t, 1, s.ListenerCount("data"))
	s.Off("data", nil)
	assert.Equal(t, 0, s.ListenerCount("data"))
}
