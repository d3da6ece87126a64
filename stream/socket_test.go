package stream

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/reactor"
)

func TestSocketReadableDeliversAndEnds(t *testing.T) {
	loop := reactor.New()
	loop.Start()
	defer loop.Stop()

	registry := NewRegistry()
	client, server := net.Pipe()

	s, err := SocketReadable(loop, registry, server, DefaultOptions())
	require.NoError(t, err)

	var c collector
	var mu sync.Mutex
	ended := false
	require.NoError(t, s.On("data", c.dataListener()))
	require.NoError(t, s.On("end", object.NewBuiltin("end", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		mu.Lock()
		ended = true
		mu.Unlock()
		return object.Nil, nil
	})))

	go func() {
		client.Write([]byte("first"))
		client.Write([]byte("second"))
		client.Close()
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ended
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, "firstsecond", string(c.joined()))

	// Keep-alive released: the loop can go idle again.
	require.Eventually(t, func() bool {
		return !loop.HasPending()
	}, 5*time.Second, time.Millisecond)
}

func TestSocketWritableWritesAndDrains(t *testing.T) {
	loop := reactor.New()
	loop.Start()
	defer loop.Stop()

	registry := NewRegistry()
	client, server := net.Pipe()

	s, err := SocketWritable(loop, registry, server, DefaultOptions())
	require.NoError(t, err)

	var mu sync.Mutex
	drains := 0
	require.NoError(t, s.On("drain", object.NewBuiltin("drain", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		mu.Lock()
		drains++
		mu.Unlock()
		return object.Nil, nil
	})))

	received := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(client)
		received <- data
	}()

	chunk := []byte("payload to copy")
	ok, err := s.Write(chunk)
	require.NoError(t, err)
	assert.True(t, ok)
	// The adapter copies; mutating the caller's buffer must not affect
	// the bytes on the wire.
	chunk[0] = 'X'

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return drains == 1
	}, 5*time.Second, time.Millisecond)

	s.Destroy()
	assert.Equal(t, "payload to copy", string(<-received))
}

func TestSocketDestroyIdempotentUnderRead(t *testing.T) {
	loop := reactor.New()
	loop.Start()
	defer loop.Stop()

	registry := NewRegistry()
	client, server := net.Pipe()
	defer client.Close()

	s, err := SocketReadable(loop, registry, server, DefaultOptions())
	require.NoError(t, err)

	errors := 0
	require.NoError(t, s.On("error", object.NewBuiltin("error", func(ctx context.Context, args ...object.Object) (object.Object, error) {
		errors++
		return object.Nil, nil
	})))

	// Destroy while the read is in flight: the read unblocks on the closed
	// socket, observes the destroyed stream, and stops quietly.
	s.Destroy()
	s.Destroy()

	require.Eventually(t, func() bool {
		return !loop.HasPending()
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, 0, errors)
	assert.Equal(t, 0, registry.Len())
}
