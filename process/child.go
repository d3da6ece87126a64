package process

import (
	"os"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/object"
)

// ChildIPC is the child-process end of a fork's IPC channel. A process
// detects its forked-child status via the environment marker and the
// presence of the dedicated descriptor; in a non-forked process every
// operation is a silent no-op, mirroring the parent-side contract.
type ChildIPC struct {
	br *bridge.Bridge

	mu        sync.Mutex
	initOnce  sync.Once
	forked    bool
	readPipe  *os.File
	writePipe *os.File
	listeners []object.Callable
}

func NewChildIPC(br *bridge.Bridge) *ChildIPC {
	return &ChildIPC{br: br}
}

// IsForkedChild reports whether this process was started by Fork. The
// environment marker is required, and the dedicated descriptor must be
// present; the probe takes no ownership of the descriptor.
func IsForkedChild() bool {
	if os.Getenv(ipcEnvMarker) != "1" {
		return false
	}
	var st syscall.Stat_t
	return syscall.Fstat(ipcChildReadFD, &st) == nil
}

func (c *ChildIPC) init() {
	c.initOnce.Do(func() {
		if !IsForkedChild() {
			return
		}
		c.mu.Lock()
		c.forked = true
		c.readPipe = os.NewFile(ipcChildReadFD, "ipc-read")
		c.writePipe = os.NewFile(ipcChildWriteFD, "ipc-write")
		c.mu.Unlock()
		go c.readLoop()
		log.Debug().Str("channel", os.Getenv(ipcEnvChannel)).
			Msg("child ipc initialized")
	})
}

// readLoop delivers each raw inbound chunk to the message listeners via
// the bridge.
func (c *ChildIPC) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, err := c.readPipe.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.mu.Lock()
			listeners := make([]object.Callable, len(c.listeners))
			copy(listeners, c.listeners)
			c.mu.Unlock()
			for _, fn := range listeners {
				c.br.Enqueue(fn, object.NewBytes(chunk))
			}
		}
		if err != nil {
			return
		}
	}
}

// Send writes the value's raw bytes up to the parent. In a non-forked
// process this is a silent no-op.
func (c *ChildIPC) Send(value object.Object) error {
	c.init()
	c.mu.Lock()
	forked := c.forked
	pipe := c.writePipe
	c.mu.Unlock()
	if !forked || pipe == nil {
		return nil
	}
	data, err := ipcBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := pipe.Write(data); err != nil {
		return errz.Errorf(errz.ErrIO, "ipc write: %s", err).WithCause(err)
	}
	return nil
}

// OnMessage registers a listener for inbound parent messages. In a
// non-forked process this is a silent no-op.
func (c *ChildIPC) OnMessage(fn object.Callable) {
	c.init()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.forked {
		return
	}
	c.listeners = append(c.listeners, fn)
}

// Close releases the pipe ends.
func (c *ChildIPC) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readPipe != nil {
		c.readPipe.Close()
	}
	if c.writePipe != nil {
		c.writePipe.Close()
	}
}
