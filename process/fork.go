package process

import (
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/reactor"
)

// Environment markers identifying a forked child. The channel id ties the
// child back to the fork call that created it.
const (
	ipcEnvMarker  = "TEMBO_IPC"
	ipcEnvChannel = "TEMBO_IPC_CHANNEL"
)

// Child-side descriptor numbers for the dedicated IPC pipes: fd 3 carries
// parent-to-child traffic, fd 4 child-to-parent.
const (
	ipcChildReadFD  = 3
	ipcChildWriteFD = 4
)

// Fork spawns a fresh instance of the host binary running scriptPath, with
// two dedicated pipes beyond stdio forming a private byte-stream IPC
// channel in each direction. The IPC carries raw chunks with no framing;
// message boundaries are the caller's concern. The returned handle is a
// spawn-style Child that additionally supports Send and "message"
// listeners.
func (r *Registry) Fork(loop *reactor.Loop, br *bridge.Bridge, scriptPath string, args []string, opts SpawnOptions) (*Child, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, errz.Errorf(errz.ErrIO, "cannot resolve host binary: %s", err).WithCause(err)
	}
	return r.forkExec(loop, br, self, scriptPath, args, opts)
}

// forkExec is Fork with an explicit binary, which the tests use to re-exec
// the test binary itself.
func (r *Registry) forkExec(loop *reactor.Loop, br *bridge.Bridge, binary, scriptPath string, args []string, opts SpawnOptions) (*Child, error) {
	opts.fill()

	// parent -> child
	childRead, parentWrite, err := os.Pipe()
	if err != nil {
		return nil, errz.Errorf(errz.ErrIO, "ipc pipe: %s", err).WithCause(err)
	}
	// child -> parent
	parentRead, childWrite, err := os.Pipe()
	if err != nil {
		childRead.Close()
		parentWrite.Close()
		return nil, errz.Errorf(errz.ErrIO, "ipc pipe: %s", err).WithCause(err)
	}

	closePipes := func() {
		childRead.Close()
		childWrite.Close()
		parentRead.Close()
		parentWrite.Close()
	}

	channelID, err := uuid.NewV4()
	if err != nil {
		closePipes()
		return nil, errz.Errorf(errz.ErrRuntime, "channel id: %s", err).WithCause(err)
	}
	if opts.Env == nil {
		opts.Env = map[string]string{}
	}
	opts.Env[ipcEnvMarker] = "1"
	opts.Env[ipcEnvChannel] = channelID.String()

	cmdArgs := append([]string{scriptPath}, args...)
	cmd := exec.Command(binary, cmdArgs...)
	cmd.Dir = opts.Cwd
	cmd.Env = mergeEnv(opts.Env)
	// ExtraFiles land at fd 3 and up in the child.
	cmd.ExtraFiles = []*os.File{childRead, childWrite}

	c := &Child{
		cmd:       cmd,
		registry:  r,
		loop:      loop,
		br:        br,
		listeners: map[string][]object.Callable{},
		ipcWrite:  parentWrite,
		ipcRead:   parentRead,
	}

	var stdout, stderr io.ReadCloser
	if opts.Stdout == StdioPipe {
		if stdout, err = cmd.StdoutPipe(); err != nil {
			closePipes()
			return nil, errz.Errorf(errz.ErrIO, "stdout pipe: %s", err).WithCause(err)
		}
	} else if opts.Stdout == StdioInherit {
		cmd.Stdout = os.Stdout
	}
	if opts.Stderr == StdioPipe {
		if stderr, err = cmd.StderrPipe(); err != nil {
			closePipes()
			return nil, errz.Errorf(errz.ErrIO, "stderr pipe: %s", err).WithCause(err)
		}
	} else if opts.Stderr == StdioInherit {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		closePipes()
		return nil, errz.Errorf(errz.ErrIO, "fork %s: %s", scriptPath, err).WithCause(err)
	}
	// The child owns its ends now.
	childRead.Close()
	childWrite.Close()

	c.pid = cmd.Process.Pid
	r.add(c)
	loop.AddPending()
	log.Debug().Int("pid", c.pid).Str("channel", channelID.String()).
		Str("script", scriptPath).Msg("forked child started")

	var readers sync.WaitGroup
	if stdout != nil {
		readers.Add(1)
		go c.readPipe(stdout, "stdout", &readers)
	}
	if stderr != nil {
		readers.Add(1)
		go c.readPipe(stderr, "stderr", &readers)
	}
	go c.readIPC(parentRead)
	go c.wait(&readers)
	return c, nil
}

// readIPC delivers each inbound chunk, as handed back by the OS read, to
// the "message" listeners as a byte buffer.
func (c *Child) readIPC(pipe *os.File) {
	buf := make([]byte, 65536)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.dispatch("message", object.NewBytes(chunk))
		}
		if err != nil {
			return
		}
	}
}

// Send encodes a string, number, bool, or buffer to raw bytes and writes
// it down the IPC pipe.
func (c *Child) Send(value object.Object) error {
	if c.ipcWrite == nil {
		return errz.New(errz.ErrValue, "process has no ipc channel")
	}
	data, err := ipcBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := c.ipcWrite.Write(data); err != nil {
		return errz.Errorf(errz.ErrIO, "ipc write: %s", err).WithCause(err)
	}
	return nil
}

// ipcBytes converts the sendable value types to their raw byte form.
func ipcBytes(value object.Object) ([]byte, error) {
	switch value := value.(type) {
	case *object.String:
		return []byte(value.Value()), nil
	case *object.Float:
		return []byte(strconv.FormatFloat(value.Value(), 'g', -1, 64)), nil
	case *object.Bool:
		if value.Value() {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case *object.Bytes:
		return value.Value(), nil
	default:
		return nil, errz.Errorf(errz.ErrType,
			"send() requires string, number, boolean, or buffer (%s given)", value.Type())
	}
}
