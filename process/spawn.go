package process

import (
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/reactor"
)

// StdioMode configures one standard descriptor of a spawned child.
type StdioMode string

const (
	StdioPipe    StdioMode = "pipe"
	StdioInherit StdioMode = "inherit"
	StdioIgnore  StdioMode = "ignore"
)

// SpawnOptions configures Spawn and Fork. The zero value means: all three
// descriptors piped, inherit the working directory, no extra environment.
type SpawnOptions struct {
	Cwd    string
	Env    map[string]string
	Stdin  StdioMode
	Stdout StdioMode
	Stderr StdioMode
}

func (o *SpawnOptions) fill() {
	if o.Stdin == "" {
		o.Stdin = StdioPipe
	}
	if o.Stdout == "" {
		o.Stdout = StdioPipe
	}
	if o.Stderr == "" {
		o.Stderr = StdioPipe
	}
}

// ParseSpawnOptions reads a script-supplied option map.
func ParseSpawnOptions(m *object.Map) (SpawnOptions, error) {
	var opts SpawnOptions
	opts.fill()
	if m == nil {
		return opts, nil
	}
	if v, found := m.Get("cwd"); found {
		opts.Cwd = cast.ToString(v.Interface())
	}
	if v, found := m.Get("env"); found {
		envMap, err := object.AsMap(v)
		if err != nil {
			return opts, err.Value()
		}
		opts.Env = map[string]string{}
		envMap.Each(func(key string, value object.Object) {
			opts.Env[key] = cast.ToString(value.Interface())
		})
	}
	if v, found := m.Get("stdio"); found {
		modes, err := parseStdioConfig(v)
		if err != nil {
			return opts, err
		}
		opts.Stdin, opts.Stdout, opts.Stderr = modes[0], modes[1], modes[2]
	}
	return opts, nil
}

func parseStdioConfig(v object.Object) ([3]StdioMode, error) {
	modes := [3]StdioMode{StdioPipe, StdioPipe, StdioPipe}
	toMode := func(obj object.Object) (StdioMode, error) {
		switch cast.ToString(obj.Interface()) {
		case "pipe":
			return StdioPipe, nil
		case "inherit":
			return StdioInherit, nil
		case "ignore":
			return StdioIgnore, nil
		default:
			return "", errz.Errorf(errz.ErrValue,
				"invalid stdio mode %s", obj.Inspect())
		}
	}
	switch v := v.(type) {
	case *object.String:
		mode, err := toMode(v)
		if err != nil {
			return modes, err
		}
		modes[0], modes[1], modes[2] = mode, mode, mode
	case *object.List:
		for i, item := range v.Value() {
			if i >= 3 {
				break
			}
			mode, err := toMode(item)
			if err != nil {
				return modes, err
			}
			modes[i] = mode
		}
	default:
		return modes, errz.Errorf(errz.ErrType,
			"stdio must be a string or list (%s given)", v.Type())
	}
	return modes, nil
}

// mergeEnv overlays overrides onto the parent environment; an override
// wins on key collision.
func mergeEnv(overrides map[string]string) []string {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				merged[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	for k, v := range overrides {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}

// Child is the handle for one spawned (or forked) process. Listener
// callbacks cross back into the interpreter thread via the callback bridge.
type Child struct {
	id       int
	pid      int
	cmd      *exec.Cmd
	registry *Registry
	loop     *reactor.Loop
	br       *bridge.Bridge

	mu        sync.Mutex
	exited    bool
	listeners map[string][]object.Callable

	stdin io.WriteCloser

	// Fork-only IPC pipe ends, owned by the parent side.
	ipcWrite *os.File
	ipcRead  *os.File
}

func (c *Child) ID() int {
	return c.id
}

func (c *Child) Pid() int {
	return c.pid
}

// IsRunning reports whether the process has not yet been reaped.
func (c *Child) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.exited
}

// On registers a listener. Supported events: "exit" delivering
// (code, signal), "stdout" and "stderr" delivering byte buffers, and for
// forked children "message" delivering raw IPC chunks.
func (c *Child) On(event string, fn object.Callable) error {
	switch event {
	case "exit", "stdout", "stderr", "message":
	default:
		return errz.Errorf(errz.ErrValue, "unsupported process event %q", event)
	}
	c.mu.Lock()
	c.listeners[event] = append(c.listeners[event], fn)
	c.mu.Unlock()
	return nil
}

func (c *Child) dispatch(event string, args ...object.Object) {
	c.mu.Lock()
	list := make([]object.Callable, len(c.listeners[event]))
	copy(list, c.listeners[event])
	c.mu.Unlock()
	for _, fn := range list {
		c.br.Enqueue(fn, args...)
	}
}

// Kill sends the named signal (default SIGTERM) to the process.
func (c *Child) Kill(signalName string) error {
	c.mu.Lock()
	exited := c.exited
	c.mu.Unlock()
	if exited {
		return nil
	}
	sig := syscall.SIGTERM
	if signalName != "" {
		resolved, err := LookupSignal(signalName)
		if err != nil {
			return err
		}
		sig = resolved
	}
	if err := c.cmd.Process.Signal(sig); err != nil {
		return errz.Errorf(errz.ErrIO, "kill pid %d: %s", c.pid, err).WithCause(err)
	}
	return nil
}

// WriteStdin writes raw bytes to the child's stdin pipe, if piped.
func (c *Child) WriteStdin(data []byte) error {
	if c.stdin == nil {
		return errz.New(errz.ErrValue, "stdin is not piped")
	}
	if _, err := c.stdin.Write(data); err != nil {
		return errz.Errorf(errz.ErrIO, "stdin write: %s", err).WithCause(err)
	}
	return nil
}

// Spawn launches a child process and registers it. Output pipes are read
// on their own goroutines; each chunk is handed to registered listeners
// through the bridge. The registry entry is erased in the exit callback.
func (r *Registry) Spawn(loop *reactor.Loop, br *bridge.Bridge, command string, args []string, opts SpawnOptions) (*Child, error) {
	opts.fill()
	cmd := exec.Command(command, args...)
	cmd.Dir = opts.Cwd
	cmd.Env = mergeEnv(opts.Env)

	c := &Child{
		cmd:       cmd,
		registry:  r,
		loop:      loop,
		br:        br,
		listeners: map[string][]object.Callable{},
	}

	var stdout, stderr io.ReadCloser
	var err error
	switch opts.Stdin {
	case StdioPipe:
		if c.stdin, err = cmd.StdinPipe(); err != nil {
			return nil, errz.Errorf(errz.ErrIO, "stdin pipe: %s", err).WithCause(err)
		}
	case StdioInherit:
		cmd.Stdin = os.Stdin
	}
	switch opts.Stdout {
	case StdioPipe:
		if stdout, err = cmd.StdoutPipe(); err != nil {
			return nil, errz.Errorf(errz.ErrIO, "stdout pipe: %s", err).WithCause(err)
		}
	case StdioInherit:
		cmd.Stdout = os.Stdout
	}
	switch opts.Stderr {
	case StdioPipe:
		if stderr, err = cmd.StderrPipe(); err != nil {
			return nil, errz.Errorf(errz.ErrIO, "stderr pipe: %s", err).WithCause(err)
		}
	case StdioInherit:
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, errz.Errorf(errz.ErrIO, "spawn %s: %s", command, err).WithCause(err)
	}
	c.pid = cmd.Process.Pid
	r.add(c)
	loop.AddPending()

	var readers sync.WaitGroup
	if stdout != nil {
		readers.Add(1)
		go c.readPipe(stdout, "stdout", &readers)
	}
	if stderr != nil {
		readers.Add(1)
		go c.readPipe(stderr, "stderr", &readers)
	}
	go c.wait(&readers)
	return c, nil
}

func (c *Child) readPipe(pipe io.ReadCloser, event string, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.dispatch(event, object.NewBytes(chunk))
		}
		if err != nil {
			return
		}
	}
}

// wait reaps the process, delivers (code, signal) to exit listeners, and
// tears down the registry entry.
func (c *Child) wait(readers *sync.WaitGroup) {
	readers.Wait()
	if err := c.cmd.Wait(); err != nil {
		log.Debug().Err(err).Int("pid", c.pid).Msg("child wait returned error")
	}
	code, signalName := exitStatus(c.cmd)

	c.mu.Lock()
	c.exited = true
	c.mu.Unlock()
	c.closeIPC()

	var signalObj object.Object = object.Nil
	if signalName != "" {
		signalObj = object.NewString(signalName)
	}
	c.dispatch("exit", object.NewFloat(float64(code)), signalObj)
	c.registry.remove(c.id)
	c.loop.DonePending()
	log.Debug().Int("pid", c.pid).Int("code", code).Msg("child process exited")
}

func (c *Child) closeIPC() {
	if c.ipcWrite != nil {
		c.ipcWrite.Close()
	}
	if c.ipcRead != nil {
		c.ipcRead.Close()
	}
	if c.stdin != nil {
		c.stdin.Close()
	}
}

func exitStatus(cmd *exec.Cmd) (int, string) {
	state := cmd.ProcessState
	if state == nil {
		return -1, ""
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			return -1, SignalName(status.Signal())
		}
		return status.ExitStatus(), ""
	}
	return state.ExitCode(), ""
}
