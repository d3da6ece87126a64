package process

import (
	"bytes"
	"os/exec"
	"syscall"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/object"
	"github.com/tembo-lang/tembo/reactor"
)

// ExecResult holds the accumulated output of a shell command.
type ExecResult struct {
	Stdout string
	Stderr string
	Code   int
}

// Map converts the result to its script-visible shape.
func (r *ExecResult) Map() *object.Map {
	m := object.NewEmptyMap()
	m.Set("stdout", object.NewString(r.Stdout))
	m.Set("stderr", object.NewString(r.Stderr))
	m.Set("code", object.NewFloat(float64(r.Code)))
	return m
}

// Exec runs command under the shell and accumulates stdout and stderr. A
// nonzero exit status is reported in the result, not as an error; the
// error return is reserved for spawn failure.
func Exec(command string) (*ExecResult, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			return nil, errz.Errorf(errz.ErrIO, "exec: %s", err).WithCause(err)
		}
	}
	code := 0
	if state := cmd.ProcessState; state != nil {
		if status, ok := state.Sys().(syscall.WaitStatus); ok {
			code = status.ExitStatus()
		} else {
			code = state.ExitCode()
		}
	}
	return &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Code:   code,
	}, nil
}

// ExecAsync runs Exec off the interpreter thread and delivers
// callback(error, result) through the bridge: error is nil on success,
// and the result map is nil on spawn failure. Spawn failure is a normal
// callback delivery, never a crash.
func ExecAsync(loop *reactor.Loop, br *bridge.Bridge, command string, callback object.Callable) {
	loop.AddPending()
	go func() {
		defer loop.DonePending()
		result, err := Exec(command)
		if callback == nil {
			return
		}
		if err != nil {
			br.Enqueue(callback, object.NewError(err), object.Nil)
			return
		}
		br.Enqueue(callback, object.Nil, result.Map())
	}()
}
