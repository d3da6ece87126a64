package process

import (
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/tembo-lang/tembo/bridge"
	"github.com/tembo-lang/tembo/errz"
	"github.com/tembo-lang/tembo/object"
)

var signalsByName = map[string]syscall.Signal{
	"SIGHUP":   syscall.SIGHUP,
	"SIGINT":   syscall.SIGINT,
	"SIGQUIT":  syscall.SIGQUIT,
	"SIGILL":   syscall.SIGILL,
	"SIGTRAP":  syscall.SIGTRAP,
	"SIGABRT":  syscall.SIGABRT,
	"SIGBUS":   syscall.SIGBUS,
	"SIGFPE":   syscall.SIGFPE,
	"SIGKILL":  syscall.SIGKILL,
	"SIGUSR1":  syscall.SIGUSR1,
	"SIGSEGV":  syscall.SIGSEGV,
	"SIGUSR2":  syscall.SIGUSR2,
	"SIGPIPE":  syscall.SIGPIPE,
	"SIGALRM":  syscall.SIGALRM,
	"SIGTERM":  syscall.SIGTERM,
	"SIGCHLD":  syscall.SIGCHLD,
	"SIGCONT":  syscall.SIGCONT,
	"SIGSTOP":  syscall.SIGSTOP,
	"SIGTSTP":  syscall.SIGTSTP,
	"SIGWINCH": syscall.SIGWINCH,
}

// Signals that can never be caught or ignored.
var uncatchableSignals = map[syscall.Signal]bool{
	syscall.SIGKILL: true,
	syscall.SIGSTOP: true,
}

// Fault signals may be handled, but doing so is unsafe: the handler runs
// in a process whose state is already suspect.
var faultSignals = map[syscall.Signal]bool{
	syscall.SIGSEGV: true,
	syscall.SIGBUS:  true,
	syscall.SIGFPE:  true,
	syscall.SIGILL:  true,
	syscall.SIGTRAP: true,
}

// SignalName returns the conventional name for a signal.
func SignalName(sig os.Signal) string {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return sig.String()
	}
	for name, known := range signalsByName {
		if known == s {
			return name
		}
	}
	return "SIG" + strconv.Itoa(int(s))
}

// LookupSignal resolves a signal name ("SIGTERM", "term") or decimal
// number to a signal.
func LookupSignal(nameOrNumber string) (syscall.Signal, error) {
	if n, err := strconv.Atoi(nameOrNumber); err == nil {
		return syscall.Signal(n), nil
	}
	name := strings.ToUpper(nameOrNumber)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	if sig, found := signalsByName[name]; found {
		return sig, nil
	}
	return 0, errz.Errorf(errz.ErrValue, "unknown signal %q", nameOrNumber)
}

// SignalTable owns the lazily created native signal watches and their
// listener lists. One watch exists per distinct signal; the catch-all
// "signal" event observes every watched signal.
type SignalTable struct {
	br *bridge.Bridge

	mu        sync.Mutex
	listeners map[string][]object.Callable
	catchAll  []object.Callable
	watches   map[string]*signalWatch
}

type signalWatch struct {
	ch   chan os.Signal
	quit chan struct{}
}

func NewSignalTable(br *bridge.Bridge) *SignalTable {
	return &SignalTable{
		br:        br,
		listeners: map[string][]object.Callable{},
		watches:   map[string]*signalWatch{},
	}
}

// On registers a listener for the named signal, creating the native watch
// on first use. Uncatchable signals are rejected; fault signals are
// allowed with a logged warning.
func (t *SignalTable) On(nameOrNumber string, fn object.Callable) error {
	sig, err := LookupSignal(nameOrNumber)
	if err != nil {
		return err
	}
	if uncatchableSignals[sig] {
		return errz.Errorf(errz.ErrValue,
			"signal %s cannot be caught or ignored", SignalName(sig))
	}
	if faultSignals[sig] {
		log.Warn().Str("signal", SignalName(sig)).
			Msg("handling a fault signal is unsafe")
	}
	name := SignalName(sig)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners[name] = append(t.listeners[name], fn)
	if _, watching := t.watches[name]; !watching {
		t.startWatch(name, sig)
	}
	return nil
}

// OnAny registers a catch-all listener receiving (number, name) for every
// watched signal.
func (t *SignalTable) OnAny(fn object.Callable) {
	t.mu.Lock()
	t.catchAll = append(t.catchAll, fn)
	t.mu.Unlock()
}

// startWatch must be called with the table lock held.
func (t *SignalTable) startWatch(name string, sig syscall.Signal) {
	w := &signalWatch{
		ch:   make(chan os.Signal, 8),
		quit: make(chan struct{}),
	}
	signal.Notify(w.ch, sig)
	t.watches[name] = w
	go func() {
		for {
			select {
			case received := <-w.ch:
				t.deliver(SignalName(received), received)
			case <-w.quit:
				return
			}
		}
	}()
}

func (t *SignalTable) deliver(name string, sig os.Signal) {
	t.mu.Lock()
	list := make([]object.Callable, len(t.listeners[name]))
	copy(list, t.listeners[name])
	catchAll := make([]object.Callable, len(t.catchAll))
	copy(catchAll, t.catchAll)
	t.mu.Unlock()

	for _, fn := range list {
		t.br.Enqueue(fn, object.NewString(name))
	}
	num := 0
	if s, ok := sig.(syscall.Signal); ok {
		num = int(s)
	}
	for _, fn := range catchAll {
		t.br.Enqueue(fn, object.NewFloat(float64(num)), object.NewString(name))
	}
}

// Off removes listeners. With no arguments it removes everything; with
// event names it removes those events' listeners; with an event and a
// specific listener it removes just that one. Watches with no remaining
// listeners are stopped and released.
func (t *SignalTable) Off(events []string, fn object.Callable) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(events) == 0 {
		t.listeners = map[string][]object.Callable{}
		t.catchAll = nil
		for name := range t.watches {
			t.stopWatch(name)
		}
		return nil
	}
	for _, event := range events {
		if event == "signal" {
			if fn == nil {
				t.catchAll = nil
				continue
			}
			for i, registered := range t.catchAll {
				if registered == fn {
					t.catchAll = append(t.catchAll[:i], t.catchAll[i+1:]...)
					break
				}
			}
			continue
		}
		sig, err := LookupSignal(event)
		if err != nil {
			return err
		}
		name := SignalName(sig)
		if fn == nil {
			delete(t.listeners, name)
		} else {
			list := t.listeners[name]
			for i, registered := range list {
				if registered == fn {
					t.listeners[name] = append(list[:i], list[i+1:]...)
					break
				}
			}
			if len(t.listeners[name]) == 0 {
				delete(t.listeners, name)
			}
		}
		if len(t.listeners[name]) == 0 {
			t.stopWatch(name)
		}
	}
	return nil
}

// stopWatch must be called with the table lock held.
func (t *SignalTable) stopWatch(name string) {
	w, found := t.watches[name]
	if !found {
		return
	}
	signal.Stop(w.ch)
	close(w.quit)
	delete(t.watches, name)
}

// Close releases every native watch.
func (t *SignalTable) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = map[string][]object.Callable{}
	t.catchAll = nil
	for name := range t.watches {
		t.stopWatch(name)
	}
}
