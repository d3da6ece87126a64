package reactor

import (
	"sync"
	"time"
)

// Timer is a one-shot or repeating timer whose callback runs on the loop
// goroutine. One-shot timers keep the loop pending until they fire or are
// stopped; repeating timers do not, since they would keep it alive forever.
type Timer struct {
	mu       sync.Mutex
	loop     *Loop
	stopped  bool
	oneShot  *time.Timer
	quit     chan struct{}
	interval time.Duration
}

// After schedules fn to run once on the loop goroutine after d.
func (l *Loop) After(d time.Duration, fn func()) (*Timer, error) {
	if l == nil {
		return nil, ErrNoReactor
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil, ErrNoReactor
	}
	t := &Timer{loop: l}
	l.timers[t] = struct{}{}
	l.mu.Unlock()

	t.oneShot = time.AfterFunc(d, func() {
		err := l.Submit(func() {
			t.mu.Lock()
			fired := !t.stopped
			t.stopped = true
			t.mu.Unlock()
			l.removeTimer(t)
			if fired {
				fn()
			}
		})
		if err != nil {
			l.removeTimer(t)
		}
	})
	return t, nil
}

// Every schedules fn to run on the loop goroutine at the given interval
// until the timer is stopped.
func (l *Loop) Every(interval time.Duration, fn func()) (*Timer, error) {
	if l == nil {
		return nil, ErrNoReactor
	}
	t := &Timer{loop: l, quit: make(chan struct{}), interval: interval}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if l.Submit(fn) != nil {
					return
				}
			case <-t.quit:
				return
			}
		}
	}()
	return t, nil
}

// Stop cancels the timer. Safe to call more than once; a stopped timer's
// callback never runs again.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()
	if t.oneShot != nil {
		t.oneShot.Stop()
		t.loop.removeTimer(t)
	}
	if t.quit != nil {
		close(t.quit)
	}
}
