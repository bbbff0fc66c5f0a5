package scheduler

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// task is a cancellable timer or ticker. A nil task is valid and Stop on it
// does nothing.
type task struct {
	once sync.Once
	stop func()
	done chan struct{}
}

// Stop cancels the task. Safe to call more than once.
func (t *task) Stop() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		close(t.done)
		t.stop()
	})
}

// stopped reports whether Stop was called.
func (t *task) stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// after runs fn once after d.
func after(clk clock.Clock, d time.Duration, fn func(*task)) *task {
	t := &task{done: make(chan struct{})}
	timer := clk.AfterFunc(d, func() { fn(t) })
	t.stop = func() { timer.Stop() }
	return t
}

// every runs fn every d until stopped.
func every(clk clock.Clock, d time.Duration, fn func(*task)) *task {
	t := &task{done: make(chan struct{})}
	ticker := clk.Ticker(d)
	t.stop = ticker.Stop
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				fn(t)
			}
		}
	}()
	return t
}
