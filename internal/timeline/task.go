package timeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is a handle to scheduled timeline work.
//
// Cancel is idempotent. Once Cancel has been called from the timeline, the task's
// work never runs again: a tick already sitting in the queue sees the cancelled
// flag when it is dequeued and returns without running.
type Task struct {
	loop     *Loop
	work     Work
	delay    time.Duration
	periodic bool

	cancelled atomic.Bool

	mu    sync.Mutex
	timer *time.Timer
}

// After runs work once on the timeline after delay.
func (l *Loop) After(delay time.Duration, work Work) *Task {
	t := &Task{loop: l, work: work, delay: delay}
	t.schedule()
	return t
}

// Every runs work on the timeline every interval until cancelled.
// The next tick is armed after the current one has run, so ticks never overlap.
func (l *Loop) Every(interval time.Duration, work Work) *Task {
	if interval <= 0 {
		interval = time.Millisecond
	}
	t := &Task{loop: l, work: work, delay: interval, periodic: true}
	t.schedule()
	return t
}

// Cancel stops the task. Calling it more than once, or on a nil task, is harmless.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.cancelled.Store(true)

	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
}

// Cancelled reports whether Cancel has been called.
func (t *Task) Cancelled() bool {
	return t == nil || t.cancelled.Load()
}

// Interval returns the task's delay or period.
func (t *Task) Interval() time.Duration {
	return t.delay
}

func (t *Task) schedule() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled.Load() {
		return
	}
	t.timer = time.AfterFunc(t.delay, t.fire)
}

// fire runs on the timer goroutine and hands the tick to the loop.
func (t *Task) fire() {
	if t.cancelled.Load() {
		return
	}
	if !t.loop.Do(context.Background(), t.run) {
		if t.loop.closed() {
			return
		}
		log.Debug().Dur("interval", t.delay).Msg("Timeline tick dropped")
		if t.periodic {
			t.schedule()
		}
	}
}

func (t *Task) run(ctx context.Context) {
	if t.cancelled.Load() {
		return
	}
	t.work(ctx)
	if t.periodic {
		t.schedule()
	}
}
