// Package timeline provides the single cooperative timeline the session runs on.
// Every piece of work is executed by one goroutine in FIFO order, so state owned by
// the timeline needs no locking. Blocking I/O must never run as timeline work:
// perform it elsewhere and post the completion back with Do or Post.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when work is submitted to a closed loop.
var ErrClosed = errors.New("timeline closed")

// DefaultQueueSize is the work queue capacity used by New when size <= 0.
const DefaultQueueSize = 256

// Work is a unit of work executed on the timeline.
type Work func(ctx context.Context)

type loopKey struct{}

// Loop is a single-goroutine work queue.
type Loop struct {
	queue chan Work

	// closing is closed once; senders select on it instead of checking a flag
	closing   chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}
}

// New creates a loop with the given queue capacity. Run must be called to start it.
func New(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		queue:   make(chan Work, queueSize),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Run executes queued work until ctx is cancelled or the loop is closed.
// This is the only goroutine that runs timeline work.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)
	ctx = context.WithValue(ctx, loopKey{}, l)

	for {
		select {
		case <-ctx.Done():
			l.drain(ctx)
			return
		case <-l.closing:
			l.drain(ctx)
			return
		case work := <-l.queue:
			l.execute(ctx, work)
		}
	}
}

// Close stops accepting work. Run drains what is already queued and returns.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.closing)
	})
}

func (l *Loop) closed() bool {
	select {
	case <-l.closing:
		return true
	default:
		return false
	}
}

// Stopped is closed once Run has returned.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}

// OnLoop reports whether ctx belongs to work currently running on this loop.
func (l *Loop) OnLoop(ctx context.Context) bool {
	owner, _ := ctx.Value(loopKey{}).(*Loop)
	return owner == l
}

// Do queues work without blocking. It returns false if the loop is closing,
// the queue is full or ctx is done.
func (l *Loop) Do(ctx context.Context, work Work) bool {
	select {
	case <-l.closing:
		return false
	case <-ctx.Done():
		return false
	default:
	}

	select {
	case l.queue <- work:
		return true
	default:
		log.Warn().Msg("Timeline queue full, dropping work")
		return false
	}
}

// Post queues work, blocking until there is room.
func (l *Loop) Post(ctx context.Context, work Work) error {
	select {
	case <-l.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case l.queue <- work:
		return nil
	}
}

// DoSync runs fn on the timeline and waits for its result.
// Called from work already running on this loop, fn runs inline.
func (l *Loop) DoSync(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.OnLoop(ctx) {
		return fn(ctx)
	}

	done := make(chan error, 1)
	wrapped := func(c context.Context) {
		var err error
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("timeline work panicked: %v", rec)
			}
			done <- err
		}()
		err = fn(c)
	}

	if err := l.Post(ctx, wrapped); err != nil {
		return err
	}

	select {
	case <-l.stopped:
		// drained work may still have delivered a result
		select {
		case err := <-done:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (l *Loop) drain(ctx context.Context) {
	for {
		select {
		case work := <-l.queue:
			l.execute(ctx, work)
		default:
			return
		}
	}
}

func (l *Loop) execute(ctx context.Context, work Work) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Timeline work panicked - loop continuing")
		}
	}()
	work(ctx)
}
