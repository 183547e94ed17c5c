// Package syncloop periodically pulls the device-reported state and replaces the
// local state when the two drift apart.
package syncloop

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/device"
	"github.com/dokzlo13/ledlink/internal/link"
	"github.com/dokzlo13/ledlink/internal/timeline"
)

const (
	MinInterval     = 2 * time.Second
	MaxInterval     = 5 * time.Second
	DefaultInterval = 3 * time.Second
)

// Prober reads the device state. It is called off the timeline.
type Prober interface {
	Connected() bool
	Probe(ctx context.Context) (*device.Status, error)
}

// Host owns the local state. All methods are called on the timeline.
type Host interface {
	// Idle reports whether a pull may run: no effect active and no edit in flight.
	Idle() bool
	Current() color.State
	// Replace adopts the device-reported state.
	Replace(ctx context.Context, state color.State)
}

// Stats describes the loop's activity.
type Stats struct {
	Running  bool      `json:"running"`
	Interval string    `json:"interval"`
	Pulls    int       `json:"pulls"`
	Drifts   int       `json:"drifts"`
	LastPull time.Time `json:"last_pull"`
}

// Loop is the reconciliation loop. Start, Stop and every pull completion run
// on the timeline; the probe itself runs on its own goroutine.
type Loop struct {
	loop     *timeline.Loop
	prober   Prober
	host     Host
	interval time.Duration

	inFlight atomic.Bool

	// owned by the timeline
	task       *timeline.Task
	generation int
	stats      Stats
}

// New creates a stopped loop. interval is clamped to [MinInterval, MaxInterval].
func New(loop *timeline.Loop, prober Prober, host Host, interval time.Duration) *Loop {
	return &Loop{
		loop:     loop,
		prober:   prober,
		host:     host,
		interval: ClampInterval(interval),
	}
}

// ClampInterval forces interval into the accepted range. Zero selects the default.
func ClampInterval(interval time.Duration) time.Duration {
	switch {
	case interval == 0:
		return DefaultInterval
	case interval < MinInterval:
		return MinInterval
	case interval > MaxInterval:
		return MaxInterval
	}
	return interval
}

// Interval returns the pull cadence.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Start schedules periodic pulls, restarting the cadence if already running.
func (l *Loop) Start(ctx context.Context) error {
	return l.loop.DoSync(ctx, func(context.Context) error {
		l.task.Cancel()
		l.generation++
		gen := l.generation
		l.task = l.loop.Every(l.interval, func(ctx context.Context) {
			l.pull(ctx, gen)
		})
		l.stats.Running = true
		log.Debug().Dur("interval", l.interval).Msg("Sync loop started")
		return nil
	})
}

// Stop cancels the periodic pulls. A probe already in flight is discarded.
func (l *Loop) Stop(ctx context.Context) error {
	return l.loop.DoSync(ctx, func(context.Context) error {
		if l.task == nil {
			return nil
		}
		l.task.Cancel()
		l.task = nil
		l.generation++
		l.stats.Running = false
		log.Debug().Msg("Sync loop stopped")
		return nil
	})
}

// Trigger runs one pull now, outside the cadence. It does nothing when stopped.
func (l *Loop) Trigger(ctx context.Context) error {
	return l.loop.DoSync(ctx, func(ctx context.Context) error {
		if l.task != nil {
			l.pull(ctx, l.generation)
		}
		return nil
	})
}

// Stats returns the loop's counters. Must be called on the timeline.
func (l *Loop) Stats() Stats {
	s := l.stats
	s.Interval = l.interval.String()
	return s
}

// pull runs on the timeline.
func (l *Loop) pull(ctx context.Context, gen int) {
	if !l.prober.Connected() || !l.host.Idle() {
		return
	}
	if !l.inFlight.CompareAndSwap(false, true) {
		return
	}

	go func() {
		probeCtx, cancel := context.WithTimeout(ctx, link.ConnectTimeout)
		defer cancel()

		// failures are reported by the link itself
		status, err := l.prober.Probe(probeCtx)

		posted := l.loop.Do(ctx, func(ctx context.Context) {
			defer l.inFlight.Store(false)
			if err != nil {
				log.Debug().Err(err).Msg("Sync pull failed")
				return
			}
			l.complete(ctx, gen, status)
		})
		if !posted {
			l.inFlight.Store(false)
		}
	}()
}

func (l *Loop) complete(ctx context.Context, gen int, status *device.Status) {
	if gen != l.generation || l.task == nil {
		return
	}
	l.stats.Pulls++
	l.stats.LastPull = time.Now()

	// an effect or an edit may have started while the probe was out
	if !l.host.Idle() || !status.HasColor() {
		return
	}

	current := l.host.Current()
	next := status.Apply(current)
	if next.Equal(current) {
		return
	}

	l.stats.Drifts++
	log.Info().
		Str("local", current.String()).
		Str("device", next.String()).
		Msg("Device state drifted, adopting")
	l.host.Replace(ctx, next)
}
