package effect

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/timeline"
)

// ErrUnknownEffect is returned by Start for a name nobody registered.
var ErrUnknownEffect = errors.New("unknown effect")

// DefaultMaxPushRate is the default limit of effect pushes per second.
const DefaultMaxPushRate = 20

// Target receives effect frames. Both methods are called on the timeline.
type Target interface {
	// ApplyFrame merges p into the live state and returns the new state.
	ApplyFrame(ctx context.Context, p color.Partial) color.State
	// PushFrame sends state to the device. It must not block.
	PushFrame(ctx context.Context, state color.State)
}

// Engine runs at most one effect at a time on a timeline.
//
// Start, Stop and the frame ticks all execute on the timeline, so starting an
// effect cancels the previous one before any later tick can run: once Start
// returns, no frame of the previous effect is applied.
type Engine struct {
	loop    *timeline.Loop
	target  Target
	limiter *rate.Limiter

	regMu    sync.RWMutex
	registry map[string]Effect

	// owned by the timeline
	current  *run
	onFinish func(Session)
}

type run struct {
	effect  Effect
	task    *timeline.Task
	next    func() (color.Partial, bool)
	stop    func()
	session Session
}

// NewEngine creates an engine with the built-in effects registered.
// maxPushRate limits pushes per second; <= 0 disables the limit.
func NewEngine(loop *timeline.Loop, target Target, maxPushRate float64) *Engine {
	limit := rate.Inf
	burst := 1
	if maxPushRate > 0 {
		limit = rate.Limit(maxPushRate)
		burst = max(1, int(maxPushRate/4))
	}

	e := &Engine{
		loop:     loop,
		target:   target,
		limiter:  rate.NewLimiter(limit, burst),
		registry: make(map[string]Effect),
	}
	for _, b := range Builtins() {
		e.registry[b.Name()] = b
	}
	return e
}

// Register adds an effect. A name already taken is rejected.
func (e *Engine) Register(effect Effect) error {
	e.regMu.Lock()
	defer e.regMu.Unlock()

	name := effect.Name()
	if name == "" || name == string(KindNone) {
		return fmt.Errorf("invalid effect name %q", name)
	}
	if _, exists := e.registry[name]; exists {
		return fmt.Errorf("effect %q already registered", name)
	}
	e.registry[name] = effect
	return nil
}

// Lookup returns a registered effect.
func (e *Engine) Lookup(name string) (Effect, bool) {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	effect, ok := e.registry[name]
	return effect, ok
}

// Names lists the registered effects, sorted.
func (e *Engine) Names() []string {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	names := make([]string, 0, len(e.registry))
	for name := range e.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OnFinish sets a callback for effects that end on their own. It runs on the timeline.
func (e *Engine) OnFinish(fn func(Session)) {
	e.onFinish = fn
}

// StartNamed starts a registered effect by name. "none" stops the running effect.
func (e *Engine) StartNamed(ctx context.Context, name string, start color.State) (Session, error) {
	if name == string(KindNone) || name == "" {
		_, err := e.Stop(ctx)
		return Session{Kind: KindNone}, err
	}
	effect, ok := e.Lookup(name)
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrUnknownEffect, name)
	}
	return e.Start(ctx, effect, start)
}

// Start cancels any running effect and schedules effect, beginning from start.
// The first frame is produced one interval later.
func (e *Engine) Start(ctx context.Context, effect Effect, start color.State) (Session, error) {
	var session Session
	err := e.loop.DoSync(ctx, func(ctx context.Context) error {
		if prev := e.stopCurrent(); prev != nil {
			log.Debug().Str("effect", prev.effect.Name()).Msg("Effect replaced")
		}

		next, stop := iter.Pull(effect.Frames(ctx, start))
		r := &run{
			effect: effect,
			next:   next,
			stop:   stop,
			session: Session{
				Kind:      effect.Kind(),
				Name:      effect.Name(),
				Interval:  effect.Interval(),
				StartedAt: time.Now(),
			},
		}
		e.current = r
		r.task = e.loop.Every(effect.Interval(), func(ctx context.Context) {
			e.tick(ctx, r)
		})

		log.Info().
			Str("effect", effect.Name()).
			Dur("interval", effect.Interval()).
			Msg("Effect started")
		session = r.session
		return nil
	})
	return session, err
}

// Stop cancels the running effect. The live state keeps the last frame.
// It returns the stopped session, whose Kind is empty if nothing was running.
func (e *Engine) Stop(ctx context.Context) (Session, error) {
	var session Session
	err := e.loop.DoSync(ctx, func(context.Context) error {
		if prev := e.stopCurrent(); prev != nil {
			session = prev.session
			log.Info().
				Str("effect", prev.effect.Name()).
				Int("frames", prev.session.Frame).
				Msg("Effect stopped")
		}
		return nil
	})
	return session, err
}

// Session returns the running effect. Must be called on the timeline.
func (e *Engine) Session() Session {
	if e.current == nil {
		return Session{Kind: KindNone}
	}
	return e.current.session
}

// Running reports whether an effect is active. Must be called on the timeline.
func (e *Engine) Running() bool {
	return e.current != nil
}

func (e *Engine) stopCurrent() *run {
	r := e.current
	if r == nil {
		return nil
	}
	e.current = nil
	r.task.Cancel()
	r.stop()
	return r
}

func (e *Engine) tick(ctx context.Context, r *run) {
	if e.current != r {
		return
	}

	frame, ok := r.next()
	if !ok {
		e.stopCurrent()
		log.Info().Str("effect", r.effect.Name()).Msg("Effect finished")
		if e.onFinish != nil {
			e.onFinish(r.session)
		}
		return
	}

	r.session.Frame++
	r.session.Last = frame
	if frame.IsZero() {
		return
	}

	state := e.target.ApplyFrame(ctx, frame)
	if !e.limiter.Allow() {
		r.session.Dropped++
		log.Debug().Str("effect", r.effect.Name()).Msg("Effect frame over push limit, not pushed")
		return
	}
	e.target.PushFrame(ctx, state)
}
