// Package session owns the single device session of the process.
//
// The color state is confined to the session timeline: every read and write of
// it runs as timeline work. Network calls never run on the timeline; they run on
// the calling goroutine and hand their results back with DoSync or Do.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/effect"
	"github.com/dokzlo13/ledlink/internal/kv"
	"github.com/dokzlo13/ledlink/internal/link"
	"github.com/dokzlo13/ledlink/internal/notify"
	"github.com/dokzlo13/ledlink/internal/script"
	"github.com/dokzlo13/ledlink/internal/settings"
	"github.com/dokzlo13/ledlink/internal/syncloop"
	"github.com/dokzlo13/ledlink/internal/timeline"
)

// DefaultDiscoveryTTL is how long a discovered address is reused by ConnectAuto.
const DefaultDiscoveryTTL = 10 * time.Minute

const discoveryKey = "last_found"

// Options configure a session. Client is required; everything else has a default.
type Options struct {
	Client   link.Client
	Sink     notify.Sink
	Settings *settings.Store
	// Discovery caches the last discovered address. May be nil.
	Discovery    kv.Bucket
	DiscoveryTTL time.Duration
	Resolver     link.Resolver
	Candidates   []string
	ProbeTimeout time.Duration
	// Address overrides the persisted address.
	Address      string
	SyncInterval time.Duration
	MaxPushRate  float64
	Scripts      *script.Runtime
	QueueSize    int
}

// Session is the device session: it owns the color state and wires the link,
// the effect engine and the sync loop together.
type Session struct {
	loop   *timeline.Loop
	link   *link.Link
	engine *effect.Engine
	sync   *syncloop.Loop
	sink   notify.Sink
	store  *settings.Store

	discovery    *kv.Typed[string]
	discoveryTTL time.Duration
	candidates   []string
	probeTimeout time.Duration

	// held while an effect frame is pushed; frames that find it taken are dropped
	framePush sync.Mutex

	// owned by the timeline
	state color.State
	edits int
}

// New creates a session and restores persisted settings. Run must be called
// before any operation.
func New(opts Options) (*Session, error) {
	if opts.Client == nil {
		return nil, errors.New("session requires a device client")
	}
	if opts.Sink == nil {
		opts.Sink = notify.Nop{}
	}
	if len(opts.Candidates) == 0 {
		opts.Candidates = link.DefaultCandidates
	}
	if opts.DiscoveryTTL <= 0 {
		opts.DiscoveryTTL = DefaultDiscoveryTTL
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = opts.Client.Profile().SyncInterval
	}
	if opts.MaxPushRate == 0 {
		opts.MaxPushRate = effect.DefaultMaxPushRate
	}

	s := &Session{
		loop:         timeline.New(opts.QueueSize),
		sink:         opts.Sink,
		store:        opts.Settings,
		discoveryTTL: opts.DiscoveryTTL,
		candidates:   opts.Candidates,
		probeTimeout: opts.ProbeTimeout,
		state:        color.Default(),
	}
	if opts.Discovery != nil {
		s.discovery = kv.NewTyped[string](opts.Discovery, discoveryKey)
	}

	s.link = link.New(opts.Client, s.onTransition)
	if opts.Resolver != nil {
		s.link.SetResolver(opts.Resolver)
	}
	s.engine = effect.NewEngine(s.loop, s, opts.MaxPushRate)
	s.engine.OnFinish(s.onEffectFinished)
	s.sync = syncloop.New(s.loop, s.link, s, opts.SyncInterval)

	if opts.Scripts != nil {
		for _, name := range opts.Scripts.Names() {
			def, _ := opts.Scripts.Lookup(name)
			if err := s.engine.Register(effect.FromScript(def)); err != nil {
				return nil, fmt.Errorf("failed to register script effect: %w", err)
			}
		}
	}

	address := opts.Address
	if s.store != nil {
		saved, err := s.store.Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load settings, using defaults")
		}
		if saved.HasColor {
			s.state = saved.Color
		}
		if address == "" {
			address = saved.Address
		}
	}
	if address == "" {
		address = opts.Client.Profile().DefaultAddress
	}
	if address != "" {
		if err := s.link.SetAddress(address); err != nil {
			log.Warn().Err(err).Str("address", address).Msg("Ignoring invalid device address")
		}
	}

	log.Info().
		Str("profile", opts.Client.Profile().Name).
		Str("address", s.link.Address()).
		Str("state", s.state.String()).
		Dur("sync_interval", s.sync.Interval()).
		Msg("Session created")
	return s, nil
}

// Run executes the session timeline until ctx is cancelled or Close is called.
func (s *Session) Run(ctx context.Context) {
	s.loop.Run(ctx)
}

// Close stops running tasks and the timeline.
func (s *Session) Close(ctx context.Context) {
	if _, err := s.engine.Stop(ctx); err != nil && !errors.Is(err, timeline.ErrClosed) {
		log.Debug().Err(err).Msg("Failed to stop effect on close")
	}
	if err := s.sync.Stop(ctx); err != nil && !errors.Is(err, timeline.ErrClosed) {
		log.Debug().Err(err).Msg("Failed to stop sync loop on close")
	}
	s.loop.Close()
}

// Done is closed once the timeline has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.loop.Stopped()
}

// Link exposes the device link.
func (s *Session) Link() *link.Link {
	return s.link
}

// Effects lists the effects StartEffect accepts.
func (s *Session) Effects() []string {
	return s.engine.Names()
}

// Snapshot is a consistent view of the session.
type Snapshot struct {
	State   color.State    `json:"state"`
	Hex     string         `json:"hex"`
	Link    link.Info      `json:"link"`
	Profile string         `json:"profile"`
	Effect  effect.Session `json:"effect"`
	Sync    syncloop.Stats `json:"sync"`
	Editing bool           `json:"editing"`
}

// Snapshot returns the current session view.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.loop.DoSync(ctx, func(context.Context) error {
		snap = Snapshot{
			State:   s.state,
			Hex:     s.state.Hex(),
			Link:    s.link.Info(),
			Profile: s.link.Profile().Name,
			Effect:  s.engine.Session(),
			Sync:    s.sync.Stats(),
			Editing: s.edits > 0,
		}
		return nil
	})
	return snap, err
}

// State returns the current color state.
func (s *Session) State(ctx context.Context) (color.State, error) {
	var state color.State
	err := s.loop.DoSync(ctx, func(context.Context) error {
		state = s.state
		return nil
	})
	return state, err
}

func (s *Session) notify(e notify.Event) {
	s.sink.Notify(e)
}

func (s *Session) activity(level notify.Level, format string, args ...any) {
	s.sink.Log(notify.Entry{Level: level, Message: fmt.Sprintf(format, args...)})
}

// persist writes settings. It does blocking I/O and must not run on the timeline.
func (s *Session) persist(address string, state *color.State) {
	if s.store == nil {
		return
	}
	if address != "" {
		if err := s.store.SaveAddress(address); err != nil {
			log.Error().Err(err).Msg("Failed to save device address")
		}
	}
	if state != nil {
		if err := s.store.SaveColor(*state); err != nil {
			log.Error().Err(err).Msg("Failed to save color")
		}
	}
}
