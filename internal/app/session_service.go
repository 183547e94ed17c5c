package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/config"
	"github.com/dokzlo13/ledlink/internal/device"
	"github.com/dokzlo13/ledlink/internal/eventbus"
	"github.com/dokzlo13/ledlink/internal/kv"
	"github.com/dokzlo13/ledlink/internal/link"
	"github.com/dokzlo13/ledlink/internal/notify"
	"github.com/dokzlo13/ledlink/internal/script"
	"github.com/dokzlo13/ledlink/internal/session"
	"github.com/dokzlo13/ledlink/internal/settings"
)

const (
	settingsBucket  = "settings"
	discoveryBucket = "discovery"
)

// SessionService owns the device session and its timeline goroutine.
type SessionService struct {
	cfg     *config.Config
	client  *device.Client
	Session *session.Session
}

// NewSessionService resolves the device profile and builds the session.
func NewSessionService(cfg *config.Config, bus *eventbus.Bus, manager *kv.Manager, scripts *script.Runtime) (*SessionService, error) {
	profile, err := cfg.ResolveProfile()
	if err != nil {
		return nil, err
	}
	client := device.NewClient(profile, cfg.Device.Timeout.Duration())

	opts := session.Options{
		Client:       client,
		Sink:         notify.NewDispatcher(bus, "session"),
		Settings:     settings.New(manager.Bucket(settingsBucket, true)),
		Discovery:    manager.Bucket(discoveryBucket, false),
		DiscoveryTTL: cfg.Discovery.CacheTTL.Duration(),
		Candidates:   cfg.Device.Candidates,
		ProbeTimeout: cfg.Device.ProbeTimeout.Duration(),
		Address:      cfg.Device.Address,
		SyncInterval: cfg.Device.SyncInterval.Duration(),
		MaxPushRate:  cfg.Effects.MaxPushRPS,
		Scripts:      scripts,
	}
	if cfg.Discovery.MDNS {
		opts.Resolver = link.MDNSResolver{
			Service: cfg.Discovery.Service,
			Domain:  cfg.Discovery.Domain,
			Timeout: cfg.Discovery.Timeout.Duration(),
		}
	}

	sess, err := session.New(opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &SessionService{cfg: cfg, client: client, Session: sess}, nil
}

// Start runs the session timeline until ctx is cancelled.
func (s *SessionService) Start(ctx context.Context) {
	go s.Session.Run(ctx)
}

// AutoConnect connects in the background when configured to. The known
// address is tried first, then discovery.
func (s *SessionService) AutoConnect(ctx context.Context) {
	if !s.cfg.Device.AutoConnect {
		log.Debug().Msg("Auto-connect disabled")
		return
	}

	go func() {
		_, err := s.Session.Retry(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		log.Info().Err(err).Msg("Known address unreachable, discovering")
		if _, err := s.Session.ConnectAuto(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("Auto-connect failed")
		}
	}()
}

// Stop stops the session and waits for its timeline to exit.
func (s *SessionService) Stop(ctx context.Context) {
	s.Session.Close(ctx)
	select {
	case <-s.Session.Done():
	case <-ctx.Done():
		log.Warn().Msg("Session timeline did not stop in time")
	}
	if err := s.client.Close(); err != nil {
		log.Debug().Err(err).Msg("Failed to close device client")
	}
}
