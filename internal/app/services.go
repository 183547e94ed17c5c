package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/config"
	"github.com/dokzlo13/ledlink/internal/db"
	"github.com/dokzlo13/ledlink/internal/effect"
	"github.com/dokzlo13/ledlink/internal/eventbus"
	"github.com/dokzlo13/ledlink/internal/kv"
	"github.com/dokzlo13/ledlink/internal/ledger"
	"github.com/dokzlo13/ledlink/internal/notify"
	"github.com/dokzlo13/ledlink/internal/script"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB      *db.DB
	Ledger  *ledger.Ledger
	KV      *kv.Manager
	Bus     *eventbus.Bus
	History *notify.History
	Scripts *script.Runtime

	// High-level services
	Session     *SessionService
	API         *APIService
	Maintenance *MaintenanceService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize ledger, tagged with this run
	s.Ledger = ledger.New(database.DB, uuid.NewString())
	s.KV = kv.NewManager(database.DB)
	s.History = notify.NewHistory(notify.DefaultHistorySize)

	// Event bus: every session event is logged, kept in history and recorded
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	s.Bus.SubscribeAll(notify.LogEvent)
	s.Bus.SubscribeAll(s.History.Add)
	s.Bus.SubscribeAll(s.Ledger.Handle)

	// Script effects
	if cfg.Effects.Script != "" {
		reserved := []string{string(effect.KindNone)}
		for _, e := range effect.Builtins() {
			reserved = append(reserved, e.Name())
		}
		s.Scripts = script.NewRuntime(s.KV, reserved...)
		if err := s.Scripts.LoadFile(cfg.Effects.Script); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to load effect script: %w", err)
		}
	}

	s.Session, err = NewSessionService(cfg, s.Bus, s.KV, s.Scripts)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.API = NewAPIService(cfg, s.Session.Session, s.History, s.Ledger)
	s.Bus.SubscribeAll(s.API.Broadcast)

	s.Maintenance = NewMaintenanceService(cfg, s.Ledger, s.KV)

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a service cannot keep running.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	s.Session.Start(ctx)

	if err := s.Ledger.Append(ledger.EventSessionStarted, "Session started", map[string]any{
		"profile": s.Session.Session.Link().Profile().Name,
		"address": s.Session.Session.Link().Address(),
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record session start")
	}

	s.Maintenance.Start(ctx)
	s.API.Start(ctx, onFatalError)
	s.Session.AutoConnect(ctx)

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()

	if s.Session != nil {
		s.Session.Stop(ctx)
	}
	if s.Ledger != nil {
		if err := s.Ledger.Append(ledger.EventSessionStopped, "Session stopped", nil); err != nil {
			log.Warn().Err(err).Msg("Failed to record session stop")
		}
	}
	if s.Bus != nil {
		s.Bus.Close(ctx)
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Maintenance != nil {
		s.Maintenance.Stop()
	}
	if s.Bus != nil {
		s.Bus.Close(context.Background())
	}
	if s.Scripts != nil {
		s.Scripts.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
