package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/api"
	"github.com/dokzlo13/ledlink/internal/config"
	"github.com/dokzlo13/ledlink/internal/ledger"
	"github.com/dokzlo13/ledlink/internal/notify"
)

// APIService wraps the control API server.
type APIService struct {
	cfg    *config.Config
	server *api.Server
}

// NewAPIService creates a new APIService.
func NewAPIService(cfg *config.Config, ctrl api.Controller, history *notify.History, l *ledger.Ledger) *APIService {
	server := api.NewServer(ctrl, api.Options{
		Addr:       cfg.API.Addr(),
		CORSOrigin: cfg.API.CORSOrigin,
		History:    history,
		Ledger:     l,
	})
	return &APIService{
		cfg:    cfg,
		server: server,
	}
}

// Broadcast forwards an event to stream clients. It is an event bus handler.
func (s *APIService) Broadcast(e notify.Event) {
	if !s.cfg.API.Enabled {
		return
	}
	s.server.Hub().Broadcast(e)
}

// Start begins the API server if enabled. A server that cannot listen is fatal.
func (s *APIService) Start(ctx context.Context, onFatalError func(error)) {
	if !s.cfg.API.Enabled {
		log.Debug().Msg("Control API disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("Control API server error")
			onFatalError(fmt.Errorf("control API: %w", err))
		}
	}()
}
