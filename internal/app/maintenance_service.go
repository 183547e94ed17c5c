package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/config"
	"github.com/dokzlo13/ledlink/internal/kv"
	"github.com/dokzlo13/ledlink/internal/ledger"
)

const kvCleanupInterval = time.Minute

// MaintenanceService runs periodic cleanup of the ledger and expired kv entries.
type MaintenanceService struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	kv     *kv.Manager
}

// NewMaintenanceService creates a new MaintenanceService.
func NewMaintenanceService(cfg *config.Config, l *ledger.Ledger, manager *kv.Manager) *MaintenanceService {
	return &MaintenanceService{cfg: cfg, ledger: l, kv: manager}
}

// Start begins the cleanup loops.
func (s *MaintenanceService) Start(ctx context.Context) {
	s.kv.StartCleanup(ctx, kvCleanupInterval)
	if s.cfg.Ledger.RetentionDays > 0 {
		go s.runLedgerCleanup(ctx)
	}
}

// Stop stops the kv cleanup loop. The ledger loop ends with its context.
func (s *MaintenanceService) Stop() {
	s.kv.StopCleanup()
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *MaintenanceService) runLedgerCleanup(ctx context.Context) {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}
