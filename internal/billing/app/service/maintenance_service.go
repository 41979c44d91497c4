package service

import (
	"context"
	"time"

	"github.com/subpay-io/subpay/internal/platform/logger"
	"github.com/subpay-io/subpay/internal/platform/metrics"
)

// purgeLookahead also removes entries about to expire so a caller never
// receives a URL with seconds of validity left.
const purgeLookahead = time.Minute

// MaintenanceService owns the periodic sweeps wired to cron.
type MaintenanceService struct {
	repos   *Repositories
	metrics *metrics.Metrics
	logger  logger.Logger
}

// NewMaintenanceService creates the maintenance service.
func NewMaintenanceService(repos *Repositories, m *metrics.Metrics, log logger.Logger) *MaintenanceService {
	return &MaintenanceService{repos: repos, metrics: m, logger: log}
}

// PurgeExpiredURLs deletes payment URL cache rows that are expired or
// expiring within the next minute, bounding table growth independently
// of read-time freshness checks.
func (s *MaintenanceService) PurgeExpiredURLs(ctx context.Context) error {
	threshold := time.Now().Add(purgeLookahead)
	purged, err := s.repos.URLCache.PurgeExpiring(ctx, threshold)
	if err != nil {
		return err
	}

	if purged > 0 {
		if s.metrics != nil {
			s.metrics.URLCachePurged.Add(float64(purged))
		}
		s.logger.Info("Purged payment URL cache entries", "count", purged)
	} else {
		s.logger.Debug("No expired payment URL cache entries to purge")
	}
	return nil
}
