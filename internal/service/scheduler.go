package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cdwc233/WeChat-official-account-management/internal/config"
)

// Scheduler periodically syncs the official feed. Each run is gated on the
// credential session: an invalid cookie skips the run instead of hammering
// the platform with unauthenticated requests.
type Scheduler struct {
	config     *config.SchedulerConfig
	logger     *zap.Logger
	sync       *SyncService
	credential *CredentialService
	crawler    Crawler
	delay      time.Duration
	ticker     *time.Ticker
	stopCh     chan struct{}
}

func NewScheduler(cfg *config.SchedulerConfig, logger *zap.Logger, sync *SyncService, credential *CredentialService, crawler Crawler, delay time.Duration) *Scheduler {
	return &Scheduler{
		config:     cfg,
		logger:     logger,
		sync:       sync,
		credential: credential,
		crawler:    crawler,
		delay:      delay,
		stopCh:     make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	interval, err := time.ParseDuration(s.config.SyncInterval)
	if err != nil {
		s.logger.Error("Invalid sync interval", zap.String("interval", s.config.SyncInterval), zap.Error(err))
		return err
	}

	s.logger.Info("Starting scheduler", zap.String("sync_interval", s.config.SyncInterval))

	s.ticker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.logger.Info("Running scheduled sync")
				s.runSync(ctx)
			case <-s.stopCh:
				s.logger.Info("Scheduler stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Scheduler context cancelled")
				return
			}
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.logger.Info("Scheduler shutdown completed")
}

func (s *Scheduler) runSync(ctx context.Context) {
	valid, message := s.credential.Check(ctx)
	if !valid {
		s.logger.Warn("Skipping scheduled sync, credential invalid", zap.String("reason", message))
		return
	}

	start := time.Now()
	stats, err := s.sync.Run(ctx, s.crawler, s.delay, true)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("Scheduled sync failed",
			zap.Error(err),
			zap.Duration("duration", duration))
		return
	}

	s.logger.Info("Scheduled sync completed",
		zap.Int("total", stats.Total),
		zap.Int("success", stats.Success),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", duration))
}
