package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const runLogKeepDays = 90

// RunLogJanitor periodically prunes old sync-run records.
type RunLogJanitor struct {
	monitoring *MonitoringService
	logger     *zap.Logger
	ticker     *time.Ticker
	done       chan bool
}

func NewRunLogJanitor(monitoring *MonitoringService, logger *zap.Logger, interval time.Duration) *RunLogJanitor {
	return &RunLogJanitor{
		monitoring: monitoring,
		logger:     logger,
		ticker:     time.NewTicker(interval),
		done:       make(chan bool),
	}
}

func (j *RunLogJanitor) Start(ctx context.Context) {
	go func() {
		j.logger.Info("Starting run log janitor")
		for {
			select {
			case <-j.done:
				j.logger.Info("Run log janitor stopped")
				return
			case <-ctx.Done():
				j.logger.Info("Run log janitor stopped due to context cancellation")
				return
			case <-j.ticker.C:
				if err := j.monitoring.CleanupOldRuns(runLogKeepDays); err != nil {
					j.logger.Error("Failed to cleanup sync runs", zap.Error(err))
				}
			}
		}
	}()
}

func (j *RunLogJanitor) Stop() {
	j.ticker.Stop()
	close(j.done)
}
