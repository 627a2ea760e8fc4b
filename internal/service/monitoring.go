package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cdwc233/WeChat-official-account-management/internal/models"
)

// MonitoringService keeps the ingest-run history: every sync and crawl
// execution lands here, successful or not. Recording failures must never
// fail the run itself, so errors are logged and swallowed by the caller.
type MonitoringService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewMonitoringService(db *gorm.DB, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		db:     db,
		logger: logger,
	}
}

// RecordRun persists the outcome of one ingest execution.
func (m *MonitoringService) RecordRun(origin models.SourceType, stats SyncStats, startedAt time.Time, runErr error) error {
	run := models.SyncRun{
		Origin:     origin,
		Status:     models.RunCompleted,
		Total:      stats.Total,
		Success:    stats.Success,
		Skipped:    stats.Skipped,
		Failed:     stats.Failed,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	run.Duration = run.FinishedAt.Sub(startedAt)

	if runErr != nil {
		run.Status = models.RunFailed
		run.Error = runErr.Error()
	}

	if err := m.db.Create(&run).Error; err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

// RecentRuns returns the newest runs first.
func (m *MonitoringService) RecentRuns(limit int) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	err := m.db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	return runs, nil
}

// CleanupOldRuns drops run records older than the keep window.
func (m *MonitoringService) CleanupOldRuns(daysToKeep int) error {
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)

	res := m.db.Where("started_at < ?", cutoff).Delete(&models.SyncRun{})
	if res.Error != nil {
		return fmt.Errorf("failed to cleanup sync runs: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		m.logger.Info("Pruned old sync runs", zap.Int64("removed", res.RowsAffected))
	}
	return nil
}
