package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cdwc233/WeChat-official-account-management/internal/models"
)

// Document is one fetched candidate, already reduced to the canonical shape.
type Document struct {
	SourceKey string
	URL       string
	Title     string
	Content   string // markdown
	CoverURL  string
	RawHTML   string
}

// FetchResult carries either a document or the per-item error that prevented
// fetching it. Crawlers report best-effort results: per-item failures land
// here, only a total inability to run surfaces as an error from FetchAll.
type FetchResult struct {
	Doc *Document
	Err error
}

// Crawler pulls candidate documents from one origin.
type Crawler interface {
	Origin() models.SourceType
	FetchAll(ctx context.Context, delay time.Duration) ([]FetchResult, error)
}

// SyncStats accounts every fetched candidate in exactly one bucket.
type SyncStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// SyncService normalizes crawled documents and persists them into the source
// and normalized stores, deduplicating by source key. Retention runs after
// every sync to keep the working set bounded.
type SyncService struct {
	db         *gorm.DB
	logger     *zap.Logger
	retention  *RetentionService
	monitoring *MonitoringService
}

func NewSyncService(db *gorm.DB, logger *zap.Logger, retention *RetentionService, monitoring *MonitoringService) *SyncService {
	return &SyncService{
		db:         db,
		logger:     logger,
		retention:  retention,
		monitoring: monitoring,
	}
}

// Run fetches all candidates from the crawler and persists them. With
// skipExisting, a candidate whose source key is already stored counts as
// skipped and its stored content stays untouched; without it, the stored
// copy is overwritten in place.
func (s *SyncService) Run(ctx context.Context, crawler Crawler, delay time.Duration, skipExisting bool) (SyncStats, error) {
	var stats SyncStats

	origin := crawler.Origin()
	startedAt := time.Now()
	s.logger.Info("Starting sync",
		zap.String("origin", string(origin)),
		zap.Bool("skip_existing", skipExisting))

	results, err := crawler.FetchAll(ctx, delay)
	if err != nil {
		fetchErr := &UpstreamError{Op: fmt.Sprintf("fetch %s articles", origin), Err: err}
		s.recordRun(origin, stats, startedAt, fetchErr)
		return stats, fetchErr
	}

	stats.Total = len(results)
	for _, res := range results {
		if res.Err != nil {
			stats.Failed++
			s.logger.Warn("Fetch failed for candidate", zap.Error(res.Err))
			continue
		}

		existing, err := s.findExisting(res.Doc.SourceKey)
		if err != nil {
			stats.Failed++
			s.logger.Error("Existence check failed",
				zap.String("source_key", res.Doc.SourceKey), zap.Error(err))
			continue
		}

		if existing != nil && skipExisting {
			stats.Skipped++
			continue
		}

		if err := s.persist(origin, res.Doc, existing); err != nil {
			stats.Failed++
			s.logger.Error("Failed to persist document",
				zap.String("source_key", res.Doc.SourceKey), zap.Error(err))
			continue
		}
		stats.Success++
	}

	if _, err := s.retention.Clean(); err != nil {
		s.logger.Error("Post-sync retention failed", zap.Error(err))
	}

	s.recordRun(origin, stats, startedAt, nil)

	s.logger.Info("Sync completed",
		zap.String("origin", string(origin)),
		zap.Int("total", stats.Total),
		zap.Int("success", stats.Success),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))

	return stats, nil
}

// recordRun is best effort: a broken audit log never fails the sync.
func (s *SyncService) recordRun(origin models.SourceType, stats SyncStats, startedAt time.Time, runErr error) {
	if err := s.monitoring.RecordRun(origin, stats, startedAt, runErr); err != nil {
		s.logger.Error("Failed to record sync run", zap.Error(err))
	}
}

func (s *SyncService) findExisting(sourceKey string) (*models.SourceArticle, error) {
	var src models.SourceArticle
	err := s.db.First(&src, "source_key = ?", sourceKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// persist writes the source row and its normalized counterpart in one
// transaction. When a source row already exists (overwrite mode), the raw
// payload and the derived article are updated in place.
func (s *SyncService) persist(origin models.SourceType, doc *Document, existing *models.SourceArticle) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if existing != nil {
			existing.SourceURL = doc.URL
			existing.RawHTML = doc.RawHTML
			if err := tx.Save(existing).Error; err != nil {
				return err
			}

			var article models.NormalizedArticle
			err := tx.First(&article, "sid = ?", existing.SID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				article = models.NormalizedArticle{SourceType: origin, SID: &existing.SID}
			} else if err != nil {
				return err
			}

			article.Title = doc.Title
			article.Content = doc.Content
			article.SourceURL = doc.URL
			article.CoverURL = doc.CoverURL
			return tx.Save(&article).Error
		}

		src := models.SourceArticle{
			SourceKey:     doc.SourceKey,
			SourceURL:     doc.URL,
			RawHTML:       doc.RawHTML,
			ProcessStatus: models.StatusNew,
		}
		if err := tx.Create(&src).Error; err != nil {
			return err
		}

		article := models.NormalizedArticle{
			SourceType:    origin,
			Title:         doc.Title,
			Content:       doc.Content,
			SourceURL:     doc.URL,
			CoverURL:      doc.CoverURL,
			ProcessStatus: models.StatusNew,
			SID:           &src.SID,
		}
		return tx.Create(&article).Error
	})
}
