package service

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cdwc233/WeChat-official-account-management/internal/models"
)

// RetentionService bounds the working set: per origin, only the newest K
// non-discarded articles are retained; everything older is evicted together
// with its linked source row. Eviction removes rows outright so the unique
// source key is free for re-ingest. Running it against an unchanged store is
// a no-op.
type RetentionService struct {
	db     *gorm.DB
	logger *zap.Logger
	keep   int
}

func NewRetentionService(db *gorm.DB, logger *zap.Logger, keep int) *RetentionService {
	return &RetentionService{
		db:     db,
		logger: logger,
		keep:   keep,
	}
}

// CleanResult tallies evicted rows per origin.
type CleanResult struct {
	Official int `json:"official_removed"`
	Crawled  int `json:"crawled_removed"`
}

func (r *RetentionService) Clean() (CleanResult, error) {
	var result CleanResult

	for _, origin := range []models.SourceType{models.SourceOfficial, models.SourceCrawled} {
		removed, err := r.cleanOrigin(origin)
		if err != nil {
			return result, err
		}
		switch origin {
		case models.SourceOfficial:
			result.Official = removed
		case models.SourceCrawled:
			result.Crawled = removed
		}
	}

	return result, nil
}

// cleanOrigin evicts every non-discarded article of one origin beyond the
// newest K. Discarded rows are already invisible and are neither counted
// against K nor evicted.
func (r *RetentionService) cleanOrigin(origin models.SourceType) (int, error) {
	var victims []models.NormalizedArticle
	err := r.db.
		Select("nid", "sid").
		Where("source_type = ? AND process_status <> ?", origin, models.StatusDiscarded).
		Order("created_at DESC").
		Offset(r.keep).
		Limit(-1).
		Find(&victims).Error
	if err != nil {
		return 0, fmt.Errorf("failed to select retention victims for %s: %w", origin, err)
	}

	if len(victims) == 0 {
		return 0, nil
	}

	nids := make([]uint, 0, len(victims))
	sids := make([]uint, 0, len(victims))
	for _, v := range victims {
		nids = append(nids, v.NID)
		if v.SID != nil {
			sids = append(sids, *v.SID)
		}
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("nid IN ?", nids).Delete(&models.NormalizedArticle{}).Error; err != nil {
			return err
		}
		if len(sids) > 0 {
			if err := tx.Unscoped().Where("sid IN ?", sids).Delete(&models.SourceArticle{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to evict %s articles: %w", origin, err)
	}

	r.logger.Info("Retention cleaned origin",
		zap.String("origin", string(origin)),
		zap.Int("removed", len(nids)),
		zap.Int("kept", r.keep))

	return len(nids), nil
}
