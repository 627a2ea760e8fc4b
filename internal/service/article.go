package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cdwc233/WeChat-official-account-management/internal/models"
)

// ArticleService owns the normalized-article lifecycle: listing, editing and
// the one-way discard transition. Every read path filters out discarded rows;
// that filter is an invariant of the whole service, not a per-query choice.
type ArticleService struct {
	db       *gorm.DB
	logger   *zap.Logger
	pageSize int
}

func NewArticleService(db *gorm.DB, logger *zap.Logger, pageSize int) *ArticleService {
	return &ArticleService{
		db:       db,
		logger:   logger,
		pageSize: pageSize,
	}
}

// List returns the newest articles of one origin, newest first, capped at the
// configured page size.
func (s *ArticleService) List(origin models.SourceType) ([]models.NormalizedArticle, error) {
	var articles []models.NormalizedArticle
	err := s.db.
		Where("source_type = ? AND process_status <> ?", origin, models.StatusDiscarded).
		Order("created_at DESC").
		Limit(s.pageSize).
		Find(&articles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}

func (s *ArticleService) Get(nid uint) (*models.NormalizedArticle, error) {
	var article models.NormalizedArticle
	err := s.db.First(&article, "nid = ?", nid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("article %d: %w", nid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article %d: %w", nid, err)
	}
	return &article, nil
}

// Update edits title and content. Both are required; nothing is written when
// validation fails.
func (s *ArticleService) Update(nid uint, title, content string) error {
	if title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if content == "" {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	article, err := s.Get(nid)
	if err != nil {
		return err
	}

	article.Title = title
	article.Content = content
	if err := s.db.Save(article).Error; err != nil {
		return fmt.Errorf("failed to update article %d: %w", nid, err)
	}

	s.logger.Info("Article updated", zap.Uint("nid", nid), zap.String("title", title))
	return nil
}

// Discard moves an article to the terminal discarded state. The caller must
// present the article's origin; a mismatch is rejected without mutation. The
// transition propagates to the linked source row in the same transaction.
// Discarding an already-discarded article succeeds and writes nothing.
func (s *ArticleService) Discard(nid uint, origin models.SourceType) error {
	switch origin {
	case models.SourceOfficial, models.SourceCrawled:
	default:
		return &ValidationError{Field: "origin", Reason: fmt.Sprintf("unknown source type %q", origin)}
	}

	article, err := s.Get(nid)
	if err != nil {
		return err
	}

	if article.SourceType != origin {
		return &ConflictError{
			Reason: fmt.Sprintf("article %d has origin %s, not %s", nid, article.SourceType, origin),
		}
	}

	if article.ProcessStatus == models.StatusDiscarded {
		return nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.NormalizedArticle{}).
			Where("nid = ?", nid).
			Update("process_status", models.StatusDiscarded)
		if res.Error != nil {
			return res.Error
		}

		if article.SID != nil {
			res = tx.Model(&models.SourceArticle{}).
				Where("sid = ?", *article.SID).
				Update("process_status", models.StatusDiscarded)
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to discard article %d: %w", nid, err)
	}

	s.logger.Info("Article discarded",
		zap.Uint("nid", nid),
		zap.String("origin", string(origin)))
	return nil
}

// SetCover records the cover asset URL for an article.
func (s *ArticleService) SetCover(nid uint, coverURL string) error {
	article, err := s.Get(nid)
	if err != nil {
		return err
	}

	article.CoverURL = coverURL
	if err := s.db.Save(article).Error; err != nil {
		return fmt.Errorf("failed to set cover for article %d: %w", nid, err)
	}
	return nil
}

// LastUpdateTime reports the update time of the K-th most recently updated
// article of one origin, or the oldest available when fewer than K exist.
// Returns nil when the origin has no visible articles.
func (s *ArticleService) LastUpdateTime(origin models.SourceType) (*time.Time, error) {
	var articles []models.NormalizedArticle
	err := s.db.
		Where("source_type = ? AND process_status <> ?", origin, models.StatusDiscarded).
		Order("updated_at DESC").
		Limit(s.pageSize).
		Find(&articles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query last update time: %w", err)
	}
	if len(articles) == 0 {
		return nil, nil
	}

	last := articles[len(articles)-1].UpdatedAt
	return &last, nil
}

// Counts summarises visible rows per store and per origin.
type Counts struct {
	Normalized int64 `json:"normalized"`
	Source     int64 `json:"source"`
	Official   int64 `json:"official"`
	Crawled    int64 `json:"crawled"`
}

func (s *ArticleService) Counts() (Counts, error) {
	var c Counts

	visible := s.db.Model(&models.NormalizedArticle{}).
		Where("process_status <> ?", models.StatusDiscarded)
	if err := visible.Count(&c.Normalized).Error; err != nil {
		return c, fmt.Errorf("failed to count articles: %w", err)
	}

	err := s.db.Model(&models.SourceArticle{}).
		Where("process_status <> ?", models.StatusDiscarded).
		Count(&c.Source).Error
	if err != nil {
		return c, fmt.Errorf("failed to count source articles: %w", err)
	}

	for _, origin := range []models.SourceType{models.SourceOfficial, models.SourceCrawled} {
		var n int64
		err := s.db.Model(&models.NormalizedArticle{}).
			Where("source_type = ? AND process_status <> ?", origin, models.StatusDiscarded).
			Count(&n).Error
		if err != nil {
			return c, fmt.Errorf("failed to count %s articles: %w", origin, err)
		}
		switch origin {
		case models.SourceOfficial:
			c.Official = n
		case models.SourceCrawled:
			c.Crawled = n
		}
	}

	return c, nil
}
