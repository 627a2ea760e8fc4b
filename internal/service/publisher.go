package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cdwc233/WeChat-official-account-management/internal/models"
)

// RemoteWebsiteStore is the remote website database, independently writable
// from the local store. No transaction spans both; the nid existence check
// is the only duplicate guard available across them.
type RemoteWebsiteStore interface {
	ExistsByNID(ctx context.Context, nid uint) (bool, error)
	Insert(ctx context.Context, rec *models.PublishArticle) (int64, error)
}

// DraftUploader pushes a publish record into the WeChat draft box and
// returns the platform-assigned media id.
type DraftUploader interface {
	PushDraft(ctx context.Context, rec *models.PublishArticle) (string, error)
}

// RenderFunc converts markdown to platform HTML. It is pure and total:
// empty input yields a placeholder, never an error.
type RenderFunc func(markdown string) string

// PublishInput is one publish request for an article. Empty Title/Content
// fall back to the stored article fields; Summary is the optional AI path
// and, when present, is concatenated before the body.
type PublishInput struct {
	Title    string
	Content  string
	Summary  string
	CoverURL string
	Platform models.TargetPlatform
}

// PublishService converts normalized (optionally AI-enriched) articles into
// publish records and pushes them downstream, guaranteeing at most one
// record per (nid, target platform) even under retries.
type PublishService struct {
	db      *gorm.DB
	logger  *zap.Logger
	render  RenderFunc
	website RemoteWebsiteStore
	wechat  DraftUploader
}

func NewPublishService(db *gorm.DB, logger *zap.Logger, render RenderFunc, website RemoteWebsiteStore, wechat DraftUploader) *PublishService {
	return &PublishService{
		db:      db,
		logger:  logger,
		render:  render,
		website: website,
		wechat:  wechat,
	}
}

// UpsertRecord builds or refreshes the publish record for (nid, platform).
// An existing record is overwritten in place: pid and publish status are
// untouched, so re-publishing never duplicates and never un-publishes.
// Returns the record and whether it was created.
func (s *PublishService) UpsertRecord(nid uint, in PublishInput) (*models.PublishArticle, bool, error) {
	switch in.Platform {
	case models.PlatformWeChat, models.PlatformWebsite:
	default:
		return nil, false, &ValidationError{Field: "target_platform", Reason: fmt.Sprintf("unknown platform %q", in.Platform)}
	}

	var article models.NormalizedArticle
	err := s.db.First(&article, "nid = ?", nid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("article %d: %w", nid, ErrNotFound)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load article %d: %w", nid, err)
	}

	title := in.Title
	if title == "" {
		title = article.Title
	}
	content := in.Content
	if content == "" {
		content = article.Content
	}
	cover := in.CoverURL
	if cover == "" {
		cover = article.CoverURL
	}

	if title == "" {
		return nil, false, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if content == "" {
		return nil, false, &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	// AI path: summary leads, blank line, then the body, rendered as one
	// document.
	markdown := content
	if in.Summary != "" {
		markdown = in.Summary + "\n\n" + content
	}
	html := s.render(markdown)

	var rec models.PublishArticle
	err = s.db.First(&rec, "nid = ? AND target_platform = ?", nid, in.Platform).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = models.PublishArticle{
			NID:            nid,
			Title:          title,
			ContentHTML:    html,
			CoverURL:       cover,
			SourceURL:      article.SourceURL,
			TargetPlatform: in.Platform,
			PublishStatus:  models.PublishPending,
		}
		if err := s.db.Create(&rec).Error; err != nil {
			return nil, false, fmt.Errorf("failed to create publish record: %w", err)
		}
		s.logger.Info("Publish record created",
			zap.Uint("pid", rec.PID), zap.Uint("nid", nid),
			zap.String("platform", string(in.Platform)))
		return &rec, true, nil

	case err != nil:
		return nil, false, fmt.Errorf("failed to look up publish record: %w", err)
	}

	rec.Title = title
	rec.ContentHTML = html
	rec.CoverURL = cover
	rec.SourceURL = article.SourceURL
	if err := s.db.Save(&rec).Error; err != nil {
		return nil, false, fmt.Errorf("failed to update publish record: %w", err)
	}

	s.logger.Info("Publish record updated",
		zap.Uint("pid", rec.PID), zap.Uint("nid", nid),
		zap.String("platform", string(in.Platform)))
	return &rec, false, nil
}

func (s *PublishService) List() ([]models.PublishArticle, error) {
	var recs []models.PublishArticle
	if err := s.db.Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list publish records: %w", err)
	}
	return recs, nil
}

func (s *PublishService) Get(pid uint) (*models.PublishArticle, error) {
	var rec models.PublishArticle
	err := s.db.First(&rec, "pid = ?", pid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("publish record %d: %w", pid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get publish record %d: %w", pid, err)
	}
	return &rec, nil
}

// UpdateRecord edits title and rendered content of a publish record.
func (s *PublishService) UpdateRecord(pid uint, title, contentHTML string) error {
	if title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if contentHTML == "" {
		return &ValidationError{Field: "content_html", Reason: "must not be empty"}
	}

	rec, err := s.Get(pid)
	if err != nil {
		return err
	}

	rec.Title = title
	rec.ContentHTML = contentHTML
	if err := s.db.Save(rec).Error; err != nil {
		return fmt.Errorf("failed to update publish record %d: %w", pid, err)
	}
	return nil
}

// PushToWeChat sends the record to the WeChat draft box. On a confirmed
// media id the local record flips to published with the media id recorded.
func (s *PublishService) PushToWeChat(ctx context.Context, pid uint) (string, error) {
	rec, err := s.Get(pid)
	if err != nil {
		return "", err
	}

	switch rec.TargetPlatform {
	case models.PlatformWeChat:
	case models.PlatformWebsite:
		return "", &ConflictError{Reason: fmt.Sprintf("publish record %d targets the website, not WeChat", pid)}
	default:
		return "", &ValidationError{Field: "target_platform", Reason: fmt.Sprintf("unknown platform %q", rec.TargetPlatform)}
	}

	mediaID, err := s.wechat.PushDraft(ctx, rec)
	if err != nil {
		return "", &UpstreamError{Op: "push draft to wechat", Err: err}
	}

	if err := s.markPublished(rec, mediaID); err != nil {
		consistency := &ConsistencyError{PID: pid, NID: rec.NID, Remote: "wechat draft", Err: err}
		s.logger.Error("Publish state out of sync",
			zap.Uint("pid", pid), zap.Uint("nid", rec.NID),
			zap.String("media_id", mediaID), zap.Error(err))
		return mediaID, consistency
	}

	s.logger.Info("Pushed to WeChat draft box",
		zap.Uint("pid", pid), zap.String("media_id", mediaID))
	return mediaID, nil
}

// PushToWebsite inserts the record into the remote website database. A row
// already present for this nid is a conflict, never retried or silently
// skipped, so the operator sees it. After a successful remote insert the
// local record is marked published; if that local commit fails, the remote
// row stays and the mismatch is surfaced as a ConsistencyError with enough
// detail to reconcile manually.
func (s *PublishService) PushToWebsite(ctx context.Context, pid uint) (int64, error) {
	rec, err := s.Get(pid)
	if err != nil {
		return 0, err
	}

	switch rec.TargetPlatform {
	case models.PlatformWebsite:
	case models.PlatformWeChat:
		return 0, &ConflictError{Reason: fmt.Sprintf("publish record %d targets WeChat, not the website", pid)}
	default:
		return 0, &ValidationError{Field: "target_platform", Reason: fmt.Sprintf("unknown platform %q", rec.TargetPlatform)}
	}

	exists, err := s.website.ExistsByNID(ctx, rec.NID)
	if err != nil {
		return 0, &UpstreamError{Op: "check website for existing article", Err: err}
	}
	if exists {
		return 0, &ConflictError{Reason: fmt.Sprintf("article %d is already published to the website", rec.NID)}
	}

	wid, err := s.website.Insert(ctx, rec)
	if err != nil {
		return 0, &UpstreamError{Op: "insert article into website database", Err: err}
	}

	if err := s.markPublished(rec, fmt.Sprintf("website_%d", wid)); err != nil {
		consistency := &ConsistencyError{PID: pid, NID: rec.NID, Remote: "website database", Err: err}
		s.logger.Error("Publish state out of sync",
			zap.Uint("pid", pid), zap.Uint("nid", rec.NID),
			zap.Int64("wid", wid), zap.Error(err))
		return wid, consistency
	}

	s.logger.Info("Pushed to website",
		zap.Uint("pid", pid), zap.Uint("nid", rec.NID), zap.Int64("wid", wid))
	return wid, nil
}

func (s *PublishService) markPublished(rec *models.PublishArticle, platformArticleID string) error {
	rec.PublishStatus = models.PublishPublished
	rec.PlatformArticleID = platformArticleID
	return s.db.Save(rec).Error
}
