package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdwc233/WeChat-official-account-management/internal/models"
)

type fakeCrawler struct {
	origin  models.SourceType
	results []FetchResult
	err     error
}

func (f *fakeCrawler) Origin() models.SourceType { return f.origin }

func (f *fakeCrawler) FetchAll(context.Context, time.Duration) ([]FetchResult, error) {
	return f.results, f.err
}

func doc(key, title string) *Document {
	return &Document{
		SourceKey: key,
		URL:       "https://example.com/s/" + key,
		Title:     title,
		Content:   "content of " + title,
		RawHTML:   "<p>" + title + "</p>",
	}
}

func TestSyncTally(t *testing.T) {
	db := newTestDB(t)
	retention := NewRetentionService(db, testLogger(), 100)
	svc := NewSyncService(db, testLogger(), retention, NewMonitoringService(db, testLogger()))

	crawler := &fakeCrawler{
		origin: models.SourceOfficial,
		results: []FetchResult{
			{Doc: doc("k1", "first")},
			{Err: errors.New("page is gone")},
			{Doc: doc("k2", "second")},
		},
	}

	stats, err := svc.Run(context.Background(), crawler, 0, true)
	require.NoError(t, err)
	assert.Equal(t, SyncStats{Total: 3, Success: 2, Skipped: 0, Failed: 1}, stats)

	// Second run: both stored candidates skip, the broken one still fails.
	stats, err = svc.Run(context.Background(), crawler, 0, true)
	require.NoError(t, err)
	assert.Equal(t, SyncStats{Total: 3, Success: 0, Skipped: 2, Failed: 1}, stats)
}

func TestSyncSkipExistingLeavesContentUntouched(t *testing.T) {
	db := newTestDB(t)
	retention := NewRetentionService(db, testLogger(), 100)
	svc := NewSyncService(db, testLogger(), retention, NewMonitoringService(db, testLogger()))

	first := &fakeCrawler{
		origin:  models.SourceOfficial,
		results: []FetchResult{{Doc: doc("k1", "original")}},
	}
	_, err := svc.Run(context.Background(), first, 0, true)
	require.NoError(t, err)

	// The operator may have edited the stored article since ingest.
	var article models.NormalizedArticle
	require.NoError(t, db.First(&article, "source_type = ?", models.SourceOfficial).Error)
	require.NoError(t, db.Model(&article).Update("content", "edited by hand").Error)

	changed := &fakeCrawler{
		origin:  models.SourceOfficial,
		results: []FetchResult{{Doc: doc("k1", "upstream rewrite")}},
	}
	stats, err := svc.Run(context.Background(), changed, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)

	require.NoError(t, db.First(&article, "nid = ?", article.NID).Error)
	assert.Equal(t, "edited by hand", article.Content)
	assert.Equal(t, "original", article.Title)
}

func TestSyncOverwriteUpdatesInPlace(t *testing.T) {
	db := newTestDB(t)
	retention := NewRetentionService(db, testLogger(), 100)
	svc := NewSyncService(db, testLogger(), retention, NewMonitoringService(db, testLogger()))

	first := &fakeCrawler{
		origin:  models.SourceCrawled,
		results: []FetchResult{{Doc: doc("k1", "v1")}},
	}
	_, err := svc.Run(context.Background(), first, 0, true)
	require.NoError(t, err)

	second := &fakeCrawler{
		origin:  models.SourceCrawled,
		results: []FetchResult{{Doc: doc("k1", "v2")}},
	}
	stats, err := svc.Run(context.Background(), second, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Success)

	// Still one row per source key, content refreshed.
	var count int64
	require.NoError(t, db.Model(&models.SourceArticle{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var article models.NormalizedArticle
	require.NoError(t, db.First(&article, "source_type = ?", models.SourceCrawled).Error)
	assert.Equal(t, "v2", article.Title)
}

func TestSyncFetchAllFailure(t *testing.T) {
	db := newTestDB(t)
	retention := NewRetentionService(db, testLogger(), 100)
	svc := NewSyncService(db, testLogger(), retention, NewMonitoringService(db, testLogger()))

	crawler := &fakeCrawler{
		origin: models.SourceOfficial,
		err:    errors.New("login page instead of feed"),
	}

	_, err := svc.Run(context.Background(), crawler, 0, true)
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)

	var count int64
	require.NoError(t, db.Model(&models.SourceArticle{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestSyncReingestsEvictedArticle(t *testing.T) {
	db := newTestDB(t)
	retention := NewRetentionService(db, testLogger(), 1)
	svc := NewSyncService(db, testLogger(), retention, NewMonitoringService(db, testLogger()))

	crawler := &fakeCrawler{
		origin: models.SourceCrawled,
		results: []FetchResult{
			{Doc: doc("k1", "first")},
			{Doc: doc("k2", "second")},
		},
	}

	_, err := svc.Run(context.Background(), crawler, 0, true)
	require.NoError(t, err)

	// Retention evicted one of the two. Its source key must be free again:
	// the next run re-ingests it instead of tripping the unique index.
	stats, err := svc.Run(context.Background(), crawler, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Success)

	var count int64
	require.NoError(t, db.Model(&models.SourceArticle{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSyncRunsRetentionAfterPersist(t *testing.T) {
	db := newTestDB(t)
	retention := NewRetentionService(db, testLogger(), 1)
	svc := NewSyncService(db, testLogger(), retention, NewMonitoringService(db, testLogger()))

	crawler := &fakeCrawler{
		origin: models.SourceCrawled,
		results: []FetchResult{
			{Doc: doc("k1", "first")},
			{Doc: doc("k2", "second")},
		},
	}

	_, err := svc.Run(context.Background(), crawler, 0, true)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.NormalizedArticle{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
