package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdwc233/WeChat-official-account-management/internal/models"
)

func TestCleanKeepsNewestPerOrigin(t *testing.T) {
	db := newTestDB(t)
	retention := NewRetentionService(db, testLogger(), 2)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		seedArticle(t, db, models.SourceOfficial,
			fmt.Sprintf("off-%d", i), fmt.Sprintf("official %d", i),
			base.Add(time.Duration(i)*time.Minute))
	}
	seedArticle(t, db, models.SourceCrawled, "cr-0", "crawled 0", base)

	result, err := retention.Clean()
	require.NoError(t, err)
	assert.Equal(t, 3, result.Official)
	assert.Equal(t, 0, result.Crawled)

	var titles []string
	require.NoError(t, db.Model(&models.NormalizedArticle{}).
		Where("source_type = ?", models.SourceOfficial).
		Order("created_at DESC").Pluck("title", &titles).Error)
	assert.Equal(t, []string{"official 4", "official 3"}, titles)

	// Evicted source rows went with their articles.
	var sources int64
	require.NoError(t, db.Model(&models.SourceArticle{}).Count(&sources).Error)
	assert.Equal(t, int64(3), sources)
}

func TestCleanIdempotent(t *testing.T) {
	db := newTestDB(t)
	retention := NewRetentionService(db, testLogger(), 1)

	base := time.Now().Add(-time.Hour)
	seedArticle(t, db, models.SourceOfficial, "k1", "old", base)
	seedArticle(t, db, models.SourceOfficial, "k2", "new", base.Add(time.Minute))

	first, err := retention.Clean()
	require.NoError(t, err)
	assert.Equal(t, 1, first.Official)

	second, err := retention.Clean()
	require.NoError(t, err)
	assert.Equal(t, 0, second.Official)
	assert.Equal(t, 0, second.Crawled)
}

func TestCleanIgnoresDiscarded(t *testing.T) {
	db := newTestDB(t)
	articles := NewArticleService(db, testLogger(), 10)
	retention := NewRetentionService(db, testLogger(), 2)

	base := time.Now().Add(-time.Hour)
	discarded := seedArticle(t, db, models.SourceOfficial, "k1", "discarded", base.Add(3*time.Minute))
	seedArticle(t, db, models.SourceOfficial, "k2", "a", base)
	seedArticle(t, db, models.SourceOfficial, "k3", "b", base.Add(time.Minute))
	require.NoError(t, articles.Discard(discarded.NID, models.SourceOfficial))

	// Discarded rows neither count against the window nor get evicted.
	result, err := retention.Clean()
	require.NoError(t, err)
	assert.Equal(t, 0, result.Official)

	var count int64
	require.NoError(t, db.Model(&models.NormalizedArticle{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}
