package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdwc233/WeChat-official-account-management/internal/models"
)

func TestArticleListNewestFirstAndCapped(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, testLogger(), 2)

	base := time.Now().Add(-time.Hour)
	seedArticle(t, db, models.SourceOfficial, "k1", "oldest", base)
	seedArticle(t, db, models.SourceOfficial, "k2", "middle", base.Add(time.Minute))
	seedArticle(t, db, models.SourceOfficial, "k3", "newest", base.Add(2*time.Minute))
	seedArticle(t, db, models.SourceCrawled, "k4", "other origin", base.Add(3*time.Minute))

	articles, err := svc.List(models.SourceOfficial)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "newest", articles[0].Title)
	assert.Equal(t, "middle", articles[1].Title)
}

func TestArticleListExcludesDiscarded(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, testLogger(), 10)

	now := time.Now()
	seedArticle(t, db, models.SourceOfficial, "k1", "visible", now)
	hidden := seedArticle(t, db, models.SourceOfficial, "k2", "hidden", now.Add(time.Minute))
	require.NoError(t, svc.Discard(hidden.NID, models.SourceOfficial))

	articles, err := svc.List(models.SourceOfficial)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "visible", articles[0].Title)

	counts, err := svc.Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Normalized)
	assert.Equal(t, int64(1), counts.Official)
	assert.Equal(t, int64(1), counts.Source)
}

func TestArticleGetNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, testLogger(), 10)

	_, err := svc.Get(42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArticleUpdateValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, testLogger(), 10)
	article := seedArticle(t, db, models.SourceOfficial, "k1", "original", time.Now())

	var validation *ValidationError
	require.ErrorAs(t, svc.Update(article.NID, "", "body"), &validation)
	require.ErrorAs(t, svc.Update(article.NID, "title", ""), &validation)

	// Failed validation writes nothing.
	got, err := svc.Get(article.NID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Title)

	require.NoError(t, svc.Update(article.NID, "edited", "new body"))
	got, err = svc.Get(article.NID)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Title)
	assert.Equal(t, "new body", got.Content)
}

func TestDiscardPropagatesToSource(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, testLogger(), 10)
	article := seedArticle(t, db, models.SourceOfficial, "k1", "doomed", time.Now())

	require.NoError(t, svc.Discard(article.NID, models.SourceOfficial))

	got, err := svc.Get(article.NID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDiscarded, got.ProcessStatus)

	var src models.SourceArticle
	require.NoError(t, db.First(&src, "sid = ?", *article.SID).Error)
	assert.Equal(t, models.StatusDiscarded, src.ProcessStatus)
}

func TestDiscardOriginMismatchMutatesNothing(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, testLogger(), 10)
	article := seedArticle(t, db, models.SourceOfficial, "k1", "kept", time.Now())

	err := svc.Discard(article.NID, models.SourceCrawled)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	got, err := svc.Get(article.NID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, got.ProcessStatus)

	var src models.SourceArticle
	require.NoError(t, db.First(&src, "sid = ?", *article.SID).Error)
	assert.Equal(t, models.StatusNew, src.ProcessStatus)
}

func TestDiscardUnknownOrigin(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, testLogger(), 10)
	article := seedArticle(t, db, models.SourceOfficial, "k1", "kept", time.Now())

	var validation *ValidationError
	assert.ErrorAs(t, svc.Discard(article.NID, models.SourceType("podcast")), &validation)
}

func TestDiscardIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, testLogger(), 10)
	article := seedArticle(t, db, models.SourceOfficial, "k1", "doomed", time.Now())

	require.NoError(t, svc.Discard(article.NID, models.SourceOfficial))
	require.NoError(t, svc.Discard(article.NID, models.SourceOfficial))

	got, err := svc.Get(article.NID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDiscarded, got.ProcessStatus)
}

func TestLastUpdateTime(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, testLogger(), 2)

	ts, err := svc.LastUpdateTime(models.SourceOfficial)
	require.NoError(t, err)
	assert.Nil(t, ts)

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i, key := range []string{"k1", "k2", "k3"} {
		a := seedArticle(t, db, models.SourceOfficial, key, key, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, db.Model(a).UpdateColumn("updated_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}

	// With page size 2, the reported time is the 2nd most recent update.
	ts, err = svc.LastUpdateTime(models.SourceOfficial)
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.WithinDuration(t, base.Add(time.Minute), *ts, time.Second)
}

func TestSetCover(t *testing.T) {
	db := newTestDB(t)
	svc := NewArticleService(db, testLogger(), 10)
	article := seedArticle(t, db, models.SourceOfficial, "k1", "titled", time.Now())

	require.NoError(t, svc.SetCover(article.NID, "/static/covers/cover_1.png"))
	got, err := svc.Get(article.NID)
	require.NoError(t, err)
	assert.Equal(t, "/static/covers/cover_1.png", got.CoverURL)

	err = svc.SetCover(9999, "/static/covers/none.png")
	assert.True(t, errors.Is(err, ErrNotFound))
}
