package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdwc233/WeChat-official-account-management/internal/models"
)

type fakeWebsiteStore struct {
	existing  map[uint]bool
	insertErr error
	nextWID   int64
	inserted  []uint
}

func (f *fakeWebsiteStore) ExistsByNID(_ context.Context, nid uint) (bool, error) {
	return f.existing[nid], nil
}

func (f *fakeWebsiteStore) Insert(_ context.Context, rec *models.PublishArticle) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.inserted = append(f.inserted, rec.NID)
	if f.nextWID == 0 {
		f.nextWID = 1
	}
	return f.nextWID, nil
}

type fakeDraftUploader struct {
	mediaID string
	err     error
}

func (f *fakeDraftUploader) PushDraft(context.Context, *models.PublishArticle) (string, error) {
	return f.mediaID, f.err
}

// passthroughRender tags its input so tests can see exactly what markdown
// reached the renderer.
func passthroughRender(markdown string) string {
	return "HTML:" + markdown
}

func newPublishFixture(t *testing.T) (*PublishService, *fakeWebsiteStore, *fakeDraftUploader, *models.NormalizedArticle) {
	t.Helper()
	db := newTestDB(t)
	website := &fakeWebsiteStore{existing: map[uint]bool{}}
	wechat := &fakeDraftUploader{mediaID: "MEDIA_1"}
	svc := NewPublishService(db, testLogger(), passthroughRender, website, wechat)
	article := seedArticle(t, db, models.SourceOfficial, "k1", "stored title", time.Now())
	return svc, website, wechat, article
}

func TestUpsertCreatesThenUpdatesInPlace(t *testing.T) {
	svc, _, _, article := newPublishFixture(t)

	rec, created, err := svc.UpsertRecord(article.NID, PublishInput{Platform: models.PlatformWeChat})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "stored title", rec.Title)
	assert.Equal(t, "HTML:"+article.Content, rec.ContentHTML)
	assert.Equal(t, models.PublishPending, rec.PublishStatus)

	// Re-publishing rewrites content but keeps the same row.
	again, created, err := svc.UpsertRecord(article.NID, PublishInput{
		Platform: models.PlatformWeChat,
		Title:    "edited title",
		Content:  "edited body",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec.PID, again.PID)
	assert.Equal(t, "edited title", again.Title)
	assert.Equal(t, "HTML:edited body", again.ContentHTML)

	recs, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestUpsertKeepsPublishStatusOnRepublish(t *testing.T) {
	svc, _, _, article := newPublishFixture(t)

	rec, _, err := svc.UpsertRecord(article.NID, PublishInput{Platform: models.PlatformWeChat})
	require.NoError(t, err)

	_, err = svc.PushToWeChat(context.Background(), rec.PID)
	require.NoError(t, err)

	again, created, err := svc.UpsertRecord(article.NID, PublishInput{Platform: models.PlatformWeChat})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.PublishPublished, again.PublishStatus)
	assert.Equal(t, "MEDIA_1", again.PlatformArticleID)
}

func TestUpsertTwoPlatformsTwoRecords(t *testing.T) {
	svc, _, _, article := newPublishFixture(t)

	wechatRec, _, err := svc.UpsertRecord(article.NID, PublishInput{Platform: models.PlatformWeChat})
	require.NoError(t, err)
	websiteRec, _, err := svc.UpsertRecord(article.NID, PublishInput{Platform: models.PlatformWebsite})
	require.NoError(t, err)

	assert.NotEqual(t, wechatRec.PID, websiteRec.PID)

	recs, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestUpsertSummaryLeadsBody(t *testing.T) {
	svc, _, _, article := newPublishFixture(t)

	rec, _, err := svc.UpsertRecord(article.NID, PublishInput{
		Platform: models.PlatformWeChat,
		Content:  "the body",
		Summary:  "the gist",
	})
	require.NoError(t, err)
	assert.Equal(t, "HTML:the gist\n\nthe body", rec.ContentHTML)
}

func TestUpsertValidation(t *testing.T) {
	svc, _, _, article := newPublishFixture(t)

	var validation *ValidationError
	_, _, err := svc.UpsertRecord(article.NID, PublishInput{Platform: models.TargetPlatform("fax")})
	require.ErrorAs(t, err, &validation)

	_, _, err = svc.UpsertRecord(9999, PublishInput{Platform: models.PlatformWeChat})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPushToWeChatRecordsMediaID(t *testing.T) {
	svc, _, _, article := newPublishFixture(t)

	rec, _, err := svc.UpsertRecord(article.NID, PublishInput{Platform: models.PlatformWeChat})
	require.NoError(t, err)

	mediaID, err := svc.PushToWeChat(context.Background(), rec.PID)
	require.NoError(t, err)
	assert.Equal(t, "MEDIA_1", mediaID)

	got, err := svc.Get(rec.PID)
	require.NoError(t, err)
	assert.Equal(t, models.PublishPublished, got.PublishStatus)
	assert.Equal(t, "MEDIA_1", got.PlatformArticleID)
}

func TestPushToWeChatUpstreamFailureLeavesPending(t *testing.T) {
	svc, _, wechat, article := newPublishFixture(t)
	wechat.err = errors.New("draft api rejected the payload")
	wechat.mediaID = ""

	rec, _, err := svc.UpsertRecord(article.NID, PublishInput{Platform: models.PlatformWeChat})
	require.NoError(t, err)

	_, err = svc.PushToWeChat(context.Background(), rec.PID)
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)

	got, err := svc.Get(rec.PID)
	require.NoError(t, err)
	assert.Equal(t, models.PublishPending, got.PublishStatus)
	assert.Empty(t, got.PlatformArticleID)
}

func TestPushToWebsiteSuccess(t *testing.T) {
	svc, website, _, article := newPublishFixture(t)
	website.nextWID = 77

	rec, _, err := svc.UpsertRecord(article.NID, PublishInput{Platform: models.PlatformWebsite})
	require.NoError(t, err)

	wid, err := svc.PushToWebsite(context.Background(), rec.PID)
	require.NoError(t, err)
	assert.Equal(t, int64(77), wid)

	got, err := svc.Get(rec.PID)
	require.NoError(t, err)
	assert.Equal(t, models.PublishPublished, got.PublishStatus)
	assert.Equal(t, fmt.Sprintf("website_%d", wid), got.PlatformArticleID)
}

func TestPushToWebsiteConflictLeavesPending(t *testing.T) {
	svc, website, _, article := newPublishFixture(t)
	website.existing[article.NID] = true

	rec, _, err := svc.UpsertRecord(article.NID, PublishInput{Platform: models.PlatformWebsite})
	require.NoError(t, err)

	_, err = svc.PushToWebsite(context.Background(), rec.PID)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	assert.Empty(t, website.inserted)

	got, err := svc.Get(rec.PID)
	require.NoError(t, err)
	assert.Equal(t, models.PublishPending, got.PublishStatus)
}

func TestPushPlatformMismatch(t *testing.T) {
	svc, _, _, article := newPublishFixture(t)

	websiteRec, _, err := svc.UpsertRecord(article.NID, PublishInput{Platform: models.PlatformWebsite})
	require.NoError(t, err)
	wechatRec, _, err := svc.UpsertRecord(article.NID, PublishInput{Platform: models.PlatformWeChat})
	require.NoError(t, err)

	var conflict *ConflictError
	_, err = svc.PushToWeChat(context.Background(), websiteRec.PID)
	require.ErrorAs(t, err, &conflict)
	_, err = svc.PushToWebsite(context.Background(), wechatRec.PID)
	require.ErrorAs(t, err, &conflict)
}

func TestUpdateRecord(t *testing.T) {
	svc, _, _, article := newPublishFixture(t)

	rec, _, err := svc.UpsertRecord(article.NID, PublishInput{Platform: models.PlatformWeChat})
	require.NoError(t, err)

	var validation *ValidationError
	require.ErrorAs(t, svc.UpdateRecord(rec.PID, "", "<p>x</p>"), &validation)
	require.ErrorAs(t, svc.UpdateRecord(rec.PID, "t", ""), &validation)

	require.NoError(t, svc.UpdateRecord(rec.PID, "final title", "<p>final</p>"))
	got, err := svc.Get(rec.PID)
	require.NoError(t, err)
	assert.Equal(t, "final title", got.Title)
	assert.Equal(t, "<p>final</p>", got.ContentHTML)
}
