package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cdwc233/WeChat-official-account-management/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.SourceArticle{},
		&models.NormalizedArticle{},
		&models.PublishArticle{},
		&models.SyncRun{},
	))
	return db
}

// seedArticle creates a source row and its normalized counterpart. createdAt
// controls listing and retention order.
func seedArticle(t *testing.T, db *gorm.DB, origin models.SourceType, sourceKey, title string, createdAt time.Time) *models.NormalizedArticle {
	t.Helper()

	src := models.SourceArticle{
		SourceKey:     sourceKey,
		SourceURL:     "https://example.com/s/" + sourceKey,
		RawHTML:       "<p>" + title + "</p>",
		ProcessStatus: models.StatusNew,
		CreatedAt:     createdAt,
	}
	require.NoError(t, db.Create(&src).Error)

	article := models.NormalizedArticle{
		SourceType:    origin,
		Title:         title,
		Content:       "content of " + title,
		SourceURL:     src.SourceURL,
		ProcessStatus: models.StatusNew,
		SID:           &src.SID,
		CreatedAt:     createdAt,
	}
	require.NoError(t, db.Create(&article).Error)
	return &article
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
