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

func TestSyncRunsAreRecorded(t *testing.T) {
	db := newTestDB(t)
	monitoring := NewMonitoringService(db, testLogger())
	retention := NewRetentionService(db, testLogger(), 100)
	svc := NewSyncService(db, testLogger(), retention, monitoring)

	ok := &fakeCrawler{
		origin:  models.SourceOfficial,
		results: []FetchResult{{Doc: doc("k1", "first")}, {Err: errors.New("broken")}},
	}
	_, err := svc.Run(context.Background(), ok, 0, true)
	require.NoError(t, err)

	broken := &fakeCrawler{
		origin: models.SourceCrawled,
		err:    errors.New("seed unreachable"),
	}
	_, err = svc.Run(context.Background(), broken, 0, true)
	require.Error(t, err)

	runs, err := monitoring.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first: the failed crawl run leads.
	assert.Equal(t, models.SourceCrawled, runs[0].Origin)
	assert.Equal(t, models.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "seed unreachable")

	assert.Equal(t, models.SourceOfficial, runs[1].Origin)
	assert.Equal(t, models.RunCompleted, runs[1].Status)
	assert.Equal(t, 2, runs[1].Total)
	assert.Equal(t, 1, runs[1].Success)
	assert.Equal(t, 1, runs[1].Failed)
}

func TestCleanupOldRuns(t *testing.T) {
	db := newTestDB(t)
	monitoring := NewMonitoringService(db, testLogger())

	old := models.SyncRun{
		Origin:     models.SourceOfficial,
		Status:     models.RunCompleted,
		StartedAt:  time.Now().AddDate(0, 0, -120),
		FinishedAt: time.Now().AddDate(0, 0, -120),
	}
	recent := models.SyncRun{
		Origin:     models.SourceOfficial,
		Status:     models.RunCompleted,
		StartedAt:  time.Now().Add(-time.Hour),
		FinishedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Create(&recent).Error)

	require.NoError(t, monitoring.CleanupOldRuns(90))

	runs, err := monitoring.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, recent.ID, runs[0].ID)
}
