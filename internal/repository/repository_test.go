package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.VideoRun{}, &models.Segment{}, &models.ProcessingLock{})
	require.NoError(t, err)

	return db
}

func createTestRun(t *testing.T, db *gorm.DB, duration int) *models.VideoRun {
	t.Helper()

	run := &models.VideoRun{
		UserID:          "user-1",
		Title:           "Eagle",
		Prompt:          "A majestic eagle soaring",
		TargetDuration:  duration,
		SegmentDuration: 12,
		SegmentCount:    (duration + 11) / 12,
		Status:          models.VideoStatusPending,
	}
	require.NoError(t, NewVideoRepository(db).Create(context.Background(), run))
	return run
}
