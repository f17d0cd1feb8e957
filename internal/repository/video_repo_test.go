package repository

import (
	"context"
	"testing"
	"time"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	run := createTestRun(t, db, 60)
	assert.False(t, run.ID.IsZero())

	found, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "A majestic eagle soaring", found.Prompt)
	assert.Equal(t, 5, found.SegmentCount)
	assert.Equal(t, models.VideoStatusPending, found.Status)

	missing, err := repo.GetByID(ctx, models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestVideoRepo_ScenesRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	run := createTestRun(t, db, 24)
	run.Scenes = models.FallbackScenes(run.Prompt, 2, 12, 24)
	run.Files.Final720 = "videos/user-1/v1/final_720p.mp4"
	require.NoError(t, repo.Update(ctx, run))

	found, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, found.Scenes, 2)
	assert.Equal(t, 1, found.Scenes[0].SceneNumber)
	assert.Equal(t, models.TransitionCrossfade, found.Scenes[0].TransitionType)
	assert.Equal(t, "videos/user-1/v1/final_720p.mp4", found.Files.Final720)
}

func TestVideoRepo_GetByIDWithSegments(t *testing.T) {
	db := setupTestDB(t)
	videoRepo := NewVideoRepository(db)
	segRepo := NewSegmentRepository(db)
	ctx := context.Background()

	run := createTestRun(t, db, 36)

	// insert out of order; read must come back ordered
	segments := []*models.Segment{
		{VideoID: run.ID, SegmentNumber: 3},
		{VideoID: run.ID, SegmentNumber: 1},
		{VideoID: run.ID, SegmentNumber: 2},
	}
	require.NoError(t, segRepo.CreateBatch(ctx, segments))

	found, err := videoRepo.GetByIDWithSegments(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, found.Segments, 3)
	assert.Equal(t, 1, found.Segments[0].SegmentNumber)
	assert.Equal(t, 2, found.Segments[1].SegmentNumber)
	assert.Equal(t, 3, found.Segments[2].SegmentNumber)
}

func TestVideoRepo_UpdateProgressNeverRegresses(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	run := createTestRun(t, db, 60)
	run.SetPhase(models.VideoStatusGenerating, 40)
	require.NoError(t, repo.UpdateProgress(ctx, run))

	// a stale writer with lower progress must not win
	stale := *run
	stale.Progress = 10
	require.NoError(t, repo.UpdateProgress(ctx, &stale))

	found, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, found.Progress)
}

func TestVideoRepo_RequestCancel(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	run := createTestRun(t, db, 60)
	require.NoError(t, repo.RequestCancel(ctx, run.ID))

	cancelled, err := repo.IsCancelRequested(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	// terminal runs refuse cancellation
	run.MarkCompleted(60)
	require.NoError(t, repo.Update(ctx, run))
	err = repo.RequestCancel(ctx, run.ID)
	assert.ErrorIs(t, err, models.ErrRunTerminal)
}

func TestVideoRepo_GetInterrupted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	active := createTestRun(t, db, 60)
	active.Status = models.VideoStatusGenerating
	require.NoError(t, repo.Update(ctx, active))

	done := createTestRun(t, db, 60)
	done.MarkCompleted(60)
	require.NoError(t, repo.Update(ctx, done))

	interrupted, err := repo.GetInterrupted(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, interrupted, 1)
	assert.Equal(t, active.ID, interrupted[0].ID)

	// nothing stale enough
	interrupted, err = repo.GetInterrupted(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, interrupted)
}

func TestVideoRepo_DeleteRemovesSegments(t *testing.T) {
	db := setupTestDB(t)
	videoRepo := NewVideoRepository(db)
	segRepo := NewSegmentRepository(db)
	ctx := context.Background()

	run := createTestRun(t, db, 24)
	require.NoError(t, segRepo.CreateBatch(ctx, []*models.Segment{
		{VideoID: run.ID, SegmentNumber: 1},
		{VideoID: run.ID, SegmentNumber: 2},
	}))

	require.NoError(t, videoRepo.Delete(ctx, run.ID))

	found, err := videoRepo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	segments, err := segRepo.GetByVideoID(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestVideoRepo_GetAll(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVideoRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		createTestRun(t, db, 60)
	}
	other := createTestRun(t, db, 24)
	other.UserID = "user-2"
	require.NoError(t, repo.Update(ctx, other))

	runs, total, err := repo.GetAll(ctx, "", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, runs, 2)

	runs, total, err = repo.GetAll(ctx, "user-2", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, runs, 1)
	assert.Equal(t, "user-2", runs[0].UserID)
}
