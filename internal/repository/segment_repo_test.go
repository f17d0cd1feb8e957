package repository

import (
	"context"
	"testing"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentRepo_IncrementRetry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSegmentRepository(db)
	ctx := context.Background()

	run := createTestRun(t, db, 36)
	seg := &models.Segment{VideoID: run.ID, SegmentNumber: 1, Status: models.SegmentStatusGenerating}
	require.NoError(t, repo.CreateBatch(ctx, []*models.Segment{seg}))

	require.NoError(t, repo.IncrementRetry(ctx, seg.ID, "rate limited"))
	require.NoError(t, repo.IncrementRetry(ctx, seg.ID, "timeout"))

	found, err := repo.GetByNumber(ctx, run.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, found.RetryCount)
	assert.Equal(t, "timeout", found.ErrorMessage)
}

func TestSegmentRepo_CountByStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSegmentRepository(db)
	ctx := context.Background()

	run := createTestRun(t, db, 60)
	segments := []*models.Segment{
		{VideoID: run.ID, SegmentNumber: 1, Status: models.SegmentStatusCompleted},
		{VideoID: run.ID, SegmentNumber: 2, Status: models.SegmentStatusCompleted},
		{VideoID: run.ID, SegmentNumber: 3, Status: models.SegmentStatusGenerating},
		{VideoID: run.ID, SegmentNumber: 4, Status: models.SegmentStatusPending},
		{VideoID: run.ID, SegmentNumber: 5, Status: models.SegmentStatusPending},
	}
	require.NoError(t, repo.CreateBatch(ctx, segments))

	completed, err := repo.CountByStatus(ctx, run.ID, models.SegmentStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(2), completed)

	failed, err := repo.CountByStatus(ctx, run.ID, models.SegmentStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(0), failed)
}

func TestSegmentRepo_UpdateLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSegmentRepository(db)
	ctx := context.Background()

	run := createTestRun(t, db, 24)
	seg := &models.Segment{VideoID: run.ID, SegmentNumber: 2, Status: models.SegmentStatusPending}
	require.NoError(t, repo.CreateBatch(ctx, []*models.Segment{seg}))

	seg.MarkGenerating("job-42")
	require.NoError(t, repo.Update(ctx, seg))

	found, err := repo.GetByNumber(ctx, run.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.SegmentStatusGenerating, found.Status)
	assert.Equal(t, "job-42", found.JobID)

	seg.MarkCompleted("videos/user-1/v/segments/segment_002.mp4")
	require.NoError(t, repo.Update(ctx, seg))

	found, err = repo.GetByNumber(ctx, run.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.SegmentStatusCompleted, found.Status)
	assert.NotEmpty(t, found.FilePath)
}
