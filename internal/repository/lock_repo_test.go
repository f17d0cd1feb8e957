package repository

import (
	"context"
	"testing"
	"time"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRepo_AcquireAndContention(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLockRepository(db)
	ctx := context.Background()

	meta := models.LockMetadata{VideoID: "v1", UserID: "u1", TargetDuration: 60}

	lock, err := repo.Acquire(ctx, models.DefaultLockKey, "worker-a", meta, 30*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.True(t, lock.IsLocked)
	assert.Equal(t, "worker-a", lock.LockedBy)
	assert.Equal(t, "v1", lock.Metadata.VideoID)

	// second owner must be refused, not blocked
	second, err := repo.Acquire(ctx, models.DefaultLockKey, "worker-b", meta, 30*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second)

	// re-acquire by the same owner is also contention while held
	again, err := repo.Acquire(ctx, models.DefaultLockKey, "worker-a", meta, 30*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestLockRepo_ExpiredLockIsAcquirable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLockRepository(db)
	ctx := context.Background()

	_, err := repo.Acquire(ctx, models.DefaultLockKey, "worker-a", models.LockMetadata{}, -time.Second)
	require.NoError(t, err)

	lock, err := repo.Acquire(ctx, models.DefaultLockKey, "worker-b", models.LockMetadata{}, 30*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "worker-b", lock.LockedBy)
}

func TestLockRepo_ReleaseOnlyByOwner(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLockRepository(db)
	ctx := context.Background()

	_, err := repo.Acquire(ctx, models.DefaultLockKey, "worker-a", models.LockMetadata{}, 30*time.Minute)
	require.NoError(t, err)

	// wrong owner is a no-op
	require.NoError(t, repo.Release(ctx, models.DefaultLockKey, "worker-b"))
	status, err := repo.Status(ctx, models.DefaultLockKey)
	require.NoError(t, err)
	assert.True(t, status.IsLocked)

	require.NoError(t, repo.Release(ctx, models.DefaultLockKey, "worker-a"))
	status, err = repo.Status(ctx, models.DefaultLockKey)
	require.NoError(t, err)
	assert.False(t, status.IsLocked)
	assert.Empty(t, status.LockedBy)
}

func TestLockRepo_Extend(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLockRepository(db)
	ctx := context.Background()

	lock, err := repo.Acquire(ctx, models.DefaultLockKey, "worker-a", models.LockMetadata{}, time.Minute)
	require.NoError(t, err)
	firstExpiry := *lock.ExpiresAt

	require.NoError(t, repo.Extend(ctx, models.DefaultLockKey, "worker-a", 30*time.Minute))

	status, err := repo.Status(ctx, models.DefaultLockKey)
	require.NoError(t, err)
	assert.True(t, status.ExpiresAt.After(firstExpiry))

	// non-holder cannot extend
	err = repo.Extend(ctx, models.DefaultLockKey, "worker-b", 30*time.Minute)
	assert.Error(t, err)
}

func TestLockRepo_StatusLazyExpiry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLockRepository(db)
	ctx := context.Background()

	_, err := repo.Acquire(ctx, models.DefaultLockKey, "worker-a", models.LockMetadata{VideoID: "v1"}, -time.Second)
	require.NoError(t, err)

	status, err := repo.Status(ctx, models.DefaultLockKey)
	require.NoError(t, err)
	assert.False(t, status.IsLocked)
	assert.Empty(t, status.LockedBy)
	assert.Empty(t, status.Metadata.VideoID)
}

func TestLockRepo_SweepExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLockRepository(db)
	ctx := context.Background()

	_, err := repo.Acquire(ctx, "lock-a", "worker-a", models.LockMetadata{}, -time.Second)
	require.NoError(t, err)
	_, err = repo.Acquire(ctx, "lock-b", "worker-b", models.LockMetadata{}, 30*time.Minute)
	require.NoError(t, err)

	cleared, err := repo.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	status, err := repo.Status(ctx, "lock-b")
	require.NoError(t, err)
	assert.True(t, status.IsLocked)
}
