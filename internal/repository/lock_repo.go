package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/reelforge/reelforge/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockRepo implements LockRepository using GORM.
type lockRepo struct {
	db *gorm.DB
}

// NewLockRepository creates a new LockRepository.
func NewLockRepository(db *gorm.DB) *lockRepo {
	return &lockRepo{db: db}
}

var _ LockRepository = (*lockRepo)(nil)

// lockColumns are the columns written on every lock state change. Selecting
// them explicitly forces GORM to write zero values on release.
var lockColumns = []string{"is_locked", "locked_by", "locked_at", "expires_at", "metadata"}

// Acquire atomically takes the lock iff the row is absent, unlocked, or
// expired. The whole operation is a conditional UPDATE preceded by a
// conflict-free insert, so there is no read-then-write window. Returns
// nil on contention.
func (r *lockRepo) Acquire(ctx context.Context, key, owner string, metadata models.LockMetadata, timeout time.Duration) (*models.ProcessingLock, error) {
	// Ensure the row exists; DoNothing makes this a no-op under races.
	seed := &models.ProcessingLock{Key: key}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(seed).Error; err != nil {
		return nil, fmt.Errorf("seeding lock row: %w", err)
	}

	now := time.Now()
	expires := now.Add(timeout)

	res := r.db.WithContext(ctx).
		Model(&models.ProcessingLock{}).
		Select(lockColumns).
		Where("key = ? AND (is_locked = ? OR expires_at IS NULL OR expires_at < ?)", key, false, now).
		Updates(models.ProcessingLock{
			IsLocked:  true,
			LockedBy:  owner,
			LockedAt:  &now,
			ExpiresAt: &expires,
			Metadata:  metadata,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("acquiring lock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Held and unexpired by someone else.
		return nil, nil
	}

	return r.Status(ctx, key)
}

// Release frees the lock if held by owner. Releasing a lock that is not
// held, or held by another owner, is a no-op.
func (r *lockRepo) Release(ctx context.Context, key, owner string) error {
	err := r.db.WithContext(ctx).
		Model(&models.ProcessingLock{}).
		Select(lockColumns).
		Where("key = ? AND locked_by = ?", key, owner).
		Updates(models.ProcessingLock{}).Error
	if err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}

// Extend pushes the expiry forward if the lock is held by owner and has
// not yet expired.
func (r *lockRepo) Extend(ctx context.Context, key, owner string, timeout time.Duration) error {
	now := time.Now()
	expires := now.Add(timeout)

	res := r.db.WithContext(ctx).
		Model(&models.ProcessingLock{}).
		Where("key = ? AND locked_by = ? AND is_locked = ? AND expires_at >= ?", key, owner, true, now).
		Update("expires_at", expires)
	if res.Error != nil {
		return fmt.Errorf("extending lock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("extending lock: not held by %s", owner)
	}
	return nil
}

// Status returns the current lock state. An expired hold is cleared
// before returning, so readers never observe a stale lock as held.
func (r *lockRepo) Status(ctx context.Context, key string) (*models.ProcessingLock, error) {
	var lock models.ProcessingLock
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&lock).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting lock status: %w", err)
	}

	now := time.Now()
	if lock.IsExpired(now) {
		clearErr := r.db.WithContext(ctx).
			Model(&models.ProcessingLock{}).
			Select(lockColumns).
			Where("key = ? AND locked_by = ? AND expires_at < ?", key, lock.LockedBy, now).
			Updates(models.ProcessingLock{}).Error
		if clearErr != nil {
			return nil, fmt.Errorf("clearing expired lock: %w", clearErr)
		}
		lock.IsLocked = false
		lock.LockedBy = ""
		lock.LockedAt = nil
		lock.ExpiresAt = nil
		lock.Metadata = models.LockMetadata{}
	}

	return &lock, nil
}

// SweepExpired clears all expired locks, returning how many were cleared.
func (r *lockRepo) SweepExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProcessingLock{}).
		Select(lockColumns).
		Where("is_locked = ? AND expires_at < ?", true, time.Now()).
		Updates(models.ProcessingLock{})
	if res.Error != nil {
		return 0, fmt.Errorf("sweeping expired locks: %w", res.Error)
	}
	return res.RowsAffected, nil
}
