// Package repository defines data access interfaces for reelforge entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/reelforge/reelforge/internal/models"
)

// VideoRepository defines operations for video run persistence.
type VideoRepository interface {
	// Create creates a new video run.
	Create(ctx context.Context, run *models.VideoRun) error
	// GetByID retrieves a video run by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.VideoRun, error)
	// GetByIDWithSegments retrieves a video run with its segments preloaded
	// in segment order.
	GetByIDWithSegments(ctx context.Context, id models.ULID) (*models.VideoRun, error)
	// GetAll retrieves video runs ordered by creation time, newest first,
	// optionally filtered to one user.
	GetAll(ctx context.Context, userID string, offset, limit int) ([]*models.VideoRun, int64, error)
	// GetByStatus retrieves all runs in the given status.
	GetByStatus(ctx context.Context, status models.VideoStatus) ([]*models.VideoRun, error)
	// GetInterrupted retrieves runs stuck in an active phase, used by
	// startup recovery and the orphan sweep.
	GetInterrupted(ctx context.Context, olderThan time.Time) ([]*models.VideoRun, error)
	// Update saves the full video run.
	Update(ctx context.Context, run *models.VideoRun) error
	// UpdateProgress persists status, progress, phase, and current segment.
	UpdateProgress(ctx context.Context, run *models.VideoRun) error
	// RequestCancel sets the cancel flag on an active run.
	RequestCancel(ctx context.Context, id models.ULID) error
	// IsCancelRequested reads the current cancel flag.
	IsCancelRequested(ctx context.Context, id models.ULID) (bool, error)
	// Delete deletes a video run and its segments.
	Delete(ctx context.Context, id models.ULID) error
}

// SegmentRepository defines operations for segment persistence.
type SegmentRepository interface {
	// CreateBatch creates the run's segment rows in one batch.
	CreateBatch(ctx context.Context, segments []*models.Segment) error
	// GetByVideoID retrieves a run's segments ordered by segment number.
	GetByVideoID(ctx context.Context, videoID models.ULID) ([]*models.Segment, error)
	// GetByNumber retrieves one segment of a run.
	GetByNumber(ctx context.Context, videoID models.ULID, number int) (*models.Segment, error)
	// Update saves the full segment.
	Update(ctx context.Context, segment *models.Segment) error
	// IncrementRetry bumps the retry counter and records the error.
	IncrementRetry(ctx context.Context, id models.ULID, errMsg string) error
	// CountByStatus counts a run's segments in the given status.
	CountByStatus(ctx context.Context, videoID models.ULID, status models.SegmentStatus) (int64, error)
}

// LockRepository defines operations for the processing lock.
type LockRepository interface {
	// Acquire atomically takes the lock iff it is absent, unlocked, or
	// expired. Returns nil on contention; never blocks.
	Acquire(ctx context.Context, key, owner string, metadata models.LockMetadata, timeout time.Duration) (*models.ProcessingLock, error)
	// Release frees the lock if held by owner.
	Release(ctx context.Context, key, owner string) error
	// Extend pushes the expiry forward if held by owner.
	Extend(ctx context.Context, key, owner string, timeout time.Duration) error
	// Status returns the current lock state, lazily clearing expiry.
	Status(ctx context.Context, key string) (*models.ProcessingLock, error)
	// SweepExpired clears all expired locks, returning how many were cleared.
	SweepExpired(ctx context.Context) (int64, error)
}
