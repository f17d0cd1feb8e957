package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/reelforge/reelforge/internal/models"
	"gorm.io/gorm"
)

// videoRepo implements VideoRepository using GORM.
type videoRepo struct {
	db *gorm.DB
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(db *gorm.DB) *videoRepo {
	return &videoRepo{db: db}
}

var _ VideoRepository = (*videoRepo)(nil)

// Create creates a new video run.
func (r *videoRepo) Create(ctx context.Context, run *models.VideoRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("creating video run: %w", err)
	}
	return nil
}

// GetByID retrieves a video run by ID.
func (r *videoRepo) GetByID(ctx context.Context, id models.ULID) (*models.VideoRun, error) {
	var run models.VideoRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting video run by ID: %w", err)
	}
	return &run, nil
}

// GetByIDWithSegments retrieves a video run with segments ordered by number.
func (r *videoRepo) GetByIDWithSegments(ctx context.Context, id models.ULID) (*models.VideoRun, error) {
	var run models.VideoRun
	err := r.db.WithContext(ctx).
		Preload("Segments", func(db *gorm.DB) *gorm.DB {
			return db.Order("segment_number ASC")
		}).
		Where("id = ?", id).
		First(&run).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting video run with segments: %w", err)
	}
	return &run, nil
}

// GetAll retrieves video runs ordered by creation time, newest first.
// A non-empty userID restricts the result to that user's runs.
func (r *videoRepo) GetAll(ctx context.Context, userID string, offset, limit int) ([]*models.VideoRun, int64, error) {
	scope := r.db.WithContext(ctx).Model(&models.VideoRun{})
	if userID != "" {
		scope = scope.Where("user_id = ?", userID)
	}

	var total int64
	if err := scope.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting video runs: %w", err)
	}

	var runs []*models.VideoRun
	query := r.db.WithContext(ctx).Order("created_at DESC").Offset(offset)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("listing video runs: %w", err)
	}
	return runs, total, nil
}

// GetByStatus retrieves all runs in the given status.
func (r *videoRepo) GetByStatus(ctx context.Context, status models.VideoStatus) ([]*models.VideoRun, error) {
	var runs []*models.VideoRun
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("getting video runs by status: %w", err)
	}
	return runs, nil
}

// activeStatuses are the non-terminal, non-pending pipeline phases.
var activeStatuses = []models.VideoStatus{
	models.VideoStatusDecomposing,
	models.VideoStatusGenerating,
	models.VideoStatusStitching,
	models.VideoStatusAudio,
	models.VideoStatusMerging,
	models.VideoStatusTranscoding,
}

// GetInterrupted retrieves runs stuck in an active phase since before olderThan.
func (r *videoRepo) GetInterrupted(ctx context.Context, olderThan time.Time) ([]*models.VideoRun, error) {
	var runs []*models.VideoRun
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", activeStatuses, olderThan).
		Order("created_at ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("getting interrupted video runs: %w", err)
	}
	return runs, nil
}

// Update saves the full video run.
func (r *videoRepo) Update(ctx context.Context, run *models.VideoRun) error {
	if err := r.db.WithContext(ctx).
		Omit("Segments").
		Save(run).Error; err != nil {
		return fmt.Errorf("updating video run: %w", err)
	}
	return nil
}

// UpdateProgress persists only the fields that change during the pipeline.
// Progress is guarded in SQL so concurrent observers never see it regress.
func (r *videoRepo) UpdateProgress(ctx context.Context, run *models.VideoRun) error {
	err := r.db.WithContext(ctx).
		Model(&models.VideoRun{}).
		Where("id = ? AND progress <= ?", run.ID, run.Progress).
		Updates(map[string]any{
			"status":          run.Status,
			"progress":        run.Progress,
			"current_phase":   run.CurrentPhase,
			"current_segment": run.CurrentSegment,
			"error_message":   run.ErrorMessage,
		}).Error
	if err != nil {
		return fmt.Errorf("updating video run progress: %w", err)
	}
	return nil
}

// RequestCancel sets the cancel flag on an active run.
func (r *videoRepo) RequestCancel(ctx context.Context, id models.ULID) error {
	res := r.db.WithContext(ctx).
		Model(&models.VideoRun{}).
		Where("id = ? AND status NOT IN ?", id,
			[]models.VideoStatus{models.VideoStatusCompleted, models.VideoStatusFailed}).
		Update("cancel_requested", true)
	if res.Error != nil {
		return fmt.Errorf("requesting cancel: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrRunTerminal
	}
	return nil
}

// IsCancelRequested reads the current cancel flag.
func (r *videoRepo) IsCancelRequested(ctx context.Context, id models.ULID) (bool, error) {
	var cancelled bool
	err := r.db.WithContext(ctx).
		Model(&models.VideoRun{}).
		Where("id = ?", id).
		Pluck("cancel_requested", &cancelled).Error
	if err != nil {
		return false, fmt.Errorf("reading cancel flag: %w", err)
	}
	return cancelled, nil
}

// Delete deletes a video run and its segments.
func (r *videoRepo) Delete(ctx context.Context, id models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", id).Delete(&models.Segment{}).Error; err != nil {
			return fmt.Errorf("deleting segments: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.VideoRun{}).Error; err != nil {
			return fmt.Errorf("deleting video run: %w", err)
		}
		return nil
	})
}
