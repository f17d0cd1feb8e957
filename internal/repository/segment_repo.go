package repository

import (
	"context"
	"fmt"

	"github.com/reelforge/reelforge/internal/models"
	"gorm.io/gorm"
)

// segmentRepo implements SegmentRepository using GORM.
type segmentRepo struct {
	db *gorm.DB
}

// NewSegmentRepository creates a new SegmentRepository.
func NewSegmentRepository(db *gorm.DB) *segmentRepo {
	return &segmentRepo{db: db}
}

var _ SegmentRepository = (*segmentRepo)(nil)

// CreateBatch creates the run's segment rows in one batch.
func (r *segmentRepo) CreateBatch(ctx context.Context, segments []*models.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(segments, 100).Error; err != nil {
		return fmt.Errorf("creating segments: %w", err)
	}
	return nil
}

// GetByVideoID retrieves a run's segments ordered by segment number.
func (r *segmentRepo) GetByVideoID(ctx context.Context, videoID models.ULID) ([]*models.Segment, error) {
	var segments []*models.Segment
	if err := r.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("segment_number ASC").
		Find(&segments).Error; err != nil {
		return nil, fmt.Errorf("getting segments: %w", err)
	}
	return segments, nil
}

// GetByNumber retrieves one segment of a run.
func (r *segmentRepo) GetByNumber(ctx context.Context, videoID models.ULID, number int) (*models.Segment, error) {
	var segment models.Segment
	err := r.db.WithContext(ctx).
		Where("video_id = ? AND segment_number = ?", videoID, number).
		First(&segment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting segment %d: %w", number, err)
	}
	return &segment, nil
}

// Update saves the full segment.
func (r *segmentRepo) Update(ctx context.Context, segment *models.Segment) error {
	if err := r.db.WithContext(ctx).Save(segment).Error; err != nil {
		return fmt.Errorf("updating segment: %w", err)
	}
	return nil
}

// IncrementRetry bumps the retry counter and records the error.
func (r *segmentRepo) IncrementRetry(ctx context.Context, id models.ULID, errMsg string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Segment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": errMsg,
		}).Error
	if err != nil {
		return fmt.Errorf("incrementing segment retry: %w", err)
	}
	return nil
}

// CountByStatus counts a run's segments in the given status.
func (r *segmentRepo) CountByStatus(ctx context.Context, videoID models.ULID, status models.SegmentStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Segment{}).
		Where("video_id = ? AND status = ?", videoID, status).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting segments: %w", err)
	}
	return count, nil
}
