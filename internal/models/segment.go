package models

import "time"

// SegmentStatus is the lifecycle state of a single segment.
type SegmentStatus string

const (
	SegmentStatusPending    SegmentStatus = "pending"
	SegmentStatusGenerating SegmentStatus = "generating"
	SegmentStatusCompleted  SegmentStatus = "completed"
	SegmentStatusFailed     SegmentStatus = "failed"
)

// Segment is one fixed-length clip of a video run, produced by a single
// provider job. Segments are numbered 1..N within their run.
type Segment struct {
	BaseModel

	VideoID       ULID          `json:"video_id" gorm:"type:varchar(26);index;uniqueIndex:idx_video_segment"`
	SegmentNumber int           `json:"segment_number" gorm:"uniqueIndex:idx_video_segment"`
	Status        SegmentStatus `json:"status" gorm:"index;default:'pending'"`

	JobID         string `json:"job_id,omitempty"`
	FilePath      string `json:"file_path,omitempty"`
	LastFramePath string `json:"last_frame_path,omitempty"`
	FromCache     bool   `json:"from_cache" gorm:"default:false"`

	RetryCount   int    `json:"retry_count" gorm:"default:0"`
	ErrorMessage string `json:"error_message,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name.
func (Segment) TableName() string {
	return "segments"
}

// MarkGenerating records the segment as submitted to the provider.
func (s *Segment) MarkGenerating(jobID string) {
	now := time.Now()
	s.Status = SegmentStatusGenerating
	s.JobID = jobID
	s.StartedAt = &now
	s.ErrorMessage = ""
}

// MarkCompleted records the downloaded segment file.
func (s *Segment) MarkCompleted(filePath string) {
	now := time.Now()
	s.Status = SegmentStatusCompleted
	s.FilePath = filePath
	s.CompletedAt = &now
	s.ErrorMessage = ""
}

// MarkFailed records the failure reason.
func (s *Segment) MarkFailed(reason string) {
	s.Status = SegmentStatusFailed
	s.ErrorMessage = reason
}

// DerivedProgress maps segment status to a coarse percentage for pollers.
func (s *Segment) DerivedProgress() int {
	switch s.Status {
	case SegmentStatusCompleted:
		return 100
	case SegmentStatusGenerating:
		return 50
	default:
		return 0
	}
}
