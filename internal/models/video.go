package models

import (
	"fmt"
	"strings"
	"time"
)

// VideoStatus is the lifecycle state of a video run.
type VideoStatus string

const (
	VideoStatusPending     VideoStatus = "pending"
	VideoStatusDecomposing VideoStatus = "decomposing"
	VideoStatusGenerating  VideoStatus = "generating"
	VideoStatusStitching   VideoStatus = "stitching"
	VideoStatusAudio       VideoStatus = "audio"
	VideoStatusMerging     VideoStatus = "merging"
	VideoStatusTranscoding VideoStatus = "transcoding"
	VideoStatusCompleted   VideoStatus = "completed"
	VideoStatusFailed      VideoStatus = "failed"
)

// Duration bounds accepted on creation, in seconds.
const (
	MinTargetDuration = 5
	MaxTargetDuration = 120
)

// VideoFiles holds the relative paths of the run's produced artifacts.
// Paths are relative to the storage root; empty means not yet produced.
type VideoFiles struct {
	Stitched720 string `json:"stitched_720p,omitempty"`
	Audio       string `json:"audio,omitempty"`
	Merged      string `json:"merged,omitempty"`
	Final720    string `json:"final_720p,omitempty"`
	Final480    string `json:"final_480p,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// VideoMetadata carries free-form run attributes surfaced in the API.
type VideoMetadata struct {
	EnhancedPrompt    string   `json:"enhanced_prompt,omitempty"`
	Keywords          []string `json:"keywords,omitempty"`
	EstimatedDuration int      `json:"estimated_duration,omitempty"`
	NarrationScript   string   `json:"narration_script,omitempty"`
	AudioDuration     float64  `json:"audio_duration,omitempty"`
	CacheHits         int      `json:"cache_hits,omitempty"`
}

// VideoRun is a single prompt-to-video job tracked through the pipeline.
type VideoRun struct {
	BaseModel

	UserID         string `json:"user_id" gorm:"index"`
	Title          string `json:"title"`
	Prompt         string `json:"prompt" gorm:"type:text"`
	OriginalPrompt string `json:"original_prompt,omitempty" gorm:"type:text"`
	VoiceID        string `json:"voice_id,omitempty"`

	TargetDuration  int `json:"target_duration"`
	SegmentDuration int `json:"segment_duration"`
	SegmentCount    int `json:"segment_count"`

	Status         VideoStatus `json:"status" gorm:"index;default:'pending'"`
	Progress       int         `json:"progress" gorm:"default:0"`
	CurrentPhase   string      `json:"current_phase,omitempty"`
	CurrentSegment int         `json:"current_segment" gorm:"default:0"`

	Scenes   []Scene       `json:"scenes,omitempty" gorm:"type:text;serializer:json"`
	Files    VideoFiles    `json:"files" gorm:"type:text;serializer:json"`
	Metadata VideoMetadata `json:"metadata" gorm:"type:text;serializer:json"`

	Segments []Segment `json:"segments,omitempty" gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE"`

	ErrorMessage    string  `json:"error_message,omitempty"`
	ActualDuration  float64 `json:"actual_duration,omitempty"`
	CancelRequested bool    `json:"cancel_requested" gorm:"default:false"`
	// BatchMode generates segments in parallel without continuity hints.
	// Requires both this per-run flag and max_concurrent_jobs > 1.
	BatchMode bool `json:"batch_mode" gorm:"default:false"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name.
func (VideoRun) TableName() string {
	return "video_runs"
}

// Validate checks the run's creation-time constraints.
func (v *VideoRun) Validate() error {
	if strings.TrimSpace(v.Prompt) == "" {
		return ErrPromptRequired
	}
	if v.TargetDuration < MinTargetDuration || v.TargetDuration > MaxTargetDuration {
		return fmt.Errorf("%w: %d not in [%d,%d]",
			ErrInvalidDuration, v.TargetDuration, MinTargetDuration, MaxTargetDuration)
	}
	for i := range v.Scenes {
		if err := v.Scenes[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsTerminal returns true once the run reached completed or failed.
func (v *VideoRun) IsTerminal() bool {
	return v.Status == VideoStatusCompleted || v.Status == VideoStatusFailed
}

// IsProcessing returns true while the run is in any active pipeline phase.
func (v *VideoRun) IsProcessing() bool {
	switch v.Status {
	case VideoStatusDecomposing, VideoStatusGenerating, VideoStatusStitching,
		VideoStatusAudio, VideoStatusMerging, VideoStatusTranscoding:
		return true
	}
	return false
}

// SetProgress raises progress to p. Progress never moves backwards,
// so stale or out-of-order updates are ignored.
func (v *VideoRun) SetProgress(p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if p > v.Progress {
		v.Progress = p
	}
}

// SetPhase records the new phase status and raises progress to the
// phase's floor.
func (v *VideoRun) SetPhase(status VideoStatus, progressFloor int) {
	v.Status = status
	v.CurrentPhase = string(status)
	v.SetProgress(progressFloor)
}

// MarkCompleted finalizes the run as completed.
func (v *VideoRun) MarkCompleted(actualDuration float64) {
	now := time.Now()
	v.Status = VideoStatusCompleted
	v.CurrentPhase = string(VideoStatusCompleted)
	v.Progress = 100
	v.ActualDuration = actualDuration
	v.CompletedAt = &now
	v.ErrorMessage = ""
}

// MarkFailed finalizes the run as failed with the given reason.
func (v *VideoRun) MarkFailed(reason string) {
	now := time.Now()
	v.Status = VideoStatusFailed
	v.ErrorMessage = reason
	v.CompletedAt = &now
}

// SegmentProgress returns the pipeline progress value after segment i
// (0-based) of n has completed. The generating phase spans 5 to 70.
func SegmentProgress(i, n int) int {
	if n <= 0 {
		return 5
	}
	// round(5 + 65*(i+0.5)/n) in integer arithmetic
	return (22*n + 260*i + 130) / (4 * n)
}
