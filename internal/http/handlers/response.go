package handlers

import (
	"time"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/storage"
)

// VideoFilesResponse holds public URLs of the run's artifacts.
type VideoFilesResponse struct {
	Stitched720 string `json:"stitched_720p,omitempty"`
	Audio       string `json:"audio,omitempty"`
	Merged      string `json:"merged,omitempty"`
	Final720    string `json:"final_720p,omitempty"`
	Final480    string `json:"final_480p,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// VideoResponse is the API representation of a video run.
type VideoResponse struct {
	ID              string               `json:"id"`
	UserID          string               `json:"user_id"`
	Title           string               `json:"title"`
	Prompt          string               `json:"prompt"`
	OriginalPrompt  string               `json:"original_prompt,omitempty"`
	VoiceID         string               `json:"voice_id,omitempty"`
	Status          string               `json:"status"`
	Progress        int                  `json:"progress"`
	CurrentPhase    string               `json:"current_phase,omitempty"`
	CurrentSegment  int                  `json:"current_segment,omitempty"`
	TargetDuration  int                  `json:"target_duration"`
	SegmentDuration int                  `json:"segment_duration"`
	SegmentCount    int                  `json:"segment_count"`
	BatchMode       bool                 `json:"batch_mode,omitempty"`
	Scenes          []models.Scene       `json:"scenes,omitempty"`
	Files           VideoFilesResponse   `json:"files"`
	Metadata        models.VideoMetadata `json:"metadata"`
	Segments        []SegmentResponse    `json:"segments,omitempty"`
	ErrorMessage    string               `json:"error_message,omitempty"`
	ActualDuration  float64              `json:"actual_duration,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
}

// SegmentResponse is the API representation of a segment.
type SegmentResponse struct {
	ID            string     `json:"id"`
	SegmentNumber int        `json:"segment_number"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	FromCache     bool       `json:"from_cache,omitempty"`
	RetryCount    int        `json:"retry_count,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// VideoFromModel maps a run to its API shape, turning stored relative
// paths into public URLs.
func VideoFromModel(run *models.VideoRun, layout *storage.VideoLayout) VideoResponse {
	resp := VideoResponse{
		ID:              run.ID.String(),
		UserID:          run.UserID,
		Title:           run.Title,
		Prompt:          run.Prompt,
		OriginalPrompt:  run.OriginalPrompt,
		VoiceID:         run.VoiceID,
		Status:          string(run.Status),
		Progress:        run.Progress,
		CurrentPhase:    run.CurrentPhase,
		CurrentSegment:  run.CurrentSegment,
		TargetDuration:  run.TargetDuration,
		SegmentDuration: run.SegmentDuration,
		SegmentCount:    run.SegmentCount,
		BatchMode:       run.BatchMode,
		Scenes:          run.Scenes,
		Files:           filesFromModel(run.Files, layout),
		Metadata:        run.Metadata,
		ErrorMessage:    run.ErrorMessage,
		ActualDuration:  run.ActualDuration,
		CreatedAt:       run.CreatedAt,
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
	}

	if len(run.Segments) > 0 {
		resp.Segments = make([]SegmentResponse, 0, len(run.Segments))
		for i := range run.Segments {
			resp.Segments = append(resp.Segments, SegmentFromModel(&run.Segments[i]))
		}
	}
	return resp
}

// SegmentFromModel maps a segment to its API shape.
func SegmentFromModel(seg *models.Segment) SegmentResponse {
	return SegmentResponse{
		ID:            seg.ID.String(),
		SegmentNumber: seg.SegmentNumber,
		Status:        string(seg.Status),
		Progress:      seg.DerivedProgress(),
		FromCache:     seg.FromCache,
		RetryCount:    seg.RetryCount,
		ErrorMessage:  seg.ErrorMessage,
		StartedAt:     seg.StartedAt,
		CompletedAt:   seg.CompletedAt,
	}
}

func filesFromModel(files models.VideoFiles, layout *storage.VideoLayout) VideoFilesResponse {
	return VideoFilesResponse{
		Stitched720: publicURL(layout, files.Stitched720),
		Audio:       publicURL(layout, files.Audio),
		Merged:      publicURL(layout, files.Merged),
		Final720:    publicURL(layout, files.Final720),
		Final480:    publicURL(layout, files.Final480),
		Thumbnail:   publicURL(layout, files.Thumbnail),
	}
}

func publicURL(layout *storage.VideoLayout, relativePath string) string {
	if relativePath == "" {
		return ""
	}
	return layout.PublicURL(relativePath)
}
