// Package handlers implements the API operations for reelforge.
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/orchestrator"
	"github.com/reelforge/reelforge/internal/repository"
	"github.com/reelforge/reelforge/internal/storage"
)

// maxTitleLength bounds auto-derived titles.
const maxTitleLength = 60

// VideoHandler handles the video run API endpoints.
type VideoHandler struct {
	videos   repository.VideoRepository
	segments repository.SegmentRepository
	lock     *orchestrator.LockService
	layout   *storage.VideoLayout
	pipeline config.PipelineConfig
}

// NewVideoHandler creates a new video handler.
func NewVideoHandler(videos repository.VideoRepository, segments repository.SegmentRepository, lock *orchestrator.LockService, layout *storage.VideoLayout, pipeline config.PipelineConfig) *VideoHandler {
	return &VideoHandler{
		videos:   videos,
		segments: segments,
		lock:     lock,
		layout:   layout,
		pipeline: pipeline,
	}
}

// Register registers the video routes with the API.
func (h *VideoHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "createVideo",
		Method:        "POST",
		Path:          "/api/v1/videos",
		Summary:       "Create video",
		Description:   "Queues a new prompt-to-video run. Returns 503 while another video is processing.",
		Tags:          []string{"Videos"},
		DefaultStatus: 201,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "listVideos",
		Method:      "GET",
		Path:        "/api/v1/videos",
		Summary:     "List videos",
		Description: "Returns video runs, newest first",
		Tags:        []string{"Videos"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getVideo",
		Method:      "GET",
		Path:        "/api/v1/videos/{id}",
		Summary:     "Get video",
		Description: "Returns a video run with its segments",
		Tags:        []string{"Videos"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "getVideoStatus",
		Method:      "GET",
		Path:        "/api/v1/videos/{id}/status",
		Summary:     "Get video status",
		Description: "Returns a lightweight status snapshot for polling",
		Tags:        []string{"Videos"},
	}, h.GetStatus)

	huma.Register(api, huma.Operation{
		OperationID: "listVideoSegments",
		Method:      "GET",
		Path:        "/api/v1/videos/{id}/segments",
		Summary:     "List video segments",
		Description: "Returns the run's segments with derived per-segment progress",
		Tags:        []string{"Videos"},
	}, h.ListSegments)

	huma.Register(api, huma.Operation{
		OperationID: "cancelVideo",
		Method:      "POST",
		Path:        "/api/v1/videos/{id}/cancel",
		Summary:     "Cancel video",
		Description: "Requests cancellation of an active run. Honored between phases and segments.",
		Tags:        []string{"Videos"},
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID: "retryVideo",
		Method:      "POST",
		Path:        "/api/v1/videos/{id}/retry",
		Summary:     "Retry video",
		Description: "Re-queues a failed run, resuming from its persisted checkpoint",
		Tags:        []string{"Videos"},
	}, h.Retry)

	huma.Register(api, huma.Operation{
		OperationID: "deleteVideo",
		Method:      "DELETE",
		Path:        "/api/v1/videos/{id}",
		Summary:     "Delete video",
		Description: "Deletes a terminal run and all of its files",
		Tags:        []string{"Videos"},
	}, h.Delete)
}

// SceneRequest is a caller-supplied scene.
type SceneRequest struct {
	ScenePrompt       string `json:"scene_prompt" doc:"Generation prompt for this scene" maxLength:"2000"`
	VisualDescription string `json:"visual_description,omitempty"`
	ContinuityNotes   string `json:"continuity_notes,omitempty"`
	NarrationText     string `json:"narration_text,omitempty" maxLength:"500"`
	TransitionType    string `json:"transition_type,omitempty" enum:"crossfade,cut,"`
}

// CreateVideoInput is the input for creating a video run.
type CreateVideoInput struct {
	Body struct {
		UserID    string         `json:"user_id" doc:"Owner identifier" minLength:"1"`
		Prompt    string         `json:"prompt" doc:"What the video should show" minLength:"1"`
		Title     string         `json:"title,omitempty" doc:"Optional short label; derived from the prompt when empty"`
		Duration  int            `json:"duration" doc:"Target duration in seconds"`
		VoiceID   string         `json:"voice_id,omitempty" doc:"Narration voice override"`
		BatchMode bool           `json:"batch_mode,omitempty" doc:"Generate segments in parallel, dropping continuity hints"`
		Scenes    []SceneRequest `json:"scenes,omitempty" doc:"Caller-supplied storyboard; skips decomposition"`
	}
}

// CreateVideoOutput is the output for creating a video run.
type CreateVideoOutput struct {
	Body VideoResponse
}

// Create queues a new video run.
func (h *VideoHandler) Create(ctx context.Context, input *CreateVideoInput) (*CreateVideoOutput, error) {
	if input.Body.Duration < h.pipeline.MinDuration || input.Body.Duration > h.pipeline.MaxDuration {
		return nil, huma.Error422UnprocessableEntity(
			fmt.Sprintf("duration must be between %d and %d seconds", h.pipeline.MinDuration, h.pipeline.MaxDuration))
	}

	lock, err := h.lock.Status(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to check processing state", err)
	}
	if lock != nil && lock.IsHeld(time.Now()) {
		return nil, huma.Error503ServiceUnavailable("another video is being processed, try again later")
	}

	if ok, err := h.layout.HasSpaceFor(input.Body.Duration); err == nil && !ok {
		return nil, huma.Error503ServiceUnavailable("insufficient storage for a run of this duration")
	}

	segmentDuration := h.pipeline.SegmentDurationFor(input.Body.Duration)
	segmentCount := h.pipeline.SegmentCountFor(input.Body.Duration)

	run := &models.VideoRun{
		UserID:          input.Body.UserID,
		Title:           deriveTitle(input.Body.Title, input.Body.Prompt),
		Prompt:          input.Body.Prompt,
		VoiceID:         input.Body.VoiceID,
		TargetDuration:  input.Body.Duration,
		SegmentDuration: segmentDuration,
		SegmentCount:    segmentCount,
		Status:          models.VideoStatusPending,
		BatchMode:       input.Body.BatchMode,
	}

	if len(input.Body.Scenes) > 0 {
		if len(input.Body.Scenes) != segmentCount {
			return nil, huma.Error422UnprocessableEntity(
				fmt.Sprintf("a %ds video needs exactly %d scenes, got %d", input.Body.Duration, segmentCount, len(input.Body.Scenes)))
		}
		scenes := make([]models.Scene, len(input.Body.Scenes))
		for i, s := range input.Body.Scenes {
			scenes[i] = models.Scene{
				ScenePrompt:       s.ScenePrompt,
				VisualDescription: s.VisualDescription,
				ContinuityNotes:   s.ContinuityNotes,
				NarrationText:     s.NarrationText,
				TransitionType:    models.TransitionType(s.TransitionType),
			}
		}
		run.Scenes = models.NormalizeScenes(scenes, segmentDuration, input.Body.Duration)
	}

	if err := run.Validate(); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	if err := h.videos.Create(ctx, run); err != nil {
		return nil, huma.Error500InternalServerError("failed to create video run", err)
	}

	return &CreateVideoOutput{Body: VideoFromModel(run, h.layout)}, nil
}

// ListVideosInput is the input for listing videos.
type ListVideosInput struct {
	UserID string `query:"user_id" doc:"Restrict to one user's runs" required:"false"`
	Offset int    `query:"offset" doc:"Rows to skip" minimum:"0" default:"0"`
	Limit  int    `query:"limit" doc:"Max rows to return" minimum:"1" maximum:"100" default:"20"`
}

// ListVideosOutput is the output for listing videos.
type ListVideosOutput struct {
	Body struct {
		Videos []VideoResponse `json:"videos"`
		Total  int64           `json:"total"`
	}
}

// List returns video runs, newest first.
func (h *VideoHandler) List(ctx context.Context, input *ListVideosInput) (*ListVideosOutput, error) {
	runs, total, err := h.videos.GetAll(ctx, input.UserID, input.Offset, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list videos", err)
	}

	resp := &ListVideosOutput{}
	resp.Body.Total = total
	resp.Body.Videos = make([]VideoResponse, 0, len(runs))
	for _, run := range runs {
		resp.Body.Videos = append(resp.Body.Videos, VideoFromModel(run, h.layout))
	}
	return resp, nil
}

// GetVideoInput is the input for getting a video.
type GetVideoInput struct {
	ID string `path:"id" doc:"Video run ID (ULID)"`
}

// GetVideoOutput is the output for getting a video.
type GetVideoOutput struct {
	Body VideoResponse
}

// GetByID returns a video run with its segments.
func (h *VideoHandler) GetByID(ctx context.Context, input *GetVideoInput) (*GetVideoOutput, error) {
	run, err := h.loadRunWithSegments(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &GetVideoOutput{Body: VideoFromModel(run, h.layout)}, nil
}

// VideoStatusOutput is the lightweight polling response.
type VideoStatusOutput struct {
	Body struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		Progress          int    `json:"progress"`
		CurrentPhase      string `json:"current_phase,omitempty"`
		CurrentSegment    int    `json:"current_segment,omitempty"`
		SegmentCount      int    `json:"segment_count"`
		CompletedSegments int    `json:"completed_segments"`
		FailedSegments    int    `json:"failed_segments"`
		IsProcessing      bool   `json:"is_processing"`
		ErrorMessage      string `json:"error_message,omitempty"`
	}
}

// GetStatus returns a status snapshot for pollers.
func (h *VideoHandler) GetStatus(ctx context.Context, input *GetVideoInput) (*VideoStatusOutput, error) {
	run, err := h.loadRun(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	completed, err := h.segments.CountByStatus(ctx, run.ID, models.SegmentStatusCompleted)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to count segments", err)
	}
	failed, err := h.segments.CountByStatus(ctx, run.ID, models.SegmentStatusFailed)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to count segments", err)
	}

	resp := &VideoStatusOutput{}
	resp.Body.ID = run.ID.String()
	resp.Body.Status = string(run.Status)
	resp.Body.Progress = run.Progress
	resp.Body.CurrentPhase = run.CurrentPhase
	resp.Body.CurrentSegment = run.CurrentSegment
	resp.Body.SegmentCount = run.SegmentCount
	resp.Body.CompletedSegments = int(completed)
	resp.Body.FailedSegments = int(failed)
	resp.Body.IsProcessing = run.IsProcessing()
	resp.Body.ErrorMessage = run.ErrorMessage
	return resp, nil
}

// ListSegmentsOutput is the output for listing a run's segments.
type ListSegmentsOutput struct {
	Body struct {
		Segments []SegmentResponse `json:"segments"`
	}
}

// ListSegments returns a run's segments with derived progress.
func (h *VideoHandler) ListSegments(ctx context.Context, input *GetVideoInput) (*ListSegmentsOutput, error) {
	run, err := h.loadRun(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	segments, err := h.segments.GetByVideoID(ctx, run.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list segments", err)
	}

	resp := &ListSegmentsOutput{}
	resp.Body.Segments = make([]SegmentResponse, 0, len(segments))
	for _, seg := range segments {
		resp.Body.Segments = append(resp.Body.Segments, SegmentFromModel(seg))
	}
	return resp, nil
}

// CancelVideoOutput is the output for cancelling a run.
type CancelVideoOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Cancel requests cancellation of an active run.
func (h *VideoHandler) Cancel(ctx context.Context, input *GetVideoInput) (*CancelVideoOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	if err := h.videos.RequestCancel(ctx, id); err != nil {
		if err == models.ErrRunTerminal {
			return nil, huma.Error409Conflict("video run is already terminal")
		}
		return nil, huma.Error500InternalServerError("failed to request cancellation", err)
	}

	resp := &CancelVideoOutput{}
	resp.Body.Message = "cancellation requested"
	return resp, nil
}

// RetryVideoOutput is the output for retrying a failed run.
type RetryVideoOutput struct {
	Body VideoResponse
}

// Retry re-queues a failed run. Completed segments and files survive,
// so processing resumes from the last checkpoint.
func (h *VideoHandler) Retry(ctx context.Context, input *GetVideoInput) (*RetryVideoOutput, error) {
	run, err := h.loadRun(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.VideoStatusFailed {
		return nil, huma.Error409Conflict("only failed video runs can be retried")
	}

	run.Status = models.VideoStatusPending
	run.ErrorMessage = ""
	run.CancelRequested = false
	run.CompletedAt = nil
	if err := h.videos.Update(ctx, run); err != nil {
		return nil, huma.Error500InternalServerError("failed to re-queue video run", err)
	}

	return &RetryVideoOutput{Body: VideoFromModel(run, h.layout)}, nil
}

// DeleteVideoOutput is the output for deleting a run.
type DeleteVideoOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Delete removes a terminal run and its files.
func (h *VideoHandler) Delete(ctx context.Context, input *GetVideoInput) (*DeleteVideoOutput, error) {
	run, err := h.loadRun(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if !run.IsTerminal() {
		return nil, huma.Error409Conflict("video run is still processing; cancel it first")
	}

	if err := h.layout.DeleteTree(run.UserID, run.ID.String()); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete video files", err)
	}
	if err := h.videos.Delete(ctx, run.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete video run", err)
	}

	resp := &DeleteVideoOutput{}
	resp.Body.Message = "video run deleted"
	return resp, nil
}

func (h *VideoHandler) loadRun(ctx context.Context, rawID string) (*models.VideoRun, error) {
	id, err := models.ParseULID(rawID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	run, err := h.videos.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get video run", err)
	}
	if run == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("video run %s not found", rawID))
	}
	return run, nil
}

func (h *VideoHandler) loadRunWithSegments(ctx context.Context, rawID string) (*models.VideoRun, error) {
	id, err := models.ParseULID(rawID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	run, err := h.videos.GetByIDWithSegments(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get video run", err)
	}
	if run == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("video run %s not found", rawID))
	}
	return run, nil
}

func deriveTitle(title, prompt string) string {
	if title != "" {
		return title
	}
	title = strings.TrimSpace(prompt)
	if len(title) > maxTitleLength {
		title = strings.TrimSpace(title[:maxTitleLength])
	}
	return title
}
