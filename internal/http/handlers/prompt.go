package handlers

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/providers"
)

// PromptHandler exposes the storyboard provider for previewing prompt
// enhancement and scene decomposition without queueing a run.
type PromptHandler struct {
	storyboard providers.StoryboardProvider
	pipeline   config.PipelineConfig
}

// NewPromptHandler creates a new prompt handler.
func NewPromptHandler(storyboard providers.StoryboardProvider, pipeline config.PipelineConfig) *PromptHandler {
	return &PromptHandler{storyboard: storyboard, pipeline: pipeline}
}

// Register registers the prompt routes with the API.
func (h *PromptHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "enhancePrompt",
		Method:      "POST",
		Path:        "/api/v1/prompts/enhance",
		Summary:     "Enhance prompt",
		Description: "Rewrites a user prompt into a richer generation prompt",
		Tags:        []string{"Prompts"},
	}, h.Enhance)

	huma.Register(api, huma.Operation{
		OperationID: "decomposePrompt",
		Method:      "POST",
		Path:        "/api/v1/prompts/decompose",
		Summary:     "Decompose prompt",
		Description: "Splits a prompt into the storyboard a run of this duration would use",
		Tags:        []string{"Prompts"},
	}, h.Decompose)
}

// EnhancePromptInput is the input for enhancing a prompt.
type EnhancePromptInput struct {
	Body struct {
		Prompt   string `json:"prompt" doc:"Prompt to enhance" minLength:"1"`
		Duration int    `json:"duration,omitempty" doc:"Target duration in seconds" required:"false"`
	}
}

// EnhancePromptOutput is the output for enhancing a prompt.
type EnhancePromptOutput struct {
	Body struct {
		OriginalPrompt    string   `json:"original_prompt"`
		EnhancedPrompt    string   `json:"enhanced_prompt"`
		Title             string   `json:"title,omitempty"`
		Keywords          []string `json:"keywords,omitempty"`
		EstimatedDuration int      `json:"estimated_duration,omitempty"`
	}
}

// Enhance rewrites a prompt via the storyboard provider.
func (h *PromptHandler) Enhance(ctx context.Context, input *EnhancePromptInput) (*EnhancePromptOutput, error) {
	duration := input.Body.Duration
	if duration == 0 {
		duration = h.pipeline.MaxDuration
	}
	if duration < h.pipeline.MinDuration || duration > h.pipeline.MaxDuration {
		return nil, huma.Error422UnprocessableEntity(
			fmt.Sprintf("duration must be between %d and %d seconds", h.pipeline.MinDuration, h.pipeline.MaxDuration))
	}

	result, err := h.storyboard.Enhance(ctx, input.Body.Prompt, duration)
	if err != nil {
		return nil, huma.Error502BadGateway("prompt enhancement failed", err)
	}

	resp := &EnhancePromptOutput{}
	resp.Body.OriginalPrompt = input.Body.Prompt
	resp.Body.EnhancedPrompt = result.EnhancedPrompt
	resp.Body.Title = result.Title
	resp.Body.Keywords = result.Keywords
	resp.Body.EstimatedDuration = result.EstimatedDuration
	return resp, nil
}

// DecomposePromptInput is the input for decomposing a prompt.
type DecomposePromptInput struct {
	Body struct {
		Prompt   string `json:"prompt" doc:"Prompt to decompose" minLength:"1"`
		Duration int    `json:"duration" doc:"Target duration in seconds"`
	}
}

// DecomposePromptOutput is the output for decomposing a prompt.
type DecomposePromptOutput struct {
	Body struct {
		Scenes          []models.Scene `json:"scenes"`
		SegmentDuration int            `json:"segment_duration"`
		SegmentCount    int            `json:"segment_count"`
	}
}

// Decompose splits a prompt into scenes sized for the given duration.
func (h *PromptHandler) Decompose(ctx context.Context, input *DecomposePromptInput) (*DecomposePromptOutput, error) {
	if input.Body.Duration < h.pipeline.MinDuration || input.Body.Duration > h.pipeline.MaxDuration {
		return nil, huma.Error422UnprocessableEntity(
			fmt.Sprintf("duration must be between %d and %d seconds", h.pipeline.MinDuration, h.pipeline.MaxDuration))
	}

	segmentDuration := h.pipeline.SegmentDurationFor(input.Body.Duration)
	segmentCount := h.pipeline.SegmentCountFor(input.Body.Duration)

	scenes, err := h.storyboard.Decompose(ctx, input.Body.Prompt, input.Body.Duration, segmentDuration, segmentCount)
	if err != nil {
		return nil, huma.Error502BadGateway("prompt decomposition failed", err)
	}

	resp := &DecomposePromptOutput{}
	resp.Body.Scenes = scenes
	resp.Body.SegmentDuration = segmentDuration
	resp.Body.SegmentCount = segmentCount
	return resp, nil
}
