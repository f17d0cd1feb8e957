// Package providers contains the adapters for the three external
// services the pipeline drives: the storyboard LLM, the text-to-video
// generator, and the text-to-speech narrator.
package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/retry"
)

// EnhanceResult is the structured outcome of prompt enhancement.
type EnhanceResult struct {
	// EnhancedPrompt is the rewritten generation prompt.
	EnhancedPrompt string
	// Title is a short display title for the video, empty when the
	// provider did not produce one.
	Title string
	// Keywords are searchable tags extracted from the prompt.
	Keywords []string
	// EstimatedDuration is the narration read time of the enhanced
	// prompt in whole seconds.
	EstimatedDuration int
}

// StoryboardProvider enhances prompts, decomposes them into scenes, and
// writes narration scripts.
type StoryboardProvider interface {
	// Enhance rewrites a user prompt into a richer generation prompt
	// with a title and keywords for a video of targetDuration seconds.
	Enhance(ctx context.Context, prompt string, targetDuration int) (*EnhanceResult, error)
	// Decompose splits a prompt into segmentCount ordered scenes with
	// contiguous times and valid transitions.
	Decompose(ctx context.Context, prompt string, targetDuration, segmentDuration, segmentCount int) ([]models.Scene, error)
	// WriteNarration produces a narration script with scene break
	// markers between scenes.
	WriteNarration(ctx context.Context, prompt string, scenes []models.Scene, targetDuration int) (string, error)
}

// JobState is the lifecycle state of a remote generation job.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// JobStatus is a poll result from the video generation service.
type JobStatus struct {
	State JobState
	Error string
}

// VideoSegmentProvider generates individual video segments.
type VideoSegmentProvider interface {
	// Start submits a generation job and returns its ID. continuityHint
	// is the JPEG last frame of the previous segment; it may be nil.
	Start(ctx context.Context, scenePrompt string, width, height, nSeconds int, continuityHint []byte) (string, error)
	// Poll reads the current state of a job.
	Poll(ctx context.Context, jobID string) (*JobStatus, error)
	// FetchContent streams the finished segment's bytes.
	FetchContent(ctx context.Context, jobID string) (io.ReadCloser, error)
}

// NarrationProvider synthesizes speech from a narration script.
type NarrationProvider interface {
	// Synthesize streams spoken audio for the script.
	Synthesize(ctx context.Context, script, voiceID string) (io.ReadCloser, error)
}

// SceneBreakMarker separates scenes in a narration script.
const SceneBreakMarker = "[SCENE BREAK]"

// APIError is an error response from a provider API. Its retry class is
// derived from the status code, so the retry policy never has to
// string-match provider messages.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s API: status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s API: status %d: %s", e.Provider, e.Status, e.Message)
}

// RetryClass implements retry.Classifier: rate limits and server errors
// are transient, everything else is fatal.
func (e *APIError) RetryClass() retry.Class {
	if e.Status == http.StatusTooManyRequests || e.Status >= 500 {
		return retry.ClassTransient
	}
	return retry.ClassFatal
}

var _ retry.Classifier = (*APIError)(nil)
