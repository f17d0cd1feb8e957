package models

import "fmt"

// TransitionType identifies how a scene blends into the next one.
type TransitionType string

const (
	TransitionCrossfade TransitionType = "crossfade"
	TransitionCut       TransitionType = "cut"
)

// Scene prompt and narration length caps enforced on creation.
const (
	MaxScenePromptLength = 2000
	MaxNarrationLength   = 500
)

// Scene is a single storyboard unit. Scenes map 1:1 onto segments and are
// stored as a JSON column on VideoRun rather than as their own table.
type Scene struct {
	SceneNumber       int            `json:"scene_number"`
	ScenePrompt       string         `json:"scene_prompt"`
	VisualDescription string         `json:"visual_description,omitempty"`
	ContinuityNotes   string         `json:"continuity_notes,omitempty"`
	NarrationText     string         `json:"narration_text,omitempty"`
	StartTime         float64        `json:"start_time"`
	EndTime           float64        `json:"end_time"`
	TransitionType    TransitionType `json:"transition_type"`
}

// Validate checks scene field constraints.
func (s *Scene) Validate() error {
	if len(s.ScenePrompt) > MaxScenePromptLength {
		return fmt.Errorf("scene %d: %w", s.SceneNumber, ErrScenePromptTooLong)
	}
	if len(s.NarrationText) > MaxNarrationLength {
		return fmt.Errorf("scene %d: %w", s.SceneNumber, ErrNarrationTooLong)
	}
	if s.TransitionType != TransitionCrossfade && s.TransitionType != TransitionCut {
		return fmt.Errorf("scene %d: unknown transition type %q", s.SceneNumber, s.TransitionType)
	}
	return nil
}

// Duration returns the scene length in seconds.
func (s *Scene) Duration() float64 {
	return s.EndTime - s.StartTime
}

// FallbackScenes builds N contiguous scenes directly from the user prompt.
// Used when storyboard decomposition fails or is unavailable.
func FallbackScenes(prompt string, segmentCount, segmentDuration, targetDuration int) []Scene {
	scenes := make([]Scene, segmentCount)
	for i := range scenes {
		start := float64(i * segmentDuration)
		end := start + float64(segmentDuration)
		if end > float64(targetDuration) {
			end = float64(targetDuration)
		}
		scenes[i] = Scene{
			SceneNumber:    i + 1,
			ScenePrompt:    fmt.Sprintf("%s - Scene %d of %d", prompt, i+1, segmentCount),
			StartTime:      start,
			EndTime:        end,
			TransitionType: TransitionCrossfade,
		}
	}
	return scenes
}

// NormalizeScenes reorders scene numbers, fills missing transitions with
// crossfade, and rewrites start/end times to be contiguous. Providers do
// not always return clean storyboards.
func NormalizeScenes(scenes []Scene, segmentDuration, targetDuration int) []Scene {
	for i := range scenes {
		scenes[i].SceneNumber = i + 1
		if scenes[i].TransitionType == "" {
			scenes[i].TransitionType = TransitionCrossfade
		}
		start := float64(i * segmentDuration)
		end := start + float64(segmentDuration)
		if end > float64(targetDuration) {
			end = float64(targetDuration)
		}
		scenes[i].StartTime = start
		scenes[i].EndTime = end
	}
	return scenes
}
