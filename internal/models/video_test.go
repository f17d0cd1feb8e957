package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoRunValidate(t *testing.T) {
	tests := []struct {
		name    string
		run     VideoRun
		wantErr error
	}{
		{
			name: "valid run",
			run:  VideoRun{Prompt: "A majestic eagle soaring", TargetDuration: 60},
		},
		{
			name:    "empty prompt",
			run:     VideoRun{Prompt: "   ", TargetDuration: 60},
			wantErr: ErrPromptRequired,
		},
		{
			name:    "duration too short",
			run:     VideoRun{Prompt: "eagle", TargetDuration: 4},
			wantErr: ErrInvalidDuration,
		},
		{
			name:    "duration too long",
			run:     VideoRun{Prompt: "eagle", TargetDuration: 121},
			wantErr: ErrInvalidDuration,
		},
		{
			name: "scene prompt too long",
			run: VideoRun{
				Prompt:         "eagle",
				TargetDuration: 12,
				Scenes: []Scene{{
					SceneNumber:    1,
					ScenePrompt:    strings.Repeat("x", MaxScenePromptLength+1),
					TransitionType: TransitionCrossfade,
				}},
			},
			wantErr: ErrScenePromptTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run.Validate()
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVideoRunProgressMonotonic(t *testing.T) {
	v := &VideoRun{}

	v.SetProgress(5)
	assert.Equal(t, 5, v.Progress)

	v.SetProgress(40)
	assert.Equal(t, 40, v.Progress)

	// stale update must not regress
	v.SetProgress(10)
	assert.Equal(t, 40, v.Progress)

	v.SetProgress(150)
	assert.Equal(t, 100, v.Progress)

	v.SetProgress(-1)
	assert.Equal(t, 100, v.Progress)
}

func TestSegmentProgress(t *testing.T) {
	// round(5 + 65*(i+0.5)/n)
	tests := []struct {
		i, n, want int
	}{
		{0, 5, 12},
		{1, 5, 25},
		{2, 5, 38},
		{3, 5, 51},
		{4, 5, 64},
		{0, 1, 38},
		{9, 10, 67},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SegmentProgress(tt.i, tt.n), "i=%d n=%d", tt.i, tt.n)
	}
}

func TestVideoRunLifecycle(t *testing.T) {
	v := &VideoRun{Status: VideoStatusPending}
	assert.False(t, v.IsTerminal())
	assert.False(t, v.IsProcessing())

	v.SetPhase(VideoStatusGenerating, 5)
	assert.True(t, v.IsProcessing())
	assert.Equal(t, "generating", v.CurrentPhase)
	assert.Equal(t, 5, v.Progress)

	v.MarkCompleted(59.7)
	assert.True(t, v.IsTerminal())
	assert.Equal(t, 100, v.Progress)
	assert.Equal(t, 59.7, v.ActualDuration)
	require.NotNil(t, v.CompletedAt)

	f := &VideoRun{Status: VideoStatusStitching}
	f.MarkFailed("segment 5 failed after 3 attempts")
	assert.True(t, f.IsTerminal())
	assert.Equal(t, VideoStatusFailed, f.Status)
	assert.Contains(t, f.ErrorMessage, "segment 5")
}

func TestFallbackScenes(t *testing.T) {
	scenes := FallbackScenes("A majestic eagle soaring", 5, 12, 60)
	require.Len(t, scenes, 5)

	for i, s := range scenes {
		assert.Equal(t, i+1, s.SceneNumber)
		assert.Contains(t, s.ScenePrompt, "A majestic eagle soaring")
		assert.Contains(t, s.ScenePrompt, "Scene")
		assert.Equal(t, TransitionCrossfade, s.TransitionType)
		assert.Equal(t, float64(i*12), s.StartTime)
	}
	assert.Equal(t, float64(60), scenes[4].EndTime)
}

func TestFallbackScenesTruncatesLastScene(t *testing.T) {
	// 50s at 12s segments: ceil(50/12) = 5 scenes, last one is 2s
	scenes := FallbackScenes("sunset", 5, 12, 50)
	require.Len(t, scenes, 5)
	assert.Equal(t, float64(48), scenes[4].StartTime)
	assert.Equal(t, float64(50), scenes[4].EndTime)
	assert.Equal(t, float64(2), scenes[4].Duration())
}

func TestNormalizeScenes(t *testing.T) {
	scenes := []Scene{
		{SceneNumber: 7, ScenePrompt: "a"},
		{SceneNumber: 2, ScenePrompt: "b", TransitionType: TransitionCut},
	}
	out := NormalizeScenes(scenes, 12, 24)

	assert.Equal(t, 1, out[0].SceneNumber)
	assert.Equal(t, 2, out[1].SceneNumber)
	assert.Equal(t, TransitionCrossfade, out[0].TransitionType)
	assert.Equal(t, TransitionCut, out[1].TransitionType)
	assert.Equal(t, float64(0), out[0].StartTime)
	assert.Equal(t, float64(12), out[0].EndTime)
	assert.Equal(t, float64(24), out[1].EndTime)
}
