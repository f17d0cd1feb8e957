package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/providers"
)

func newPromptHandler(fake *providers.FakeStoryboard) *PromptHandler {
	return NewPromptHandler(fake, config.PipelineConfig{
		MinDuration:     5,
		MaxDuration:     120,
		SegmentDuration: 12,
	})
}

func TestPromptHandler_Enhance(t *testing.T) {
	fake := &providers.FakeStoryboard{}
	handler := newPromptHandler(fake)

	input := &EnhancePromptInput{}
	input.Body.Prompt = "a cat in the rain"
	input.Body.Duration = 24

	resp, err := handler.Enhance(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "a cat in the rain", resp.Body.OriginalPrompt)
	assert.Equal(t, "Enhanced: a cat in the rain", resp.Body.EnhancedPrompt)
	assert.Equal(t, []string{"a", "cat", "in", "the", "rain"}, resp.Body.Keywords)
	assert.Equal(t, 3, resp.Body.EstimatedDuration)
	assert.Equal(t, 1, fake.EnhanceCalls)
}

func TestPromptHandler_Enhance_StructuredResult(t *testing.T) {
	fake := &providers.FakeStoryboard{
		EnhanceFn: func(prompt string, targetDuration int) (*providers.EnhanceResult, error) {
			assert.Equal(t, 36, targetDuration)
			return &providers.EnhanceResult{
				EnhancedPrompt:    "A cinematic cat in heavy rain, slow dolly shot",
				Title:             "Cat in the Rain",
				Keywords:          []string{"cat", "rain", "cinematic"},
				EstimatedDuration: 4,
			}, nil
		},
	}
	handler := newPromptHandler(fake)

	input := &EnhancePromptInput{}
	input.Body.Prompt = "a cat in the rain"
	input.Body.Duration = 36

	resp, err := handler.Enhance(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "Cat in the Rain", resp.Body.Title)
	assert.Equal(t, []string{"cat", "rain", "cinematic"}, resp.Body.Keywords)
	assert.Equal(t, 4, resp.Body.EstimatedDuration)
}

func TestPromptHandler_Enhance_ProviderError(t *testing.T) {
	fake := &providers.FakeStoryboard{
		EnhanceFn: func(string, int) (*providers.EnhanceResult, error) {
			return nil, errors.New("upstream down")
		},
	}
	handler := newPromptHandler(fake)

	input := &EnhancePromptInput{}
	input.Body.Prompt = "a cat"

	_, err := handler.Enhance(context.Background(), input)
	assert.Error(t, err)
}

func TestPromptHandler_Enhance_DurationOutOfRange(t *testing.T) {
	handler := newPromptHandler(&providers.FakeStoryboard{})

	input := &EnhancePromptInput{}
	input.Body.Prompt = "a cat"
	input.Body.Duration = 300

	_, err := handler.Enhance(context.Background(), input)
	assert.Error(t, err)
}

func TestPromptHandler_Decompose(t *testing.T) {
	fake := &providers.FakeStoryboard{}
	handler := newPromptHandler(fake)

	input := &DecomposePromptInput{}
	input.Body.Prompt = "a storm rolling in"
	input.Body.Duration = 36

	resp, err := handler.Decompose(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 12, resp.Body.SegmentDuration)
	assert.Equal(t, 3, resp.Body.SegmentCount)
	require.Len(t, resp.Body.Scenes, 3)
	assert.Equal(t, 1, resp.Body.Scenes[0].SceneNumber)
	assert.Equal(t, 36.0, resp.Body.Scenes[2].EndTime)
}

func TestPromptHandler_Decompose_DurationOutOfRange(t *testing.T) {
	handler := newPromptHandler(&providers.FakeStoryboard{})

	input := &DecomposePromptInput{}
	input.Body.Prompt = "a storm"
	input.Body.Duration = 300

	_, err := handler.Decompose(context.Background(), input)
	assert.Error(t, err)
}
