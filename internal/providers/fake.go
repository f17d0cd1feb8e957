package providers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/reelforge/reelforge/internal/models"
)

// FakeStoryboard is a configurable in-memory StoryboardProvider for
// tests. Zero value behaves like a well-behaved provider.
type FakeStoryboard struct {
	mu sync.Mutex

	EnhanceFn   func(prompt string, targetDuration int) (*EnhanceResult, error)
	DecomposeFn func(prompt string, targetDuration, segmentDuration, segmentCount int) ([]models.Scene, error)
	NarrationFn func(prompt string, scenes []models.Scene, targetDuration int) (string, error)

	EnhanceCalls   int
	DecomposeCalls int
	NarrationCalls int
}

var _ StoryboardProvider = (*FakeStoryboard)(nil)

func (f *FakeStoryboard) Enhance(_ context.Context, prompt string, targetDuration int) (*EnhanceResult, error) {
	f.mu.Lock()
	f.EnhanceCalls++
	fn := f.EnhanceFn
	f.mu.Unlock()

	if fn != nil {
		return fn(prompt, targetDuration)
	}
	enhanced := "Enhanced: " + prompt
	return &EnhanceResult{
		EnhancedPrompt:    enhanced,
		Keywords:          strings.Fields(prompt),
		EstimatedDuration: int(EstimateDuration(enhanced)),
	}, nil
}

func (f *FakeStoryboard) Decompose(_ context.Context, prompt string, targetDuration, segmentDuration, segmentCount int) ([]models.Scene, error) {
	f.mu.Lock()
	f.DecomposeCalls++
	fn := f.DecomposeFn
	f.mu.Unlock()

	if fn != nil {
		return fn(prompt, targetDuration, segmentDuration, segmentCount)
	}

	scenes := make([]models.Scene, segmentCount)
	for i := range scenes {
		scenes[i] = models.Scene{
			ScenePrompt:    fmt.Sprintf("%s, scene %d", prompt, i+1),
			NarrationText:  fmt.Sprintf("Narration for scene %d.", i+1),
			TransitionType: models.TransitionCrossfade,
		}
	}
	return models.NormalizeScenes(scenes, segmentDuration, targetDuration), nil
}

func (f *FakeStoryboard) WriteNarration(_ context.Context, prompt string, scenes []models.Scene, targetDuration int) (string, error) {
	f.mu.Lock()
	f.NarrationCalls++
	fn := f.NarrationFn
	f.mu.Unlock()

	if fn != nil {
		return fn(prompt, scenes, targetDuration)
	}

	parts := make([]string, len(scenes))
	for i := range scenes {
		parts[i] = fmt.Sprintf("Scene %d narration.", i+1)
	}
	return strings.Join(parts, " "+SceneBreakMarker+" "), nil
}

// FakeVideoGen is a configurable in-memory VideoSegmentProvider. Each
// Start records the prompt and hint; jobs succeed on the first poll
// unless scripted otherwise.
type FakeVideoGen struct {
	mu sync.Mutex

	// StartErrs maps the Start call index (0-based) to an error.
	StartErrs map[int]error
	// PollStates overrides the poll result per job ID.
	PollStates map[string]*JobStatus
	// Content is the payload FetchContent returns.
	Content []byte

	StartCalls    int
	StartPrompts  []string
	StartHints    [][]byte
	FetchedJobIDs []string
}

var _ VideoSegmentProvider = (*FakeVideoGen)(nil)

func (f *FakeVideoGen) Start(_ context.Context, scenePrompt string, width, height, nSeconds int, continuityHint []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.StartCalls
	f.StartCalls++
	f.StartPrompts = append(f.StartPrompts, scenePrompt)
	f.StartHints = append(f.StartHints, continuityHint)

	if err, ok := f.StartErrs[idx]; ok && err != nil {
		return "", err
	}
	return fmt.Sprintf("job-%d", idx+1), nil
}

func (f *FakeVideoGen) Poll(_ context.Context, jobID string) (*JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status, ok := f.PollStates[jobID]; ok {
		return status, nil
	}
	return &JobStatus{State: JobStateSucceeded}, nil
}

func (f *FakeVideoGen) FetchContent(_ context.Context, jobID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.FetchedJobIDs = append(f.FetchedJobIDs, jobID)
	content := f.Content
	if content == nil {
		content = []byte("fake-segment-" + jobID)
	}
	return io.NopCloser(strings.NewReader(string(content))), nil
}

// FakeNarration is a configurable in-memory NarrationProvider.
type FakeNarration struct {
	mu sync.Mutex

	SynthesizeFn func(script, voiceID string) (io.ReadCloser, error)

	SynthesizeCalls int
	LastScript      string
	LastVoiceID     string
}

var _ NarrationProvider = (*FakeNarration)(nil)

func (f *FakeNarration) Synthesize(_ context.Context, script, voiceID string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.SynthesizeCalls++
	f.LastScript = script
	f.LastVoiceID = voiceID
	fn := f.SynthesizeFn
	f.mu.Unlock()

	if fn != nil {
		return fn(script, voiceID)
	}
	return io.NopCloser(strings.NewReader("fake-audio")), nil
}
