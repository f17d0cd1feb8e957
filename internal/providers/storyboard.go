package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/httpclient"
	"github.com/reelforge/reelforge/internal/models"
)

// storyboardClient talks to an OpenAI-compatible chat completions API.
type storyboardClient struct {
	cfg    config.StoryboardProviderConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewStoryboardProvider creates the storyboard adapter.
func NewStoryboardProvider(cfg config.StoryboardProviderConfig, client *httpclient.Client, logger *slog.Logger) *storyboardClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &storyboardClient{cfg: cfg, client: client, logger: logger}
}

var _ StoryboardProvider = (*storyboardClient)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// complete sends one chat exchange and returns the assistant's text.
func (s *storyboardClient) complete(ctx context.Context, system, user string) (string, error) {
	reqBody := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.7,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storyboard request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("reading storyboard response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Provider: "storyboard", Status: resp.StatusCode, Message: snippet(body)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parsing storyboard response: %w", err)
	}
	if parsed.Error != nil {
		return "", &APIError{Provider: "storyboard", Status: resp.StatusCode, Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("storyboard response has no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// enhanceJSON is the wire shape the enhancement prompt asks for.
type enhanceJSON struct {
	EnhancedPrompt string   `json:"enhanced_prompt"`
	Title          string   `json:"title"`
	Keywords       []string `json:"keywords"`
}

// Enhance rewrites a user prompt into a richer generation prompt with a
// title and keywords. A reply that is not the requested JSON is used
// verbatim as the enhanced prompt.
func (s *storyboardClient) Enhance(ctx context.Context, prompt string, targetDuration int) (*EnhanceResult, error) {
	system := fmt.Sprintf(
		"You are a video production assistant. Rewrite the user's idea into a "+
			"single vivid, concrete prompt for a %d second text-to-video clip. "+
			"Mention subject, setting, lighting, camera movement, and mood. Reply "+
			"with a JSON object only: {\"enhanced_prompt\": \"...\", "+
			"\"title\": \"...\", \"keywords\": [\"...\"]}.",
		targetDuration)

	reply, err := s.complete(ctx, system, prompt)
	if err != nil {
		return nil, err
	}
	if reply == "" {
		return nil, fmt.Errorf("enhance returned empty reply")
	}

	result := &EnhanceResult{EnhancedPrompt: reply}
	if parsed, ok := parseEnhance(reply); ok {
		result.EnhancedPrompt = parsed.EnhancedPrompt
		result.Title = parsed.Title
		result.Keywords = parsed.Keywords
	} else {
		s.logger.Warn("enhance reply was not JSON, using raw text")
	}
	result.EstimatedDuration = int(EstimateDuration(result.EnhancedPrompt))
	return result, nil
}

// parseEnhance extracts the enhancement object from an LLM reply,
// tolerating markdown fences and surrounding prose.
func parseEnhance(reply string) (*enhanceJSON, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end < start {
		return nil, false
	}

	var parsed enhanceJSON
	if err := json.Unmarshal([]byte(reply[start:end+1]), &parsed); err != nil {
		return nil, false
	}
	if strings.TrimSpace(parsed.EnhancedPrompt) == "" {
		return nil, false
	}
	return &parsed, true
}

// sceneJSON is the wire shape the decomposition prompt asks for.
type sceneJSON struct {
	SceneNumber       int    `json:"scene_number"`
	ScenePrompt       string `json:"scene_prompt"`
	VisualDescription string `json:"visual_description,omitempty"`
	ContinuityNotes   string `json:"continuity_notes,omitempty"`
	NarrationText     string `json:"narration_text,omitempty"`
	TransitionType    string `json:"transition_type,omitempty"`
}

// Decompose splits a prompt into segmentCount ordered scenes. The reply
// is normalized: scene numbers reassigned, times rewritten contiguous,
// missing transitions defaulted to crossfade.
func (s *storyboardClient) Decompose(ctx context.Context, prompt string, targetDuration, segmentDuration, segmentCount int) ([]models.Scene, error) {
	system := fmt.Sprintf(
		"You are a video storyboard writer. Split the user's video idea into "+
			"exactly %d scenes of about %d seconds each (total %d seconds). For each "+
			"scene give a detailed scene_prompt for a text-to-video model, a short "+
			"narration_text (max 400 characters), and a transition_type of "+
			"\"crossfade\" or \"cut\". Reply with a JSON array only, no prose.",
		segmentCount, segmentDuration, targetDuration)

	reply, err := s.complete(ctx, system, prompt)
	if err != nil {
		return nil, err
	}

	raw, err := parseSceneArray(reply)
	if err != nil {
		return nil, fmt.Errorf("parsing decomposition: %w", err)
	}
	if len(raw) != segmentCount {
		return nil, fmt.Errorf("decomposition returned %d scenes, want %d", len(raw), segmentCount)
	}

	scenes := make([]models.Scene, len(raw))
	for i, r := range raw {
		scenes[i] = models.Scene{
			ScenePrompt:       r.ScenePrompt,
			VisualDescription: r.VisualDescription,
			ContinuityNotes:   r.ContinuityNotes,
			NarrationText:     r.NarrationText,
			TransitionType:    models.TransitionType(r.TransitionType),
		}
		if scenes[i].TransitionType != models.TransitionCut {
			scenes[i].TransitionType = models.TransitionCrossfade
		}
	}
	scenes = models.NormalizeScenes(scenes, segmentDuration, targetDuration)

	for i := range scenes {
		if strings.TrimSpace(scenes[i].ScenePrompt) == "" {
			return nil, fmt.Errorf("decomposition scene %d has empty prompt", i+1)
		}
		if err := scenes[i].Validate(); err != nil {
			return nil, fmt.Errorf("decomposition: %w", err)
		}
	}
	return scenes, nil
}

// WriteNarration produces a narration script with scene break markers.
func (s *storyboardClient) WriteNarration(ctx context.Context, prompt string, scenes []models.Scene, targetDuration int) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Video idea: %s\n\nScenes:\n", prompt)
	for _, scene := range scenes {
		fmt.Fprintf(&sb, "%d. %s\n", scene.SceneNumber, scene.ScenePrompt)
	}

	system := fmt.Sprintf(
		"You are a documentary narrator. Write a narration script for a %d second "+
			"video with the scenes below. Write one short paragraph per scene and "+
			"separate scenes with the exact marker %s. The script must be readable "+
			"aloud in %d seconds. Reply with the script only.",
		targetDuration, SceneBreakMarker, targetDuration)

	script, err := s.complete(ctx, system, sb.String())
	if err != nil {
		return "", err
	}
	if script == "" {
		return "", fmt.Errorf("narration script is empty")
	}
	return script, nil
}

// parseSceneArray extracts a JSON array from an LLM reply, tolerating
// markdown fences and surrounding prose.
func parseSceneArray(reply string) ([]sceneJSON, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in reply")
	}

	var scenes []sceneJSON
	if err := json.Unmarshal([]byte(reply[start:end+1]), &scenes); err != nil {
		return nil, err
	}
	return scenes, nil
}

// snippet truncates an error body for messages.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
