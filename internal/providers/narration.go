package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/httpclient"
)

// narrationWordsPerSecond is the speaking-rate estimate used to predict
// how long a script will run.
const narrationWordsPerSecond = 2.5

// narrationClient talks to a text-to-speech API.
type narrationClient struct {
	cfg    config.NarrationProviderConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewNarrationProvider creates the text-to-speech adapter.
func NewNarrationProvider(cfg config.NarrationProviderConfig, client *httpclient.Client, logger *slog.Logger) *narrationClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &narrationClient{cfg: cfg, client: client, logger: logger}
}

var _ NarrationProvider = (*narrationClient)(nil)

type speechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}

// Synthesize streams spoken audio for the script. Scene break markers
// are stripped before synthesis so they are never read aloud.
func (n *narrationClient) Synthesize(ctx context.Context, script, voiceID string) (io.ReadCloser, error) {
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("narration script is empty")
	}
	if voiceID == "" {
		voiceID = n.cfg.DefaultVoice
	}

	reqBody := speechRequest{
		Model: n.cfg.Model,
		Input: StripSceneBreaks(script),
		Voice: voiceID,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.cfg.BaseURL+"/v1/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.cfg.APIKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("narration request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &APIError{Provider: "narration", Status: resp.StatusCode, Message: snippet(body)}
	}
	return resp.Body, nil
}

// StripSceneBreaks removes scene break markers and collapses the
// surrounding whitespace.
func StripSceneBreaks(script string) string {
	parts := strings.Split(script, SceneBreakMarker)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, "\n\n")
}

// EstimateDuration predicts how many seconds a script takes to read
// aloud at a typical narration pace, rounded up to whole seconds.
func EstimateDuration(script string) float64 {
	words := len(strings.Fields(StripSceneBreaks(script)))
	if words == 0 {
		return 0
	}
	return math.Ceil(float64(words) / narrationWordsPerSecond)
}
