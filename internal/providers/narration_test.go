package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNarration_Synthesize(t *testing.T) {
	var req speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	n := NewNarrationProvider(config.NarrationProviderConfig{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		Model:        "tts-test",
		DefaultVoice: "alloy",
	}, fastClient(), nil)

	body, err := n.Synthesize(context.Background(),
		"First. "+SceneBreakMarker+" Second.", "")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "mp3-bytes", string(data))

	// markers stripped, default voice applied
	assert.NotContains(t, req.Input, SceneBreakMarker)
	assert.Equal(t, "alloy", req.Voice)
}

func TestNarration_EmptyScriptRejected(t *testing.T) {
	n := NewNarrationProvider(config.NarrationProviderConfig{}, fastClient(), nil)
	_, err := n.Synthesize(context.Background(), "   ", "alloy")
	assert.Error(t, err)
}

func TestStripSceneBreaks(t *testing.T) {
	script := "One. " + SceneBreakMarker + "  Two. " + SceneBreakMarker + " Three."
	out := StripSceneBreaks(script)

	assert.NotContains(t, out, SceneBreakMarker)
	assert.Contains(t, out, "One.")
	assert.Contains(t, out, "Three.")
}

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, 0.0, EstimateDuration(""))

	// 25 words at 2.5 words/second = 10 seconds exactly
	words := strings.Repeat("word ", 25)
	assert.Equal(t, 10.0, EstimateDuration(words))

	// fractional seconds round up: 26 words = 10.4s -> 11
	assert.Equal(t, 11.0, EstimateDuration(words+"more"))

	// a single word is still a full second
	assert.Equal(t, 1.0, EstimateDuration("hello"))
}
