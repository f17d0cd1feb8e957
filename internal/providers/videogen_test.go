package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func videoGenFor(srv *httptest.Server) *videoGenClient {
	return NewVideoGenProvider(config.VideoGenProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "video-test",
	}, fastClient(), nil)
}

func TestVideoGen_StartPollFetch(t *testing.T) {
	var started startJobRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/video/jobs":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&started))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(jobResponse{ID: "job-1", Status: "queued"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/video/jobs/job-1":
			_ = json.NewEncoder(w).Encode(jobResponse{ID: "job-1", Status: "succeeded"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/video/jobs/job-1/content":
			_, _ = w.Write([]byte("mp4-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	v := videoGenFor(srv)
	ctx := context.Background()

	jobID, err := v.Start(ctx, "eagle scene", 1920, 1080, 12, []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, 1920, started.Width)
	assert.Equal(t, 12, started.NSeconds)
	assert.NotEmpty(t, started.ContinuityHint)

	status, err := v.Poll(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, JobStateSucceeded, status.State)

	body, err := v.FetchContent(ctx, jobID)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(data))
}

func TestVideoGen_HintRejectedRetriesWithout(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req startJobRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls++
		if req.ContinuityHint != "" {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		_ = json.NewEncoder(w).Encode(jobResponse{ID: "job-2", Status: "queued"})
	}))
	defer srv.Close()

	jobID, err := videoGenFor(srv).Start(context.Background(), "p", 1920, 1080, 12, []byte{0xff})
	require.NoError(t, err)
	assert.Equal(t, "job-2", jobID)
	assert.Equal(t, 2, calls)
}

func TestVideoGen_PollStates(t *testing.T) {
	responses := map[string]string{
		"queued":      "",
		"running":     "",
		"in_progress": "",
		"succeeded":   "",
		"failed":      "model crashed",
	}
	for state, errMsg := range responses {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(jobResponse{ID: "j", Status: state, Error: errMsg})
		}))

		status, err := videoGenFor(srv).Poll(context.Background(), "j")
		require.NoError(t, err, "state %s", state)
		switch state {
		case "queued":
			assert.Equal(t, JobStatePending, status.State)
		case "running", "in_progress":
			assert.Equal(t, JobStateRunning, status.State)
		case "succeeded":
			assert.Equal(t, JobStateSucceeded, status.State)
		case "failed":
			assert.Equal(t, JobStateFailed, status.State)
			assert.Equal(t, "model crashed", status.Error)
		}
		srv.Close()
	}
}

func TestVideoGen_ClientErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := videoGenFor(srv).Start(context.Background(), "p", 1920, 1080, 12, nil)
	require.Error(t, err)
	// 422 is a request problem, not worth retrying
	assert.Equal(t, retry.ClassFatal, retry.Classify(err))
}
