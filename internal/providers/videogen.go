package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/httpclient"
)

// videoGenClient talks to an async text-to-video job API: submit, poll,
// download.
type videoGenClient struct {
	cfg    config.VideoGenProviderConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewVideoGenProvider creates the video generation adapter.
func NewVideoGenProvider(cfg config.VideoGenProviderConfig, client *httpclient.Client, logger *slog.Logger) *videoGenClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &videoGenClient{cfg: cfg, client: client, logger: logger}
}

var _ VideoSegmentProvider = (*videoGenClient)(nil)

type startJobRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	NSeconds       int    `json:"n_seconds"`
	ContinuityHint string `json:"continuity_hint,omitempty"` // base64 JPEG
}

type jobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Start submits a generation job. Some generation backends reject the
// continuity hint (payload too large, unsupported parameter); since the
// hint only improves coherence, a rejected hint is retried once without
// it rather than failing the segment.
func (v *videoGenClient) Start(ctx context.Context, scenePrompt string, width, height, nSeconds int, continuityHint []byte) (string, error) {
	jobID, err := v.start(ctx, scenePrompt, width, height, nSeconds, continuityHint)
	if err == nil || continuityHint == nil {
		return jobID, err
	}

	if apiErr, ok := err.(*APIError); ok && apiErr.Status >= 400 && apiErr.Status < 500 {
		v.logger.Warn("continuity hint rejected, retrying without it",
			slog.Int("status", apiErr.Status))
		return v.start(ctx, scenePrompt, width, height, nSeconds, nil)
	}
	return "", err
}

func (v *videoGenClient) start(ctx context.Context, scenePrompt string, width, height, nSeconds int, continuityHint []byte) (string, error) {
	reqBody := startJobRequest{
		Model:    v.cfg.Model,
		Prompt:   scenePrompt,
		Width:    width,
		Height:   height,
		NSeconds: nSeconds,
	}
	if len(continuityHint) > 0 {
		reqBody.ContinuityHint = base64.StdEncoding.EncodeToString(continuityHint)
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encoding job request: %w", err)
	}

	resp, err := v.do(ctx, http.MethodPost, "/v1/video/jobs", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	job, err := v.parseJob(resp)
	if err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", fmt.Errorf("videogen returned no job ID")
	}
	return job.ID, nil
}

// Poll reads the current state of a job.
func (v *videoGenClient) Poll(ctx context.Context, jobID string) (*JobStatus, error) {
	resp, err := v.do(ctx, http.MethodGet, "/v1/video/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	job, err := v.parseJob(resp)
	if err != nil {
		return nil, err
	}

	status := &JobStatus{Error: job.Error}
	switch job.Status {
	case "queued", "pending":
		status.State = JobStatePending
	case "running", "processing", "in_progress":
		status.State = JobStateRunning
	case "succeeded", "completed":
		status.State = JobStateSucceeded
	case "failed", "cancelled":
		status.State = JobStateFailed
		if status.Error == "" {
			status.Error = "job " + job.Status
		}
	default:
		return nil, fmt.Errorf("videogen job %s in unknown state %q", jobID, job.Status)
	}
	return status, nil
}

// FetchContent streams the finished segment's bytes. The caller owns the
// returned body.
func (v *videoGenClient) FetchContent(ctx context.Context, jobID string) (io.ReadCloser, error) {
	resp, err := v.do(ctx, http.MethodGet, "/v1/video/jobs/"+jobID+"/content", nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &APIError{Provider: "videogen", Status: resp.StatusCode, Message: snippet(body)}
	}
	return resp.Body, nil
}

func (v *videoGenClient) do(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, v.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating videogen request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+v.cfg.APIKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("videogen request: %w", err)
	}
	return resp, nil
}

func (v *videoGenClient) parseJob(resp *http.Response) (*jobResponse, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading videogen response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &APIError{Provider: "videogen", Status: resp.StatusCode, Message: snippet(body)}
	}

	var job jobResponse
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("parsing videogen response: %w", err)
	}
	return &job, nil
}
