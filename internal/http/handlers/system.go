package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/reelforge/reelforge/internal/httpclient"
	"github.com/reelforge/reelforge/internal/orchestrator"
	"github.com/reelforge/reelforge/internal/storage"
)

// SystemHandler exposes health and operational status endpoints.
type SystemHandler struct {
	lock      *orchestrator.LockService
	layout    *storage.VideoLayout
	cache     *storage.SegmentCache
	providers map[string]*httpclient.Client
	version   string
	startedAt time.Time
}

// NewSystemHandler creates a new system handler. The providers map keys
// client names to the HTTP clients backing each provider.
func NewSystemHandler(lock *orchestrator.LockService, layout *storage.VideoLayout, cache *storage.SegmentCache, providers map[string]*httpclient.Client, version string) *SystemHandler {
	return &SystemHandler{
		lock:      lock,
		layout:    layout,
		cache:     cache,
		providers: providers,
		version:   version,
		startedAt: time.Now(),
	}
}

// Register registers the system routes with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "healthCheck",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Liveness probe",
		Tags:        []string{"System"},
	}, h.Health)

	huma.Register(api, huma.Operation{
		OperationID: "getSystemStatus",
		Method:      "GET",
		Path:        "/api/v1/system/status",
		Summary:     "System status",
		Description: "Returns processing lock state, disk usage, cache stats, and provider circuit states",
		Tags:        []string{"System"},
	}, h.Status)
}

// HealthOutput is the health check response.
type HealthOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Uptime  string `json:"uptime"`
	}
}

// Health returns the liveness response.
func (h *SystemHandler) Health(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	resp := &HealthOutput{}
	resp.Body.Status = "ok"
	resp.Body.Version = h.version
	resp.Body.Uptime = time.Since(h.startedAt).Round(time.Second).String()
	return resp, nil
}

// ProcessingStatus describes the orchestrator lock.
type ProcessingStatus struct {
	Busy      bool       `json:"busy"`
	LockedBy  string     `json:"locked_by,omitempty"`
	VideoID   string     `json:"video_id,omitempty"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SystemStatusOutput is the operational status response.
type SystemStatusOutput struct {
	Body struct {
		Processing ProcessingStatus    `json:"processing"`
		Disk       *storage.DiskStats  `json:"disk,omitempty"`
		Cache      *storage.CacheStats `json:"cache,omitempty"`
		Providers  map[string]string   `json:"providers"`
	}
}

// Status reports the service's operational state. Disk and cache stats
// are best effort and omitted when unavailable.
func (h *SystemHandler) Status(ctx context.Context, _ *struct{}) (*SystemStatusOutput, error) {
	resp := &SystemStatusOutput{}

	lock, err := h.lock.Status(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to read processing lock", err)
	}
	if lock != nil && lock.IsHeld(time.Now()) {
		resp.Body.Processing = ProcessingStatus{
			Busy:      true,
			LockedBy:  lock.LockedBy,
			VideoID:   lock.Metadata.VideoID,
			LockedAt:  lock.LockedAt,
			ExpiresAt: lock.ExpiresAt,
		}
	}

	if disk, err := h.layout.DiskUsage(); err == nil {
		resp.Body.Disk = disk
	}
	if stats, err := h.cache.Stats(); err == nil {
		resp.Body.Cache = stats
	}

	resp.Body.Providers = make(map[string]string, len(h.providers))
	for name, client := range h.providers {
		resp.Body.Providers[name] = client.CircuitState().String()
	}
	return resp, nil
}
