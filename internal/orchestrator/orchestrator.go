// Package orchestrator drives a video run through the processing
// pipeline: decomposing, generating, stitching, audio, merging,
// transcoding. One run is processed at a time, guarded by the
// processing lock.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reelforge/reelforge/internal/avsync"
	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/ffmpeg"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/providers"
	"github.com/reelforge/reelforge/internal/repository"
	"github.com/reelforge/reelforge/internal/storage"
)

// errCancelled aborts the pipeline when the run's cancel flag is set.
var errCancelled = errors.New("cancelled")

// Progress floors per phase.
const (
	progressDecomposing = 0
	progressGenerating  = 5
	progressStitching   = 70
	progressAudio       = 80
	progressMerging     = 90
	progressTranscoding = 95
)

// MediaToolchain is the subset of the ffmpeg toolchain the pipeline
// invokes. Satisfied by *ffmpeg.Toolchain.
type MediaToolchain interface {
	ExtractLastFrame(ctx context.Context, videoPath, framePath string) (string, error)
	GenerateThumbnail(ctx context.Context, videoPath, thumbPath string) (string, error)
	StitchCrossfade(ctx context.Context, segmentPaths []string, outPath string, fadeDuration float64) (string, error)
	MergeAV(ctx context.Context, videoPath, audioPath, outPath string, trimToShortest bool) (string, error)
	Transcode(ctx context.Context, inPath, outPath string, height int) (string, error)
}

// MediaProber probes finished media files. Satisfied by *ffmpeg.Prober.
type MediaProber interface {
	ProbeMedia(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
	Duration(ctx context.Context, path string) (float64, error)
}

// AudioFitter compares and fits narration audio against video.
// Satisfied by *avsync.Verifier.
type AudioFitter interface {
	Verify(ctx context.Context, videoPath, audioPath string) (*avsync.Report, error)
	AdjustAudio(ctx context.Context, audioPath string, targetDuration float64, outPath string) (string, error)
}

// Services is the explicit dependency set of the orchestrator. Every
// field is required unless noted.
type Services struct {
	Videos   repository.VideoRepository
	Segments repository.SegmentRepository
	Lock     *LockService
	Layout   *storage.VideoLayout
	Cache    *storage.SegmentCache

	Media  MediaToolchain
	Prober MediaProber
	Sync   AudioFitter

	Storyboard providers.StoryboardProvider
	VideoGen   providers.VideoSegmentProvider
	Narration  providers.NarrationProvider

	Pipeline config.PipelineConfig
	Logger   *slog.Logger // optional
}

func (s *Services) validate() error {
	switch {
	case s.Videos == nil:
		return fmt.Errorf("video repository is required")
	case s.Segments == nil:
		return fmt.Errorf("segment repository is required")
	case s.Lock == nil:
		return fmt.Errorf("lock service is required")
	case s.Layout == nil:
		return fmt.Errorf("storage layout is required")
	case s.Cache == nil:
		return fmt.Errorf("segment cache is required")
	case s.Media == nil:
		return fmt.Errorf("media toolchain is required")
	case s.Prober == nil:
		return fmt.Errorf("media prober is required")
	case s.Sync == nil:
		return fmt.Errorf("sync verifier is required")
	case s.Storyboard == nil:
		return fmt.Errorf("storyboard provider is required")
	case s.VideoGen == nil:
		return fmt.Errorf("videogen provider is required")
	case s.Narration == nil:
		return fmt.Errorf("narration provider is required")
	}
	return nil
}

// Orchestrator executes the pipeline for one run at a time.
type Orchestrator struct {
	svc    Services
	logger *slog.Logger
}

// New creates an Orchestrator after validating the service set.
func New(svc Services) (*Orchestrator, error) {
	if err := svc.validate(); err != nil {
		return nil, fmt.Errorf("orchestrator services: %w", err)
	}
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{svc: svc, logger: logger}, nil
}

// Process drives the run to a terminal state. It acquires the
// processing lock and releases it on every exit path, including panics.
// Returns ErrBusy without touching the run when the lock is held.
func (o *Orchestrator) Process(ctx context.Context, videoID models.ULID) (err error) {
	run, err := o.svc.Videos.GetByIDWithSegments(ctx, videoID)
	if err != nil {
		return fmt.Errorf("loading video run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("video run %s not found", videoID)
	}
	if run.IsTerminal() {
		return fmt.Errorf("video run %s already %s", videoID, run.Status)
	}

	if err := o.svc.Lock.Acquire(ctx, run); err != nil {
		return err
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go o.svc.Lock.Heartbeat(hbCtx)

	defer func() {
		stopHeartbeat()
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
			o.persistFailure(run, err.Error())
		}
		o.svc.Lock.Release(context.WithoutCancel(ctx))
	}()

	runCtx := ctx
	if o.svc.Pipeline.VideoTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.svc.Pipeline.VideoTimeout)
		defer cancel()
	}

	if run.StartedAt == nil {
		now := time.Now()
		run.StartedAt = &now
	}

	logger := o.logger.With(
		slog.String("video_id", run.ID.String()),
		slog.String("user_id", run.UserID))
	logger.Info("processing started",
		slog.Int("target_duration", run.TargetDuration),
		slog.String("resume_phase", run.CurrentPhase))

	phases := []struct {
		name string
		fn   func(context.Context, *models.VideoRun) error
	}{
		{"decomposing", o.phaseDecompose},
		{"generating", o.phaseGenerate},
		{"stitching", o.phaseStitch},
		{"audio", o.phaseAudio},
		{"merging", o.phaseMerge},
		{"transcoding", o.phaseTranscode},
	}

	for _, phase := range phases {
		if err := o.checkCancel(runCtx, run); err != nil {
			return o.fail(run, err)
		}
		if err := phase.fn(runCtx, run); err != nil {
			logger.Error("phase failed",
				slog.String("phase", phase.name),
				slog.Any("error", err))
			return o.fail(run, fmt.Errorf("%s: %w", phase.name, err))
		}
	}

	run.MarkCompleted(run.ActualDuration)
	if err := o.svc.Videos.Update(context.WithoutCancel(ctx), run); err != nil {
		return fmt.Errorf("persisting completion: %w", err)
	}

	logger.Info("processing completed",
		slog.Float64("actual_duration", run.ActualDuration),
		slog.Int("cache_hits", run.Metadata.CacheHits))
	return nil
}

// checkCancel consults the persisted cancel flag.
func (o *Orchestrator) checkCancel(ctx context.Context, run *models.VideoRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cancelled, err := o.svc.Videos.IsCancelRequested(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("reading cancel flag: %w", err)
	}
	if cancelled {
		return errCancelled
	}
	return nil
}

// fail marks the run failed and persists it. The original error is
// returned so callers see the cause, not the persistence outcome.
func (o *Orchestrator) fail(run *models.VideoRun, cause error) error {
	msg := cause.Error()
	if errors.Is(cause, errCancelled) {
		msg = "cancelled"
	}
	o.persistFailure(run, msg)
	return cause
}

func (o *Orchestrator) persistFailure(run *models.VideoRun, msg string) {
	run.MarkFailed(msg)
	if err := o.svc.Videos.Update(context.WithoutCancel(context.Background()), run); err != nil {
		o.logger.Error("persisting failure state",
			slog.String("video_id", run.ID.String()),
			slog.Any("error", err))
	}
}

// setPhase persists a phase transition before its side effects run.
func (o *Orchestrator) setPhase(ctx context.Context, run *models.VideoRun, status models.VideoStatus, floor int) error {
	run.SetPhase(status, floor)
	if err := o.svc.Videos.UpdateProgress(ctx, run); err != nil {
		return fmt.Errorf("persisting phase %s: %w", status, err)
	}
	return nil
}

// artifactReady reports whether a recorded artifact still exists on
// disk, which is how resumed runs skip finished phases.
func (o *Orchestrator) artifactReady(relativePath string) bool {
	if relativePath == "" {
		return false
	}
	exists, err := o.svc.Layout.Sandbox().Exists(relativePath)
	return err == nil && exists
}
