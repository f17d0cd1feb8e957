package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/providers"
	"github.com/reelforge/reelforge/internal/retry"
)

// phaseGenerate produces every segment file. Sequential by default so
// each segment's closing frame seeds the next one's continuity hint;
// batch mode trades that continuity for parallelism.
func (o *Orchestrator) phaseGenerate(ctx context.Context, run *models.VideoRun) error {
	if err := o.setPhase(ctx, run, models.VideoStatusGenerating, progressGenerating); err != nil {
		return err
	}

	segments, err := o.svc.Segments.GetByVideoID(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("loading segments: %w", err)
	}
	if len(segments) != run.SegmentCount {
		return fmt.Errorf("have %d segment rows for %d segments", len(segments), run.SegmentCount)
	}

	if run.BatchMode && o.svc.Pipeline.MaxConcurrentJobs > 1 {
		return o.generateParallel(ctx, run, segments)
	}
	return o.generateSequential(ctx, run, segments)
}

func (o *Orchestrator) generateSequential(ctx context.Context, run *models.VideoRun, segments []*models.Segment) error {
	var prevFrame []byte

	for i := 1; i <= run.SegmentCount; i++ {
		if err := o.checkCancel(ctx, run); err != nil {
			return err
		}

		seg := segments[i-1]
		if seg.Status == models.SegmentStatusCompleted && o.artifactReady(seg.FilePath) {
			// resumed run; reload the frame so continuity survives the restart
			prevFrame = o.loadFrame(seg)
			continue
		}

		frame, err := o.produceSegment(ctx, run, seg, prevFrame)
		if err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		prevFrame = frame

		run.CurrentSegment = i
		run.SetProgress(models.SegmentProgress(i-1, run.SegmentCount))
		if err := o.svc.Videos.UpdateProgress(ctx, run); err != nil {
			return fmt.Errorf("persisting segment progress: %w", err)
		}
	}
	return nil
}

// generateParallel runs up to MaxConcurrentJobs segment generations at
// once. No continuity hints are passed; last frames are still extracted
// so downstream consumers see a uniform segment record.
func (o *Orchestrator) generateParallel(ctx context.Context, run *models.VideoRun, segments []*models.Segment) error {
	o.logger.Info("batch mode enabled",
		slog.Int("max_concurrent", o.svc.Pipeline.MaxConcurrentJobs))

	var (
		mu        sync.Mutex
		completed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.svc.Pipeline.MaxConcurrentJobs)

	for i := 1; i <= run.SegmentCount; i++ {
		seg := segments[i-1]
		if seg.Status == models.SegmentStatusCompleted && o.artifactReady(seg.FilePath) {
			completed++
			continue
		}

		g.Go(func() error {
			if err := o.checkCancel(gctx, run); err != nil {
				return err
			}
			if _, err := o.produceSegment(gctx, run, seg, nil); err != nil {
				return fmt.Errorf("segment %d: %w", seg.SegmentNumber, err)
			}

			mu.Lock()
			completed++
			run.CurrentSegment = seg.SegmentNumber
			run.SetProgress(models.SegmentProgress(completed-1, run.SegmentCount))
			err := o.svc.Videos.UpdateProgress(gctx, run)
			mu.Unlock()
			return err
		})
	}
	return g.Wait()
}

// produceSegment fills in one segment file, from cache when possible,
// and extracts its last frame when a successor exists. Returns the
// frame bytes for the next segment's continuity hint.
func (o *Orchestrator) produceSegment(ctx context.Context, run *models.VideoRun, seg *models.Segment, hint []byte) ([]byte, error) {
	scene := run.Scenes[seg.SegmentNumber-1]
	dstRel := o.svc.Layout.SegmentPath(run.UserID, run.ID.String(), seg.SegmentNumber)

	if entry, ok := o.svc.Cache.Lookup(scene.ScenePrompt, seg.SegmentNumber); ok {
		if err := o.svc.Cache.CopyTo(entry, dstRel); err != nil {
			return nil, fmt.Errorf("copying cached segment: %w", err)
		}
		seg.FromCache = true
		seg.MarkCompleted(dstRel)
		if err := o.svc.Segments.Update(ctx, seg); err != nil {
			return nil, fmt.Errorf("persisting cached segment: %w", err)
		}
		run.Metadata.CacheHits++
		o.logger.Info("segment served from cache",
			slog.String("video_id", run.ID.String()),
			slog.Int("segment", seg.SegmentNumber))
	} else {
		if err := o.generateWithRetry(ctx, run, seg, scene, hint, dstRel); err != nil {
			seg.MarkFailed(err.Error())
			if uerr := o.svc.Segments.Update(context.WithoutCancel(ctx), seg); uerr != nil {
				o.logger.Error("persisting segment failure", slog.Any("error", uerr))
			}
			return nil, err
		}

		seg.MarkCompleted(dstRel)
		if err := o.svc.Segments.Update(ctx, seg); err != nil {
			return nil, fmt.Errorf("persisting completed segment: %w", err)
		}

		duration := scene.Duration()
		if _, err := o.svc.Cache.Store(scene.ScenePrompt, seg.SegmentNumber, dstRel, duration); err != nil {
			// cache writes are best effort
			o.logger.Warn("caching segment failed", slog.Any("error", err))
		}
	}

	if seg.SegmentNumber >= run.SegmentCount {
		return nil, nil
	}
	return o.extractLastFrame(ctx, run, seg, dstRel)
}

// generateWithRetry drives one segment job through the provider under
// the retry policy, persisting each attempt's counter.
func (o *Orchestrator) generateWithRetry(ctx context.Context, run *models.VideoRun, seg *models.Segment, scene models.Scene, hint []byte, dstRel string) error {
	policy := retry.DefaultPolicy()
	if o.svc.Pipeline.MaxSegmentRetries > 0 {
		policy.MaxAttempts = o.svc.Pipeline.MaxSegmentRetries
	}

	onRetry := func(attempt int, err error) {
		o.logger.Warn("segment attempt failed",
			slog.String("video_id", run.ID.String()),
			slog.Int("segment", seg.SegmentNumber),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		if rerr := o.svc.Segments.IncrementRetry(ctx, seg.ID, err.Error()); rerr != nil {
			o.logger.Error("persisting retry count", slog.Any("error", rerr))
		}
	}

	return policy.Do(ctx, func(ctx context.Context) error {
		return o.attemptSegment(ctx, run, seg, scene, hint, dstRel)
	}, onRetry)
}

// attemptSegment is one submit/poll/download round trip.
func (o *Orchestrator) attemptSegment(ctx context.Context, run *models.VideoRun, seg *models.Segment, scene models.Scene, hint []byte, dstRel string) error {
	nSeconds := int(scene.Duration() + 0.5)
	if nSeconds <= 0 {
		nSeconds = run.SegmentDuration
	}

	jobID, err := o.svc.VideoGen.Start(ctx, scene.ScenePrompt,
		o.svc.Pipeline.GenerationWidth, o.svc.Pipeline.GenerationHeight, nSeconds, hint)
	if err != nil {
		return fmt.Errorf("starting generation job: %w", err)
	}

	// persist the job ID before polling so a crash leaves a resumable hint
	seg.MarkGenerating(jobID)
	if err := o.svc.Segments.Update(ctx, seg); err != nil {
		return fmt.Errorf("persisting job id: %w", err)
	}

	if err := o.awaitJob(ctx, jobID); err != nil {
		return err
	}

	body, err := o.svc.VideoGen.FetchContent(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetching segment content: %w", err)
	}
	writeErr := o.svc.Layout.Sandbox().AtomicWriteReader(dstRel, body)
	body.Close()
	if writeErr != nil {
		return fmt.Errorf("writing segment file: %w", writeErr)
	}
	return nil
}

// awaitJob polls the provider until the job finishes or the segment
// timeout elapses. Job failures and timeouts classify as transient so
// the retry policy resubmits.
func (o *Orchestrator) awaitJob(ctx context.Context, jobID string) error {
	pollCtx := ctx
	if o.svc.Pipeline.SegmentTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, o.svc.Pipeline.SegmentTimeout)
		defer cancel()
	}

	interval := o.svc.Pipeline.PollingInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := o.svc.VideoGen.Poll(pollCtx, jobID)
		if err != nil {
			// a poll cut short by the segment deadline is a timeout,
			// not a provider failure
			if pollCtx.Err() != nil && ctx.Err() == nil {
				return retry.Transient(fmt.Errorf("job %s timed out", jobID))
			}
			return fmt.Errorf("polling job %s: %w", jobID, err)
		}
		switch status.State {
		case providers.JobStateSucceeded:
			return nil
		case providers.JobStateFailed:
			return retry.Transient(fmt.Errorf("job %s failed: %s", jobID, status.Error))
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				// the run itself is done, not just this segment
				return ctx.Err()
			}
			return retry.Transient(fmt.Errorf("job %s timed out", jobID))
		case <-ticker.C:
		}
	}
}

// extractLastFrame captures the segment's closing frame and records it
// on the segment row.
func (o *Orchestrator) extractLastFrame(ctx context.Context, run *models.VideoRun, seg *models.Segment, segmentRel string) ([]byte, error) {
	frameRel := o.svc.Layout.FramePath(run.UserID, run.ID.String(), seg.SegmentNumber)

	segmentAbs, err := o.svc.Layout.AbsolutePath(segmentRel)
	if err != nil {
		return nil, err
	}
	frameAbs, err := o.svc.Layout.AbsolutePath(frameRel)
	if err != nil {
		return nil, err
	}

	if _, err := o.svc.Media.ExtractLastFrame(ctx, segmentAbs, frameAbs); err != nil {
		// continuity is an enhancement; the next segment just starts cold
		o.logger.Warn("last frame extraction failed",
			slog.Int("segment", seg.SegmentNumber),
			slog.Any("error", err))
		return nil, nil
	}

	seg.LastFramePath = frameRel
	if err := o.svc.Segments.Update(ctx, seg); err != nil {
		return nil, fmt.Errorf("persisting frame path: %w", err)
	}
	return o.loadFrame(seg), nil
}

// loadFrame reads a segment's recorded last frame, or nil if absent.
func (o *Orchestrator) loadFrame(seg *models.Segment) []byte {
	if seg.LastFramePath == "" {
		return nil
	}
	data, err := o.svc.Layout.Sandbox().ReadFile(seg.LastFramePath)
	if err != nil {
		return nil
	}
	return data
}
