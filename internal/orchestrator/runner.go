package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/recovery"
	"github.com/reelforge/reelforge/internal/storage"
)

// defaultRunnerPoll is how often the runner looks for pending runs.
const defaultRunnerPoll = 5 * time.Second

// Runner is the single worker that feeds pending video runs to the
// orchestrator. The processing lock keeps concurrent deployments from
// double-processing, so one worker per process is enough.
type Runner struct {
	mu sync.Mutex

	orch         *Orchestrator
	pollInterval time.Duration
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a Runner around the orchestrator.
func NewRunner(orch *Orchestrator, pollInterval time.Duration, logger *slog.Logger) *Runner {
	if pollInterval <= 0 {
		pollInterval = defaultRunnerPoll
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{orch: orch, pollInterval: pollInterval, logger: logger}
}

// Start recovers interrupted runs and begins the polling loop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx != nil {
		return fmt.Errorf("runner already started")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	if err := r.RecoverInterrupted(r.ctx); err != nil {
		r.logger.Error("startup recovery", slog.Any("error", err))
	}

	r.wg.Add(1)
	go r.loop()

	r.logger.Info("runner started", slog.Duration("poll_interval", r.pollInterval))
	return nil
}

// Stop halts the polling loop and waits for an in-flight run to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	r.ctx = nil
	r.cancel = nil
	r.mu.Unlock()

	r.logger.Info("runner stopped")
}

func (r *Runner) loop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			if err := r.processNext(); err != nil && !errors.Is(err, errNoPending) {
				if !errors.Is(err, ErrBusy) {
					r.logger.Error("processing run", slog.Any("error", err))
				}
			}

			select {
			case <-r.ctx.Done():
				return
			case <-time.After(r.pollInterval):
			}
		}
	}
}

var errNoPending = errors.New("no pending runs")

// processNext picks the oldest pending run and processes it.
func (r *Runner) processNext() error {
	pending, err := r.orch.svc.Videos.GetByStatus(r.ctx, models.VideoStatusPending)
	if err != nil {
		return fmt.Errorf("listing pending runs: %w", err)
	}
	if len(pending) == 0 {
		return errNoPending
	}

	// oldest first: pending runs form the queue
	run := pending[len(pending)-1]
	for _, candidate := range pending {
		if candidate.CreatedAt.Before(run.CreatedAt) {
			run = candidate
		}
	}

	return r.orch.Process(r.ctx, run.ID)
}

// RecoverInterrupted applies the recovery plan to every run stranded in
// an active phase. Safe to call repeatedly.
func (r *Runner) RecoverInterrupted(ctx context.Context) error {
	interrupted, err := r.orch.svc.Videos.GetInterrupted(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("listing interrupted runs: %w", err)
	}

	for _, run := range interrupted {
		if err := r.recoverRun(ctx, run); err != nil {
			r.logger.Error("recovering run",
				slog.String("video_id", run.ID.String()),
				slog.Any("error", err))
		}
	}
	return nil
}

// SweepOrphans fails or re-queues non-terminal runs untouched past the
// orphan age. Called by the scheduler.
func (r *Runner) SweepOrphans(ctx context.Context) error {
	cutoff := time.Now().Add(-recovery.OrphanAge)
	interrupted, err := r.orch.svc.Videos.GetInterrupted(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("listing orphaned runs: %w", err)
	}

	for _, run := range interrupted {
		if !recovery.IsOrphan(run, time.Now()) {
			continue
		}
		if err := r.recoverRun(ctx, run); err != nil {
			r.logger.Error("recovering orphaned run",
				slog.String("video_id", run.ID.String()),
				slog.Any("error", err))
		}
	}
	return nil
}

func (r *Runner) recoverRun(ctx context.Context, run *models.VideoRun) error {
	segments, err := r.orch.svc.Segments.GetByVideoID(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("loading segments: %w", err)
	}
	rows := make([]models.Segment, len(segments))
	for i := range segments {
		rows[i] = *segments[i]
	}

	decision := recovery.Plan(run, rows, r.gatherEvidence(run))
	r.logger.Info("recovery decision",
		slog.String("video_id", run.ID.String()),
		slog.String("status", string(run.Status)),
		slog.String("action", string(decision.Action)),
		slog.String("reason", decision.Reason))

	if decision.Action == recovery.ActionNone {
		return nil
	}

	recovery.Apply(run, decision)
	if err := r.orch.svc.Videos.Update(ctx, run); err != nil {
		return fmt.Errorf("persisting recovery: %w", err)
	}
	return nil
}

func (r *Runner) gatherEvidence(run *models.VideoRun) recovery.Evidence {
	layout := r.orch.svc.Layout
	videoID := run.ID.String()

	onDisk, err := layout.ExistingSegments(run.UserID, videoID)
	if err != nil {
		onDisk = nil
	}

	stitched := false
	if rel := layout.ArtifactPath(run.UserID, videoID, storage.FileStitched720); rel != "" {
		if ok, err := layout.Sandbox().Exists(rel); err == nil {
			stitched = ok
		}
	}

	return recovery.Evidence{
		OnDiskSegments: len(onDisk),
		StitchedExists: stitched,
	}
}
