// Package scheduler runs the periodic maintenance sweeps: expired lock
// cleanup, segment cache cleanup, and orphaned run recovery.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reelforge/reelforge/internal/orchestrator"
	"github.com/reelforge/reelforge/internal/repository"
	"github.com/reelforge/reelforge/internal/storage"
)

// Sweep cadences. Cache cleanup comes from configuration; the others
// are fixed.
const (
	lockSweepEvery   = time.Minute
	orphanSweepEvery = 5 * time.Minute
)

// Scheduler owns the cron instance driving the maintenance sweeps.
type Scheduler struct {
	cron   *cron.Cron
	locks  repository.LockRepository
	cache  *storage.SegmentCache
	runner *orchestrator.Runner
	logger *slog.Logger

	cacheCleanupEvery time.Duration
}

// New creates a Scheduler. The runner is optional; without it the
// orphan sweep is skipped.
func New(locks repository.LockRepository, cache *storage.SegmentCache, runner *orchestrator.Runner, cacheCleanupEvery time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheCleanupEvery <= 0 {
		cacheCleanupEvery = 24 * time.Hour
	}
	return &Scheduler{
		cron:              cron.New(),
		locks:             locks,
		cache:             cache,
		runner:            runner,
		logger:            logger,
		cacheCleanupEvery: cacheCleanupEvery,
	}
}

// Start registers the sweeps and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(every(lockSweepEvery), func() { s.sweepLocks(ctx) }); err != nil {
		return fmt.Errorf("registering lock sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(every(s.cacheCleanupEvery), func() { s.cleanupCache() }); err != nil {
		return fmt.Errorf("registering cache cleanup: %w", err)
	}
	if s.runner != nil {
		if _, err := s.cron.AddFunc(every(orphanSweepEvery), func() { s.sweepOrphans(ctx) }); err != nil {
			return fmt.Errorf("registering orphan sweep: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("maintenance scheduler started",
		slog.Duration("lock_sweep", lockSweepEvery),
		slog.Duration("cache_cleanup", s.cacheCleanupEvery),
		slog.Duration("orphan_sweep", orphanSweepEvery))
	return nil
}

// Stop halts the cron loop and waits for running sweeps to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("maintenance scheduler stopped")
}

func (s *Scheduler) sweepLocks(ctx context.Context) {
	cleared, err := s.locks.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("sweeping expired locks", slog.Any("error", err))
		return
	}
	if cleared > 0 {
		s.logger.Info("cleared expired locks", slog.Int64("count", cleared))
	}
}

func (s *Scheduler) cleanupCache() {
	removed, err := s.cache.Cleanup()
	if err != nil {
		s.logger.Error("cleaning segment cache", slog.Any("error", err))
		return
	}
	if removed > 0 {
		s.logger.Info("cleaned segment cache", slog.Int("removed", removed))
	}
}

func (s *Scheduler) sweepOrphans(ctx context.Context) {
	if err := s.runner.SweepOrphans(ctx); err != nil {
		s.logger.Error("sweeping orphaned runs", slog.Any("error", err))
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
