package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/repository"
)

// ErrBusy is returned when another run holds the processing lock.
var ErrBusy = fmt.Errorf("another video is being processed")

// LockService wraps the lock repository with an owner identity and the
// single lock key the pipeline uses.
type LockService struct {
	locks   repository.LockRepository
	owner   string
	key     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewLockService creates a LockService. The owner identity is derived
// from the host and process so crashed holders are identifiable.
func NewLockService(locks repository.LockRepository, timeout time.Duration, logger *slog.Logger) *LockService {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LockService{
		locks:   locks,
		owner:   fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		key:     models.DefaultLockKey,
		timeout: timeout,
		logger:  logger,
	}
}

// Owner returns this process's lock owner identity.
func (s *LockService) Owner() string {
	return s.owner
}

// Acquire takes the processing lock for a run. Returns ErrBusy when
// another holder has it.
func (s *LockService) Acquire(ctx context.Context, run *models.VideoRun) error {
	estimated := time.Now().Add(estimateProcessingTime(run.TargetDuration))
	metadata := models.LockMetadata{
		VideoID:             run.ID.String(),
		UserID:              run.UserID,
		TargetDuration:      run.TargetDuration,
		EstimatedCompletion: &estimated,
	}

	lock, err := s.locks.Acquire(ctx, s.key, s.owner, metadata, s.timeout)
	if err != nil {
		return fmt.Errorf("acquiring processing lock: %w", err)
	}
	if lock == nil {
		return ErrBusy
	}

	s.logger.Info("processing lock acquired",
		slog.String("owner", s.owner),
		slog.String("video_id", run.ID.String()))
	return nil
}

// Release frees the lock. Errors are logged, not returned: release runs
// on every exit path and must never mask the original failure.
func (s *LockService) Release(ctx context.Context) {
	if err := s.locks.Release(ctx, s.key, s.owner); err != nil {
		s.logger.Error("releasing processing lock",
			slog.String("owner", s.owner),
			slog.Any("error", err))
	}
}

// Extend pushes the lock expiry forward.
func (s *LockService) Extend(ctx context.Context) error {
	return s.locks.Extend(ctx, s.key, s.owner, s.timeout)
}

// Heartbeat extends the lock periodically until ctx is cancelled. Run
// it in its own goroutine for the duration of a processing run.
func (s *LockService) Heartbeat(ctx context.Context) {
	interval := s.timeout / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Extend(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("extending processing lock", slog.Any("error", err))
			}
		}
	}
}

// Status returns the current lock state.
func (s *LockService) Status(ctx context.Context) (*models.ProcessingLock, error) {
	return s.locks.Status(ctx, s.key)
}

// estimateProcessingTime is a coarse wall-clock estimate used only for
// the lock metadata shown on the status endpoint.
func estimateProcessingTime(targetDuration int) time.Duration {
	// roughly 10x real time plus stitching overhead
	return time.Duration(targetDuration)*10*time.Second + 2*time.Minute
}
