// Package recovery decides how to resume video runs that were
// interrupted mid-pipeline, based only on persisted state.
package recovery

import (
	"fmt"
	"time"

	"github.com/reelforge/reelforge/internal/models"
)

// OrphanAge is how long a non-terminal run may go untouched before the
// sweep treats it as interrupted.
const OrphanAge = 30 * time.Minute

// InterruptedMessage is the failure reason recorded for runs that
// cannot be resumed.
const InterruptedMessage = "processing interrupted"

// Action is what the runner should do with an interrupted run.
type Action string

const (
	// ActionNone means the run is terminal or never started; leave it.
	ActionNone Action = "none"
	// ActionResume means re-queue the run at the decision's phase.
	ActionResume Action = "resume"
	// ActionFail means the persisted state is insufficient to resume.
	ActionFail Action = "fail"
)

// Decision is the outcome of planning recovery for one run.
type Decision struct {
	Action Action
	// ResumePhase is the phase to restart from when Action is resume.
	ResumePhase models.VideoStatus
	// ResumeSegment is the 1-based segment to continue generating from.
	// Zero when the resume phase is past generating.
	ResumeSegment int
	Reason        string
}

// Evidence is the on-disk state the plan consults. Segment files may
// outlive segment rows (crash between file write and row update), so
// the count comes from the filesystem, not the database.
type Evidence struct {
	// OnDiskSegments is how many segment files exist in the video's tree.
	OnDiskSegments int
	// StitchedExists reports whether the stitched 720p file is present.
	StitchedExists bool
}

// Plan decides how to recover a run from its last persisted status.
// It is a pure function: calling it twice with the same inputs yields
// the same decision.
func Plan(run *models.VideoRun, segments []models.Segment, ev Evidence) Decision {
	switch run.Status {
	case models.VideoStatusGenerating:
		return planGenerating(run, segments)

	case models.VideoStatusStitching:
		return planStitching(run, segments, ev)

	case models.VideoStatusAudio, models.VideoStatusMerging, models.VideoStatusTranscoding:
		if ev.StitchedExists {
			return Decision{
				Action:      ActionResume,
				ResumePhase: models.VideoStatusAudio,
				Reason:      "stitched file present, restarting from audio",
			}
		}
		return planStitching(run, segments, ev)

	case models.VideoStatusDecomposing:
		// Scenes may be half-written; restart the run from scratch.
		return Decision{
			Action:      ActionResume,
			ResumePhase: models.VideoStatusDecomposing,
			Reason:      "interrupted during decomposition, restarting",
		}

	default:
		// pending, completed, failed
		return Decision{Action: ActionNone, Reason: fmt.Sprintf("status %s is not recoverable", run.Status)}
	}
}

func planGenerating(run *models.VideoRun, segments []models.Segment) Decision {
	prefix := completedPrefix(segments)
	if prefix >= run.SegmentCount && run.SegmentCount > 0 {
		// Every segment finished; the crash hit before the stitch started.
		return Decision{
			Action:      ActionResume,
			ResumePhase: models.VideoStatusStitching,
			Reason:      "all segments completed, resuming at stitching",
		}
	}
	return Decision{
		Action:        ActionResume,
		ResumePhase:   models.VideoStatusGenerating,
		ResumeSegment: prefix + 1,
		Reason:        fmt.Sprintf("%d of %d segments completed, resuming at segment %d", prefix, run.SegmentCount, prefix+1),
	}
}

func planStitching(run *models.VideoRun, segments []models.Segment, ev Evidence) Decision {
	if ev.OnDiskSegments == run.SegmentCount && run.SegmentCount > 0 {
		return Decision{
			Action:      ActionResume,
			ResumePhase: models.VideoStatusStitching,
			Reason:      "all segment files present, retrying stitch",
		}
	}
	return planGenerating(run, segments)
}

// completedPrefix returns the length of the longest prefix of segments,
// ordered by segment number, that are all completed. Gaps stop the
// prefix even when later segments finished.
func completedPrefix(segments []models.Segment) int {
	byNumber := make(map[int]models.SegmentStatus, len(segments))
	for i := range segments {
		byNumber[segments[i].SegmentNumber] = segments[i].Status
	}

	prefix := 0
	for n := 1; ; n++ {
		if byNumber[n] != models.SegmentStatusCompleted {
			break
		}
		prefix = n
	}
	return prefix
}

// Apply mutates the run in place according to a resume decision.
// Callers persist the run afterwards.
func Apply(run *models.VideoRun, d Decision) {
	switch d.Action {
	case ActionResume:
		run.Status = models.VideoStatusPending
		run.CurrentPhase = string(d.ResumePhase)
		run.CurrentSegment = d.ResumeSegment
		run.ErrorMessage = ""
	case ActionFail:
		run.MarkFailed(InterruptedMessage)
	}
}

// IsOrphan reports whether a non-terminal run has gone untouched long
// enough to be treated as interrupted.
func IsOrphan(run *models.VideoRun, now time.Time) bool {
	if run.IsTerminal() || run.Status == models.VideoStatusPending {
		return false
	}
	return now.Sub(run.UpdatedAt) >= OrphanAge
}
