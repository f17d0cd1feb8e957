package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/storage"
)

// rawNarrationFile is the synthesized audio before duration fitting.
const rawNarrationFile = "narration_raw.mp3"

// phaseDecompose fills in scenes and segment rows. Caller-supplied
// scenes skip the storyboard provider entirely; a provider failure
// falls back to evenly split scenes derived from the prompt.
func (o *Orchestrator) phaseDecompose(ctx context.Context, run *models.VideoRun) error {
	if err := o.setPhase(ctx, run, models.VideoStatusDecomposing, progressDecomposing); err != nil {
		return err
	}

	if run.SegmentDuration == 0 {
		run.SegmentDuration = o.svc.Pipeline.SegmentDurationFor(run.TargetDuration)
	}
	if run.SegmentCount == 0 {
		run.SegmentCount = o.svc.Pipeline.SegmentCountFor(run.TargetDuration)
	}

	if err := o.svc.Layout.CreateTree(run.UserID, run.ID.String()); err != nil {
		return fmt.Errorf("creating video tree: %w", err)
	}

	if len(run.Scenes) == 0 {
		enhanced := run.Prompt
		res, err := o.svc.Storyboard.Enhance(ctx, run.Prompt, run.TargetDuration)
		if err != nil {
			o.logger.Warn("prompt enhancement failed, using original",
				slog.Any("error", err))
		} else {
			enhanced = res.EnhancedPrompt
			run.Metadata.Keywords = res.Keywords
			run.Metadata.EstimatedDuration = res.EstimatedDuration
			if run.Title == "" && res.Title != "" {
				run.Title = res.Title
			}
		}
		if run.OriginalPrompt == "" {
			run.OriginalPrompt = run.Prompt
		}
		run.Prompt = enhanced
		run.Metadata.EnhancedPrompt = enhanced

		scenes, err := o.svc.Storyboard.Decompose(ctx, enhanced,
			run.TargetDuration, run.SegmentDuration, run.SegmentCount)
		if err != nil {
			o.logger.Warn("scene decomposition failed, using fallback scenes",
				slog.Any("error", err))
			scenes = models.FallbackScenes(enhanced, run.SegmentCount,
				run.SegmentDuration, run.TargetDuration)
		}
		run.Scenes = scenes
	}

	if len(run.Scenes) != run.SegmentCount {
		return fmt.Errorf("have %d scenes for %d segments", len(run.Scenes), run.SegmentCount)
	}

	if len(run.Segments) == 0 {
		rows := make([]*models.Segment, run.SegmentCount)
		for i := range rows {
			rows[i] = &models.Segment{
				VideoID:       run.ID,
				SegmentNumber: i + 1,
				Status:        models.SegmentStatusPending,
			}
		}
		if err := o.svc.Segments.CreateBatch(ctx, rows); err != nil {
			return fmt.Errorf("creating segment rows: %w", err)
		}
	}

	run.SetProgress(progressGenerating)
	if err := o.svc.Videos.Update(ctx, run); err != nil {
		return fmt.Errorf("persisting scenes: %w", err)
	}
	return nil
}

// phaseStitch joins segment files into the stitched 720p video with
// crossfade transitions.
func (o *Orchestrator) phaseStitch(ctx context.Context, run *models.VideoRun) error {
	if o.artifactReady(run.Files.Stitched720) {
		return nil
	}
	if err := o.setPhase(ctx, run, models.VideoStatusStitching, progressStitching); err != nil {
		return err
	}

	videoID := run.ID.String()
	segmentPaths := make([]string, 0, run.SegmentCount)
	for n := 1; n <= run.SegmentCount; n++ {
		rel := o.svc.Layout.SegmentPath(run.UserID, videoID, n)
		exists, err := o.svc.Layout.Sandbox().Exists(rel)
		if err != nil {
			return fmt.Errorf("checking segment %d: %w", n, err)
		}
		if !exists {
			return fmt.Errorf("segment file %d of %d missing", n, run.SegmentCount)
		}
		abs, err := o.svc.Layout.AbsolutePath(rel)
		if err != nil {
			return err
		}
		segmentPaths = append(segmentPaths, abs)
	}

	stitchedRel := o.svc.Layout.ArtifactPath(run.UserID, videoID, storage.FileStitched720)
	stitchedAbs, err := o.svc.Layout.AbsolutePath(stitchedRel)
	if err != nil {
		return err
	}

	if _, err := o.svc.Media.StitchCrossfade(ctx, segmentPaths, stitchedAbs, o.svc.Pipeline.FadeDuration); err != nil {
		return fmt.Errorf("stitching segments: %w", err)
	}

	run.Files.Stitched720 = stitchedRel
	run.SetProgress(progressAudio)
	if err := o.svc.Videos.Update(ctx, run); err != nil {
		return fmt.Errorf("persisting stitched file: %w", err)
	}
	return nil
}

// phaseAudio produces the narration track, fitted to the stitched
// video's duration.
func (o *Orchestrator) phaseAudio(ctx context.Context, run *models.VideoRun) error {
	if o.artifactReady(run.Files.Audio) {
		return nil
	}
	if err := o.setPhase(ctx, run, models.VideoStatusAudio, progressAudio); err != nil {
		return err
	}

	script := run.Metadata.NarrationScript
	if script == "" {
		script = o.narrationScript(ctx, run)
		if strings.TrimSpace(script) == "" {
			return fmt.Errorf("no narration script available")
		}
		run.Metadata.NarrationScript = script
	}

	videoID := run.ID.String()
	rawRel := o.svc.Layout.ArtifactPath(run.UserID, videoID, rawNarrationFile)

	body, err := o.svc.Narration.Synthesize(ctx, script, run.VoiceID)
	if err != nil {
		return fmt.Errorf("synthesizing narration: %w", err)
	}
	writeErr := o.svc.Layout.Sandbox().AtomicWriteReader(rawRel, body)
	body.Close()
	if writeErr != nil {
		return fmt.Errorf("writing narration audio: %w", writeErr)
	}

	stitchedAbs, err := o.svc.Layout.AbsolutePath(run.Files.Stitched720)
	if err != nil {
		return err
	}
	rawAbs, err := o.svc.Layout.AbsolutePath(rawRel)
	if err != nil {
		return err
	}

	report, err := o.svc.Sync.Verify(ctx, stitchedAbs, rawAbs)
	if err != nil {
		return fmt.Errorf("verifying sync: %w", err)
	}
	o.logger.Info("narration synthesized",
		slog.Float64("video_duration", report.VideoDuration),
		slog.Float64("audio_duration", report.AudioDuration),
		slog.String("recommendation", string(report.Recommendation)))

	audioRel := o.svc.Layout.ArtifactPath(run.UserID, videoID, storage.FileAudio)
	audioAbs, err := o.svc.Layout.AbsolutePath(audioRel)
	if err != nil {
		return err
	}
	if _, err := o.svc.Sync.AdjustAudio(ctx, rawAbs, report.VideoDuration, audioAbs); err != nil {
		return fmt.Errorf("fitting narration to video: %w", err)
	}

	run.Files.Audio = audioRel
	run.Metadata.AudioDuration = report.AudioDuration
	run.SetProgress(progressMerging)
	if err := o.svc.Videos.Update(ctx, run); err != nil {
		return fmt.Errorf("persisting audio file: %w", err)
	}
	return nil
}

// narrationScript builds the narration text: scene narrations when the
// decomposition provided them all, otherwise a fresh storyboard call.
func (o *Orchestrator) narrationScript(ctx context.Context, run *models.VideoRun) string {
	parts := make([]string, 0, len(run.Scenes))
	for i := range run.Scenes {
		text := strings.TrimSpace(run.Scenes[i].NarrationText)
		if text == "" {
			parts = nil
			break
		}
		parts = append(parts, text)
	}
	if parts != nil {
		return strings.Join(parts, " ")
	}

	script, err := o.svc.Storyboard.WriteNarration(ctx, run.Prompt, run.Scenes, run.TargetDuration)
	if err != nil {
		o.logger.Warn("narration scripting failed, narrating scene prompts",
			slog.Any("error", err))
		for i := range run.Scenes {
			parts = append(parts, run.Scenes[i].ScenePrompt)
		}
		return strings.Join(parts, ". ")
	}
	return script
}

// phaseMerge combines the stitched video with the narration track and
// captures the thumbnail and final metadata.
func (o *Orchestrator) phaseMerge(ctx context.Context, run *models.VideoRun) error {
	if o.artifactReady(run.Files.Final720) {
		return nil
	}
	if err := o.setPhase(ctx, run, models.VideoStatusMerging, progressMerging); err != nil {
		return err
	}

	videoID := run.ID.String()
	stitchedAbs, err := o.svc.Layout.AbsolutePath(run.Files.Stitched720)
	if err != nil {
		return err
	}
	audioAbs, err := o.svc.Layout.AbsolutePath(run.Files.Audio)
	if err != nil {
		return err
	}

	finalRel := o.svc.Layout.ArtifactPath(run.UserID, videoID, storage.FileFinal720)
	finalAbs, err := o.svc.Layout.AbsolutePath(finalRel)
	if err != nil {
		return err
	}
	// trim to the shorter stream so narration never trails over black
	if _, err := o.svc.Media.MergeAV(ctx, stitchedAbs, audioAbs, finalAbs, true); err != nil {
		return fmt.Errorf("merging audio and video: %w", err)
	}

	thumbRel := o.svc.Layout.ArtifactPath(run.UserID, videoID, storage.FileThumbnail)
	thumbAbs, err := o.svc.Layout.AbsolutePath(thumbRel)
	if err != nil {
		return err
	}
	if _, err := o.svc.Media.GenerateThumbnail(ctx, finalAbs, thumbAbs); err != nil {
		// a missing thumbnail does not fail the run
		o.logger.Warn("thumbnail generation failed", slog.Any("error", err))
	} else {
		run.Files.Thumbnail = thumbRel
	}

	info, err := o.svc.Prober.ProbeMedia(ctx, finalAbs)
	if err != nil {
		return fmt.Errorf("probing merged file: %w", err)
	}
	run.ActualDuration = info.Duration
	run.Files.Final720 = finalRel
	run.SetProgress(progressTranscoding)
	if err := o.svc.Videos.Update(ctx, run); err != nil {
		return fmt.Errorf("persisting merged file: %w", err)
	}
	return nil
}

// phaseTranscode renders the 480p variant from the final 720p file.
func (o *Orchestrator) phaseTranscode(ctx context.Context, run *models.VideoRun) error {
	if o.artifactReady(run.Files.Final480) {
		return nil
	}
	if err := o.setPhase(ctx, run, models.VideoStatusTranscoding, progressTranscoding); err != nil {
		return err
	}

	videoID := run.ID.String()
	finalAbs, err := o.svc.Layout.AbsolutePath(run.Files.Final720)
	if err != nil {
		return err
	}
	lowRel := o.svc.Layout.ArtifactPath(run.UserID, videoID, storage.FileFinal480)
	lowAbs, err := o.svc.Layout.AbsolutePath(lowRel)
	if err != nil {
		return err
	}

	if _, err := o.svc.Media.Transcode(ctx, finalAbs, lowAbs, 480); err != nil {
		return fmt.Errorf("transcoding 480p: %w", err)
	}

	run.Files.Final480 = lowRel
	if err := o.svc.Videos.Update(ctx, run); err != nil {
		return fmt.Errorf("persisting transcoded file: %w", err)
	}
	return nil
}
