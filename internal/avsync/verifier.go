// Package avsync checks audio against video durations and prepares the
// narration track for merging.
package avsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/reelforge/reelforge/internal/ffmpeg"
)

const (
	// DefaultTolerance is the duration difference considered in sync.
	DefaultTolerance = 2.0
	// copyThreshold is the difference below which the audio is used as-is.
	copyThreshold = 0.5

	minWidth     = 480
	minHeight    = 270
	minRunLength = 10.0
)

// Recommendation describes what adjustAudio would do for a given gap.
type Recommendation string

const (
	RecommendNone    Recommendation = "none"
	RecommendPad     Recommendation = "pad"
	RecommendTempoUp Recommendation = "tempo-up"
)

// Report is the outcome of comparing a video and an audio track.
type Report struct {
	InSync         bool
	VideoDuration  float64
	AudioDuration  float64
	Diff           float64
	Recommendation Recommendation
}

// MergedReport describes the streams of a merged output file.
type MergedReport struct {
	HasVideo   bool
	HasAudio   bool
	VideoCodec string
	AudioCodec string
	Duration   float64
}

// ValidationResult collects validation findings for a finished video.
type ValidationResult struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

type prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
	ProbeMedia(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
	Duration(ctx context.Context, path string) (float64, error)
}

type audioAdjuster interface {
	PadAudio(ctx context.Context, inPath, outPath string, targetDuration float64) (string, error)
	RetimeAudio(ctx context.Context, inPath, outPath string, ratio float64) (string, error)
}

// Verifier compares and adjusts narration audio against stitched video.
type Verifier struct {
	prober    prober
	adjuster  audioAdjuster
	tolerance float64
	logger    *slog.Logger
}

// New creates a Verifier backed by the media toolchain.
func New(toolchain *ffmpeg.Toolchain, logger *slog.Logger) *Verifier {
	return newVerifier(toolchain.Prober(), toolchain, logger)
}

func newVerifier(p prober, a audioAdjuster, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{prober: p, adjuster: a, tolerance: DefaultTolerance, logger: logger}
}

// Verify compares the durations of a video and an audio file.
func (v *Verifier) Verify(ctx context.Context, videoPath, audioPath string) (*Report, error) {
	videoDur, err := v.prober.Duration(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("probing video: %w", err)
	}
	audioDur, err := v.prober.Duration(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("probing audio: %w", err)
	}

	diff := audioDur - videoDur
	report := &Report{
		InSync:         math.Abs(diff) <= v.tolerance,
		VideoDuration:  videoDur,
		AudioDuration:  audioDur,
		Diff:           diff,
		Recommendation: RecommendNone,
	}
	switch {
	case diff > copyThreshold:
		report.Recommendation = RecommendTempoUp
	case diff < -copyThreshold:
		report.Recommendation = RecommendPad
	}

	v.logger.Debug("sync check",
		slog.Float64("video_duration", videoDur),
		slog.Float64("audio_duration", audioDur),
		slog.Float64("diff", diff),
		slog.String("recommendation", string(report.Recommendation)))
	return report, nil
}

// AdjustAudio fits the audio track to the target duration. A gap within
// half a second is passed through untouched; shorter audio is padded
// with silence, longer audio is tempo-scaled.
func (v *Verifier) AdjustAudio(ctx context.Context, audioPath string, targetDuration float64, outPath string) (string, error) {
	if targetDuration <= 0 {
		return "", fmt.Errorf("target duration %.2fs is not positive", targetDuration)
	}

	audioDur, err := v.prober.Duration(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("probing audio: %w", err)
	}

	diff := audioDur - targetDuration
	switch {
	case math.Abs(diff) <= copyThreshold:
		if err := copyFile(audioPath, outPath); err != nil {
			return "", fmt.Errorf("copying audio: %w", err)
		}
		return outPath, nil
	case diff < 0:
		return v.adjuster.PadAudio(ctx, audioPath, outPath, targetDuration)
	default:
		return v.adjuster.RetimeAudio(ctx, audioPath, outPath, audioDur/targetDuration)
	}
}

// VerifyMerged inspects a merged file and reports its streams.
func (v *Verifier) VerifyMerged(ctx context.Context, path string) (*MergedReport, error) {
	result, err := v.prober.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probing merged file: %w", err)
	}

	report := &MergedReport{}
	for _, stream := range result.Streams {
		switch stream.CodecType {
		case "video":
			report.HasVideo = true
			if report.VideoCodec == "" {
				report.VideoCodec = stream.CodecName
			}
		case "audio":
			report.HasAudio = true
			if report.AudioCodec == "" {
				report.AudioCodec = stream.CodecName
			}
		}
	}
	if result.Format.Duration != "" {
		fmt.Sscanf(result.Format.Duration, "%f", &report.Duration)
	}
	return report, nil
}

// Validate checks a finished video for structural problems. Low
// resolution and short duration are reported as warnings, missing
// streams as errors.
func (v *Verifier) Validate(ctx context.Context, path string) (*ValidationResult, error) {
	info, err := v.prober.ProbeMedia(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probing file: %w", err)
	}

	result := &ValidationResult{IsValid: true}
	if !info.HasVideo {
		result.IsValid = false
		result.Errors = append(result.Errors, "no video stream")
	}
	if info.Duration <= 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, "zero duration")
	}
	if info.HasVideo && (info.Width < minWidth || info.Height < minHeight) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("resolution %dx%d below %dx%d", info.Width, info.Height, minWidth, minHeight))
	}
	if info.Duration > 0 && info.Duration < minRunLength {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("duration %.1fs below %.0fs", info.Duration, minRunLength))
	}
	return result, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
