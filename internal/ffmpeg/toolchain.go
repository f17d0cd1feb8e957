package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Encoding defaults for all re-encoding operations.
const (
	videoCodec  = "libx264"
	videoPreset = "medium"
	videoCRF    = 23
	audioCodec  = "aac"
	audioRate   = "192k"
)

// Toolchain exposes the media operations the pipeline needs. All paths
// are absolute; all operations block until the child process exits and
// return the output path on success.
type Toolchain struct {
	binary string
	prober *Prober
}

// NewToolchain creates a Toolchain using the given ffmpeg and ffprobe
// binaries. Empty paths fall back to $PATH lookup.
func NewToolchain(ffmpegPath, ffprobePath string) *Toolchain {
	return &Toolchain{
		binary: ffmpegPath,
		prober: NewProber(ffprobePath),
	}
}

// Prober returns the toolchain's prober.
func (t *Toolchain) Prober() *Prober {
	return t.prober
}

// ExtractLastFrame grabs the last frame of a video as a JPEG, seeking to
// just before the measured end so the grab never lands past EOF.
func (t *Toolchain) ExtractLastFrame(ctx context.Context, videoPath, framePath string) (string, error) {
	duration, err := t.prober.Duration(ctx, videoPath)
	if err != nil {
		return "", err
	}
	seek := duration - 0.1
	if seek < 0 {
		seek = 0
	}
	return t.ExtractFrameAt(ctx, videoPath, seek, framePath)
}

// ExtractFrameAt grabs a single frame at the given offset in seconds.
func (t *Toolchain) ExtractFrameAt(ctx context.Context, videoPath string, offset float64, framePath string) (string, error) {
	err := NewCommandBuilder(t.binary).
		InputArgs("-ss", formatSeconds(offset)).
		Input(videoPath).
		OutputArgs("-frames:v", "1", "-q:v", "2").
		Output(framePath).
		Run(ctx, "extract_frame")
	if err != nil {
		return "", err
	}
	return framePath, nil
}

// GenerateThumbnail produces a 1280x720 JPEG thumbnail from two seconds
// in, or the midpoint for clips shorter than that.
func (t *Toolchain) GenerateThumbnail(ctx context.Context, videoPath, thumbPath string) (string, error) {
	offset := 2.0
	if duration, err := t.prober.Duration(ctx, videoPath); err == nil && duration < 4.0 {
		offset = duration / 2
	}

	err := NewCommandBuilder(t.binary).
		InputArgs("-ss", formatSeconds(offset)).
		Input(videoPath).
		VideoFilter("scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2").
		OutputArgs("-frames:v", "1", "-q:v", "3").
		Output(thumbPath).
		Run(ctx, "thumbnail")
	if err != nil {
		return "", err
	}
	return thumbPath, nil
}

// ConcatSimple joins segments losslessly via a concat list file.
func (t *Toolchain) ConcatSimple(ctx context.Context, segmentPaths []string, outPath string) (string, error) {
	if len(segmentPaths) == 0 {
		return "", fmt.Errorf("concat: no segments")
	}

	listPath, err := writeConcatList(segmentPaths, outPath)
	if err != nil {
		return "", err
	}
	defer os.Remove(listPath)

	err = NewCommandBuilder(t.binary).
		InputArgs("-f", "concat", "-safe", "0").
		Input(listPath).
		OutputArgs("-c", "copy").
		Output(outPath).
		Run(ctx, "concat")
	if err != nil {
		return "", err
	}
	return outPath, nil
}

// StitchCrossfade joins segments with crossfade transitions. Offsets are
// computed from the measured duration of each segment, not the nominal
// one, so provider variance and a short last scene cannot desync the
// filter graph. A single segment is re-encoded without a filter so the
// output encoding is uniform either way.
func (t *Toolchain) StitchCrossfade(ctx context.Context, segmentPaths []string, outPath string, fadeDuration float64) (string, error) {
	if len(segmentPaths) == 0 {
		return "", fmt.Errorf("stitch: no segments")
	}

	if len(segmentPaths) == 1 {
		err := NewCommandBuilder(t.binary).
			Input(segmentPaths[0]).
			VideoCodec(videoCodec).
			Preset(videoPreset).
			CRF(videoCRF).
			OutputArgs("-an").
			Output(outPath).
			Run(ctx, "stitch")
		if err != nil {
			return "", err
		}
		return outPath, nil
	}

	durations := make([]float64, len(segmentPaths))
	for i, p := range segmentPaths {
		d, err := t.prober.Duration(ctx, p)
		if err != nil {
			return "", fmt.Errorf("probing segment %d: %w", i+1, err)
		}
		if d <= fadeDuration {
			return "", fmt.Errorf("stitch: segment %d shorter (%.2fs) than fade %.2fs", i+1, d, fadeDuration)
		}
		durations[i] = d
	}

	builder := NewCommandBuilder(t.binary)
	for _, p := range segmentPaths {
		builder.Input(p)
	}

	err := builder.
		FilterComplex(xfadeFilter(durations, fadeDuration)).
		OutputArgs("-map", "[vout]").
		VideoCodec(videoCodec).
		Preset(videoPreset).
		CRF(videoCRF).
		OutputArgs("-an").
		Output(outPath).
		Run(ctx, "stitch")
	if err != nil {
		return "", err
	}
	return outPath, nil
}

// MergeAV muxes the stitched video with the narration track. Video is
// copied; audio is encoded to AAC. With trimToShortest the output ends
// at the shorter stream, keeping a long narration from trailing over
// black.
func (t *Toolchain) MergeAV(ctx context.Context, videoPath, audioPath, outPath string, trimToShortest bool) (string, error) {
	builder := NewCommandBuilder(t.binary).
		Input(videoPath).
		Input(audioPath).
		OutputArgs("-map", "0:v", "-map", "1:a").
		VideoCodec("copy").
		AudioCodec(audioCodec).
		AudioBitrate(audioRate)
	if trimToShortest {
		builder.OutputArgs("-shortest")
	}
	err := builder.
		Output(outPath).
		Run(ctx, "merge")
	if err != nil {
		return "", err
	}
	return outPath, nil
}

// Transcode re-encodes to H.264 at the given height, preserving aspect
// ratio. Audio is copied through.
func (t *Toolchain) Transcode(ctx context.Context, inPath, outPath string, height int) (string, error) {
	err := NewCommandBuilder(t.binary).
		Input(inPath).
		VideoFilter(fmt.Sprintf("scale=-2:%d", height)).
		VideoCodec(videoCodec).
		Preset(videoPreset).
		CRF(videoCRF).
		AudioCodec("copy").
		OutputArgs("-movflags", "+faststart").
		Output(outPath).
		Run(ctx, "transcode")
	if err != nil {
		return "", err
	}
	return outPath, nil
}

// PadAudio extends an audio file with silence up to targetDuration.
func (t *Toolchain) PadAudio(ctx context.Context, inPath, outPath string, targetDuration float64) (string, error) {
	err := NewCommandBuilder(t.binary).
		Input(inPath).
		AudioFilter("apad").
		OutputArgs("-t", formatSeconds(targetDuration)).
		Output(outPath).
		Run(ctx, "pad_audio")
	if err != nil {
		return "", err
	}
	return outPath, nil
}

// RetimeAudio stretches or compresses audio by ratio (output duration =
// input duration / ratio). atempo only accepts [0.5, 2.0] per stage, so
// larger corrections are chained.
func (t *Toolchain) RetimeAudio(ctx context.Context, inPath, outPath string, ratio float64) (string, error) {
	if ratio <= 0 {
		return "", fmt.Errorf("retime: ratio must be positive, got %f", ratio)
	}

	var stages []string
	remaining := ratio
	for remaining > 2.0 {
		stages = append(stages, "atempo=2.0")
		remaining /= 2.0
	}
	for remaining < 0.5 {
		stages = append(stages, "atempo=0.5")
		remaining /= 0.5
	}
	stages = append(stages, fmt.Sprintf("atempo=%.4f", remaining))

	err := NewCommandBuilder(t.binary).
		Input(inPath).
		AudioFilter(strings.Join(stages, ",")).
		Output(outPath).
		Run(ctx, "retime_audio")
	if err != nil {
		return "", err
	}
	return outPath, nil
}

// xfadeFilter chains xfade stages across the inputs. Each offset is the
// accumulated visible duration of everything already on the left input.
func xfadeFilter(durations []float64, fadeDuration float64) string {
	var filter strings.Builder
	prev := "0:v"
	offset := 0.0
	for i := 1; i < len(durations); i++ {
		offset += durations[i-1] - fadeDuration
		label := fmt.Sprintf("x%d", i)
		if i == len(durations)-1 {
			label = "vout"
		}
		fmt.Fprintf(&filter, "[%s][%d:v]xfade=transition=fade:duration=%s:offset=%s[%s];",
			prev, i, formatSeconds(fadeDuration), formatSeconds(offset), label)
		prev = label
	}
	return strings.TrimSuffix(filter.String(), ";")
}

// writeConcatList writes an ffmpeg concat demuxer list next to the output.
func writeConcatList(segmentPaths []string, outPath string) (string, error) {
	var b strings.Builder
	for _, p := range segmentPaths {
		// concat demuxer quoting: single quotes, embedded ones escaped
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(p, "'", `'\''`))
	}

	listPath := filepath.Join(filepath.Dir(outPath), ".concat_list.txt")
	if err := os.WriteFile(listPath, []byte(b.String()), 0640); err != nil {
		return "", fmt.Errorf("writing concat list: %w", err)
	}
	return listPath, nil
}

// formatSeconds renders a duration argument without scientific notation.
func formatSeconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}
