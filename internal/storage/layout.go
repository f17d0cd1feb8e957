package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// Artifact file names within a video directory.
const (
	FileStitched720 = "stitched_720p.mp4"
	FileAudio       = "audio.mp3"
	FileMerged      = "merged.mp4"
	FileFinal720    = "final_720p.mp4"
	FileFinal480    = "final_480p.mp4"
	FileThumbnail   = "thumbnail.jpg"
)

// bytesPerSecondEstimate is the working estimate for 1080p H.264 output,
// used only for the disk-space preflight check.
const bytesPerSecondEstimate = 1_500_000

// VideoLayout maps a video run onto the deterministic on-disk tree:
//
//	videos/<userID>/<videoID>/segments/segment_NNN.mp4
//	videos/<userID>/<videoID>/frames/frame_NNN.jpg
//	videos/<userID>/<videoID>/{stitched_720p,merged,final_720p,final_480p}.mp4
//	videos/<userID>/<videoID>/audio.mp3
//	videos/<userID>/<videoID>/thumbnail.jpg
type VideoLayout struct {
	sandbox       *Sandbox
	publicBaseURL string
}

// NewVideoLayout creates a VideoLayout over the given sandbox.
func NewVideoLayout(sandbox *Sandbox, publicBaseURL string) *VideoLayout {
	return &VideoLayout{
		sandbox:       sandbox,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Sandbox returns the underlying sandbox.
func (l *VideoLayout) Sandbox() *Sandbox {
	return l.sandbox
}

// VideoDir returns the relative directory of a video run.
func (l *VideoLayout) VideoDir(userID, videoID string) string {
	return filepath.Join("videos", userID, videoID)
}

// SegmentPath returns the relative path of segment n (1-based).
func (l *VideoLayout) SegmentPath(userID, videoID string, n int) string {
	return filepath.Join(l.VideoDir(userID, videoID), "segments", fmt.Sprintf("segment_%03d.mp4", n))
}

// FramePath returns the relative path of the extracted last frame of
// segment n (1-based).
func (l *VideoLayout) FramePath(userID, videoID string, n int) string {
	return filepath.Join(l.VideoDir(userID, videoID), "frames", fmt.Sprintf("frame_%03d.jpg", n))
}

// ArtifactPath returns the relative path of a named artifact file.
func (l *VideoLayout) ArtifactPath(userID, videoID, name string) string {
	return filepath.Join(l.VideoDir(userID, videoID), name)
}

// CreateTree creates the video's directory tree.
func (l *VideoLayout) CreateTree(userID, videoID string) error {
	dir := l.VideoDir(userID, videoID)
	if err := l.sandbox.MkdirAll(filepath.Join(dir, "segments")); err != nil {
		return err
	}
	return l.sandbox.MkdirAll(filepath.Join(dir, "frames"))
}

// ExistingSegments returns the relative paths of segment files already on
// disk for the run, sorted ascending by segment number.
func (l *VideoLayout) ExistingSegments(userID, videoID string) ([]string, error) {
	return l.sandbox.List(filepath.Join(l.VideoDir(userID, videoID), "segments"), "segment_*.mp4")
}

// DeleteTree removes the video's whole subtree.
func (l *VideoLayout) DeleteTree(userID, videoID string) error {
	return l.sandbox.RemoveAll(l.VideoDir(userID, videoID))
}

// AbsolutePath resolves a relative artifact path against the storage root.
func (l *VideoLayout) AbsolutePath(relativePath string) (string, error) {
	return l.sandbox.ResolvePath(relativePath)
}

// PublicURL maps a stored relative path to an externally visible URL.
func (l *VideoLayout) PublicURL(relativePath string) string {
	p := path.Join("files", filepath.ToSlash(relativePath))
	if l.publicBaseURL == "" {
		return "/" + p
	}
	return l.publicBaseURL + "/" + p
}

// DiskStats describes the filesystem hosting the storage root.
type DiskStats struct {
	Total       uint64  `json:"total_bytes"`
	Free        uint64  `json:"free_bytes"`
	Used        uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskUsage reports usage of the filesystem hosting the storage root.
func (l *VideoLayout) DiskUsage() (*DiskStats, error) {
	usage, err := disk.Usage(l.sandbox.BaseDir())
	if err != nil {
		return nil, fmt.Errorf("reading disk usage: %w", err)
	}
	return &DiskStats{
		Total:       usage.Total,
		Free:        usage.Free,
		Used:        usage.Used,
		UsedPercent: usage.UsedPercent,
	}, nil
}

// EstimateRequiredBytes estimates the disk space a run will need: raw
// segments plus stitched, merged, and two transcoded outputs, doubled as
// headroom for temp files.
func EstimateRequiredBytes(targetDuration int) uint64 {
	perPass := uint64(targetDuration) * bytesPerSecondEstimate
	// segments + stitched + merged + final_720p + final_480p
	return 2 * (perPass*4 + perPass/2)
}

// HasSpaceFor reports whether the storage filesystem can hold a run of
// the given duration.
func (l *VideoLayout) HasSpaceFor(targetDuration int) (bool, error) {
	stats, err := l.DiskUsage()
	if err != nil {
		return false, err
	}
	return stats.Free > EstimateRequiredBytes(targetDuration), nil
}
