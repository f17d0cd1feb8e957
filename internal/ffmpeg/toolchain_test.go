package ffmpeg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXfadeFilter_UniformDurations(t *testing.T) {
	// three 12s segments, 0.5s fade: offsets 11.5 and 23.0
	filter := xfadeFilter([]float64{12, 12, 12}, 0.5)

	assert.Equal(t,
		"[0:v][1:v]xfade=transition=fade:duration=0.500:offset=11.500[x1];"+
			"[x1][2:v]xfade=transition=fade:duration=0.500:offset=23.000[vout]",
		filter)
}

func TestXfadeFilter_MeasuredDurations(t *testing.T) {
	// provider variance: offsets accumulate measured durations, so a
	// short middle segment shifts every later fade
	filter := xfadeFilter([]float64{12.04, 11.2, 12.0}, 0.5)

	assert.Contains(t, filter, "offset=11.540")
	assert.Contains(t, filter, "offset=22.240")
}

func TestXfadeFilter_TwoSegments(t *testing.T) {
	filter := xfadeFilter([]float64{5, 5}, 0.5)
	assert.Equal(t,
		"[0:v][1:v]xfade=transition=fade:duration=0.500:offset=4.500[vout]",
		filter)
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "stitched.mp4")

	listPath, err := writeConcatList([]string{
		filepath.Join(dir, "segment_001.mp4"),
		filepath.Join(dir, "it's.mp4"),
	}, out)
	require.NoError(t, err)
	defer os.Remove(listPath)

	data, err := os.ReadFile(listPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "file '"+filepath.Join(dir, "segment_001.mp4")+"'")
	assert.Contains(t, content, `it'\''s.mp4`)
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "0.100", formatSeconds(0.1))
	assert.Equal(t, "11.500", formatSeconds(11.5))
	assert.Equal(t, "0.000", formatSeconds(0))
}
