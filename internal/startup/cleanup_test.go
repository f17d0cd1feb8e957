package startup

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o640))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestCleanupOrphanedTempFiles(t *testing.T) {
	dir := t.TempDir()

	stale := filepath.Join(dir, "videos", "u1", "run", ".segment_001.mp4.a1b2c3d4.tmp")
	fresh := filepath.Join(dir, "videos", "u1", "run", ".segment_002.mp4.deadbeef.tmp")
	artifact := filepath.Join(dir, "videos", "u1", "run", "segment_001.mp4")

	writeAged(t, stale, 2*time.Hour)
	writeAged(t, fresh, time.Minute)
	writeAged(t, artifact, 2*time.Hour)

	removed, err := CleanupOrphanedTempFiles(quietLogger(), dir, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, artifact)
}

func TestCleanupOrphanedTempFiles_MissingBaseDir(t *testing.T) {
	removed, err := CleanupOrphanedTempFiles(quietLogger(), filepath.Join(t.TempDir(), "nope"), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestIsTempName(t *testing.T) {
	assert.True(t, isTempName(".final_720p.mp4.0011aabb.tmp"))
	assert.False(t, isTempName("final_720p.mp4"))
	assert.False(t, isTempName(".hidden"))
	assert.False(t, isTempName("notes.tmp"))
}
