package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*SegmentCache, *Sandbox) {
	t.Helper()
	s := newTestSandbox(t)
	c, err := NewSegmentCache(s, nil, ttl, 32)
	require.NoError(t, err)
	return c, s
}

func TestSegmentCache_KeyDeterministicAndTruncated(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)

	k1 := c.Key("A majestic eagle soaring", 1)
	k2 := c.Key("A majestic eagle soaring", 1)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)

	// different segment index means a different key
	assert.NotEqual(t, k1, c.Key("A majestic eagle soaring", 2))
	assert.NotEqual(t, k1, c.Key("another prompt", 1))
}

func TestSegmentCache_HashLengthBounds(t *testing.T) {
	s := newTestSandbox(t)

	_, err := NewSegmentCache(s, nil, time.Hour, 4)
	assert.Error(t, err)
	_, err = NewSegmentCache(s, nil, time.Hour, 128)
	assert.Error(t, err)

	c, err := NewSegmentCache(s, nil, time.Hour, 16)
	require.NoError(t, err)
	assert.Len(t, c.Key("p", 1), 16)
}

func TestSegmentCache_StoreAndLookup(t *testing.T) {
	c, s := newTestCache(t, time.Hour)

	require.NoError(t, s.WriteFile("videos/u/v/segments/segment_001.mp4", []byte("clip")))

	entry, err := c.Store("prompt", 1, "videos/u/v/segments/segment_001.mp4", 12)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Metadata.SegmentNumber)

	hit, ok := c.Lookup("prompt", 1)
	require.True(t, ok)
	assert.Equal(t, entry.Hash, hit.Hash)

	_, ok = c.Lookup("prompt", 2)
	assert.False(t, ok)
}

func TestSegmentCache_CopyTo(t *testing.T) {
	c, s := newTestCache(t, time.Hour)

	require.NoError(t, s.WriteFile("src.mp4", []byte("clip")))
	entry, err := c.Store("prompt", 1, "src.mp4", 12)
	require.NoError(t, err)

	require.NoError(t, c.CopyTo(entry, "videos/u/v2/segments/segment_001.mp4"))
	data, err := s.ReadFile("videos/u/v2/segments/segment_001.mp4")
	require.NoError(t, err)
	assert.Equal(t, []byte("clip"), data)
}

func TestSegmentCache_ExpiredEntrySelfHeals(t *testing.T) {
	c, s := newTestCache(t, -time.Second)

	require.NoError(t, s.WriteFile("src.mp4", []byte("clip")))
	entry, err := c.Store("prompt", 1, "src.mp4", 12)
	require.NoError(t, err)

	_, ok := c.Lookup("prompt", 1)
	assert.False(t, ok)

	// the stale file is gone too
	exists, err := s.Exists(entry.FilePath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSegmentCache_MissingFileSelfHeals(t *testing.T) {
	c, s := newTestCache(t, time.Hour)

	require.NoError(t, s.WriteFile("src.mp4", []byte("clip")))
	entry, err := c.Store("prompt", 1, "src.mp4", 12)
	require.NoError(t, err)

	require.NoError(t, s.Remove(entry.FilePath))

	_, ok := c.Lookup("prompt", 1)
	assert.False(t, ok)

	// a second lookup stays a clean miss
	_, ok = c.Lookup("prompt", 1)
	assert.False(t, ok)
}

func TestSegmentCache_CleanupRemovesExpiredAndOrphans(t *testing.T) {
	c, s := newTestCache(t, time.Hour)

	require.NoError(t, s.WriteFile("src.mp4", []byte("clip")))
	_, err := c.Store("live", 1, "src.mp4", 12)
	require.NoError(t, err)

	// orphan file without a manifest entry
	require.NoError(t, s.WriteFile("cache/segments/deadbeef.mp4", []byte("orphan")))

	removed, err := c.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// live entry survives
	_, ok := c.Lookup("live", 1)
	assert.True(t, ok)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Greater(t, stats.TotalBytes, int64(0))
	assert.False(t, stats.LastSweep.IsZero())
}

func TestSegmentCache_LastCleanupSurvivesRestart(t *testing.T) {
	c, s := newTestCache(t, time.Hour)

	require.NoError(t, s.WriteFile("src.mp4", []byte("clip")))
	_, err := c.Store("prompt", 1, "src.mp4", 12)
	require.NoError(t, err)

	_, err = c.Cleanup()
	require.NoError(t, err)

	reopened, err := NewSegmentCache(s, nil, time.Hour, 32)
	require.NoError(t, err)

	stats, err := reopened.Stats()
	require.NoError(t, err)
	assert.False(t, stats.LastSweep.IsZero())
	assert.Equal(t, 1, stats.Entries)
}

func TestSegmentCache_CorruptManifestIsMiss(t *testing.T) {
	c, s := newTestCache(t, time.Hour)

	require.NoError(t, s.WriteFile("cache/segments/manifest.json", []byte("{not json")))

	_, ok := c.Lookup("prompt", 1)
	assert.False(t, ok)

	// store rebuilds the manifest
	require.NoError(t, s.WriteFile("src.mp4", []byte("clip")))
	_, err := c.Store("prompt", 1, "src.mp4", 12)
	require.NoError(t, err)

	_, ok = c.Lookup("prompt", 1)
	assert.True(t, ok)
}
