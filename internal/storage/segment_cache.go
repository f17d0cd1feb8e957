package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const (
	cacheDir      = "cache/segments"
	manifestName  = "manifest.json"
	minHashLength = 8
)

// CacheEntry describes one content-addressed cached segment.
type CacheEntry struct {
	Hash      string             `json:"hash"`
	FilePath  string             `json:"file_path"`
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
	Metadata  CacheEntryMetadata `json:"metadata"`
}

// CacheEntryMetadata records what produced the cached segment.
type CacheEntryMetadata struct {
	ScenePrompt   string  `json:"scene_prompt"`
	SegmentNumber int     `json:"segment_number"`
	Duration      float64 `json:"duration,omitempty"`
}

// cacheManifest is the on-disk manifest format.
type cacheManifest struct {
	Entries     map[string]CacheEntry `json:"entries"`
	LastCleanup time.Time             `json:"last_cleanup,omitempty"`
}

// CacheStats summarizes the cache for the system status endpoint.
type CacheStats struct {
	Entries    int       `json:"entries"`
	TotalBytes int64     `json:"total_bytes"`
	OldestAt   time.Time `json:"oldest_at,omitempty"`
	LastSweep  time.Time `json:"last_sweep,omitempty"`
}

// SegmentCache is a content-addressed file cache for generated segments,
// keyed by scene prompt and segment index. The cache is advisory: a miss
// or a stale entry just means the segment is generated again. Only the
// orchestrator writes; readers may probe concurrently.
type SegmentCache struct {
	sandbox    *Sandbox
	logger     *slog.Logger
	ttl        time.Duration
	hashLength int

	mu sync.Mutex
}

// NewSegmentCache creates a SegmentCache over the sandbox. hashLength is
// the hex-character length cache keys are truncated to.
func NewSegmentCache(sandbox *Sandbox, logger *slog.Logger, ttl time.Duration, hashLength int) (*SegmentCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if hashLength < minHashLength || hashLength > sha256.Size*2 {
		return nil, fmt.Errorf("cache hash length %d out of range [%d,%d]", hashLength, minHashLength, sha256.Size*2)
	}
	if err := sandbox.MkdirAll(cacheDir); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &SegmentCache{
		sandbox:    sandbox,
		logger:     logger,
		ttl:        ttl,
		hashLength: hashLength,
	}, nil
}

// Key computes the truncated content hash for a scene prompt and segment
// number.
func (c *SegmentCache) Key(scenePrompt string, segmentNumber int) string {
	sum := sha256.Sum256([]byte(scenePrompt + strconv.Itoa(segmentNumber)))
	return hex.EncodeToString(sum[:])[:c.hashLength]
}

// Lookup returns the cache entry for the key if it exists, is unexpired,
// and its file is present on disk. Stale or orphaned entries are removed
// on the way, so the manifest self-heals.
func (c *SegmentCache) Lookup(scenePrompt string, segmentNumber int) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.Key(scenePrompt, segmentNumber)
	manifest, err := c.loadManifest()
	if err != nil {
		c.logger.Warn("cache manifest unreadable, treating as miss", slog.String("error", err.Error()))
		return nil, false
	}

	entry, ok := manifest.Entries[key]
	if !ok {
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		c.evictLocked(manifest, key, entry)
		return nil, false
	}

	exists, err := c.sandbox.Exists(entry.FilePath)
	if err != nil || !exists {
		c.evictLocked(manifest, key, entry)
		return nil, false
	}

	return &entry, true
}

// Store copies the segment file at srcRelative into the cache and records
// it in the manifest. The manifest rewrite is atomic.
func (c *SegmentCache) Store(scenePrompt string, segmentNumber int, srcRelative string, duration float64) (*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.Key(scenePrompt, segmentNumber)
	cachePath := filepath.Join(cacheDir, key+".mp4")

	if err := c.sandbox.CopyFile(srcRelative, cachePath); err != nil {
		return nil, fmt.Errorf("copying segment into cache: %w", err)
	}

	now := time.Now()
	entry := CacheEntry{
		Hash:      key,
		FilePath:  cachePath,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
		Metadata: CacheEntryMetadata{
			ScenePrompt:   scenePrompt,
			SegmentNumber: segmentNumber,
			Duration:      duration,
		},
	}

	manifest, err := c.loadManifest()
	if err != nil {
		// A corrupt manifest is rebuilt from scratch; cached files it
		// referenced become orphans and are swept by Cleanup.
		c.logger.Warn("rebuilding cache manifest", slog.String("error", err.Error()))
		manifest = &cacheManifest{Entries: map[string]CacheEntry{}}
	}
	manifest.Entries[key] = entry

	if err := c.saveManifest(manifest); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CopyTo copies a cached segment to the destination relative path.
func (c *SegmentCache) CopyTo(entry *CacheEntry, dstRelative string) error {
	if err := c.sandbox.CopyFile(entry.FilePath, dstRelative); err != nil {
		return fmt.Errorf("copying cached segment: %w", err)
	}
	return nil
}

// Cleanup removes expired manifest entries, their files, and orphaned
// cache files with no manifest entry. Returns how many files were removed.
func (c *SegmentCache) Cleanup() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	manifest, err := c.loadManifest()
	if err != nil {
		manifest = &cacheManifest{Entries: map[string]CacheEntry{}}
	}

	removed := 0
	now := time.Now()
	for key, entry := range manifest.Entries {
		if now.After(entry.ExpiresAt) {
			if err := c.sandbox.Remove(entry.FilePath); err == nil {
				removed++
			}
			delete(manifest.Entries, key)
		}
	}

	// Orphans: files on disk with no live manifest entry.
	files, err := c.sandbox.List(cacheDir, "*.mp4")
	if err != nil {
		return removed, fmt.Errorf("listing cache files: %w", err)
	}
	live := make(map[string]bool, len(manifest.Entries))
	for _, entry := range manifest.Entries {
		live[entry.FilePath] = true
	}
	for _, f := range files {
		if !live[f] {
			if err := c.sandbox.Remove(f); err == nil {
				removed++
			}
		}
	}

	manifest.LastCleanup = now
	if err := c.saveManifest(manifest); err != nil {
		return removed, err
	}

	if removed > 0 {
		c.logger.Info("segment cache cleaned", slog.Int("removed", removed))
	}
	return removed, nil
}

// Stats summarizes the current cache contents.
func (c *SegmentCache) Stats() (*CacheStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	manifest, err := c.loadManifest()
	if err != nil {
		return &CacheStats{}, nil
	}

	stats := &CacheStats{Entries: len(manifest.Entries), LastSweep: manifest.LastCleanup}
	for _, entry := range manifest.Entries {
		if size, err := c.sandbox.Size(entry.FilePath); err == nil {
			stats.TotalBytes += size
		}
		if stats.OldestAt.IsZero() || entry.CreatedAt.Before(stats.OldestAt) {
			stats.OldestAt = entry.CreatedAt
		}
	}
	return stats, nil
}

// evictLocked drops a stale entry and its file. Callers hold c.mu.
func (c *SegmentCache) evictLocked(manifest *cacheManifest, key string, entry CacheEntry) {
	delete(manifest.Entries, key)
	_ = c.sandbox.Remove(entry.FilePath)
	if err := c.saveManifest(manifest); err != nil {
		c.logger.Warn("saving manifest after eviction", slog.String("error", err.Error()))
	}
}

func (c *SegmentCache) manifestPath() string {
	return filepath.Join(cacheDir, manifestName)
}

func (c *SegmentCache) loadManifest() (*cacheManifest, error) {
	exists, err := c.sandbox.Exists(c.manifestPath())
	if err != nil {
		return nil, err
	}
	if !exists {
		return &cacheManifest{Entries: map[string]CacheEntry{}}, nil
	}

	data, err := c.sandbox.ReadFile(c.manifestPath())
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var manifest cacheManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if manifest.Entries == nil {
		manifest.Entries = map[string]CacheEntry{}
	}
	return &manifest, nil
}

func (c *SegmentCache) saveManifest(manifest *cacheManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := c.sandbox.AtomicWrite(c.manifestPath(), data); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}
