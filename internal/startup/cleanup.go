// Package startup provides application startup housekeeping.
package startup

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultCleanupAge is the default maximum age for orphaned temp files.
const DefaultCleanupAge = 1 * time.Hour

// tempSuffix matches the temp files left behind by interrupted atomic
// writes (".<name>.<random>.tmp" next to the target file).
const tempSuffix = ".tmp"

// CleanupOrphanedTempFiles removes stale atomic-write temp files under
// the storage root. A crash mid-write leaves the temp file behind; the
// rename never happened, so removing it is always safe. Files newer than
// maxAge are kept in case a write is in flight.
//
// Returns the number of files removed.
func CleanupOrphanedTempFiles(logger *slog.Logger, baseDir string, maxAge time.Duration) (int, error) {
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		return 0, nil
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	err := filepath.WalkDir(baseDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("skipping unreadable path during temp cleanup",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !isTempName(entry.Name()) {
			return nil
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			logger.Warn("failed to remove orphaned temp file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return nil
		}

		logger.Info("removed orphaned temp file",
			slog.String("path", path),
			slog.Duration("age", time.Since(info.ModTime()).Round(time.Second)),
		)
		removed++
		return nil
	})

	return removed, err
}

func isTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, tempSuffix)
}
