// Package util provides shared utility functions.
package util

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FindBinary resolves an executable by name or path. An explicit path
// (anything containing a separator) is verified directly; a bare name is
// checked in the current directory first, then on PATH. Used at startup
// to fail fast when ffmpeg or ffprobe is missing.
func FindBinary(nameOrPath string) (string, error) {
	if nameOrPath == "" {
		return "", fmt.Errorf("binary name is empty")
	}

	if filepath.Base(nameOrPath) != nameOrPath {
		if isExecutable(nameOrPath) {
			return nameOrPath, nil
		}
		return "", fmt.Errorf("binary %s not found or not executable", nameOrPath)
	}

	if local := "./" + nameOrPath; isExecutable(local) {
		return local, nil
	}

	if path, err := exec.LookPath(nameOrPath); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("binary %s not found", nameOrPath)
}

// isExecutable reports whether path is a regular file with an execute bit.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
