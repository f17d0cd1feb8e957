package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindBinary_ExplicitPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "fakempeg")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	found, err := FindBinary(bin)
	require.NoError(t, err)
	assert.Equal(t, bin, found)
}

func TestFindBinary_ExplicitPathNotExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "fakempeg")
	require.NoError(t, os.WriteFile(bin, []byte("data"), 0o644))

	_, err := FindBinary(bin)
	assert.Error(t, err)
}

func TestFindBinary_OnPath(t *testing.T) {
	found, err := FindBinary("sh")
	require.NoError(t, err)
	assert.NotEmpty(t, found)
}

func TestFindBinary_Missing(t *testing.T) {
	_, err := FindBinary("definitely-not-a-real-binary-name")
	assert.Error(t, err)
}

func TestFindBinary_Empty(t *testing.T) {
	_, err := FindBinary("")
	assert.Error(t, err)
}
