package image

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRefusesExistingTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "existing.img")

	original := []byte("do not touch")
	require.NoError(t, os.WriteFile(target, original, 0o644))

	err := Build(Options{
		Target:    target,
		RootfsDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// The pre-existing file must be untouched.
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, original, data)
}

func TestBuildRejectsUnbuiltRootfs(t *testing.T) {
	dir := t.TempDir()

	// A tree without a build manifest was not produced by the rootfs
	// driver and cannot be imaged.
	err := Build(Options{
		Target:    filepath.Join(dir, "out.img"),
		RootfsDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rootfs driver")

	_, statErr := os.Stat(filepath.Join(dir, "out.img"))
	assert.True(t, os.IsNotExist(statErr))
}
