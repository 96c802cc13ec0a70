package image

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeSize(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "etc", "ssh"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "etc", "fstab"), make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "etc", "ssh", "sshd_config"), make([]byte, 900), 0o644))
	require.NoError(t, os.Symlink("fstab", filepath.Join(dir, "etc", "mtab")))

	size, err := TreeSize(dir)
	require.NoError(t, err)
	// Directories and symlinks do not count.
	assert.Equal(t, uint64(1000), size)
}

func TestTreeSizeEmpty(t *testing.T) {
	size, err := TreeSize(t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestTreeSizeMissingDir(t *testing.T) {
	_, err := TreeSize(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
