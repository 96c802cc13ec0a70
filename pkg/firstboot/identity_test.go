package firstboot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegenerateMachineId(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, regenerateMachineId(root))

	etc, err := os.ReadFile(filepath.Join(root, "etc", "machine-id"))
	require.NoError(t, err)
	dbus, err := os.ReadFile(filepath.Join(root, "var", "lib", "dbus", "machine-id"))
	require.NoError(t, err)

	assert.Equal(t, etc, dbus)
	require.Len(t, etc, 33)
	assert.Equal(t, byte('\n'), etc[32])
	assert.True(t, validMachineId(string(etc[:32])))
}

func TestNewMachineIdFormat(t *testing.T) {
	id, err := newMachineId()
	require.NoError(t, err)
	assert.True(t, validMachineId(id), id)
}

func TestValidMachineId(t *testing.T) {
	assert.True(t, validMachineId("0123456789abcdef0123456789abcdef"))
	assert.False(t, validMachineId("0123456789ABCDEF0123456789ABCDEF"))
	assert.False(t, validMachineId("0123456789abcdef"))
	assert.False(t, validMachineId("0123456789abcdef0123456789abcdeg"))
	assert.False(t, validMachineId(""))
}
