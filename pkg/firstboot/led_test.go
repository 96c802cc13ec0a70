package firstboot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLEDTrigger(t *testing.T) {
	leds := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(leds, "led0"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(leds, "led0", "trigger"), []byte("none"), 0o644))

	require.NoError(t, setLEDTrigger(leds, "led0", "timer"))

	data, err := os.ReadFile(filepath.Join(leds, "led0", "trigger"))
	require.NoError(t, err)
	assert.Equal(t, "timer", string(data))
}

func TestSetLEDTriggerMissingLED(t *testing.T) {
	// A device without the expected LED must not fail setup.
	assert.NoError(t, setLEDTrigger(t.TempDir(), "led0", "timer"))
}

func TestSetLEDTriggerNoLEDConfigured(t *testing.T) {
	assert.NoError(t, setLEDTrigger(t.TempDir(), "", "timer"))
}
