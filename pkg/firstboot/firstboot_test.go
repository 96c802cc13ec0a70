package firstboot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunNoopWithoutMarker(t *testing.T) {
	dir := t.TempDir()

	// No marker means setup already completed on an earlier boot.
	// Nothing may run, in particular no step that needs root.
	err := Run(Options{
		Root:    dir,
		Marker:  filepath.Join(dir, "etc", "rc.firstboot"),
		RcLocal: filepath.Join(dir, "etc", "rc.local"),
		LEDDir:  filepath.Join(dir, "leds"),
	})
	assert.NoError(t, err)
}

func TestRunStepsOrder(t *testing.T) {
	var order []string
	record := func(name string) func() error {
		return func() error {
			order = append(order, name)
			return nil
		}
	}

	err := runSteps([]step{
		{name: "first", run: record("first")},
		{name: "second", skip: true, run: record("second")},
		{name: "third", run: record("third")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "third"}, order)
}

func TestRunStepsAbortsOnFailure(t *testing.T) {
	var ran []string

	err := runSteps([]step{
		{name: "ok", run: func() error {
			ran = append(ran, "ok")
			return nil
		}},
		{name: "boom", run: func() error {
			ran = append(ran, "boom")
			return errors.New("kaputt")
		}},
		{name: "never", run: func() error {
			ran = append(ran, "never")
			return nil
		}},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, []string{"ok", "boom"}, ran)
}

func TestRunStepsOptionalFailureContinues(t *testing.T) {
	var ran []string

	err := runSteps([]step{
		{name: "led", optional: true, run: func() error {
			return errors.New("no led")
		}},
		{name: "work", run: func() error {
			ran = append(ran, "work")
			return nil
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, ran)
}

func TestDeactivate(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "rc.firstboot")
	rcLocal := filepath.Join(dir, "rc.local")

	require.NoError(t, os.WriteFile(marker, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(rcLocal, []byte(
		"#!/bin/sh -e\n"+
			"# local startup script\n"+
			marker+"\n"+
			"exit 0\n"), 0o755))

	require.NoError(t, Deactivate(marker, rcLocal))

	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(rcLocal)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh -e\n# local startup script\nexit 0\n", string(data))

	info, err := os.Stat(rcLocal)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	// A second deactivation must be a clean no-op.
	require.NoError(t, Deactivate(marker, rcLocal))
	data, err = os.ReadFile(rcLocal)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh -e\n# local startup script\nexit 0\n", string(data))
}

func TestDeactivateMissingRcLocal(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "rc.firstboot")
	require.NoError(t, os.WriteFile(marker, []byte("#!/bin/sh\n"), 0o755))

	assert.NoError(t, Deactivate(marker, filepath.Join(dir, "rc.local")))
}

func TestInvokesMarker(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"/etc/rc.firstboot", true},
		{"  /etc/rc.firstboot", true},
		{"\t/etc/rc.firstboot || true", true},
		{"/etc/rc.firstboot.bak", false},
		{"# /etc/rc.firstboot", false},
		{"exit 0", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, invokesMarker(tt.line, "/etc/rc.firstboot"), tt.line)
	}
}
