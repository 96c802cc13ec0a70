package firstboot

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jodersky/rpi2-mkroot/internal/file"
	"github.com/jodersky/rpi2-mkroot/internal/shell"
)

const (
	machineIdPath     = "etc/machine-id"
	dbusMachineIdPath = "var/lib/dbus/machine-id"
)

// regenerateMachineId gives the device a fresh machine id. The image
// build clears /etc/machine-id so that each flashed device identifies
// itself uniquely; this writes the replacement.
func regenerateMachineId(root string) error {
	id, err := newMachineId()
	if err != nil {
		return err
	}

	for _, path := range []string{machineIdPath, dbusMachineIdPath} {
		err = file.Write(filepath.Join(root, path), []byte(id+"\n"), 0o644)
		if err != nil {
			return err
		}
	}

	log.WithField("machine-id", id).Info("Generated new machine id")
	return nil
}

// newMachineId produces a machine id in the format systemd expects: 32
// lowercase hexadecimal characters. dbus-uuidgen is preferred when
// present so the id matches what the rest of the system would generate,
// with a local random id as fallback.
func newMachineId() (string, error) {
	if shell.Available("dbus-uuidgen") {
		id, err := shell.Output("dbus-uuidgen")
		if err == nil && validMachineId(id) {
			return id, nil
		}
		if err != nil {
			log.WithError(err).Warn("dbus-uuidgen failed, generating machine id locally")
		}
	}

	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate machine id: %w", err)
	}

	return strings.ReplaceAll(u.String(), "-", ""), nil
}

func validMachineId(id string) bool {
	if len(id) != 32 {
		return false
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
