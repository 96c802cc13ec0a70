package firstboot

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/jodersky/rpi2-mkroot/internal/shell"
)

// regenerateSSHHostKeys replaces the SSH host keys with ones unique to
// this device. The image build strips the keys debootstrap generated,
// so every flashed device would otherwise prompt users to accept the
// same (publicly distributed) host identity.
func regenerateSSHHostKeys(root string) error {
	stale, err := filepath.Glob(filepath.Join(root, "etc/ssh/ssh_host_*"))
	if err != nil {
		return err
	}
	for _, key := range stale {
		err = os.Remove(key)
		if err != nil {
			return fmt.Errorf("failed to remove stale host key %s: %w", key, err)
		}
	}

	// dpkg-reconfigure regenerates all key types configured for the
	// installed openssh-server, which ssh-keygen -A would not honor.
	err = shell.Cmd("dpkg-reconfigure", "openssh-server").
		WithEnv("DEBIAN_FRONTEND=noninteractive").
		Run()
	if err != nil {
		return fmt.Errorf("failed to regenerate ssh host keys: %w", err)
	}

	err = shell.Run("systemctl", "restart", "ssh")
	if err != nil {
		return fmt.Errorf("failed to restart ssh with new host keys: %w", err)
	}

	log.Info("Generated new ssh host keys")
	return nil
}
