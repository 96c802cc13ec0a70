package firstboot

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"

	"github.com/jodersky/rpi2-mkroot/internal/shell"
)

// rebuildInitramfs regenerates the initramfs for the running kernel.
// The one shipped in the image was built in a chroot on the build host
// and may lack modules resolved against the device's own /etc (resume,
// fstab-referenced filesystems).
func rebuildInitramfs() error {
	if !shell.Available("update-initramfs") {
		log.Info("update-initramfs not installed, skipping initramfs rebuild")
		return nil
	}

	err := shell.Run("update-initramfs", "-u")
	if err != nil {
		return fmt.Errorf("failed to rebuild initramfs: %w", err)
	}

	return nil
}

// restartNetworking restarts the network stack so interfaces come up
// with the device's new identity, then ssh so it serves the new host
// keys. Order matters: ssh needs the network up to bind.
func restartNetworking() error {
	err := shell.RunGroup(
		shell.Cmd("systemctl", "restart", "networking"),
		shell.Cmd("systemctl", "restart", "ssh"),
	)
	if err != nil {
		return err
	}

	warnIfNoLinkUp()
	return nil
}

// warnIfNoLinkUp logs a warning when no non-loopback interface is up
// after the restart. Headless devices are only reachable over the
// network, so this is the one diagnostic worth leaving in the log.
func warnIfNoLinkUp() {
	links, err := netlink.LinkList()
	if err != nil {
		log.WithError(err).Warn("Failed to list network links")
		return
	}

	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Name == "lo" {
			continue
		}
		if attrs.Flags&net.FlagUp != 0 {
			log.WithField("interface", attrs.Name).Debug("Network link is up")
			return
		}
	}

	log.Warn("No network interface is up after restart")
}
