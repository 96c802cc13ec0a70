package rootfs

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/moby/sys/mountinfo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/jodersky/rpi2-mkroot/internal/shell"
)

// Pseudo-filesystems the provisioning commands need inside the chroot,
// bind-mounted in this order and unmounted in reverse.
var chrootBinds = []string{"/proc", "/sys", "/dev", "/dev/pts"}

// Chroot prepares a target tree for running provisioning commands with
// the chroot utility. It owns the bind mounts and must be closed even
// when provisioning fails.
type Chroot struct {
	root    string
	mounted []string
}

// EnterChroot bind-mounts the host pseudo-filesystems into the tree.
// On any failure it unwinds the mounts already made.
func EnterChroot(root string) (*Chroot, error) {
	c := &Chroot{root: root}

	for _, bind := range chrootBinds {
		target := filepath.Join(root, bind)
		err := unix.Mount(bind, target, "", unix.MS_BIND, "")
		if err != nil {
			closeErr := c.Close()
			if closeErr != nil {
				log.WithError(closeErr).Error("Failed to unwind chroot mounts")
			}
			return nil, fmt.Errorf("failed to bind mount %s to %s: %w", bind, target, err)
		}
		c.mounted = append(c.mounted, target)
	}

	return c, nil
}

// Run executes a command inside the chroot. apt is told to stay
// non-interactive; package configuration must never block the build
// waiting for a terminal.
func (c *Chroot) Run(arg ...string) error {
	args := append([]string{c.root}, arg...)
	return shell.Cmd("chroot", args...).
		WithEnv("DEBIAN_FRONTEND=noninteractive", "LC_ALL=C", "LANG=C").
		Run()
}

// RunWithStdin executes a command inside the chroot feeding it input,
// used for chpasswd.
func (c *Chroot) RunWithStdin(stdin string, arg ...string) error {
	args := append([]string{c.root}, arg...)
	return shell.Cmd("chroot", args...).
		WithEnv("DEBIAN_FRONTEND=noninteractive", "LC_ALL=C", "LANG=C").
		WithStdin(stdin).
		Run()
}

// Close unmounts the bind mounts in reverse order. A mount can stay
// busy for a moment after the last chroot process exits, so EBUSY is
// retried before giving up. After unmounting, the mount table is
// checked for anything still mounted below the tree.
func (c *Chroot) Close() error {
	const (
		maxRetries = 5
		retryDelay = time.Second
	)

	for i := len(c.mounted) - 1; i >= 0; i-- {
		target := c.mounted[i]

		var err error
		for attempt := 0; attempt < maxRetries; attempt++ {
			err = unix.Unmount(target, 0)
			if err == nil || errors.Is(err, unix.EINVAL) {
				// EINVAL means not mounted, which is fine here.
				err = nil
				break
			}
			if !errors.Is(err, unix.EBUSY) {
				break
			}
			log.Debugf("%s is busy, retrying unmount", target)
			time.Sleep(retryDelay)
		}
		if err != nil {
			return fmt.Errorf("failed to unmount %s: %w", target, err)
		}
	}
	c.mounted = nil

	leftover, err := mountinfo.GetMounts(mountinfo.PrefixFilter(c.root))
	if err != nil {
		return fmt.Errorf("failed to read mount table: %w", err)
	}
	if len(leftover) != 0 {
		return fmt.Errorf("%d mounts still active below %s, first: %s", len(leftover), c.root, leftover[0].Mountpoint)
	}

	return nil
}
