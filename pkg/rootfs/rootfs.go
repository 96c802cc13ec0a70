// Package rootfs builds a bootable Debian root filesystem tree for a
// supported board: debootstrap, board configuration, chroot package
// provisioning and the first-boot hook.
package rootfs

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/jodersky/rpi2-mkroot/internal/file"
	"github.com/jodersky/rpi2-mkroot/internal/shell"
	"github.com/jodersky/rpi2-mkroot/pkg/board"
)

//go:embed assets/rc.firstboot
var rcFirstbootScript []byte

//go:embed assets/rc.local
var rcLocalScript []byte

type Options struct {
	Board    board.Board
	Target   string
	Hostname string
	Release  string
	Mirror   string
	// SSHKey is an optional public key installed for root.
	SSHKey string
	// Password is the root password set inside the chroot.
	Password string
	// SkipDebootstrap reuses an existing debootstrapped tree and only
	// re-runs provisioning.
	SkipDebootstrap bool
	// FirstbootBinary is an optional arm build of mkroot copied into
	// the tree so the first-boot hook can run it.
	FirstbootBinary string
}

// Build creates (or re-provisions) the root filesystem tree.
func Build(opts Options) error {
	if opts.Hostname == "" {
		opts.Hostname = opts.Board.DefaultHostname()
	}

	var authorizedKey []byte
	if opts.SSHKey != "" {
		var err error
		authorizedKey, err = loadAuthorizedKey(opts.SSHKey)
		if err != nil {
			return err
		}
	}

	if opts.SkipDebootstrap {
		exists, err := file.DirExists(filepath.Join(opts.Target, "etc"))
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s does not contain a debootstrapped tree, cannot skip debootstrap", opts.Target)
		}
		log.WithField("target", opts.Target).Info("Reusing existing debootstrapped tree")
	} else {
		err := debootstrap(opts)
		if err != nil {
			return err
		}
	}

	err := writeConfigFiles(opts)
	if err != nil {
		return err
	}

	err = provision(opts)
	if err != nil {
		return err
	}

	err = writeBootFiles(opts)
	if err != nil {
		return err
	}

	err = purgeHostIdentity(opts.Target)
	if err != nil {
		return err
	}

	if authorizedKey != nil {
		err = installAuthorizedKey(opts.Target, authorizedKey)
		if err != nil {
			return err
		}
	}

	err = InstallFirstBootHook(opts.Target, opts.FirstbootBinary)
	if err != nil {
		return err
	}

	err = WriteManifest(opts.Target, Manifest{
		Board:    opts.Board.Name,
		Release:  opts.Release,
		Hostname: opts.Hostname,
		BuiltAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	log.WithField("target", opts.Target).Info("Root filesystem build finished.")
	return nil
}

// debootstrap bootstraps the minimal Debian userland. On a non-arm
// host the qemu variant is required so that the second stage can run
// the target's binaries under emulation.
func debootstrap(opts Options) error {
	tool := "debootstrap"
	if runtime.GOARCH != "arm" && runtime.GOARCH != "arm64" {
		tool = "qemu-debootstrap"
		if !shell.Available(tool) {
			return fmt.Errorf("qemu-debootstrap is required to bootstrap %s on a %s host", opts.Board.Arch, runtime.GOARCH)
		}
	}

	log.WithField("release", opts.Release).WithField("target", opts.Target).Info("Bootstrapping base system...")

	return shell.Run(tool,
		"--arch="+opts.Board.Arch,
		"--variant=minbase",
		"--include=apt-utils",
		opts.Release,
		opts.Target,
		opts.Mirror,
	)
}

func writeConfigFiles(opts Options) error {
	b := opts.Board

	files := []struct {
		path    string
		content string
		perm    os.FileMode
	}{
		{"etc/fstab", fstab(b), 0o644},
		{"etc/hostname", opts.Hostname + "\n", 0o644},
		{"etc/hosts", hosts(opts.Hostname), 0o644},
		{"etc/apt/sources.list", sourcesList(opts.Release, opts.Mirror), 0o644},
		{"etc/network/interfaces.d/eth0", interfacesEth0(), 0o644},
	}

	for _, f := range files {
		log.Debugf("Writing %s", f.path)
		err := file.Write(filepath.Join(opts.Target, f.path), []byte(f.content), f.perm)
		if err != nil {
			return err
		}
	}

	return nil
}

// provision runs the package installation and service configuration
// inside a chroot of the target tree.
func provision(opts Options) error {
	chroot, err := EnterChroot(opts.Target)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := chroot.Close()
		if closeErr != nil {
			log.WithError(closeErr).Error("Failed to tear down chroot mounts")
		}
	}()

	log.Info("Installing board packages in chroot...")

	err = chroot.Run("apt-get", "update")
	if err != nil {
		return fmt.Errorf("apt-get update failed: %w", err)
	}

	installArgs := append([]string{"apt-get", "install", "-y", "--no-install-recommends"}, opts.Board.Packages()...)
	err = chroot.Run(installArgs...)
	if err != nil {
		return fmt.Errorf("package installation failed: %w", err)
	}

	if opts.Password != "" {
		err = chroot.RunWithStdin("root:"+opts.Password, "chpasswd")
		if err != nil {
			return fmt.Errorf("failed to set root password: %w", err)
		}
	}

	err = chroot.Run("systemctl", "enable", "ssh")
	if err != nil {
		return fmt.Errorf("failed to enable ssh: %w", err)
	}

	if opts.Board.UsesUBoot() {
		err = compileBootScript(chroot, opts.Board)
		if err != nil {
			return err
		}
	}

	return nil
}

// writeBootFiles places the board's boot payload into the tree.
func writeBootFiles(opts Options) error {
	b := opts.Board

	if len(b.ConfigTxt) != 0 {
		path := filepath.Join(opts.Target, b.BootMount, "config.txt")
		log.Debugf("Writing %s", path)
		err := file.Write(path, b.ConfigTxt, 0o644)
		if err != nil {
			return err
		}
	}

	return nil
}

// compileBootScript writes boot.cmd and compiles it to the boot.scr
// image u-boot loads. mkimage comes from u-boot-tools, installed with
// the board packages, so this runs inside the chroot.
func compileBootScript(chroot *Chroot, b board.Board) error {
	cmdPath := filepath.Join(chroot.root, "boot", "boot.cmd")
	err := file.Write(cmdPath, b.BootCmd, 0o644)
	if err != nil {
		return err
	}

	err = chroot.Run("mkimage", "-C", "none", "-A", "arm", "-T", "script",
		"-d", "/boot/boot.cmd", "/boot/boot.scr")
	if err != nil {
		return fmt.Errorf("failed to compile boot.scr: %w", err)
	}

	return nil
}

// purgeHostIdentity removes the identity files debootstrap and the
// package installation created. Every device flashed from this tree
// must generate its own on first boot; shipping shared SSH host keys
// or a shared machine id would defeat both.
func purgeHostIdentity(root string) error {
	hostKeys, err := filepath.Glob(filepath.Join(root, "etc/ssh/ssh_host_*"))
	if err != nil {
		return err
	}
	for _, key := range hostKeys {
		log.Debugf("Removing %s", key)
		err = os.Remove(key)
		if err != nil {
			return fmt.Errorf("failed to remove host key %s: %w", key, err)
		}
	}

	for _, id := range []string{"etc/machine-id", "var/lib/dbus/machine-id"} {
		err = os.Remove(filepath.Join(root, id))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", id, err)
		}
	}

	return nil
}

// loadAuthorizedKey reads and validates a public key file. Rejecting a
// malformed key here beats finding out after flashing that root has no
// usable login.
func loadAuthorizedKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key %s: %w", path, err)
	}

	_, _, _, _, err = ssh.ParseAuthorizedKey(data)
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid authorized key: %w", path, err)
	}

	if !strings.HasSuffix(string(data), "\n") {
		data = append(data, '\n')
	}

	return data, nil
}

func installAuthorizedKey(root string, key []byte) error {
	sshDir := filepath.Join(root, "root", ".ssh")
	err := os.MkdirAll(sshDir, 0o700)
	if err != nil {
		return err
	}

	return file.Write(filepath.Join(sshDir, "authorized_keys"), key, 0o600)
}

// InstallFirstBootHook embeds the one-time initialization hook:
// /etc/rc.firstboot runs "mkroot firstboot run" and /etc/rc.local
// invokes it on every boot until it deactivates itself.
func InstallFirstBootHook(root, firstbootBinary string) error {
	err := file.Write(filepath.Join(root, "etc", "rc.firstboot"), rcFirstbootScript, 0o755)
	if err != nil {
		return err
	}

	err = file.Write(filepath.Join(root, "etc", "rc.local"), rcLocalScript, 0o755)
	if err != nil {
		return err
	}

	if firstbootBinary != "" {
		dst := filepath.Join(root, "usr", "local", "sbin", "mkroot")
		log.Debugf("Installing firstboot binary to %s", dst)
		err = file.Copy(firstbootBinary, dst, 0o755)
		if err != nil {
			return err
		}
	}

	return nil
}
