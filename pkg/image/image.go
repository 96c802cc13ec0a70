// Package image packages a prepared root filesystem tree into a
// partitioned disk image ready to be written to an SD card.
package image

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/jodersky/rpi2-mkroot/internal/cleanup"
	"github.com/jodersky/rpi2-mkroot/internal/file"
	"github.com/jodersky/rpi2-mkroot/internal/shell"
	"github.com/jodersky/rpi2-mkroot/pkg/board"
	"github.com/jodersky/rpi2-mkroot/pkg/diskutils"
	"github.com/jodersky/rpi2-mkroot/pkg/rootfs"
)

type Options struct {
	// Target is the image file to create. It must not exist yet.
	Target string
	// RootfsDir is a tree previously built by the rootfs driver.
	RootfsDir string
	// BootSize overrides the boot partition size (bytes).
	BootSize uint64
	// Compress additionally writes Target + ".xz".
	Compress bool
}

// Build lays out, formats and populates the disk image.
func Build(opts Options) error {
	// Refuse to clobber an existing file before anything else runs.
	exists, err := file.Exists(opts.Target)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("target %s already exists, refusing to overwrite", opts.Target)
	}

	manifest, err := rootfs.ReadManifest(opts.RootfsDir)
	if err != nil {
		return fmt.Errorf("%s does not look like a tree built by the rootfs driver: %w", opts.RootfsDir, err)
	}
	b, err := board.ByName(manifest.Board)
	if err != nil {
		return err
	}

	treeSize, err := TreeSize(opts.RootfsDir)
	if err != nil {
		return err
	}

	layout, err := ComputeLayout(treeSize, opts.BootSize)
	if err != nil {
		return err
	}

	log.WithField("rootfs", humanize.IBytes(treeSize)).
		WithField("image", humanize.IBytes(layout.TotalBytes())).
		Info("Computed image layout")

	succeeded := false
	defer func() {
		if !succeeded {
			// A half-written image is worse than none.
			os.Remove(opts.Target)
		}
	}()

	stack := cleanup.Stack{}
	defer stack.Run()

	err = populate(opts, b, layout, &stack)
	if err != nil {
		return err
	}

	// Release mounts and the loop device before verification; a
	// teardown failure is a leak and fails the build.
	err = stack.Run()
	if err != nil {
		return fmt.Errorf("failed to release image resources: %w", err)
	}

	err = Verify(opts.Target, layout)
	if err != nil {
		return fmt.Errorf("image verification failed: %w", err)
	}

	if opts.Compress {
		compressed, err := Compress(opts.Target)
		if err != nil {
			return err
		}
		log.WithField("output", compressed).Info("Wrote compressed image")
	}

	succeeded = true
	log.WithField("output", opts.Target).Info("Finished building image.")
	return nil
}

func populate(opts Options, b board.Board, layout Layout, stack *cleanup.Stack) error {
	img, err := os.OpenFile(opts.Target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", opts.Target, err)
	}
	err = img.Truncate(int64(layout.TotalBytes()))
	closeErr := img.Close()
	if err != nil {
		return fmt.Errorf("failed to allocate %s: %w", opts.Target, err)
	}
	if closeErr != nil {
		return closeErr
	}

	log.Info("Partitioning image...")
	err = shell.Cmd("sfdisk", "--quiet", opts.Target).WithStdin(layout.SfdiskScript()).Run()
	if err != nil {
		return fmt.Errorf("failed to partition image: %w", err)
	}

	loopDev, err := shell.Output("losetup", "--show", "--partscan", "--find", opts.Target)
	if err != nil {
		return fmt.Errorf("failed to attach loop device: %w", err)
	}
	stack.Push("detach "+loopDev, func() error {
		return shell.Run("losetup", "-d", loopDev)
	})

	bootDev := diskutils.PartitionDevice(loopDev, 1)
	rootDev := diskutils.PartitionDevice(loopDev, 2)
	err = waitForDevices(bootDev, rootDev)
	if err != nil {
		return err
	}

	log.Info("Creating filesystems...")
	err = shell.RunGroup(
		shell.Cmd("mkfs.vfat", "-F", "32", "-n", "BOOT", bootDev),
		shell.Cmd("mkfs.ext4", "-q", "-L", "rootfs", rootDev),
	)
	if err != nil {
		return err
	}

	rootMnt, err := os.MkdirTemp("", "mkroot-root-")
	if err != nil {
		return err
	}
	stack.Push("remove "+rootMnt, func() error {
		return os.Remove(rootMnt)
	})
	bootMnt, err := os.MkdirTemp("", "mkroot-boot-")
	if err != nil {
		return err
	}
	stack.Push("remove "+bootMnt, func() error {
		return os.Remove(bootMnt)
	})

	err = mount(rootDev, rootMnt, stack)
	if err != nil {
		return err
	}
	err = mount(bootDev, bootMnt, stack)
	if err != nil {
		return err
	}

	log.Info("Copying root filesystem...")
	err = shell.Run("rsync", "-aHAXx", "--numeric-ids", opts.RootfsDir+"/", rootMnt)
	if err != nil {
		return fmt.Errorf("failed to copy root filesystem: %w", err)
	}

	err = splitBootPartition(rootMnt, bootMnt, b)
	if err != nil {
		return err
	}

	return nil
}

// splitBootPartition moves the boot payload from the copied tree onto
// the boot partition. On the running device the boot partition is
// mounted over that directory, so it must end up empty in the root
// filesystem.
func splitBootPartition(rootMnt, bootMnt string, b board.Board) error {
	src := rootMnt + b.BootMount

	exists, err := file.DirExists(src)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("rootfs has no boot directory at %s", src)
	}

	log.WithField("from", b.BootMount).Info("Moving boot payload onto boot partition...")
	err = shell.Run("rsync", "-rtD", src+"/", bootMnt)
	if err != nil {
		return fmt.Errorf("failed to populate boot partition: %w", err)
	}

	err = os.RemoveAll(src)
	if err != nil {
		return err
	}

	return os.MkdirAll(src, 0o755)
}

func mount(device, target string, stack *cleanup.Stack) error {
	err := shell.Run("mount", device, target)
	if err != nil {
		return fmt.Errorf("failed to mount %s on %s: %w", device, target, err)
	}

	stack.Push("unmount "+target, func() error {
		return shell.Run("umount", target)
	})

	return nil
}

// waitForDevices polls for the partition device nodes. The kernel
// creates them asynchronously after the loop device is attached with
// --partscan.
func waitForDevices(devices ...string) error {
	const (
		timeout = 10 * time.Second
		probe   = 100 * time.Millisecond
	)

	deadline := time.Now().Add(timeout)
	for _, dev := range devices {
		for {
			_, err := os.Stat(dev)
			if err == nil {
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("partition device %s did not appear within %s", dev, timeout)
			}
			log.Debugf("Waiting for %s to appear", dev)
			time.Sleep(probe)
		}
	}

	return nil
}
