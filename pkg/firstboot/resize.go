package firstboot

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/moby/sys/mountinfo"
	log "github.com/sirupsen/logrus"

	"github.com/jodersky/rpi2-mkroot/internal/shell"
	"github.com/jodersky/rpi2-mkroot/pkg/diskutils"
)

// growSlackSectors is how much unpartitioned space may remain at the
// end of the disk without triggering a grow. sfdisk aligns the grown
// partition, so a freshly expanded disk can still show a sub-1MiB tail.
const growSlackSectors = 2048

// expandRootFilesystem grows the root partition to the end of its disk
// and then grows the ext4 filesystem into it. Images are sized to the
// tree they hold, so on first boot the partition is far smaller than
// the card it was written to.
//
// Both halves are written to be re-runnable: if the partition already
// spans the disk the partition table is left alone, and resize2fs on an
// already-full filesystem is a no-op.
func expandRootFilesystem() error {
	device, err := rootDevice()
	if err != nil {
		return err
	}

	disk, number, err := partitionInfo("/sys", device)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"device": device,
		"disk":   disk,
	}).Info("Expanding root filesystem")

	table, err := diskutils.ReadPartitionTable(disk)
	if err != nil {
		return err
	}

	part, err := findPartition(table, device)
	if err != nil {
		return err
	}

	diskSectors, err := diskutils.DeviceSizeSectors(disk)
	if err != nil {
		return err
	}

	if needsGrow(part, diskSectors) {
		reclaimed := (diskSectors - part.End()) * diskutils.SectorSize
		log.Infof("Growing partition %d of %s by %s", number, disk, humanize.IBytes(reclaimed))

		// --no-reread because the partition is mounted as /; the
		// kernel is told about the new geometry afterwards.
		err = shell.Cmd("sfdisk", "--no-reread", "-N", strconv.Itoa(number), disk).
			WithStdin(", +\n").
			Run()
		if err != nil {
			return fmt.Errorf("failed to grow partition %d of %s: %w", number, disk, err)
		}

		err = diskutils.RereadPartitionTable(disk)
		if err != nil {
			return err
		}
	} else {
		log.Info("Root partition already spans the disk")
	}

	err = shell.Run("resize2fs", device)
	if err != nil {
		return fmt.Errorf("failed to resize filesystem on %s: %w", device, err)
	}

	return nil
}

// needsGrow reports whether a partition leaves enough unused space
// behind it to be worth growing.
func needsGrow(p diskutils.Partition, diskSectors uint64) bool {
	return p.End()+growSlackSectors <= diskSectors
}

func findPartition(table *diskutils.PartitionTable, device string) (diskutils.Partition, error) {
	for _, p := range table.Partitions {
		if p.Node == device {
			return p, nil
		}
	}
	return diskutils.Partition{}, fmt.Errorf("device %s not found in partition table of %s", device, table.Device)
}

// rootDevice returns the block device mounted as /.
func rootDevice() (string, error) {
	mounts, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter("/"))
	if err != nil {
		return "", fmt.Errorf("failed to read mount table: %w", err)
	}
	if len(mounts) == 0 {
		return "", fmt.Errorf("no mount entry for /")
	}

	source := mounts[0].Source
	if !strings.HasPrefix(source, "/dev/") {
		return "", fmt.Errorf("root is not mounted from a block device: %s", source)
	}

	// Resolve root=PARTUUID= and similar symlinked sources.
	resolved, err := filepath.EvalSymlinks(source)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root device %s: %w", source, err)
	}

	return resolved, nil
}

// partitionInfo locates the parent disk and partition number of a
// partition device through sysfs. The sysfs entry of a partition lives
// inside its parent disk's directory and carries a "partition" file
// with its number.
func partitionInfo(sysfsRoot, device string) (disk string, number int, err error) {
	name := filepath.Base(device)

	entry, err := filepath.EvalSymlinks(filepath.Join(sysfsRoot, "class", "block", name))
	if err != nil {
		return "", 0, fmt.Errorf("failed to locate %s in sysfs: %w", device, err)
	}

	raw, err := os.ReadFile(filepath.Join(entry, "partition"))
	if err != nil {
		return "", 0, fmt.Errorf("%s is not a partition: %w", device, err)
	}

	number, err = strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return "", 0, fmt.Errorf("failed to parse partition number of %s: %w", device, err)
	}

	parent := filepath.Base(filepath.Dir(entry))
	return filepath.Join("/dev", parent), number, nil
}
