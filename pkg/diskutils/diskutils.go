// Utility to inspect disks and partition tables.

package diskutils

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/jodersky/rpi2-mkroot/internal/shell"
)

// Unit to byte conversion values
const (
	B  = 1
	KB = 1000
	MB = 1000 * 1000
	GB = 1000 * 1000 * 1000
	TB = 1000 * 1000 * 1000 * 1000

	KiB = 1024
	MiB = 1024 * 1024
	GiB = 1024 * 1024 * 1024
	TiB = 1024 * 1024 * 1024 * 1024
)

// SectorSize is the logical sector size assumed throughout the image
// layout math. SD cards universally expose 512-byte logical sectors.
const SectorSize = 512

var (
	sizeAndUnitRegexp = regexp.MustCompile(`^(\d+)((Ki?|Mi?|Gi?|Ti?)?B)$`)

	unitToBytes = map[string]uint64{
		"B":   B,
		"KB":  KB,
		"MB":  MB,
		"GB":  GB,
		"TB":  TB,
		"KiB": KiB,
		"MiB": MiB,
		"GiB": GiB,
		"TiB": TiB,
	}
)

// SizeAndUnitToBytes takes a friendly representation of a size (for example 100MiB) and returns the number of bytes it represents.
func SizeAndUnitToBytes(sizeAndUnit string) (bytes uint64, err error) {
	const (
		sizeIndex = 1
		unitIndex = 2
	)

	matches := sizeAndUnitRegexp.FindStringSubmatch(sizeAndUnit)
	if len(matches) <= unitIndex {
		err = fmt.Errorf("size must contain a number and a unit type (e.g. 100MiB): %q", sizeAndUnit)
		return
	}

	size, err := strconv.ParseUint(matches[sizeIndex], 10, 64)
	if err != nil {
		return
	}

	unitBytes, ok := unitToBytes[matches[unitIndex]]
	if !ok {
		err = fmt.Errorf("unknown unit: %s", matches[unitIndex])
		return
	}

	bytes = size * unitBytes
	return
}

// BytesToSectors converts a byte count to 512-byte sectors, rounding up.
func BytesToSectors(bytes uint64) uint64 {
	return (bytes + SectorSize - 1) / SectorSize
}

// PartitionDevice returns the device node of partition n on a disk.
// Devices whose name ends in a digit (mmcblk0, loop3) use a 'p' infix:
// /dev/mmcblk0p2, while /dev/sda becomes /dev/sda2.
func PartitionDevice(disk string, n int) string {
	last := disk[len(disk)-1]
	if last >= '0' && last <= '9' {
		return fmt.Sprintf("%sp%d", disk, n)
	}
	return fmt.Sprintf("%s%d", disk, n)
}

// PartitionTable is the partition table description reported by
// "sfdisk --json".
type PartitionTable struct {
	Label      string      `json:"label"`
	Id         string      `json:"id"`
	Device     string      `json:"device"`
	Unit       string      `json:"unit"`
	Partitions []Partition `json:"partitions"`
}

// Partition is a single entry of a PartitionTable. Start and Size are
// in sectors.
type Partition struct {
	Node     string `json:"node"`
	Start    uint64 `json:"start"`
	Size     uint64 `json:"size"`
	Type     string `json:"type"`
	Bootable bool   `json:"bootable"`
}

// End returns the first sector after the partition.
func (p Partition) End() uint64 {
	return p.Start + p.Size
}

type sfdiskOutput struct {
	PartitionTable PartitionTable `json:"partitiontable"`
}

// ParsePartitionTable parses "sfdisk --json" output.
func ParsePartitionTable(raw []byte) (*PartitionTable, error) {
	var out sfdiskOutput
	err := json.Unmarshal(raw, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sfdisk output:\n%w", err)
	}

	return &out.PartitionTable, nil
}

// ReadPartitionTable reads the partition table of a block device.
func ReadPartitionTable(device string) (*PartitionTable, error) {
	raw, err := shell.Output("sfdisk", "--json", device)
	if err != nil {
		return nil, fmt.Errorf("failed to dump partition table of %s: %w", device, err)
	}

	return ParsePartitionTable([]byte(raw))
}

// DeviceSizeBytes returns the total size of a block device.
func DeviceSizeBytes(device string) (uint64, error) {
	raw, err := shell.Output("lsblk", "-b", "-d", "-n", "-o", "SIZE", device)
	if err != nil {
		return 0, fmt.Errorf("failed to get size of %s: %w", device, err)
	}

	size, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse size of %s: %w", device, err)
	}

	return size, nil
}

// DeviceSizeSectors returns the total size of a block device in sectors.
func DeviceSizeSectors(device string) (uint64, error) {
	bytes, err := DeviceSizeBytes(device)
	if err != nil {
		return 0, err
	}

	return bytes / SectorSize, nil
}

// RereadPartitionTable asks the kernel to re-read the partition table of
// a disk via the BLKRRPART ioctl. The ioctl fails with EBUSY while a
// partition of the disk is mounted; partprobe handles that case by
// notifying the kernel of individual partition changes instead.
func RereadPartitionTable(device string) error {
	f, err := os.Open(device)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", device, err)
	}
	defer f.Close()

	_, err = unix.IoctlRetInt(int(f.Fd()), unix.BLKRRPART)
	if err == nil {
		return nil
	}

	if !shell.Available("partprobe") {
		return fmt.Errorf("BLKRRPART on %s failed and partprobe is not installed: %w", device, err)
	}

	probeErr := shell.Run("partprobe", "-s", device)
	if probeErr != nil {
		return fmt.Errorf("failed to re-read partition table of %s: %w", device, probeErr)
	}

	return nil
}
