package image

import (
	"fmt"
	"strings"

	"github.com/jodersky/rpi2-mkroot/pkg/diskutils"
)

const (
	// ReservedSectors is the gap before the first partition. The 1MiB
	// alignment leaves room for the MBR and, on u-boot boards, the SPL
	// written directly behind it.
	ReservedSectors = 2048

	// DefaultBootSize is the size of the FAT32 boot partition.
	DefaultBootSize = 100 * diskutils.MiB

	// rootOverhead is the headroom multiplier applied to the source
	// tree size: the root partition gets 25% extra space.
	rootOverheadNum = 5
	rootOverheadDen = 4

	// MBR partition type codes.
	bootPartitionType = "c"  // W95 FAT32 (LBA)
	rootPartitionType = "83" // Linux
)

// Layout is the sector math of a two-partition disk image: a reserved
// region, a FAT32 boot partition and an ext4 root partition. All
// values are 512-byte sectors.
type Layout struct {
	BootSectors uint64
	RootSectors uint64
}

// ComputeLayout derives the image layout from the size of the source
// tree and the requested boot partition size. The root partition is
// sized at 125% of the tree, rounded up to whole sectors.
func ComputeLayout(treeSize, bootSize uint64) (Layout, error) {
	if bootSize == 0 {
		bootSize = DefaultBootSize
	}
	if bootSize%diskutils.SectorSize != 0 {
		return Layout{}, fmt.Errorf("boot size must be a multiple of %d bytes, got %d", diskutils.SectorSize, bootSize)
	}
	if treeSize == 0 {
		return Layout{}, fmt.Errorf("source tree is empty")
	}

	// ceil(treeSize * 5/4 / 512) without floating point
	rootSectors := (treeSize*rootOverheadNum + rootOverheadDen*diskutils.SectorSize - 1) / (rootOverheadDen * diskutils.SectorSize)

	return Layout{
		BootSectors: bootSize / diskutils.SectorSize,
		RootSectors: rootSectors,
	}, nil
}

// BootStart returns the first sector of the boot partition.
func (l Layout) BootStart() uint64 {
	return ReservedSectors
}

// RootStart returns the first sector of the root partition.
func (l Layout) RootStart() uint64 {
	return ReservedSectors + l.BootSectors
}

// TotalSectors returns the exact image size in sectors: reserved plus
// boot plus root, nothing more.
func (l Layout) TotalSectors() uint64 {
	return ReservedSectors + l.BootSectors + l.RootSectors
}

// TotalBytes returns the exact image size in bytes.
func (l Layout) TotalBytes() uint64 {
	return l.TotalSectors() * diskutils.SectorSize
}

// SfdiskScript renders the layout as an sfdisk input script creating a
// DOS partition table with the boot partition marked bootable.
func (l Layout) SfdiskScript() string {
	var sb strings.Builder
	sb.WriteString("label: dos\n")
	sb.WriteString("unit: sectors\n")
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "start=%d, size=%d, type=%s, bootable\n", l.BootStart(), l.BootSectors, bootPartitionType)
	fmt.Fprintf(&sb, "start=%d, size=%d, type=%s\n", l.RootStart(), l.RootSectors, rootPartitionType)
	return sb.String()
}
