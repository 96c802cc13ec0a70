package image

import (
	"fmt"
	"os"

	"github.com/rekby/mbr"
)

// MBR partition type bytes for the layout's two partitions.
const (
	fat32LbaType = 0x0C
	linuxType    = 0x83
)

type partitionSpan struct {
	number uint64
	start  uint64
	length uint64
}

// Verify re-reads the partition table actually written to the image
// and checks it against the computed layout: correct types, no
// overlap, and everything inside the image.
func Verify(path string, layout Layout) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := mbr.Read(f)
	if err != nil {
		return fmt.Errorf("failed to read partition table: %w", err)
	}
	err = m.Check()
	if err != nil {
		return fmt.Errorf("invalid partition table: %w", err)
	}

	boot := m.GetPartition(1)
	root := m.GetPartition(2)

	if byte(boot.GetType()) != fat32LbaType {
		return fmt.Errorf("partition 1 has type %#02x, want FAT32 (LBA) %#02x", byte(boot.GetType()), fat32LbaType)
	}
	if byte(root.GetType()) != linuxType {
		return fmt.Errorf("partition 2 has type %#02x, want Linux %#02x", byte(root.GetType()), linuxType)
	}

	spans := []partitionSpan{
		{number: 1, start: uint64(boot.GetLBAStart()), length: uint64(boot.GetLBALen())},
		{number: 2, start: uint64(root.GetLBAStart()), length: uint64(root.GetLBALen())},
	}

	return checkPartitionSpans(spans, layout.TotalSectors())
}

// checkPartitionSpans validates that partitions are non-empty, in
// ascending order, non-overlapping, and fit within the image.
func checkPartitionSpans(spans []partitionSpan, totalSectors uint64) error {
	var previousEnd uint64

	for _, s := range spans {
		if s.length == 0 {
			return fmt.Errorf("partition %d is empty", s.number)
		}
		if s.start < previousEnd {
			return fmt.Errorf("partition %d starting at sector %d overlaps the previous partition ending at %d", s.number, s.start, previousEnd)
		}
		end := s.start + s.length
		if end > totalSectors {
			return fmt.Errorf("partition %d ends at sector %d, beyond the image's %d sectors", s.number, end, totalSectors)
		}
		previousEnd = end
	}

	return nil
}
