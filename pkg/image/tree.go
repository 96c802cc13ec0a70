package image

import (
	"fmt"
	"io/fs"
	"path/filepath"
)

// TreeSize returns the cumulative size of all regular files below dir.
// Directories, symlinks and special files count as zero; their on-disk
// footprint is covered by the 25% headroom the layout adds on top.
func TreeSize(dir string) (uint64, error) {
	var total uint64

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to measure %s: %w", dir, err)
	}

	return total, nil
}
