package image

import (
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"
)

// Compress writes an xz-compressed copy of the image next to it and
// returns the new path. The uncompressed image is kept; sparse regions
// of a freshly built image compress to almost nothing, so this is what
// gets published.
func Compress(path string) (string, error) {
	out := path + ".xz"

	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(out)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	w, err := xz.NewWriter(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create xz writer: %w", err)
	}

	_, err = io.Copy(w, src)
	if err != nil {
		os.Remove(out)
		return "", fmt.Errorf("failed to compress %s: %w", path, err)
	}

	err = w.Close()
	if err != nil {
		os.Remove(out)
		return "", fmt.Errorf("failed to finish compression: %w", err)
	}

	return out, dst.Close()
}
