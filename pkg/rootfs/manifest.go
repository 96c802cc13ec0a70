package rootfs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jodersky/rpi2-mkroot/internal/file"
)

// ManifestPath is where the build manifest lives inside the provisioned
// tree. The first-boot sequence reads it on the device to recover the
// board it was built for.
const ManifestPath = "etc/mkroot-build.yaml"

// Manifest records how a root filesystem tree was built.
type Manifest struct {
	Board    string    `yaml:"board"`
	Release  string    `yaml:"release"`
	Hostname string    `yaml:"hostname"`
	BuiltAt  time.Time `yaml:"built-at"`
}

// WriteManifest stores the manifest inside the tree rooted at root.
func WriteManifest(root string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal build manifest: %w", err)
	}

	return file.Write(filepath.Join(root, ManifestPath), data, 0o644)
}

// ReadManifest loads the manifest from the tree rooted at root.
func ReadManifest(root string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestPath))
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read build manifest: %w", err)
	}

	var m Manifest
	err = yaml.Unmarshal(data, &m)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to parse build manifest: %w", err)
	}

	return m, nil
}
