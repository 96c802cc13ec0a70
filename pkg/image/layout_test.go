package image

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jodersky/rpi2-mkroot/pkg/diskutils"
)

func TestComputeLayoutRootSizing(t *testing.T) {
	tests := []struct {
		name     string
		treeSize uint64
	}{
		{name: "one byte", treeSize: 1},
		{name: "exact sector", treeSize: 512},
		{name: "sector plus one", treeSize: 513},
		{name: "typical tree", treeSize: 713031680}, // ~680MiB
		{name: "odd size", treeSize: 123456789},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout, err := ComputeLayout(tt.treeSize, 0)
			require.NoError(t, err)

			// Root partition is ceil(treeSize * 1.25 / 512) sectors.
			expected := uint64(math.Ceil(float64(tt.treeSize) * 1.25 / 512))
			assert.Equal(t, expected, layout.RootSectors)
		})
	}
}

func TestComputeLayoutTotalIsExact(t *testing.T) {
	for _, treeSize := range []uint64{1, 4096, 1<<20 + 7, 2 << 30} {
		layout, err := ComputeLayout(treeSize, 0)
		require.NoError(t, err)

		// The image must be exactly reserved + boot + root, no slack.
		total := uint64(ReservedSectors) + layout.BootSectors + layout.RootSectors
		assert.Equal(t, total, layout.TotalSectors())
		assert.Equal(t, total*diskutils.SectorSize, layout.TotalBytes())
	}
}

func TestComputeLayoutDefaultBootSize(t *testing.T) {
	layout, err := ComputeLayout(1024, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100*diskutils.MiB/diskutils.SectorSize), layout.BootSectors)
	assert.Equal(t, uint64(204800), layout.BootSectors)
}

func TestComputeLayoutRejectsBadInput(t *testing.T) {
	_, err := ComputeLayout(0, 0)
	assert.Error(t, err)

	_, err = ComputeLayout(1024, 1000) // not sector aligned
	assert.Error(t, err)
}

func TestLayoutRegionsAreContiguous(t *testing.T) {
	layout, err := ComputeLayout(50*diskutils.MiB, 64*diskutils.MiB)
	require.NoError(t, err)

	assert.Equal(t, uint64(ReservedSectors), layout.BootStart())
	assert.Equal(t, layout.BootStart()+layout.BootSectors, layout.RootStart())
	assert.Equal(t, layout.RootStart()+layout.RootSectors, layout.TotalSectors())
}

func TestSfdiskScript(t *testing.T) {
	layout, err := ComputeLayout(100*diskutils.MiB, 0)
	require.NoError(t, err)

	script := layout.SfdiskScript()
	assert.Contains(t, script, "label: dos")
	assert.Contains(t, script, "unit: sectors")
	assert.Contains(t, script, "start=2048, size=204800, type=c, bootable")
	assert.Contains(t, script, "start=206848, size=256000, type=83")
}
