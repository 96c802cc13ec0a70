package diskutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeAndUnitToBytes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected uint64
		wantErr  bool
	}{
		{
			name:     "mebibytes",
			input:    "100MiB",
			expected: 100 * MiB,
		},
		{
			name:     "gigabytes",
			input:    "2GB",
			expected: 2 * GB,
		},
		{
			name:     "plain bytes",
			input:    "512B",
			expected: 512,
		},
		{
			name:    "missing unit",
			input:   "100",
			wantErr: true,
		},
		{
			name:    "bogus unit",
			input:   "100XiB",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SizeAndUnitToBytes(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBytesToSectors(t *testing.T) {
	assert.Equal(t, uint64(0), BytesToSectors(0))
	assert.Equal(t, uint64(1), BytesToSectors(1))
	assert.Equal(t, uint64(1), BytesToSectors(512))
	assert.Equal(t, uint64(2), BytesToSectors(513))
	assert.Equal(t, uint64(2048), BytesToSectors(1*MiB))
}

func TestPartitionDevice(t *testing.T) {
	assert.Equal(t, "/dev/sda2", PartitionDevice("/dev/sda", 2))
	assert.Equal(t, "/dev/mmcblk0p2", PartitionDevice("/dev/mmcblk0", 2))
	assert.Equal(t, "/dev/loop7p1", PartitionDevice("/dev/loop7", 1))
}

// Captured from "sfdisk --json" on a freshly flashed SD card.
const sfdiskDump = `{
   "partitiontable": {
      "label": "dos",
      "id": "0x8d1e5a9b",
      "device": "/dev/mmcblk0",
      "unit": "sectors",
      "partitions": [
         {"node": "/dev/mmcblk0p1", "start": 2048, "size": 204800, "type": "c", "bootable": true},
         {"node": "/dev/mmcblk0p2", "start": 206848, "size": 3493888, "type": "83"}
      ]
   }
}`

func TestParsePartitionTable(t *testing.T) {
	table, err := ParsePartitionTable([]byte(sfdiskDump))
	require.NoError(t, err)

	assert.Equal(t, "dos", table.Label)
	assert.Equal(t, "/dev/mmcblk0", table.Device)
	require.Len(t, table.Partitions, 2)

	boot := table.Partitions[0]
	assert.Equal(t, uint64(2048), boot.Start)
	assert.Equal(t, uint64(204800), boot.Size)
	assert.Equal(t, "c", boot.Type)
	assert.True(t, boot.Bootable)

	root := table.Partitions[1]
	assert.Equal(t, uint64(206848), root.Start)
	assert.Equal(t, uint64(206848+3493888), root.End())
	assert.False(t, root.Bootable)
}

func TestParsePartitionTableRejectsGarbage(t *testing.T) {
	_, err := ParsePartitionTable([]byte("not json"))
	assert.Error(t, err)
}
