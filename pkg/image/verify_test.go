package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckPartitionSpans(t *testing.T) {
	tests := []struct {
		name    string
		spans   []partitionSpan
		total   uint64
		wantErr string
	}{
		{
			name: "valid layout",
			spans: []partitionSpan{
				{number: 1, start: 2048, length: 204800},
				{number: 2, start: 206848, length: 100000},
			},
			total: 306848,
		},
		{
			name: "empty partition",
			spans: []partitionSpan{
				{number: 1, start: 2048, length: 0},
			},
			total:   306848,
			wantErr: "empty",
		},
		{
			name: "overlap",
			spans: []partitionSpan{
				{number: 1, start: 2048, length: 204800},
				{number: 2, start: 206847, length: 100},
			},
			total:   306848,
			wantErr: "overlaps",
		},
		{
			name: "past end of image",
			spans: []partitionSpan{
				{number: 1, start: 2048, length: 204800},
				{number: 2, start: 206848, length: 100001},
			},
			total:   306848,
			wantErr: "beyond",
		},
		{
			name: "out of order counts as overlap",
			spans: []partitionSpan{
				{number: 1, start: 206848, length: 100},
				{number: 2, start: 2048, length: 100},
			},
			total:   306848,
			wantErr: "overlaps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkPartitionSpans(tt.spans, tt.total)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
