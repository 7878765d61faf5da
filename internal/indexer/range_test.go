package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRange(t *testing.T) {
	cases := []struct {
		name     string
		from, to uint64
		size     uint64
		want     []BlockRange
	}{
		{"even", 100, 105, 2, []BlockRange{{100, 101}, {102, 103}, {104, 105}}},
		{"ragged tail", 100, 104, 2, []BlockRange{{100, 101}, {102, 103}, {104, 104}}},
		{"single block", 5, 5, 10, []BlockRange{{5, 5}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SplitRange(tc.from, tc.to, tc.size)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	_, err := SplitRange(10, 9, 1)
	assert.Error(t, err)
	_, err = SplitRange(1, 10, 0)
	assert.Error(t, err)
}

func TestBatchesAtMaxBlock(t *testing.T) {
	const top = ^uint64(0)
	batches, err := NewBatches(top-4, top, 3)
	require.NoError(t, err)

	var got []BlockRange
	for r, ok := batches.Next(); ok; r, ok = batches.Next() {
		got = append(got, r)
	}
	assert.Equal(t, []BlockRange{{top - 4, top - 2}, {top - 1, top}}, got)
	assert.Equal(t, uint64(2), got[1].Blocks())

	_, ok := batches.Next()
	assert.False(t, ok, "batches should stay exhausted")
}
