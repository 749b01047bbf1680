package logstore

import (
	"testing"

	"github.com/segmentlfs/lfs/internal/flash/testflash"
	"github.com/stretchr/testify/require"
)

func testGeometry() Geometry {
	return Geometry{
		BlockSizeSectors:  1,
		SegmentSizeBlocks: 4,
		FlashSizeSegments: 8,
		WearLimit:         1000,
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	dev := testflash.New(8, 4)
	geo := testGeometry()
	region := newCheckpointRegion(dev, geo, 16)

	cp := &Checkpoint{
		Valid:                    true,
		Timestamp:                42,
		SegmentUsageTableSegment: UsageTableSegment,
		LastSealedSegment:        CheckpointSegmentIndex,
		IFileInodeBytes:          make([]byte, 16),
	}
	require.NoError(t, region.write(0, cp))

	all, err := region.readAll()
	require.NoError(t, err)
	require.True(t, all[0].Valid)
	require.Equal(t, int64(42), all[0].Timestamp)
}

func TestLatestValidBreaksTiesBySlotOrder(t *testing.T) {
	checkpoints := []*Checkpoint{
		{Valid: true, Timestamp: 5},
		{Valid: true, Timestamp: 5},
		{Valid: false, Timestamp: 99},
	}
	cp, slot, found := latestValid(checkpoints)
	require.True(t, found)
	require.Equal(t, 0, slot, "equal timestamps must prefer the lower slot")
	require.Equal(t, int64(5), cp.Timestamp)
}

func TestLatestValidIgnoresInvalidEntries(t *testing.T) {
	checkpoints := []*Checkpoint{
		{Valid: false, Timestamp: 100},
		{Valid: true, Timestamp: 1},
	}
	cp, slot, found := latestValid(checkpoints)
	require.True(t, found)
	require.Equal(t, 1, slot)
	require.Equal(t, int64(1), cp.Timestamp)
}

func TestLatestValidNoneFound(t *testing.T) {
	_, _, found := latestValid([]*Checkpoint{{Valid: false}, nil})
	require.False(t, found)
}
