package inode_test

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentlfs/lfs/clock"
	"github.com/segmentlfs/lfs/internal/flash/testflash"
	"github.com/segmentlfs/lfs/internal/inode"
	"github.com/segmentlfs/lfs/internal/logstore"
	"github.com/stretchr/testify/require"
)

// newCleanerTestManager builds a small volume. startThreshold is set high
// enough that RunCleaner's step-1 early exit (§4.3) never fires in these
// tests regardless of how many segments happen to already be clean, so
// every call scores candidates; it reclaims them only while fewer than
// endThreshold clean segments exist.
func newCleanerTestManager(t *testing.T, startThreshold, endThreshold int) (*inode.Manager, *logstore.Log) {
	t.Helper()
	const (
		blockSizeSectors  = 1
		segmentSizeBlocks = 4 // summary + 3 data blocks, so segments fill fast
		flashSizeSegments = 40
		sectorsPerEB      = 4
	)
	dev := testflash.New(uint64(flashSizeSegments*segmentSizeBlocks*blockSizeSectors)/sectorsPerEB, sectorsPerEB)
	geo := logstore.Geometry{
		BlockSizeSectors:  blockSizeSectors,
		SegmentSizeBlocks: segmentSizeBlocks,
		FlashSizeSegments: flashSizeSegments,
		WearLimit:         1000,
	}
	var id [16]byte
	copy(id[:], uuid.New()[:])

	log, err := logstore.FormatLog(dev, geo, id, logstore.Options{
		CacheCapacity: 8,
		InodeBytesLen: inode.InodeSize,
		Clock:         clock.RealClock{},
	})
	require.NoError(t, err)

	m, _, err := inode.Bootstrap(log, clock.RealClock{}, os.FileMode(0o755), inode.ManagerOptions{
		CleaningStartThreshold: startThreshold,
		CleaningEndThreshold:   endThreshold,
	})
	require.NoError(t, err)
	require.NoError(t, log.Sync())
	return m, log
}

// TestCleanerSkipsStaleBlocksAndKeepsLive exercises §8 scenario S2: writing
// the same file offset repeatedly leaves stale copies behind in sealed
// segments; running the cleaner must not lose the current (live) copy,
// and clean segments must remain afterwards.
func TestCleanerSkipsStaleBlocksAndKeepsLive(t *testing.T) {
	m, log := newCleanerTestManager(t, 1000, 3)

	inum, err := m.Create(inode.FileTypeRegular, 0o644)
	require.NoError(t, err)

	blockSize := 1 * 512
	payloads := [][]byte{
		repeatByte(0xAA, blockSize),
		repeatByte(0xBB, blockSize),
		repeatByte(0xCC, blockSize),
	}
	for _, p := range payloads {
		require.NoError(t, m.Write(inum, 0, p))
	}

	require.NoError(t, m.RunCleaner())

	out := make([]byte, blockSize)
	n, err := m.Read(inum, 0, out)
	require.NoError(t, err)
	require.Equal(t, blockSize, n)
	require.Equal(t, payloads[2], out, "the live copy must survive cleaning")

	require.Greater(t, log.CleanSegmentCount(), 0, "cleaning the stale copies' segments must yield at least one clean segment")
}

// TestCleanerProgress exercises §8 testable property 9: after RunCleaner
// returns, either the clean-segment count reached cleaningEndThreshold or
// no positive-score segment remained to reclaim. The loop periodically
// invokes RunCleaner, mirroring how the directory layer runs it
// opportunistically before every operation (§4.4), so churn never
// outpaces reclamation.
func TestCleanerProgress(t *testing.T) {
	m, log := newCleanerTestManager(t, 1000, 10)

	inum, err := m.Create(inode.FileTypeRegular, 0o644)
	require.NoError(t, err)

	blockSize := 1 * 512
	for i := 0; i < 40; i++ {
		require.NoError(t, m.Write(inum, 0, repeatByte(byte(i), blockSize)))
		if i%5 == 4 {
			require.NoError(t, m.RunCleaner())
		}
	}
	require.NoError(t, m.RunCleaner())

	clean := log.CleanSegmentCount()
	require.GreaterOrEqual(t, clean, 10, "cleaner must reach cleaningEndThreshold given continual reclaimable stale garbage")

	out := make([]byte, blockSize)
	n, err := m.Read(inum, 0, out)
	require.NoError(t, err)
	require.Equal(t, blockSize, n)
	require.Equal(t, repeatByte(byte(39), blockSize), out, "the final write must still be the live copy after repeated cleaning")
}

func repeatByte(b byte, n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return buf
}
