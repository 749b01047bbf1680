package logstore_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/segmentlfs/lfs/clock"
	"github.com/segmentlfs/lfs/internal/flash/testflash"
	"github.com/segmentlfs/lfs/internal/logstore"
	"github.com/stretchr/testify/require"
)

const (
	testBlockSizeSectors  = 1
	testSegmentSizeBlocks = 4 // block 0 summary + 3 data blocks
	testFlashSizeSegments = 8
	testSectorsPerEB      = 4 // one erase block per segment
	testInodeBytesLen     = 64
)

func newTestLog(t *testing.T) (*logstore.Log, *testflash.Device) {
	t.Helper()
	dev := testflash.New(uint64(testFlashSizeSegments*testSegmentSizeBlocks*testBlockSizeSectors)/testSectorsPerEB, testSectorsPerEB)
	geo := logstore.Geometry{
		BlockSizeSectors:  testBlockSizeSectors,
		SegmentSizeBlocks: testSegmentSizeBlocks,
		FlashSizeSegments: testFlashSizeSegments,
		WearLimit:         1000,
	}
	var id [16]byte
	copy(id[:], uuid.New()[:])

	l, err := logstore.FormatLog(dev, geo, id, logstore.Options{
		CacheCapacity: 4,
		InodeBytesLen: testInodeBytesLen,
		Clock:         clock.RealClock{},
	})
	require.NoError(t, err)
	return l, dev
}

func block(geo logstore.Geometry, fill byte) []byte {
	b := make([]byte, geo.BlockSizeBytes())
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestWriteThenReadSameTail(t *testing.T) {
	l, _ := newTestLog(t)
	geo := l.Geometry()

	addr, err := l.Write(1, 0, block(geo, 0xAB))
	require.NoError(t, err)

	out := make([]byte, geo.BlockSizeBytes())
	require.NoError(t, l.Read(addr, out))
	require.Equal(t, block(geo, 0xAB), out)
}

func TestTailSealsWhenFull(t *testing.T) {
	l, _ := newTestLog(t)
	geo := l.Geometry()
	dataBlocksPerSegment := int(geo.SegmentSizeBlocks) - 1

	var addrs []logstore.LogAddress
	for i := 0; i < dataBlocksPerSegment+1; i++ {
		addr, err := l.Write(1, int32(i), block(geo, byte(i)))
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}

	require.Equal(t, uint32(logstore.FirstDataSegment), addrs[0].Segment)
	require.NotEqual(t, addrs[0].Segment, addrs[len(addrs)-1].Segment, "writing one block past capacity must roll onto a new segment")

	table := l.UsageTable()
	require.Equal(t, uint64(dataBlocksPerSegment)*uint64(geo.BlockSizeBytes()), table[logstore.FirstDataSegment].LiveBytes)
}

func TestFreeDecrementsUsageTable(t *testing.T) {
	l, _ := newTestLog(t)
	geo := l.Geometry()

	addr, err := l.Write(1, 0, block(geo, 1))
	require.NoError(t, err)

	require.NoError(t, l.Free(addr))
	table := l.UsageTable()
	require.Equal(t, uint64(0), table[addr.Segment].LiveBytes)
}

func TestFreeIsSaturating(t *testing.T) {
	l, _ := newTestLog(t)
	geo := l.Geometry()

	addr, err := l.Write(1, 0, block(geo, 1))
	require.NoError(t, err)
	require.NoError(t, l.Free(addr))
	require.NoError(t, l.Free(addr)) // double free must not underflow

	table := l.UsageTable()
	require.Equal(t, uint64(0), table[addr.Segment].LiveBytes)
}

func TestEraseSegmentResetsUsage(t *testing.T) {
	l, _ := newTestLog(t)
	geo := l.Geometry()

	addr, err := l.Write(1, 0, block(geo, 1))
	require.NoError(t, err)

	require.NoError(t, l.EraseSegment(addr.Segment))
	table := l.UsageTable()
	require.Equal(t, uint64(0), table[addr.Segment].LiveBytes)
}

func TestSyncThenReopenRecoversIFileInodeBytes(t *testing.T) {
	l, dev := newTestLog(t)
	inodeBytes := make([]byte, testInodeBytesLen)
	for i := range inodeBytes {
		inodeBytes[i] = 0x42
	}
	l.SetIFileInodeBytes(inodeBytes)
	require.NoError(t, l.Sync())

	reopened, err := logstore.OpenLog(dev, logstore.Options{
		CacheCapacity: 4,
		InodeBytesLen: testInodeBytesLen,
		Clock:         clock.RealClock{},
	})
	require.NoError(t, err)
	require.Equal(t, inodeBytes, reopened.IFileInodeBytes())
}

func TestReopenRecoversPartiallyFilledTail(t *testing.T) {
	l, dev := newTestLog(t)
	geo := l.Geometry()
	dataBlocksPerSegment := int(geo.SegmentSizeBlocks) - 1
	blockSizeBytes := uint64(geo.BlockSizeBytes())

	// Fill segment 3 completely so it gets sealed, then write one more
	// block so segment 4 becomes the live tail, with a crash before it
	// seals. Every block write persists its data and summary immediately
	// (§4.2), so both segments must come back intact on reopen.
	var sealedAddr logstore.LogAddress
	for i := 0; i < dataBlocksPerSegment; i++ {
		addr, err := l.Write(1, int32(i), block(geo, 0x99))
		require.NoError(t, err)
		sealedAddr = addr
	}
	liveAddr, err := l.Write(1, int32(dataBlocksPerSegment), block(geo, 0xCC))
	require.NoError(t, err)
	require.NotEqual(t, sealedAddr.Segment, liveAddr.Segment)
	require.NoError(t, l.Sync())

	reopened, err := logstore.OpenLog(dev, logstore.Options{
		CacheCapacity: 4,
		InodeBytesLen: testInodeBytesLen,
		Clock:         clock.RealClock{},
	})
	require.NoError(t, err)

	out := make([]byte, geo.BlockSizeBytes())
	require.NoError(t, reopened.Read(sealedAddr, out))
	require.Equal(t, block(geo, 0x99), out, "sealed segment must survive a reopen")

	require.NoError(t, reopened.Read(liveAddr, out))
	require.Equal(t, block(geo, 0xCC), out, "partially filled tail must survive a reopen")

	table := reopened.UsageTable()
	require.Equal(t, blockSizeBytes, table[liveAddr.Segment].LiveBytes, "recovered tail's live-byte count must reflect the one block it holds")

	// Filling must continue in the recovered tail rather than starting a
	// fresh segment.
	nextAddr, err := reopened.Write(1, int32(dataBlocksPerSegment+1), block(geo, 0xDD))
	require.NoError(t, err)
	require.Equal(t, liveAddr.Segment, nextAddr.Segment, "recovery must resume filling the partial tail in place")
}
