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

const (
	testBlockSizeSectors  = 1
	testSegmentSizeBlocks = 8
	testFlashSizeSegments = 16
	testSectorsPerEB      = 8
)

func newTestManager(t *testing.T, opts inode.ManagerOptions) (*inode.Manager, *logstore.Log) {
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

	log, err := logstore.FormatLog(dev, geo, id, logstore.Options{
		CacheCapacity: 8,
		InodeBytesLen: inode.InodeSize,
		Clock:         clock.RealClock{},
	})
	require.NoError(t, err)

	m, _, err := inode.Bootstrap(log, clock.RealClock{}, os.FileMode(0o755), opts)
	require.NoError(t, err)
	require.NoError(t, log.Sync())
	return m, log
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, inode.ManagerOptions{})

	inum, err := m.Create(inode.FileTypeRegular, 0o644)
	require.NoError(t, err)

	data := []byte("hello log-structured world")
	require.NoError(t, m.Write(inum, 0, data))

	out := make([]byte, len(data))
	n, err := m.Read(inum, 0, out)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, out)
}

func TestReadPastEndOfFileReturnsZeroBytes(t *testing.T) {
	m, _ := newTestManager(t, inode.ManagerOptions{})

	inum, err := m.Create(inode.FileTypeRegular, 0o644)
	require.NoError(t, err)
	require.NoError(t, m.Write(inum, 0, []byte("abc")))

	out := make([]byte, 10)
	n, err := m.Read(inum, 3, out)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestTruncateGrowThenShrink(t *testing.T) {
	m, _ := newTestManager(t, inode.ManagerOptions{})

	inum, err := m.Create(inode.FileTypeRegular, 0o644)
	require.NoError(t, err)
	require.NoError(t, m.Write(inum, 0, []byte("abcdef")))

	require.NoError(t, m.Truncate(inum, 3))
	out := make([]byte, 3)
	n, err := m.Read(inum, 0, out)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte("abc"), out)

	require.NoError(t, m.Truncate(inum, 6))
	out = make([]byte, 6)
	n, err = m.Read(inum, 0, out)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Equal(t, []byte{'a', 'b', 'c', 0, 0, 0}, out)
}

// TestTruncateGrowIdempotence exercises §8 testable property 4: truncating
// to the same size twice in a row leaves file_size and content unchanged
// on the second call.
func TestTruncateGrowIdempotence(t *testing.T) {
	m, _ := newTestManager(t, inode.ManagerOptions{})

	inum, err := m.Create(inode.FileTypeRegular, 0o644)
	require.NoError(t, err)
	require.NoError(t, m.Write(inum, 0, []byte("abc")))

	require.NoError(t, m.Truncate(inum, 10))
	attrs1, err := m.GetAttr(inum)
	require.NoError(t, err)
	out1 := make([]byte, 10)
	_, err = m.Read(inum, 0, out1)
	require.NoError(t, err)

	require.NoError(t, m.Truncate(inum, 10))
	attrs2, err := m.GetAttr(inum)
	require.NoError(t, err)
	out2 := make([]byte, 10)
	_, err = m.Read(inum, 0, out2)
	require.NoError(t, err)

	require.Equal(t, attrs1.Size, attrs2.Size)
	require.Equal(t, uint64(10), attrs2.Size)
	require.Equal(t, out1, out2)
}

// TestIndirectBlockRoundTrip exercises §8 scenario S3: writes spanning
// past the four direct blocks must resolve through the indirect block.
func TestIndirectBlockRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, inode.ManagerOptions{})
	blockSize := testBlockSizeSectors * 512

	inum, err := m.Create(inode.FileTypeRegular, 0o644)
	require.NoError(t, err)

	// Block 6 is beyond the four direct slots (0..3), so it can only be
	// reached through the indirect block. A write may not start past the
	// end of the file, so blocks 0..5 are filled first.
	offset := uint64(6 * blockSize)
	require.NoError(t, m.Write(inum, 0, make([]byte, offset)))
	payload := make([]byte, blockSize)
	for i := range payload {
		payload[i] = 0xAB
	}
	require.NoError(t, m.Write(inum, offset, payload))

	out := make([]byte, blockSize)
	n, err := m.Read(inum, offset, out)
	require.NoError(t, err)
	require.Equal(t, blockSize, n)
	require.Equal(t, payload, out)
}

// TestLinkCountLaw exercises §8 testable property 5's bookkeeping half:
// AddLink/RemoveLink keep nlinks consistent.
func TestLinkCountLaw(t *testing.T) {
	m, _ := newTestManager(t, inode.ManagerOptions{})

	inum, err := m.Create(inode.FileTypeRegular, 0o644)
	require.NoError(t, err)

	require.NoError(t, m.AddLink(inum))
	attrs, err := m.GetAttr(inum)
	require.NoError(t, err)
	require.Equal(t, uint64(2), attrs.Nlink)

	require.NoError(t, m.RemoveLink(inum))
	attrs, err = m.GetAttr(inum)
	require.NoError(t, err)
	require.Equal(t, uint64(1), attrs.Nlink)

	require.NoError(t, m.RemoveLink(inum))
	_, err = m.GetAttr(inum)
	require.Error(t, err, "inum must be freed once nlinks reaches zero")
}

func TestFreeingIFileIsFatal(t *testing.T) {
	m, _ := newTestManager(t, inode.ManagerOptions{})
	err := m.Free(0)
	require.Error(t, err)
}

func TestCreateReusesFreedInum(t *testing.T) {
	m, _ := newTestManager(t, inode.ManagerOptions{})

	a, err := m.Create(inode.FileTypeRegular, 0o644)
	require.NoError(t, err)
	require.NoError(t, m.Free(a))

	b, err := m.Create(inode.FileTypeRegular, 0o644)
	require.NoError(t, err)
	require.Equal(t, a, b, "create must reuse the lowest freed inum rather than always extending the iFile")
}
