package namespace_test

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentlfs/lfs/clock"
	"github.com/segmentlfs/lfs/internal/flash/testflash"
	"github.com/segmentlfs/lfs/internal/inode"
	"github.com/segmentlfs/lfs/internal/lfserrors"
	"github.com/segmentlfs/lfs/internal/logstore"
	"github.com/segmentlfs/lfs/internal/namespace"
	"github.com/stretchr/testify/require"
)

func newTestVolume(t *testing.T) *namespace.Manager {
	t.Helper()
	const (
		blockSizeSectors  = 1
		segmentSizeBlocks = 16
		flashSizeSegments = 32
		sectorsPerEB      = 8
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

	m, err := namespace.Bootstrap(log, clock.RealClock{}, os.FileMode(0o755), inode.ManagerOptions{})
	require.NoError(t, err)
	return m
}

// TestDirectorySemantics exercises §8 scenario S5.
func TestDirectorySemantics(t *testing.T) {
	m := newTestVolume(t)

	_, err := m.Mkdir("/a", 0o755)
	require.NoError(t, err)
	_, err = m.Create("/a/f", 0o644)
	require.NoError(t, err)

	entries, err := m.Readdir("/a")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	require.Equal(t, []string{".", "..", "f"}, names)

	err = m.Rmdir("/a")
	require.Error(t, err)
	require.Equal(t, lfserrors.NotEmpty, lfserrors.GetKind(err))

	require.NoError(t, m.Unlink("/a/f"))
	require.NoError(t, m.Rmdir("/a"))

	_, err = m.Readdir("/a")
	require.Error(t, err)
}

// TestSymlinkRoundTrip exercises §8 scenario S6.
func TestSymlinkRoundTrip(t *testing.T) {
	m := newTestVolume(t)

	_, err := m.Create("/file1.txt", 0o644)
	require.NoError(t, err)
	_, err = m.Symlink("/file1.txt", "/ln")
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := m.Readlink("/ln", buf)
	require.NoError(t, err)
	require.Equal(t, "/file1.txt"[:10], string(buf[:n]))

	attrs, err := m.GetAttr("/file1.txt")
	require.NoError(t, err)
	require.Equal(t, uint64(1), attrs.Nlink, "symlinks must not raise the target's hard-link count")
}

// TestLinkCountLaw exercises §8 testable property 5 at the directory layer.
func TestLinkCountLaw(t *testing.T) {
	m := newTestVolume(t)

	_, err := m.Create("/a", 0o644)
	require.NoError(t, err)
	before, err := m.GetAttr("/a")
	require.NoError(t, err)

	require.NoError(t, m.Link("/a", "/b"))

	attrsA, err := m.GetAttr("/a")
	require.NoError(t, err)
	attrsB, err := m.GetAttr("/b")
	require.NoError(t, err)
	require.Equal(t, attrsA.Nlink, attrsB.Nlink)
	require.Equal(t, before.Nlink+1, attrsA.Nlink)
}

// TestUnlinkSymmetry exercises §8 testable property 6: create then unlink
// returns the namespace to its prior, lookup-failing state.
func TestUnlinkSymmetry(t *testing.T) {
	m := newTestVolume(t)

	_, err := m.Lookup("/p")
	require.Error(t, err)

	_, err = m.Create("/p", 0o644)
	require.NoError(t, err)
	require.NoError(t, m.Unlink("/p"))

	_, err = m.Lookup("/p")
	require.Error(t, err, "unlinking a freshly created file must return the namespace to its prior state")
}

func TestRenameMovesAcrossDirectories(t *testing.T) {
	m := newTestVolume(t)

	_, err := m.Mkdir("/a", 0o755)
	require.NoError(t, err)
	_, err = m.Mkdir("/b", 0o755)
	require.NoError(t, err)
	_, err = m.Create("/a/f", 0o644)
	require.NoError(t, err)

	require.NoError(t, m.Rename("/a/f", "/b/g"))

	_, err = m.Lookup("/a/f")
	require.Error(t, err)
	inum, err := m.Lookup("/b/g")
	require.NoError(t, err)
	require.Greater(t, inum, int32(0))
}

func TestMkdirRejectsDuplicateName(t *testing.T) {
	m := newTestVolume(t)

	_, err := m.Mkdir("/a", 0o755)
	require.NoError(t, err)
	_, err = m.Mkdir("/a", 0o755)
	require.Error(t, err)
	require.Equal(t, lfserrors.NotEmpty, lfserrors.GetKind(err))
}

func TestCheckPermissionsDeniesWithoutBits(t *testing.T) {
	m := newTestVolume(t)

	inum, err := m.Create("/secret", 0o600)
	require.NoError(t, err)
	require.NoError(t, m.Chown("/secret", 1000, 1000))

	err = m.CheckPermissions("/secret", 2000, 2000, namespace.ReadAccess)
	require.Error(t, err)
	require.Equal(t, lfserrors.PermissionDenied, lfserrors.GetKind(err))

	require.NoError(t, m.CheckPermissions("/secret", 0, 0, namespace.ReadAccess), "root always succeeds")
	_ = inum
}
