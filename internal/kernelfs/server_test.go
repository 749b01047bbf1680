package kernelfs_test

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/segmentlfs/lfs/clock"
	"github.com/segmentlfs/lfs/internal/flash/testflash"
	"github.com/segmentlfs/lfs/internal/inode"
	"github.com/segmentlfs/lfs/internal/kernelfs"
	"github.com/segmentlfs/lfs/internal/logstore"
	"github.com/segmentlfs/lfs/internal/namespace"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *kernelfs.Server {
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

	ns, err := namespace.Bootstrap(log, clock.RealClock{}, os.FileMode(0o755), inode.ManagerOptions{})
	require.NoError(t, err)

	return kernelfs.NewServer(ns)
}

// TestCreateLookupReadWriteRoundTrip drives the FileSystem callbacks a
// kernel would issue for `echo hi > /f && cat /f`: a CreateFile followed by
// WriteFile, then a fresh LookUpInode and ReadFile for the same path.
func TestCreateLookupReadWriteRoundTrip(t *testing.T) {
	s := newTestServer(t)
	createOp := &fuseops.CreateFileOp{
		Parent: fuseops.RootInodeID,
		Name:   "f",
		Mode:   0o644,
	}
	require.NoError(t, s.CreateFile(createOp))
	child := createOp.Entry.Child

	writeOp := &fuseops.WriteFileOp{
		Inode:  child,
		Offset: 0,
		Data:   []byte("hello"),
	}
	require.NoError(t, s.WriteFile(writeOp))

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "f"}
	require.NoError(t, s.LookUpInode(lookupOp))
	require.Equal(t, child, lookupOp.Entry.Child)

	readOp := &fuseops.ReadFileOp{Inode: child, Offset: 0, Size: 5}
	require.NoError(t, s.ReadFile(readOp))
	require.Equal(t, "hello", string(readOp.Data))
}

func TestMkDirAndReadDir(t *testing.T) {
	s := newTestServer(t)
	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "d", Mode: os.ModeDir | 0o755}
	require.NoError(t, s.MkDir(mkdirOp))
	dir := mkdirOp.Entry.Child

	createOp := &fuseops.CreateFileOp{Parent: dir, Name: "g", Mode: 0o644}
	require.NoError(t, s.CreateFile(createOp))

	openOp := &fuseops.OpenDirOp{Inode: dir}
	require.NoError(t, s.OpenDir(openOp))

	readOp := &fuseops.ReadDirOp{
		Inode:  dir,
		Handle: openOp.Handle,
		Offset: 0,
		Size:   4096,
	}
	require.NoError(t, s.ReadDir(readOp))
	require.Greater(t, len(readOp.Data), 0)

	require.NoError(t, s.ReleaseDirHandle(&fuseops.ReleaseDirHandleOp{Handle: openOp.Handle}))
}

func TestRmDirOnNonEmptyDirectoryFails(t *testing.T) {
	s := newTestServer(t)
	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "d", Mode: os.ModeDir | 0o755}
	require.NoError(t, s.MkDir(mkdirOp))
	dir := mkdirOp.Entry.Child

	createOp := &fuseops.CreateFileOp{Parent: dir, Name: "g", Mode: 0o644}
	require.NoError(t, s.CreateFile(createOp))

	err := s.RmDir(&fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "d"})
	require.Error(t, err)

	require.NoError(t, s.Unlink(&fuseops.UnlinkOp{Parent: dir, Name: "g"}))
	require.NoError(t, s.RmDir(&fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "d"}))
}
