package namespace

import (
	"os"
	"sync"

	"github.com/segmentlfs/lfs/clock"
	"github.com/segmentlfs/lfs/internal/inode"
	"github.com/segmentlfs/lfs/internal/lfserrors"
	"github.com/segmentlfs/lfs/internal/logstore"
)

// RootInum is the inum of the volume's root directory. inode.Bootstrap
// always allocates it first, at inum 1.
const RootInum = 1

// Manager is the mounted directory layer: path resolution and every
// operation the kernel-interface shim exposes, built entirely on top of
// internal/inode's per-inum primitives.
type Manager struct {
	mu       sync.Mutex
	fm       *inode.Manager
	rootInum int32
}

// NewManager mounts the directory layer over an already-bootstrapped file
// layer.
func NewManager(fm *inode.Manager, rootInum int32) *Manager {
	return &Manager{fm: fm, rootInum: rootInum}
}

// Bootstrap formats a brand-new volume end to end: the log layer must
// already be freshly formatted (logstore.FormatLog), after which this
// builds the file layer's iFile and root inode, writes the root directory's
// initial "." / ".." contents, and syncs the checkpoint so the volume is
// immediately mountable.
func Bootstrap(log *logstore.Log, clk clock.Clock, rootMode os.FileMode, opts inode.ManagerOptions) (*Manager, error) {
	fm, rootInum, err := inode.Bootstrap(log, clk, rootMode, opts)
	if err != nil {
		return nil, err
	}
	if rootInum != RootInum {
		return nil, lfserrors.Fatalf("file layer bootstrap returned root inum %d, want %d", rootInum, RootInum)
	}

	m := &Manager{fm: fm, rootInum: rootInum}
	dl := newDirectoryList(rootInum)
	if err := m.fm.Write(rootInum, 0, dl.Marshal()); err != nil {
		return nil, err
	}
	if err := log.Sync(); err != nil {
		return nil, err
	}
	return m, nil
}

// readDirListLocked reads and decodes inum's full contents as a
// DirectoryList. The caller must already hold m.mu.
func (m *Manager) readDirListLocked(inum int32) (*DirectoryList, error) {
	ft, err := m.fm.GetFileType(inum)
	if err != nil {
		return nil, err
	}
	if ft != inode.FileTypeDirectory {
		return nil, lfserrors.Notf("inum %d is not a directory", inum)
	}
	attrs, err := m.fm.GetAttr(inum)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, attrs.Size)
	if _, err := m.fm.Read(inum, 0, buf); err != nil {
		return nil, err
	}
	return UnmarshalDirectoryList(buf)
}

// writeDirListLocked replaces inum's contents with dl's encoding. The
// directory file is truncated to zero first since the new encoding may be
// shorter than the old one (e.g. after remove). The caller must already
// hold m.mu.
func (m *Manager) writeDirListLocked(inum int32, dl *DirectoryList) error {
	if err := m.fm.Truncate(inum, 0); err != nil {
		return err
	}
	return m.fm.Write(inum, 0, dl.Marshal())
}
