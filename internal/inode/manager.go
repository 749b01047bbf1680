package inode

import (
	"os"
	"sync"

	"github.com/segmentlfs/lfs/clock"
	"github.com/segmentlfs/lfs/internal/lfserrors"
	"github.com/segmentlfs/lfs/internal/logstore"
)

// Default cost-benefit thresholds (§4.3 step 1 and step 4), expressed as
// segment counts. A small flash image tunes these down via
// ManagerOptions; the CLI surface's --start/--stop flags (§6) map directly
// onto these fields.
const (
	DefaultCleaningStartThreshold = 10
	DefaultCleaningEndThreshold   = 15
)

// Manager is the mounted file layer: the iFile, held out-of-band per §9
// bootstrap recursion, plus every per-inum operation the directory layer
// builds on.
type Manager struct {
	mu sync.Mutex

	log *logstore.Log
	geo logstore.Geometry
	clk clock.Clock

	// iFileInode is inum 0's own record. It is never stored inside the
	// iFile's byte contents (that would be self-referential); it lives here
	// and in the checkpoint region via log.SetIFileInodeBytes (§9).
	iFileInode Inode

	cleaningStartThreshold int
	cleaningEndThreshold   int
}

// ManagerOptions configures NewManager and Bootstrap beyond what the log
// layer already knows.
type ManagerOptions struct {
	CleaningStartThreshold int
	CleaningEndThreshold   int
}

func (o ManagerOptions) withDefaults() ManagerOptions {
	if o.CleaningStartThreshold <= 0 {
		o.CleaningStartThreshold = DefaultCleaningStartThreshold
	}
	if o.CleaningEndThreshold <= 0 {
		o.CleaningEndThreshold = DefaultCleaningEndThreshold
	}
	return o
}

// NewManager mounts the file layer over an already-opened (and recovered)
// Log, decoding the iFile's own inode record from the checkpoint.
func NewManager(log *logstore.Log, clk clock.Clock, opts ManagerOptions) (*Manager, error) {
	opts = opts.withDefaults()

	raw := log.IFileInodeBytes()
	if len(raw) != InodeSize {
		return nil, lfserrors.Corruptf("iFile inode record is %d bytes, want %d", len(raw), InodeSize)
	}

	return &Manager{
		log:                    log,
		geo:                    log.Geometry(),
		clk:                    clk,
		iFileInode:             *unmarshalInode(raw),
		cleaningStartThreshold: opts.CleaningStartThreshold,
		cleaningEndThreshold:   opts.CleaningEndThreshold,
	}, nil
}

// Bootstrap formats a brand-new volume's file layer (§6, §9): it creates
// the in-memory iFile inode and the root directory's inode at inum 1, then
// persists both. The caller (internal/namespace's own bootstrap, then
// cmd/mklfs) is responsible for writing the root directory's serialized
// "." / ".." contents into inum 1 afterward and calling log.Sync.
func Bootstrap(log *logstore.Log, clk clock.Clock, rootMode os.FileMode, opts ManagerOptions) (m *Manager, rootInum int32, err error) {
	opts = opts.withDefaults()
	now := clk.Now().UnixNano()

	m = &Manager{
		log:                    log,
		geo:                    log.Geometry(),
		clk:                    clk,
		iFileInode:             *newEmptyInode(),
		cleaningStartThreshold: opts.CleaningStartThreshold,
		cleaningEndThreshold:   opts.CleaningEndThreshold,
	}
	m.iFileInode.InUse = true
	m.iFileInode.FileType = FileTypeRegular
	m.iFileInode.Nlinks = 1
	m.iFileInode.Atime, m.iFileInode.Mtime, m.iFileInode.Ctime = now, now, now

	root := newEmptyInode()
	root.InUse = true
	root.FileType = FileTypeDirectory
	root.Mode = rootMode.Perm()
	root.Nlinks = 2 // "." plus the entry in its own parent
	root.Atime, root.Mtime, root.Ctime = now, now, now

	if err := m.persistInode(1, root); err != nil {
		return nil, 0, err
	}
	return m, 1, nil
}

// readInodeLocked returns a copy of inum's record. inum 0 is served from
// the in-memory copy directly (§9); every other inum is read through the
// iFile via the generic file-read path.
func (m *Manager) readInodeLocked(inum int32) (*Inode, error) {
	if inum == 0 {
		cp := m.iFileInode
		return &cp, nil
	}
	if inum < 0 {
		return nil, lfserrors.Fatalf("negative inum %d", inum)
	}

	buf := make([]byte, InodeSize)
	offset := uint64(inum-1) * InodeSize
	n, err := m.readFromInodeLocked(&m.iFileInode, offset, buf)
	if err != nil {
		return nil, err
	}
	if n != InodeSize {
		return nil, lfserrors.Corruptf("inum %d has no inode record (iFile too short)", inum)
	}
	return unmarshalInode(buf), nil
}

// persistInode writes ino back as inum's record. inum 0 terminates the
// recursion described in §9 by updating the in-memory copy and the
// checkpoint's carried bytes directly; every other inum is persisted by
// writing into the iFile, which itself bottoms out in the inum-0 case.
func (m *Manager) persistInode(inum int32, ino *Inode) error {
	if inum == 0 {
		m.iFileInode = *ino
		m.log.SetIFileInodeBytes(marshalInode(ino))
		return nil
	}
	if inum < 0 {
		return lfserrors.Fatalf("negative inum %d", inum)
	}
	offset := uint64(inum-1) * InodeSize
	return m.writeToInodeLocked(0, &m.iFileInode, offset, marshalInode(ino))
}
