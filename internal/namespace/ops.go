package namespace

import (
	"os"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/segmentlfs/lfs/internal/inode"
	"github.com/segmentlfs/lfs/internal/lfserrors"
)

// Every directory-layer operation invokes RunCleaner as its first action
// (§4.4: opportunistic, synchronous reclamation). runCleanerLocked is
// called while m.mu is already held; internal/inode.Manager carries its
// own mutex, so the two layers never deadlock each other.
func (m *Manager) runCleanerLocked() error {
	return m.fm.RunCleaner()
}

// Mkdir creates a directory at path (§4.4).
func (m *Manager) Mkdir(path string, mode os.FileMode) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return 0, err
	}

	parentInum, name, err := m.resolveParentLocked(path)
	if err != nil {
		return 0, err
	}
	parentList, err := m.readDirListLocked(parentInum)
	if err != nil {
		return 0, err
	}
	if _, exists := parentList.lookup(name); exists {
		return 0, lfserrors.NotEmptyf("%q already exists", path)
	}

	inum, err := m.fm.Create(inode.FileTypeDirectory, mode)
	if err != nil {
		return 0, err
	}
	if err := m.writeDirListLocked(inum, newDirectoryList(inum)); err != nil {
		return 0, err
	}

	parentList.add(name, inum)
	if err := m.writeDirListLocked(parentInum, parentList); err != nil {
		return 0, err
	}
	// A fresh directory's nlinks starts at 1 (Create's generic convention:
	// one for the parent entry just added above). A directory additionally
	// counts its own "." entry, and it bumps its parent's count for the
	// new child's "..".
	if err := m.fm.AddLink(inum); err != nil {
		return 0, err
	}
	if err := m.fm.AddLink(parentInum); err != nil {
		return 0, err
	}
	return inum, nil
}

// Create creates a regular file at path with no initial contents (§4.4).
func (m *Manager) Create(path string, mode os.FileMode) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return 0, err
	}
	return m.createEntryLocked(path, inode.FileTypeRegular, mode)
}

// createEntryLocked is shared by Create and the link-creating half of
// Symlink: allocate an inode of fileType, bind it into its parent under
// path's basename.
func (m *Manager) createEntryLocked(path string, fileType inode.FileType, mode os.FileMode) (int32, error) {
	parentInum, name, err := m.resolveParentLocked(path)
	if err != nil {
		return 0, err
	}
	parentList, err := m.readDirListLocked(parentInum)
	if err != nil {
		return 0, err
	}
	if _, exists := parentList.lookup(name); exists {
		return 0, lfserrors.NotEmptyf("%q already exists", path)
	}

	inum, err := m.fm.Create(fileType, mode)
	if err != nil {
		return 0, err
	}
	parentList.add(name, inum)
	if err := m.writeDirListLocked(parentInum, parentList); err != nil {
		return 0, err
	}
	return inum, nil
}

// Symlink creates a symlink at from whose contents are to's bytes (§4.4).
func (m *Manager) Symlink(to, from string) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return 0, err
	}

	inum, err := m.createEntryLocked(from, inode.FileTypeSymlink, 0o777)
	if err != nil {
		return 0, err
	}
	if err := m.fm.Write(inum, 0, []byte(to)); err != nil {
		return 0, err
	}
	return inum, nil
}

// Readlink reads up to len(buf) bytes of the symlink at path's target
// (§4.4).
func (m *Manager) Readlink(path string, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return 0, err
	}

	inum, err := m.resolveLocked(path)
	if err != nil {
		return 0, err
	}
	ft, err := m.fm.GetFileType(inum)
	if err != nil {
		return 0, err
	}
	if ft != inode.FileTypeSymlink {
		return 0, lfserrors.Notf("%q is not a symlink", path)
	}
	return m.fm.Read(inum, 0, buf)
}

// Link resolves from to its inum and adds a new entry at to naming the same
// inum, incrementing its link count (§4.4).
func (m *Manager) Link(from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return err
	}

	inum, err := m.resolveLocked(from)
	if err != nil {
		return err
	}
	if ft, err := m.fm.GetFileType(inum); err != nil {
		return err
	} else if ft == inode.FileTypeDirectory {
		// Hard-linking a directory would let the tree grow a cycle,
		// contradicting §9's "cyclic structures do not exist" invariant.
		return lfserrors.PermissionDeniedf("%q is a directory", from)
	}
	parentInum, name, err := m.resolveParentLocked(to)
	if err != nil {
		return err
	}
	parentList, err := m.readDirListLocked(parentInum)
	if err != nil {
		return err
	}
	if _, exists := parentList.lookup(name); exists {
		return lfserrors.NotEmptyf("%q already exists", to)
	}

	parentList.add(name, inum)
	if err := m.writeDirListLocked(parentInum, parentList); err != nil {
		return err
	}
	return m.fm.AddLink(inum)
}

// Unlink removes path's entry from its parent (§4.4): a symlink is freed
// unconditionally, everything else goes through remove_link, which frees it
// only once nlinks reaches zero.
func (m *Manager) Unlink(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return err
	}
	return m.unlinkLocked(path)
}

func (m *Manager) unlinkLocked(path string) error {
	parentInum, name, err := m.resolveParentLocked(path)
	if err != nil {
		return err
	}
	parentList, err := m.readDirListLocked(parentInum)
	if err != nil {
		return err
	}
	inum, ok := parentList.lookup(name)
	if !ok {
		return lfserrors.Notf("%q not found", path)
	}

	if !parentList.remove(name) {
		return lfserrors.Notf("%q not found", path)
	}
	if err := m.writeDirListLocked(parentInum, parentList); err != nil {
		return err
	}

	ft, err := m.fm.GetFileType(inum)
	if err != nil {
		return err
	}
	if ft == inode.FileTypeSymlink {
		return m.fm.Free(inum)
	}
	return m.fm.RemoveLink(inum)
}

// Rmdir removes the empty directory at path (§4.4). NotEmpty if it holds
// anything besides "." and "..".
func (m *Manager) Rmdir(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return err
	}

	inum, err := m.resolveLocked(path)
	if err != nil {
		return err
	}
	dl, err := m.readDirListLocked(inum)
	if err != nil {
		return err
	}
	if !dl.onlyDotEntries() {
		return lfserrors.NotEmptyf("%q is not empty", path)
	}

	parentInum, name, err := m.resolveParentLocked(path)
	if err != nil {
		return err
	}
	parentList, err := m.readDirListLocked(parentInum)
	if err != nil {
		return err
	}
	if !parentList.remove(name) {
		return lfserrors.Notf("%q not found", path)
	}
	if err := m.writeDirListLocked(parentInum, parentList); err != nil {
		return err
	}

	// Directories are never hard-linked (POSIX), so the inode is freed
	// outright rather than reference-counted down through RemoveLink; undo
	// the extra link Mkdir added on the parent's behalf for the removed
	// directory's "..".
	if err := m.fm.Free(inum); err != nil {
		return err
	}
	return m.fm.RemoveLink(parentInum)
}

// Rename moves the entry at from to to, atomically with respect to the two
// directory lists but with no inode updates and no link-count changes
// (§4.4; see §9 on rename's non-atomicity under crash).
func (m *Manager) Rename(from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return err
	}

	srcParentInum, srcName, err := m.resolveParentLocked(from)
	if err != nil {
		return err
	}
	srcList, err := m.readDirListLocked(srcParentInum)
	if err != nil {
		return err
	}
	inum, ok := srcList.lookup(srcName)
	if !ok {
		return lfserrors.Notf("%q not found", from)
	}

	dstParentInum, dstName, err := m.resolveParentLocked(to)
	if err != nil {
		return err
	}
	dstList := srcList
	if dstParentInum != srcParentInum {
		dstList, err = m.readDirListLocked(dstParentInum)
		if err != nil {
			return err
		}
	}
	if _, exists := dstList.lookup(dstName); exists {
		return lfserrors.NotEmptyf("%q already exists", to)
	}

	srcList.remove(srcName)
	dstList.add(dstName, inum)

	if dstParentInum == srcParentInum {
		return m.writeDirListLocked(srcParentInum, srcList)
	}
	if err := m.writeDirListLocked(srcParentInum, srcList); err != nil {
		return err
	}
	return m.writeDirListLocked(dstParentInum, dstList)
}

// Chmod resolves path and delegates to the file layer (§4.4).
func (m *Manager) Chmod(path string, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return err
	}
	inum, err := m.resolveLocked(path)
	if err != nil {
		return err
	}
	return m.fm.Chmod(inum, mode)
}

// Chown resolves path and delegates to the file layer (§4.4).
func (m *Manager) Chown(path string, uid, gid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return err
	}
	inum, err := m.resolveLocked(path)
	if err != nil {
		return err
	}
	return m.fm.Chown(inum, uid, gid)
}

// Truncate resolves path and delegates to the file layer (§4.4).
func (m *Manager) Truncate(path string, newSize uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return err
	}
	inum, err := m.resolveLocked(path)
	if err != nil {
		return err
	}
	return m.fm.Truncate(inum, newSize)
}

// Read resolves path and delegates to the file layer (§4.4).
func (m *Manager) Read(path string, offset uint64, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return 0, err
	}
	inum, err := m.resolveLocked(path)
	if err != nil {
		return 0, err
	}
	return m.fm.Read(inum, offset, buf)
}

// Write resolves path and delegates to the file layer (§4.4).
func (m *Manager) Write(path string, offset uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return err
	}
	inum, err := m.resolveLocked(path)
	if err != nil {
		return err
	}
	return m.fm.Write(inum, offset, data)
}

// GetAttr resolves path and delegates to the file layer (§4.4).
func (m *Manager) GetAttr(path string) (fuseops.InodeAttributes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return fuseops.InodeAttributes{}, err
	}
	inum, err := m.resolveLocked(path)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	return m.fm.GetAttr(inum)
}

// Readdir resolves path and returns its decoded entry list, in storage
// order: "." and ".." first, then every child in creation order (§8
// scenario S5).
func (m *Manager) Readdir(path string) ([]DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return nil, err
	}
	inum, err := m.resolveLocked(path)
	if err != nil {
		return nil, err
	}
	dl, err := m.readDirListLocked(inum)
	if err != nil {
		return nil, err
	}
	return dl.Entries, nil
}

// Lookup resolves path to its inum without reading the inode's attributes,
// for callers (internal/kernelfs) that need only the inum. Like the other
// operations it runs the cleaner first.
func (m *Manager) Lookup(path string) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return 0, err
	}
	return m.resolveLocked(path)
}
