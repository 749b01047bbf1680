// Package kernelfs is the §1 "explicitly out of scope" kernel filesystem
// interface binding: a thin fuseutil.FileSystem implementation whose only
// duty is to adapt internal/namespace's path-based operations to FUSE's
// inode-ID-based callback conventions, and to translate internal/lfserrors
// kinds to POSIX errno. It holds no filesystem semantics of its own.
package kernelfs

import (
	"sync"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/segmentlfs/lfs/internal/lfserrors"
	"github.com/segmentlfs/lfs/internal/namespace"
)

// Server implements fuseutil.FileSystem over an internal/namespace.Manager.
// Grounded on fs/fs.go's overall shape: one method per fuseops op, taking
// the op itself and returning an error, with op.Context() available should
// an operation ever need cancellation. An in-memory inode table resolves
// the kernel's numeric IDs; unlike fs.go's table of live inode.Inode
// objects, the table here holds nothing but the path each ID was last
// looked up under — internal/namespace is the source of truth for
// everything else.
type Server struct {
	fuseutil.NotImplementedFileSystem

	ns *namespace.Manager

	mu sync.Mutex
	// GUARDED_BY(mu)
	paths map[fuseops.InodeID]string
	// GUARDED_BY(mu)
	dirHandles map[fuseops.HandleID]*dirHandle
	// GUARDED_BY(mu)
	nextHandle fuseops.HandleID
}

type dirHandle struct {
	entries []namespace.DirEntry
}

// NewServer mounts a kernelfs.Server over an already-bootstrapped directory
// layer.
func NewServer(ns *namespace.Manager) *Server {
	return &Server{
		ns:         ns,
		paths:      map[fuseops.InodeID]string{fuseops.RootInodeID: "/"},
		dirHandles: map[fuseops.HandleID]*dirHandle{},
	}
}

func (s *Server) pathOf(id fuseops.InodeID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paths[id]
}

func (s *Server) bind(id fuseops.InodeID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[id] = path
}

// childPath joins a parent's cached path with a child name the way every
// fuseops op below receives it: Parent InodeID plus a bare Name.
func childPath(parentPath, name string) string {
	if parentPath == "/" {
		return "/" + name
	}
	return parentPath + "/" + name
}

// mapErr translates an internal/lfserrors kind into the POSIX errno FUSE
// expects, per §7's propagation rule ("the kernel-interface shim is
// responsible for mapping [kinds] to host error codes").
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch lfserrors.GetKind(err) {
	case lfserrors.NotFound:
		return fuse.ENOENT
	case lfserrors.NotEmpty:
		return syscall.ENOTEMPTY
	case lfserrors.PermissionDenied:
		return syscall.EACCES
	case lfserrors.FlashFull:
		return syscall.ENOSPC
	case lfserrors.IOError, lfserrors.Corruption, lfserrors.Fatal:
		return syscall.EIO
	default:
		return syscall.EIO
	}
}

func (s *Server) Init(op *fuseops.InitOp) error {
	return nil
}

func (s *Server) LookUpInode(op *fuseops.LookUpInodeOp) error {
	path := childPath(s.pathOf(op.Parent), op.Name)
	inum, err := s.ns.Lookup(path)
	if err != nil {
		return mapErr(err)
	}
	attrs, err := s.ns.GetAttr(path)
	if err != nil {
		return mapErr(err)
	}
	id := fuseops.InodeID(inum)
	s.bind(id, path)
	op.Entry = fuseops.ChildInodeEntry{Child: id, Attributes: attrs}
	return nil
}

func (s *Server) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) error {
	attrs, err := s.ns.GetAttr(s.pathOf(op.Inode))
	if err != nil {
		return mapErr(err)
	}
	op.Attributes = attrs
	return nil
}

func (s *Server) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) error {
	path := s.pathOf(op.Inode)
	if op.Mode != nil {
		if err := s.ns.Chmod(path, *op.Mode); err != nil {
			return mapErr(err)
		}
	}
	if op.Size != nil {
		if err := s.ns.Truncate(path, *op.Size); err != nil {
			return mapErr(err)
		}
	}
	attrs, err := s.ns.GetAttr(path)
	if err != nil {
		return mapErr(err)
	}
	op.Attributes = attrs
	return nil
}

func (s *Server) ForgetInode(op *fuseops.ForgetInodeOp) error {
	// Nothing to release: internal/namespace inodes live until explicitly
	// unlinked, not until the kernel's lookup cache evicts them. Dropping
	// the cached path here would only force an unnecessary re-lookup.
	return nil
}

func (s *Server) MkDir(op *fuseops.MkDirOp) error {
	path := childPath(s.pathOf(op.Parent), op.Name)
	inum, err := s.ns.Mkdir(path, op.Mode)
	if err != nil {
		return mapErr(err)
	}
	attrs, err := s.ns.GetAttr(path)
	if err != nil {
		return mapErr(err)
	}
	id := fuseops.InodeID(inum)
	s.bind(id, path)
	op.Entry = fuseops.ChildInodeEntry{Child: id, Attributes: attrs}
	return nil
}

func (s *Server) CreateFile(op *fuseops.CreateFileOp) error {
	path := childPath(s.pathOf(op.Parent), op.Name)
	inum, err := s.ns.Create(path, op.Mode)
	if err != nil {
		return mapErr(err)
	}
	attrs, err := s.ns.GetAttr(path)
	if err != nil {
		return mapErr(err)
	}
	id := fuseops.InodeID(inum)
	s.bind(id, path)
	op.Entry = fuseops.ChildInodeEntry{Child: id, Attributes: attrs}
	return nil
}

func (s *Server) CreateSymlink(op *fuseops.CreateSymlinkOp) error {
	path := childPath(s.pathOf(op.Parent), op.Name)
	inum, err := s.ns.Symlink(op.Target, path)
	if err != nil {
		return mapErr(err)
	}
	attrs, err := s.ns.GetAttr(path)
	if err != nil {
		return mapErr(err)
	}
	id := fuseops.InodeID(inum)
	s.bind(id, path)
	op.Entry = fuseops.ChildInodeEntry{Child: id, Attributes: attrs}
	return nil
}

func (s *Server) CreateLink(op *fuseops.CreateLinkOp) error {
	from := s.pathOf(op.Target)
	to := childPath(s.pathOf(op.Parent), op.Name)
	if err := s.ns.Link(from, to); err != nil {
		return mapErr(err)
	}
	attrs, err := s.ns.GetAttr(to)
	if err != nil {
		return mapErr(err)
	}
	op.Entry = fuseops.ChildInodeEntry{Child: op.Target, Attributes: attrs}
	return nil
}

func (s *Server) Rename(op *fuseops.RenameOp) error {
	from := childPath(s.pathOf(op.OldParent), op.OldName)
	to := childPath(s.pathOf(op.NewParent), op.NewName)
	return mapErr(s.ns.Rename(from, to))
}

func (s *Server) RmDir(op *fuseops.RmDirOp) error {
	path := childPath(s.pathOf(op.Parent), op.Name)
	return mapErr(s.ns.Rmdir(path))
}

func (s *Server) Unlink(op *fuseops.UnlinkOp) error {
	path := childPath(s.pathOf(op.Parent), op.Name)
	return mapErr(s.ns.Unlink(path))
}

func (s *Server) OpenDir(op *fuseops.OpenDirOp) error {
	entries, err := s.ns.Readdir(s.pathOf(op.Inode))
	if err != nil {
		return mapErr(err)
	}

	s.mu.Lock()
	handle := s.nextHandle
	s.nextHandle++
	s.dirHandles[handle] = &dirHandle{entries: entries}
	s.mu.Unlock()

	op.Handle = handle
	return nil
}

func (s *Server) ReadDir(op *fuseops.ReadDirOp) error {
	s.mu.Lock()
	dh := s.dirHandles[op.Handle]
	s.mu.Unlock()
	if dh == nil {
		return syscall.EIO
	}

	for i := int(op.Offset); i < len(dh.entries); i++ {
		e := dh.entries[i]
		next := fuseutil.AppendDirent(op.Data, fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fuseops.InodeID(e.Inum),
			Name:   e.Name,
			Type:   fuseutil.DT_Unknown,
		})
		if len(next) > op.Size {
			break
		}
		op.Data = next
	}
	return nil
}

func (s *Server) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) error {
	s.mu.Lock()
	delete(s.dirHandles, op.Handle)
	s.mu.Unlock()
	return nil
}

func (s *Server) OpenFile(op *fuseops.OpenFileOp) error {
	return nil
}

func (s *Server) ReadFile(op *fuseops.ReadFileOp) error {
	buf := make([]byte, op.Size)
	n, err := s.ns.Read(s.pathOf(op.Inode), uint64(op.Offset), buf)
	if err != nil {
		return mapErr(err)
	}
	op.Data = buf[:n]
	return nil
}

func (s *Server) ReadSymlink(op *fuseops.ReadSymlinkOp) error {
	buf := make([]byte, 4096)
	n, err := s.ns.Readlink(s.pathOf(op.Inode), buf)
	if err != nil {
		return mapErr(err)
	}
	op.Target = string(buf[:n])
	return nil
}

func (s *Server) WriteFile(op *fuseops.WriteFileOp) error {
	return mapErr(s.ns.Write(s.pathOf(op.Inode), uint64(op.Offset), op.Data))
}

func (s *Server) SyncFile(op *fuseops.SyncFileOp) error {
	return nil
}

func (s *Server) FlushFile(op *fuseops.FlushFileOp) error {
	return nil
}

func (s *Server) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) error {
	return nil
}
