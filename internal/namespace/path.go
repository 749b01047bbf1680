package namespace

import (
	"strings"

	"github.com/segmentlfs/lfs/internal/inode"
	"github.com/segmentlfs/lfs/internal/lfserrors"
)

// splitPath tokenizes a slash-separated path into its non-empty segments.
// "/", "", and "///a//b" all behave the way a POSIX path resolver expects:
// leading/trailing/doubled slashes carry no meaning.
func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// resolveLocked walks path from the root inum, looking up each segment in
// turn (§4.4). It returns NotFound the moment a segment is absent, or if an
// intermediate segment does not name a directory.
func (m *Manager) resolveLocked(path string) (int32, error) {
	inum := m.rootInum
	segments := splitPath(path)
	for i, seg := range segments {
		dl, err := m.readDirListLocked(inum)
		if err != nil {
			return 0, err
		}
		next, ok := dl.lookup(seg)
		if !ok {
			return 0, lfserrors.Notf("path segment %q not found", seg)
		}
		if i < len(segments)-1 {
			ft, err := m.fm.GetFileType(next)
			if err != nil {
				return 0, err
			}
			if ft != inode.FileTypeDirectory {
				return 0, lfserrors.Notf("path segment %q is not a directory", seg)
			}
		}
		inum = next
	}
	return inum, nil
}

// resolveParentLocked splits path into its parent directory's inum and its
// final component. The root itself has no parent within the tree ("/" has
// no basename to create or remove).
func (m *Manager) resolveParentLocked(path string) (parentInum int32, name string, err error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return 0, "", lfserrors.Notf("path %q has no parent", path)
	}
	name = segments[len(segments)-1]
	parentPath := "/" + strings.Join(segments[:len(segments)-1], "/")
	parentInum, err = m.resolveLocked(parentPath)
	return parentInum, name, err
}
