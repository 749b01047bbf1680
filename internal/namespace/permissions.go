package namespace

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/segmentlfs/lfs/internal/lfserrors"
)

// AccessMode is the set of permission bits an access check asks for, using
// the same R_OK/W_OK/X_OK convention as POSIX access(2).
type AccessMode uint32

const (
	ReadAccess    AccessMode = unix.R_OK
	WriteAccess   AccessMode = unix.W_OK
	ExecuteAccess AccessMode = unix.X_OK
)

// CheckPermissions implements §4.4's check_permissions: a standard POSIX
// access check against the effective uid/gid and the inode's user/group/
// other permission triples. Root (uid 0) always succeeds.
func (m *Manager) CheckPermissions(path string, uid, gid uint32, want AccessMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.runCleanerLocked(); err != nil {
		return err
	}

	if uid == 0 {
		return nil
	}

	inum, err := m.resolveLocked(path)
	if err != nil {
		return err
	}
	attrs, err := m.fm.GetAttr(inum)
	if err != nil {
		return err
	}

	var have os.FileMode
	switch {
	case uid == attrs.Uid:
		have = (attrs.Mode >> 6) & 0o7
	case gid == attrs.Gid:
		have = (attrs.Mode >> 3) & 0o7
	default:
		have = attrs.Mode & 0o7
	}

	var needBits os.FileMode
	if want&ReadAccess != 0 {
		needBits |= 0o4
	}
	if want&WriteAccess != 0 {
		needBits |= 0o2
	}
	if want&ExecuteAccess != 0 {
		needBits |= 0o1
	}

	if have&needBits != needBits {
		return lfserrors.PermissionDeniedf("uid %d lacks %o on %q (has %o)", uid, needBits, path, have)
	}
	return nil
}
