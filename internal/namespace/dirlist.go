// Package namespace implements the directory layer (§4.4): path resolution,
// directory entries on top of internal/inode files, link counting, symlink
// creation, and rename. It knows nothing about the kernel filesystem
// interface — internal/kernelfs builds on top of it.
package namespace

import (
	"encoding/binary"

	"github.com/segmentlfs/lfs/internal/lfserrors"
)

// DirEntry is one name/inum pair inside a directory's serialized contents
// (§3 Directory list, §4.4).
type DirEntry struct {
	Name string
	Inum int32
}

// DirectoryList is a directory file's decoded contents: always "." first,
// ".." second, then every other child in the order they were added. Open
// Question 1 (§9) is resolved by never chasing ".." during path resolution:
// it is stored, read back, and listed like any other entry, it simply
// happens to alias the directory's own inum.
type DirectoryList struct {
	Entries []DirEntry
}

const (
	direntNameLenSize = 2
	direntInumSize    = 4
)

// Marshal encodes a DirectoryList the way it is written into a directory
// file's byte contents: a count, then each entry as a 2-byte name length, the
// name bytes, and a 4-byte little-endian inum.
func (d *DirectoryList) Marshal() []byte {
	size := 4
	for _, e := range d.Entries {
		size += direntNameLenSize + len(e.Name) + direntInumSize
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(d.Entries)))
	off := 4
	for _, e := range d.Entries {
		binary.LittleEndian.PutUint16(buf[off:off+direntNameLenSize], uint16(len(e.Name)))
		off += direntNameLenSize
		copy(buf[off:off+len(e.Name)], e.Name)
		off += len(e.Name)
		binary.LittleEndian.PutUint32(buf[off:off+direntInumSize], uint32(e.Inum))
		off += direntInumSize
	}
	return buf
}

// UnmarshalDirectoryList decodes the bytes Marshal produced.
func UnmarshalDirectoryList(buf []byte) (*DirectoryList, error) {
	if len(buf) < 4 {
		return nil, lfserrors.Corruptf("directory list too short: %d bytes", len(buf))
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	entries := make([]DirEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+direntNameLenSize > len(buf) {
			return nil, lfserrors.Corruptf("directory list truncated reading entry %d's name length", i)
		}
		nameLen := int(binary.LittleEndian.Uint16(buf[off : off+direntNameLenSize]))
		off += direntNameLenSize
		if off+nameLen+direntInumSize > len(buf) {
			return nil, lfserrors.Corruptf("directory list truncated reading entry %d", i)
		}
		name := string(buf[off : off+nameLen])
		off += nameLen
		inum := int32(binary.LittleEndian.Uint32(buf[off : off+direntInumSize]))
		off += direntInumSize
		entries = append(entries, DirEntry{Name: name, Inum: inum})
	}
	return &DirectoryList{Entries: entries}, nil
}

// newDirectoryList builds a freshly created directory's initial contents:
// "." and ".." both referencing selfInum, per §4.4 mkdir. No parent inum
// is taken — ".." is stored as selfInum too (§9 Open Question 1): this
// implementation never chases ".." during resolution, so storing the true
// parent would be dead data, and aliasing self matches the teacher
// distillation's documented behavior rather than "fixing" it silently.
func newDirectoryList(selfInum int32) *DirectoryList {
	return &DirectoryList{Entries: []DirEntry{
		{Name: ".", Inum: selfInum},
		{Name: "..", Inum: selfInum},
	}}
}

// lookup returns the inum bound to name, or (0, false) if name is absent.
func (d *DirectoryList) lookup(name string) (int32, bool) {
	for _, e := range d.Entries {
		if e.Name == name {
			return e.Inum, true
		}
	}
	return 0, false
}

// add appends a new entry. Callers are responsible for checking the name
// isn't already taken.
func (d *DirectoryList) add(name string, inum int32) {
	d.Entries = append(d.Entries, DirEntry{Name: name, Inum: inum})
}

// remove deletes the entry named name, reporting whether one was found.
func (d *DirectoryList) remove(name string) bool {
	for i, e := range d.Entries {
		if e.Name == name {
			d.Entries = append(d.Entries[:i], d.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// onlyDotEntries reports whether d holds nothing but "." and "..", the
// rmdir emptiness check (§4.4).
func (d *DirectoryList) onlyDotEntries() bool {
	for _, e := range d.Entries {
		if e.Name != "." && e.Name != ".." {
			return false
		}
	}
	return true
}
