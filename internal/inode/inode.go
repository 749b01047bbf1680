// Package inode implements the file layer (§4.3): the iFile (the file
// whose blocks are inode records), direct/indirect block addressing, and
// per-inum read/write/truncate/create/free. It knows nothing about paths
// or directory entries — internal/namespace builds on top of it.
package inode

import (
	"encoding/binary"
	"os"

	"github.com/segmentlfs/lfs/internal/logstore"
)

// FileType tags what kind of file an inode describes (§3).
type FileType uint8

const (
	FileTypeUnknown FileType = iota
	FileTypeRegular
	FileTypeDirectory
	FileTypeSymlink
)

// ModeBit returns the os.FileMode type bit corresponding to t, for
// composing a full fuseops.InodeAttributes.Mode.
func (t FileType) ModeBit() os.FileMode {
	switch t {
	case FileTypeDirectory:
		return os.ModeDir
	case FileTypeSymlink:
		return os.ModeSymlink
	default:
		return 0
	}
}

func (t FileType) String() string {
	switch t {
	case FileTypeRegular:
		return "regular"
	case FileTypeDirectory:
		return "directory"
	case FileTypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// addrSize is the on-disk encoding of one logstore.LogAddress: two little
// endian uint32s.
const addrSize = 8

// Inode is the fixed-size on-disk record for one file (§3, §4.3). Inum 0's
// record is never stored inside the iFile itself (§9 bootstrap recursion);
// every other inum's record lives at offset (inum-1)*InodeSize within the
// iFile's byte contents.
type Inode struct {
	InUse    bool
	FileType FileType
	Mode     os.FileMode // permission bits only; type bits come from FileType
	Uid      uint32
	Gid      uint32
	Nlinks   uint32
	FileSize uint64
	Atime    int64 // UnixNano
	Mtime    int64
	Ctime    int64

	Direct   [logstore.MaxDirectBlocks]logstore.LogAddress
	Indirect logstore.LogAddress // log address of the indirect block, or EmptyAddress
}

// InodeSize is the fixed encoded size of one Inode record, in bytes:
//
//	1 (InUse) + 1 (FileType) + 4 (Mode) + 4 (Uid) + 4 (Gid) + 4 (Nlinks) +
//	8 (FileSize) + 8*3 (Atime/Mtime/Ctime) + 4*addrSize (Direct) + addrSize (Indirect)
const InodeSize = 1 + 1 + 4 + 4 + 4 + 4 + 8 + 8*3 + logstore.MaxDirectBlocks*addrSize + addrSize

func newEmptyInode() *Inode {
	ino := &Inode{Indirect: logstore.EmptyAddress}
	for k := range ino.Direct {
		ino.Direct[k] = logstore.EmptyAddress
	}
	return ino
}

func marshalAddr(buf []byte, a logstore.LogAddress) {
	binary.LittleEndian.PutUint32(buf[0:4], a.Segment)
	binary.LittleEndian.PutUint32(buf[4:8], a.Block)
}

func unmarshalAddr(buf []byte) logstore.LogAddress {
	return logstore.LogAddress{
		Segment: binary.LittleEndian.Uint32(buf[0:4]),
		Block:   binary.LittleEndian.Uint32(buf[4:8]),
	}
}

func marshalInode(ino *Inode) []byte {
	buf := make([]byte, InodeSize)
	if ino.InUse {
		buf[0] = 1
	}
	buf[1] = byte(ino.FileType)
	binary.LittleEndian.PutUint32(buf[2:6], uint32(ino.Mode))
	binary.LittleEndian.PutUint32(buf[6:10], ino.Uid)
	binary.LittleEndian.PutUint32(buf[10:14], ino.Gid)
	binary.LittleEndian.PutUint32(buf[14:18], ino.Nlinks)
	binary.LittleEndian.PutUint64(buf[18:26], ino.FileSize)
	binary.LittleEndian.PutUint64(buf[26:34], uint64(ino.Atime))
	binary.LittleEndian.PutUint64(buf[34:42], uint64(ino.Mtime))
	binary.LittleEndian.PutUint64(buf[42:50], uint64(ino.Ctime))

	off := 50
	for k := 0; k < logstore.MaxDirectBlocks; k++ {
		marshalAddr(buf[off:off+addrSize], ino.Direct[k])
		off += addrSize
	}
	marshalAddr(buf[off:off+addrSize], ino.Indirect)
	return buf
}

func unmarshalInode(buf []byte) *Inode {
	ino := &Inode{}
	ino.InUse = buf[0] == 1
	ino.FileType = FileType(buf[1])
	ino.Mode = os.FileMode(binary.LittleEndian.Uint32(buf[2:6]))
	ino.Uid = binary.LittleEndian.Uint32(buf[6:10])
	ino.Gid = binary.LittleEndian.Uint32(buf[10:14])
	ino.Nlinks = binary.LittleEndian.Uint32(buf[14:18])
	ino.FileSize = binary.LittleEndian.Uint64(buf[18:26])
	ino.Atime = int64(binary.LittleEndian.Uint64(buf[26:34]))
	ino.Mtime = int64(binary.LittleEndian.Uint64(buf[34:42]))
	ino.Ctime = int64(binary.LittleEndian.Uint64(buf[42:50]))

	off := 50
	for k := 0; k < logstore.MaxDirectBlocks; k++ {
		ino.Direct[k] = unmarshalAddr(buf[off : off+addrSize])
		off += addrSize
	}
	ino.Indirect = unmarshalAddr(buf[off : off+addrSize])
	return ino
}
