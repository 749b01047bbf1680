package inode

import (
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/segmentlfs/lfs/internal/lfserrors"
	"github.com/segmentlfs/lfs/internal/logstore"
)

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// getBlockAddressLocked resolves blockIdx (a file-relative block number,
// §4.3) to its current log address: direct for blockIdx < 4, otherwise an
// entry in the indirect block. A never-written slot resolves to
// logstore.EmptyAddress, not an error — callers decide what that means.
func (m *Manager) getBlockAddressLocked(ino *Inode, blockIdx int) (logstore.LogAddress, error) {
	if blockIdx < logstore.MaxDirectBlocks {
		return ino.Direct[blockIdx], nil
	}
	k := blockIdx - logstore.MaxDirectBlocks
	if k >= m.geo.AddressesPerIndirectBlock() {
		return logstore.LogAddress{}, lfserrors.Fatalf("block index %d exceeds max blocks per file (%d)", blockIdx, m.geo.MaxBlocksPerFile())
	}
	if ino.Indirect.IsEmpty() {
		return logstore.EmptyAddress, nil
	}
	buf := make([]byte, m.geo.BlockSizeBytes())
	if err := m.log.Read(ino.Indirect, buf); err != nil {
		return logstore.LogAddress{}, err
	}
	return unmarshalAddr(buf[k*addrSize : k*addrSize+addrSize]), nil
}

// setBlockAddressLocked records blockIdx's new address in ino. For a
// direct slot this is an in-place field update; for an indirect-addressed
// slot the whole indirect block is read, the one entry is updated, and the
// block is rewritten at a fresh log address, replacing ino.Indirect
// (§4.3: "when any of its entries is updated, the whole block is
// rewritten").
func (m *Manager) setBlockAddressLocked(targetInum int32, ino *Inode, blockIdx int, newAddr logstore.LogAddress) error {
	if blockIdx < logstore.MaxDirectBlocks {
		ino.Direct[blockIdx] = newAddr
		return nil
	}
	k := blockIdx - logstore.MaxDirectBlocks
	if k >= m.geo.AddressesPerIndirectBlock() {
		return lfserrors.Fatalf("block index %d exceeds max blocks per file (%d)", blockIdx, m.geo.MaxBlocksPerFile())
	}

	blockSize := m.geo.BlockSizeBytes()
	buf := make([]byte, blockSize)
	if ino.Indirect.IsEmpty() {
		for i := range buf {
			buf[i] = 0xFF // decodes as EmptyAddress (math.MaxUint32) for every unset entry
		}
	} else if err := m.log.Read(ino.Indirect, buf); err != nil {
		return err
	}

	marshalAddr(buf[k*addrSize:k*addrSize+addrSize], newAddr)

	newIndirectAddr, err := m.log.Write(targetInum, logstore.IndirectBlockMarker, buf)
	if err != nil {
		return err
	}
	old := ino.Indirect
	ino.Indirect = newIndirectAddr
	if !old.IsEmpty() {
		if err := m.log.Free(old); err != nil {
			return err
		}
	}
	return nil
}

// readFromInodeLocked implements §4.3's read semantics against an already
// resolved inode value: reads at or past file_size return zero bytes,
// reads are truncated to file_size-offset, and a read touching a
// never-written block is a Corruption error.
func (m *Manager) readFromInodeLocked(ino *Inode, offset uint64, buf []byte) (int, error) {
	if offset >= ino.FileSize {
		return 0, nil
	}
	want := uint64(len(buf))
	if offset+want > ino.FileSize {
		want = ino.FileSize - offset
	}
	if want == 0 {
		return 0, nil
	}

	blockSize := uint64(m.geo.BlockSizeBytes())
	startBlock := int(offset / blockSize)
	endBlock := int((offset + want - 1) / blockSize)

	for blockIdx := startBlock; blockIdx <= endBlock; blockIdx++ {
		addr, err := m.getBlockAddressLocked(ino, blockIdx)
		if err != nil {
			return 0, err
		}
		if addr.IsEmpty() {
			return 0, lfserrors.Corruptf("read of never-written block %d", blockIdx)
		}
		block := make([]byte, blockSize)
		if err := m.log.Read(addr, block); err != nil {
			return 0, err
		}

		blockStart := uint64(blockIdx) * blockSize
		copyStart := maxU64(offset, blockStart)
		copyEnd := minU64(offset+want, blockStart+blockSize)
		copy(buf[copyStart-offset:copyEnd-offset], block[copyStart-blockStart:copyEnd-blockStart])
	}
	return int(want), nil
}

// writeToInodeLocked implements §4.3's write semantics: splits [offset,
// offset+len(data)) into the blocks it touches, read-modify-writes each
// one (freeing its old address), updates file_size and timestamps, then
// persists ino as targetInum's record.
func (m *Manager) writeToInodeLocked(targetInum int32, ino *Inode, offset uint64, data []byte) error {
	if offset > ino.FileSize {
		return lfserrors.Fatalf("write at offset %d exceeds file_size %d (append-beyond-end)", offset, ino.FileSize)
	}
	if len(data) == 0 {
		return nil
	}

	blockSize := uint64(m.geo.BlockSizeBytes())
	end := offset + uint64(len(data))
	startBlock := int(offset / blockSize)
	endBlock := int((end - 1) / blockSize)

	if endBlock >= m.geo.MaxBlocksPerFile() {
		return lfserrors.Fatalf("write touches block %d, beyond max blocks per file (%d)", endBlock, m.geo.MaxBlocksPerFile())
	}

	for blockIdx := startBlock; blockIdx <= endBlock; blockIdx++ {
		blockStart := uint64(blockIdx) * blockSize

		curAddr, err := m.getBlockAddressLocked(ino, blockIdx)
		if err != nil {
			return err
		}

		block := make([]byte, blockSize)
		if !curAddr.IsEmpty() {
			if err := m.log.Read(curAddr, block); err != nil {
				return err
			}
		}

		spliceStart := maxU64(offset, blockStart)
		spliceEnd := minU64(end, blockStart+blockSize)
		copy(block[spliceStart-blockStart:spliceEnd-blockStart], data[spliceStart-offset:spliceEnd-offset])

		newAddr, err := m.log.Write(targetInum, int32(blockIdx), block)
		if err != nil {
			return err
		}
		if !curAddr.IsEmpty() {
			if err := m.log.Free(curAddr); err != nil {
				return err
			}
		}
		if err := m.setBlockAddressLocked(targetInum, ino, blockIdx, newAddr); err != nil {
			return err
		}
	}

	if end > ino.FileSize {
		ino.FileSize = end
	}
	now := m.clk.Now().UnixNano()
	ino.Atime, ino.Mtime = now, now

	return m.persistInode(targetInum, ino)
}

func (m *Manager) freeBlocksLocked(ino *Inode) error {
	for k := 0; k < logstore.MaxDirectBlocks; k++ {
		if !ino.Direct[k].IsEmpty() {
			if err := m.log.Free(ino.Direct[k]); err != nil {
				return err
			}
			ino.Direct[k] = logstore.EmptyAddress
		}
	}
	if ino.Indirect.IsEmpty() {
		return nil
	}
	blockSize := m.geo.BlockSizeBytes()
	buf := make([]byte, blockSize)
	if err := m.log.Read(ino.Indirect, buf); err != nil {
		return err
	}
	for k := 0; k < m.geo.AddressesPerIndirectBlock(); k++ {
		addr := unmarshalAddr(buf[k*addrSize : k*addrSize+addrSize])
		if !addr.IsEmpty() {
			if err := m.log.Free(addr); err != nil {
				return err
			}
		}
	}
	if err := m.log.Free(ino.Indirect); err != nil {
		return err
	}
	ino.Indirect = logstore.EmptyAddress
	return nil
}

// Create allocates a fresh inode (§4.3): the lowest unused inum found by
// scanning the iFile, or a new slot extending it by one record. Returns
// the new inum.
func (m *Manager) Create(fileType FileType, mode os.FileMode) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := int32(m.iFileInode.FileSize / InodeSize)
	inum := int32(0)
	for i := int32(1); i <= count; i++ {
		ino, err := m.readInodeLocked(i)
		if err != nil {
			return 0, err
		}
		if !ino.InUse {
			inum = i
			break
		}
	}
	if inum == 0 {
		inum = count + 1
	}

	now := m.clk.Now().UnixNano()
	ino := newEmptyInode()
	ino.InUse = true
	ino.FileType = fileType
	ino.Mode = mode.Perm()
	ino.Nlinks = 1
	ino.Atime, ino.Mtime, ino.Ctime = now, now, now

	if err := m.persistInode(inum, ino); err != nil {
		return 0, err
	}
	return inum, nil
}

// Read copies up to len(buf) bytes starting at offset from inum's content
// into buf, returning the number of bytes actually copied (§4.3).
func (m *Manager) Read(inum int32, offset uint64, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ino, err := m.readInodeLocked(inum)
	if err != nil {
		return 0, err
	}
	if !ino.InUse {
		return 0, lfserrors.Notf("inum %d is not in use", inum)
	}
	return m.readFromInodeLocked(ino, offset, buf)
}

// Write splices data into inum's content starting at offset (§4.3).
func (m *Manager) Write(inum int32, offset uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ino, err := m.readInodeLocked(inum)
	if err != nil {
		return err
	}
	if !ino.InUse {
		return lfserrors.Notf("inum %d is not in use", inum)
	}
	return m.writeToInodeLocked(inum, ino, offset, data)
}

// Truncate resizes inum's content to newSize (§4.3): the retained prefix
// (min(old, new) bytes) is preserved, every block is released and
// rewritten from scratch, and growth is zero-filled. §9 Open Question 5
// accepts the crash exposure this read-then-rewrite approach has.
func (m *Manager) Truncate(inum int32, newSize uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ino, err := m.readInodeLocked(inum)
	if err != nil {
		return err
	}
	if !ino.InUse {
		return lfserrors.Notf("inum %d is not in use", inum)
	}

	keep := minU64(ino.FileSize, newSize)
	prefix := make([]byte, keep)
	if keep > 0 {
		if _, err := m.readFromInodeLocked(ino, 0, prefix); err != nil {
			return err
		}
	}

	if err := m.freeBlocksLocked(ino); err != nil {
		return err
	}
	ino.FileSize = 0

	if keep > 0 {
		if err := m.writeToInodeLocked(inum, ino, 0, prefix); err != nil {
			return err
		}
	}
	if newSize > keep {
		zeros := make([]byte, newSize-keep)
		if err := m.writeToInodeLocked(inum, ino, keep, zeros); err != nil {
			return err
		}
	}
	if newSize == 0 {
		now := m.clk.Now().UnixNano()
		ino.Atime, ino.Mtime = now, now
		return m.persistInode(inum, ino)
	}
	return nil
}

// Free releases every block inum owns and marks it unused (§4.3).
// Freeing the iFile (inum 0) is a Fatal programmer error.
func (m *Manager) Free(inum int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freeLocked(inum)
}

func (m *Manager) freeLocked(inum int32) error {
	if inum == 0 {
		return lfserrors.Fatalf("attempted to free the iFile")
	}
	ino, err := m.readInodeLocked(inum)
	if err != nil {
		return err
	}
	if err := m.freeBlocksLocked(ino); err != nil {
		return err
	}
	ino.InUse = false
	ino.FileSize = 0
	return m.persistInode(inum, ino)
}

// GetAttr returns POSIX-style attributes for inum (§4.3), in the same
// shape the kernel-interface shim hands back to FUSE.
func (m *Manager) GetAttr(inum int32) (fuseops.InodeAttributes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ino, err := m.readInodeLocked(inum)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	if !ino.InUse {
		return fuseops.InodeAttributes{}, lfserrors.Notf("inum %d is not in use", inum)
	}
	return fuseops.InodeAttributes{
		Size:  ino.FileSize,
		Nlink: uint64(ino.Nlinks),
		Mode:  ino.FileType.ModeBit() | ino.Mode,
		Atime: time.Unix(0, ino.Atime),
		Mtime: time.Unix(0, ino.Mtime),
		Ctime: time.Unix(0, ino.Ctime),
		Uid:   ino.Uid,
		Gid:   ino.Gid,
	}, nil
}

// GetFileType reports inum's FileType without decoding the rest of its
// attributes.
func (m *Manager) GetFileType(inum int32) (FileType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ino, err := m.readInodeLocked(inum)
	if err != nil {
		return FileTypeUnknown, err
	}
	if !ino.InUse {
		return FileTypeUnknown, lfserrors.Notf("inum %d is not in use", inum)
	}
	return ino.FileType, nil
}

// Chmod updates inum's permission bits.
func (m *Manager) Chmod(inum int32, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ino, err := m.readInodeLocked(inum)
	if err != nil {
		return err
	}
	ino.Mode = mode.Perm()
	ino.Ctime = m.clk.Now().UnixNano()
	return m.persistInode(inum, ino)
}

// Chown updates inum's owning uid/gid. A negative value leaves the
// corresponding field unchanged, matching POSIX chown(2).
func (m *Manager) Chown(inum int32, uid, gid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ino, err := m.readInodeLocked(inum)
	if err != nil {
		return err
	}
	if uid >= 0 {
		ino.Uid = uint32(uid)
	}
	if gid >= 0 {
		ino.Gid = uint32(gid)
	}
	ino.Ctime = m.clk.Now().UnixNano()
	return m.persistInode(inum, ino)
}

// AddLink increments inum's link count (§4.3).
func (m *Manager) AddLink(inum int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ino, err := m.readInodeLocked(inum)
	if err != nil {
		return err
	}
	ino.Nlinks++
	ino.Ctime = m.clk.Now().UnixNano()
	return m.persistInode(inum, ino)
}

// RemoveLink decrements inum's link count, freeing it once the count
// reaches zero (§4.3).
func (m *Manager) RemoveLink(inum int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ino, err := m.readInodeLocked(inum)
	if err != nil {
		return err
	}
	if ino.Nlinks > 0 {
		ino.Nlinks--
	}
	if ino.Nlinks == 0 {
		return m.freeLocked(inum)
	}
	ino.Ctime = m.clk.Now().UnixNano()
	return m.persistInode(inum, ino)
}
