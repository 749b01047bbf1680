package logstore

import (
	"encoding/binary"
	"math"
)

// LogAddress is a (segment, block) pair addressing one block within the
// log (§3). Block index 0 is reserved for the segment summary; blocks
// 1..S-1 hold data.
type LogAddress struct {
	Segment uint32
	Block   uint32
}

// EmptyAddress is the sentinel "(UINT_MAX, UINT_MAX)" meaning "empty" (§3).
var EmptyAddress = LogAddress{Segment: math.MaxUint32, Block: math.MaxUint32}

// IsEmpty reports whether a is the empty sentinel.
func (a LogAddress) IsEmpty() bool { return a == EmptyAddress }

// addressSize is sizeof(LogAddress) on disk: two uint32s.
const addressSize = 8

func (a LogAddress) marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], a.Segment)
	binary.LittleEndian.PutUint32(buf[4:8], a.Block)
}

func unmarshalAddress(buf []byte) LogAddress {
	return LogAddress{
		Segment: binary.LittleEndian.Uint32(buf[0:4]),
		Block:   binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// NoInum marks a summary slot as free/dead (§3 SegmentSummary).
const NoInum int32 = -1

// IndirectBlockMarker is the inode_block_numbers[k] sentinel meaning "block
// k holds the owning file's indirect block, not a file data block" (§3).
const IndirectBlockMarker int32 = -1

// SegmentSummary is the per-segment metadata stored in block 0 of a
// segment (§3). BlockInums[k] and InodeBlockNumbers[k] describe data block
// k for k in [1, segmentSizeBlocks).
type SegmentSummary struct {
	BlockInums        []int32
	InodeBlockNumbers []int32
}

func newSegmentSummary(segmentSizeBlocks int) *SegmentSummary {
	s := &SegmentSummary{
		BlockInums:        make([]int32, segmentSizeBlocks),
		InodeBlockNumbers: make([]int32, segmentSizeBlocks),
	}
	for k := range s.BlockInums {
		s.BlockInums[k] = NoInum
		s.InodeBlockNumbers[k] = NoInum
	}
	return s
}

func (s *SegmentSummary) marshal(buf []byte) {
	n := len(s.BlockInums)
	for k := 0; k < n; k++ {
		binary.LittleEndian.PutUint32(buf[k*4:k*4+4], uint32(s.BlockInums[k]))
	}
	base := n * 4
	for k := 0; k < n; k++ {
		binary.LittleEndian.PutUint32(buf[base+k*4:base+k*4+4], uint32(s.InodeBlockNumbers[k]))
	}
}

func unmarshalSegmentSummary(buf []byte, segmentSizeBlocks int) *SegmentSummary {
	s := newSegmentSummary(segmentSizeBlocks)
	for k := 0; k < segmentSizeBlocks; k++ {
		s.BlockInums[k] = int32(binary.LittleEndian.Uint32(buf[k*4 : k*4+4]))
	}
	base := segmentSizeBlocks * 4
	for k := 0; k < segmentSizeBlocks; k++ {
		s.InodeBlockNumbers[k] = int32(binary.LittleEndian.Uint32(buf[base+k*4 : base+k*4+4]))
	}
	return s
}

// summarySizeBytes returns how many bytes of block 0 the summary occupies
// for the given segment geometry: two int32 arrays of segmentSizeBlocks
// entries each.
func summarySizeBytes(segmentSizeBlocks int) int { return segmentSizeBlocks * 4 * 2 }

// SegmentUsageTableEntry is the cleaner's ground truth about one segment
// (§3): how many bytes of it are still referenced, and when it was last
// sealed.
type SegmentUsageTableEntry struct {
	LiveBytes     uint64
	AgeOfYoungest int64 // UnixNano
}

// SegmentUsageTable is a flat array of one entry per segment, persisted as
// a whole segment (§4.2).
type SegmentUsageTable []SegmentUsageTableEntry

// addLiveBytes adjusts live bytes, saturating at zero on the way down.
// Open Question §9.2: free() on an address already freed would otherwise
// underflow the counter; a saturating update is the minimal fix.
func (e *SegmentUsageTableEntry) addLiveBytes(delta int64) {
	if delta >= 0 {
		e.LiveBytes += uint64(delta)
		return
	}
	d := uint64(-delta)
	if d > e.LiveBytes {
		e.LiveBytes = 0
		return
	}
	e.LiveBytes -= d
}

// Checkpoint is the recovery anchor (§3): the newest valid one in the
// checkpoint region wins on recovery.
type Checkpoint struct {
	Valid                    bool
	Timestamp                int64 // UnixNano, monotonic by construction
	SegmentUsageTableSegment uint32
	LastSealedSegment        uint32
	// IFileInodeBytes is the fixed-size encoded inode record for inum 0.
	// The log layer treats it as an opaque blob (§9 bootstrap recursion):
	// only internal/inode knows how to decode it.
	IFileInodeBytes []byte
}

// FlashData is the immutable superblock (§3), written once at format time.
type FlashData struct {
	BlockSizeSectors       uint32
	SegmentSizeBlocks      uint32
	FlashSizeSegments      uint32
	WearLimit              uint32
	TotalBlocks            uint64
	CheckpointSegmentIndex uint32
	VolumeUUID             [16]byte
}

const flashDataSize = 4*5 + 8 + 16

func (fd *FlashData) marshal() []byte {
	buf := make([]byte, flashDataSize)
	binary.LittleEndian.PutUint32(buf[0:4], fd.BlockSizeSectors)
	binary.LittleEndian.PutUint32(buf[4:8], fd.SegmentSizeBlocks)
	binary.LittleEndian.PutUint32(buf[8:12], fd.FlashSizeSegments)
	binary.LittleEndian.PutUint32(buf[12:16], fd.WearLimit)
	binary.LittleEndian.PutUint64(buf[16:24], fd.TotalBlocks)
	binary.LittleEndian.PutUint32(buf[24:28], fd.CheckpointSegmentIndex)
	copy(buf[28:44], fd.VolumeUUID[:])
	return buf
}

func unmarshalFlashData(buf []byte) *FlashData {
	fd := &FlashData{}
	fd.BlockSizeSectors = binary.LittleEndian.Uint32(buf[0:4])
	fd.SegmentSizeBlocks = binary.LittleEndian.Uint32(buf[4:8])
	fd.FlashSizeSegments = binary.LittleEndian.Uint32(buf[8:12])
	fd.WearLimit = binary.LittleEndian.Uint32(buf[12:16])
	fd.TotalBlocks = binary.LittleEndian.Uint64(buf[16:24])
	fd.CheckpointSegmentIndex = binary.LittleEndian.Uint32(buf[24:28])
	copy(fd.VolumeUUID[:], buf[28:44])
	return fd
}
