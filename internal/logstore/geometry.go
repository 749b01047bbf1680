package logstore

import "github.com/segmentlfs/lfs/internal/flash"

// Geometry is the fixed, format-time layout of a flash image (§6):
//
//	segment 0             : superblock
//	segment 1             : segment usage table
//	segment 2             : checkpoint region
//	segment 3..size-1     : log data segments
//
// Segments 1 and 2 are reserved single segments, matching §4.2's "stored
// in its own reserved segment" (singular) for both the usage table and the
// checkpoint region.
type Geometry struct {
	BlockSizeSectors  uint32
	SegmentSizeBlocks uint32
	FlashSizeSegments uint32
	WearLimit         uint32
}

const (
	UsageTableSegment      uint32 = 1
	CheckpointSegmentIndex uint32 = 2
	FirstDataSegment       uint32 = 3
)

// BlockSizeBytes is the size in bytes of one block.
func (g Geometry) BlockSizeBytes() int { return int(g.BlockSizeSectors) * flash.SectorSize }

// SegmentSizeBytes is the size in bytes of one full segment.
func (g Geometry) SegmentSizeBytes() int { return int(g.SegmentSizeBlocks) * g.BlockSizeBytes() }

// SegmentDataBytes is the capacity for file data within one segment: all
// blocks except block 0 (the summary). Used as the denominator for the
// cost-benefit cleaner's utilization term (§9 Open Question 4).
func (g Geometry) SegmentDataBytes() int {
	return int(g.SegmentSizeBlocks-1) * g.BlockSizeBytes()
}

// SectorsPerSegment is the erase-block-independent sector span of one
// segment.
func (g Geometry) SectorsPerSegment() uint64 {
	return uint64(g.SegmentSizeBlocks) * uint64(g.BlockSizeSectors)
}

// TotalBlocks is the number of addressable blocks across the whole image.
func (g Geometry) TotalBlocks() uint64 {
	return uint64(g.FlashSizeSegments) * uint64(g.SegmentSizeBlocks)
}

// segmentFirstSector returns the first sector of segment n.
func (g Geometry) segmentFirstSector(n uint32) uint64 {
	return uint64(n) * g.SectorsPerSegment()
}

// blockFirstSector returns the first sector of block k within segment n.
func (g Geometry) blockFirstSector(n, k uint32) uint64 {
	return g.segmentFirstSector(n) + uint64(k)*uint64(g.BlockSizeSectors)
}

// MaxDirectBlocks is the number of direct block addresses an inode holds
// (§4.3): blocks 0..3.
const MaxDirectBlocks = 4

// AddressesPerIndirectBlock returns how many LogAddresses fit in one
// indirect block (B/A in §4.3's notation).
func (g Geometry) AddressesPerIndirectBlock() int {
	return g.BlockSizeBytes() / addressSize
}

// MaxBlocksPerFile is 4 + B/A (§4.3).
func (g Geometry) MaxBlocksPerFile() int {
	return MaxDirectBlocks + g.AddressesPerIndirectBlock()
}
