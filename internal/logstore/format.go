package logstore

import (
	"github.com/segmentlfs/lfs/internal/flash"
	"github.com/segmentlfs/lfs/internal/lfserrors"
	"github.com/segmentlfs/lfs/internal/segcache"
)

// superblockSectors is how many sectors the immutable FlashData record
// occupies. It is tiny and never rewritten after format time.
const superblockSectors = 1

func writeSuperblock(dev flash.Device, fd *FlashData) error {
	totalEraseBlocks := dev.TotalSectors() / dev.SectorsPerEraseBlock()
	if err := dev.EraseBlocks(0, totalEraseBlocks); err != nil {
		return lfserrors.IOErrorf(err, "erase device for format")
	}
	buf := fd.marshal()
	padded := make([]byte, superblockSectors*flash.SectorSize)
	copy(padded, buf)
	if err := dev.WriteSectors(0, padded); err != nil {
		return lfserrors.IOErrorf(err, "write superblock")
	}
	return nil
}

func readSuperblock(dev flash.Device) (*FlashData, error) {
	buf := make([]byte, superblockSectors*flash.SectorSize)
	if err := dev.ReadSectors(0, superblockSectors, buf); err != nil {
		return nil, lfserrors.IOErrorf(err, "read superblock")
	}
	return unmarshalFlashData(buf), nil
}

// FormatLog lays out a brand-new flash image (§6): it erases the whole
// device, writes the superblock, and leaves an empty Log ready to accept
// the higher layers' initial writes (the iFile's own data blocks and the
// root directory's data block). The caller is responsible for calling
// Log.Write for that bootstrap content, then Log.SetIFileInodeBytes and
// Log.Sync to persist the very first checkpoint — logstore has no
// knowledge of inodes or directory entries, so it cannot assemble that
// content itself (§9 bootstrap recursion).
func FormatLog(dev flash.Device, geo Geometry, volumeUUID [16]byte, opts Options) (*Log, error) {
	opts = opts.withDefaults()

	fd := &FlashData{
		BlockSizeSectors:       geo.BlockSizeSectors,
		SegmentSizeBlocks:      geo.SegmentSizeBlocks,
		FlashSizeSegments:      geo.FlashSizeSegments,
		WearLimit:              geo.WearLimit,
		TotalBlocks:            geo.TotalBlocks(),
		CheckpointSegmentIndex: CheckpointSegmentIndex,
		VolumeUUID:             volumeUUID,
	}
	if err := writeSuperblock(dev, fd); err != nil {
		return nil, err
	}

	l := &Log{
		dev:                dev,
		geo:                geo,
		clk:                opts.Clock,
		cache:              segcache.New[*Segment](opts.CacheCapacity),
		ckpt:               newCheckpointRegion(dev, geo, opts.InodeBytesLen),
		checkpointInterval: opts.CheckpointInterval,
		usageTable:         make(SegmentUsageTable, geo.FlashSizeSegments),
		tail:               newSegment(FirstDataSegment, int(geo.SegmentSizeBlocks)),
		tailCursor:         1,
		checkpointSlot:     -1, // so the first Sync writes slot 0
		lastSealed:         CheckpointSegmentIndex,
		iFileInodeBytes:    make([]byte, opts.InodeBytesLen),
	}
	return l, nil
}
