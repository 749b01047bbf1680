// Package logstore implements the log layer (§4.2): a segment-structured
// append-only log over a flash.Device, with a segment cache, a checkpoint
// region for crash recovery, and the segment usage table the cleaner reads
// to pick cleaning candidates. It knows nothing about inodes, files, or
// directories — those live in internal/inode and internal/namespace, which
// call down into Log for every block they read or write.
package logstore

import (
	"encoding/binary"
	"sync"

	"github.com/segmentlfs/lfs/clock"
	"github.com/segmentlfs/lfs/internal/flash"
	"github.com/segmentlfs/lfs/internal/lfserrors"
	"github.com/segmentlfs/lfs/internal/logger"
	"github.com/segmentlfs/lfs/internal/metrics"
	"github.com/segmentlfs/lfs/internal/segcache"
)

// DefaultCheckpointIntervalSegments is how many sealed segments elapse
// between checkpoint writes (§4.2). A short interval bounds replay time on
// recovery at the cost of more checkpoint-region wear.
const DefaultCheckpointIntervalSegments = 8

// Log is the mounted, live view of one flash image's log layer.
type Log struct {
	mu sync.Mutex

	dev flash.Device
	geo Geometry
	clk clock.Clock

	cache *segcache.Cache[*Segment]
	ckpt  *checkpointRegion

	usageTable SegmentUsageTable

	tail       *Segment
	tailCursor uint32 // next free block index in tail, in [1, SegmentSizeBlocks)
	lastSealed uint32

	checkpointSlot        int
	sealedSinceCheckpoint int
	checkpointInterval    int

	iFileInodeBytes []byte
}

// Options configures OpenLog and FormatLog beyond what's recoverable from
// the superblock.
type Options struct {
	CacheCapacity      int
	InodeBytesLen      int // fixed encoded size of one inode record (internal/inode)
	CheckpointInterval int // 0 uses DefaultCheckpointIntervalSegments
	Clock              clock.Clock
}

func (o Options) withDefaults() Options {
	if o.CacheCapacity <= 0 {
		o.CacheCapacity = 16
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = DefaultCheckpointIntervalSegments
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	return o
}

// OpenLog mounts an already-formatted flash image: it reads the
// superblock, replays the checkpoint region and any segments sealed since
// the last checkpoint, and leaves the Log ready to serve Read/Write (§4.2
// Recovery).
func OpenLog(dev flash.Device, opts Options) (*Log, error) {
	opts = opts.withDefaults()

	fd, err := readSuperblock(dev)
	if err != nil {
		return nil, err
	}

	geo := Geometry{
		BlockSizeSectors:  fd.BlockSizeSectors,
		SegmentSizeBlocks: fd.SegmentSizeBlocks,
		FlashSizeSegments: fd.FlashSizeSegments,
		WearLimit:         fd.WearLimit,
	}

	l := &Log{
		dev:                dev,
		geo:                geo,
		clk:                opts.Clock,
		cache:              segcache.New[*Segment](opts.CacheCapacity),
		ckpt:               newCheckpointRegion(dev, geo, opts.InodeBytesLen),
		checkpointInterval: opts.CheckpointInterval,
	}

	if err := l.recover(); err != nil {
		return nil, err
	}
	return l, nil
}

// recover implements §4.2's recovery procedure: find the newest valid
// checkpoint, load the usage table and iFile inode bytes it names, then
// replay every data segment written after it to bring the usage table and
// the in-memory tail back to the pre-crash state.
func (l *Log) recover() error {
	checkpoints, err := l.ckpt.readAll()
	if err != nil {
		return err
	}
	cp, slot, found := latestValid(checkpoints)
	if !found {
		return lfserrors.Corruptf("no valid checkpoint found in checkpoint region")
	}
	l.checkpointSlot = slot
	l.iFileInodeBytes = cp.IFileInodeBytes
	l.lastSealed = cp.LastSealedSegment

	table, err := l.readUsageTableSegment(cp.SegmentUsageTableSegment)
	if err != nil {
		return err
	}
	l.usageTable = table

	return l.replayAfterCheckpoint()
}

// replayAfterCheckpoint walks data segments forward from lastSealed+1,
// applying each fully-written segment's summary to the usage table and
// stopping at the first segment that is empty or only partially written —
// that one becomes the recovered tail (§4.2 Recovery). Because every block
// write persists its data and a fresh summary to flash immediately, a
// partially-filled segment found here genuinely holds everything written
// to it before the crash, and filling simply resumes where it left off.
func (l *Log) replayAfterCheckpoint() error {
	n := l.nextDataSegment(l.lastSealed)
	start := n
	blockSizeBytes := uint64(l.geo.BlockSizeBytes())

	for {
		raw, err := l.readRawSegment(n)
		if err != nil {
			return err
		}
		seg := unmarshalSegment(n, l.geo, raw)
		live := seg.liveBlockCount()

		switch {
		case live == 0:
			// Untouched since last erase: this is where the tail resumes.
			l.tail = newSegment(n, int(l.geo.SegmentSizeBlocks))
			l.tailCursor = 1
			return nil
		case live == int(l.geo.SegmentSizeBlocks)-1:
			// Fully written: a sealed segment the checkpoint predates.
			l.usageTable[n].LiveBytes = uint64(live) * blockSizeBytes
			l.usageTable[n].AgeOfYoungest = l.clk.Now().UnixNano()
			l.lastSealed = n
			n = l.nextDataSegment(n)
			if n == start {
				return lfserrors.Corruptf("recovery wrapped the whole log without finding a free tail segment")
			}
		default:
			// Partially written: the crash happened mid-fill of this segment.
			l.usageTable[n].LiveBytes = uint64(live) * blockSizeBytes
			l.usageTable[n].AgeOfYoungest = l.clk.Now().UnixNano()
			seg.recoveredPartial = true
			l.tail = seg
			l.tailCursor = uint32(live) + 1
			return nil
		}
	}
}

// nextDataSegment returns the data segment following n, wrapping past
// FlashSizeSegments-1 back to FirstDataSegment.
func (l *Log) nextDataSegment(n uint32) uint32 {
	next := n + 1
	if next >= l.geo.FlashSizeSegments {
		next = FirstDataSegment
	}
	return next
}

// Read copies the block at addr into buf, which must be at least
// BlockSizeBytes() long. addr.IsEmpty() is a caller error.
func (l *Log) Read(addr LogAddress, buf []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if addr.IsEmpty() {
		return lfserrors.Notf("read of empty log address")
	}

	seg, err := l.getSegment(addr.Segment)
	if err != nil {
		return err
	}
	block := seg.blocks[addr.Block]
	if block == nil {
		return lfserrors.Corruptf("segment %d block %d has no data", addr.Segment, addr.Block)
	}
	copy(buf, block)
	return nil
}

// getSegment returns the segment at index n, serving the live tail, the
// cache, or flash in that order.
func (l *Log) getSegment(n uint32) (*Segment, error) {
	if l.tail != nil && n == l.tail.index {
		return l.tail, nil
	}
	if l.cache.Contains(n) {
		metrics.CacheHits.Inc()
		return l.cache.Get(n), nil
	}
	metrics.CacheMisses.Inc()
	raw, err := l.readRawSegment(n)
	if err != nil {
		return nil, err
	}
	seg := unmarshalSegment(n, l.geo, raw)
	l.cache.Put(n, seg)
	return seg, nil
}

func (l *Log) readRawSegment(n uint32) ([]byte, error) {
	buf := make([]byte, l.geo.SegmentSizeBytes())
	if err := l.dev.ReadSectors(l.geo.segmentFirstSector(n), l.geo.SectorsPerSegment(), buf); err != nil {
		return nil, lfserrors.IOErrorf(err, "read segment %d", n)
	}
	return buf, nil
}

// Write appends data as the block for (inum, fileBlockNumber), sealing and
// rotating the tail if it is full, and returns the LogAddress it landed at
// (§4.2). data must be exactly BlockSizeBytes() long.
func (l *Log) Write(inum int32, fileBlockNumber int32, data []byte) (LogAddress, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(data) != l.geo.BlockSizeBytes() {
		return LogAddress{}, lfserrors.Fatalf("write block size %d != %d", len(data), l.geo.BlockSizeBytes())
	}

	if l.tailCursor >= l.geo.SegmentSizeBlocks {
		if err := l.sealTailLocked(); err != nil {
			return LogAddress{}, err
		}
		if err := l.rotateTailLocked(); err != nil {
			return LogAddress{}, err
		}
	}

	k := l.tailCursor
	block := make([]byte, len(data))
	copy(block, data)
	l.tail.blocks[k] = block
	l.tail.summary.BlockInums[k] = inum
	l.tail.summary.InodeBlockNumbers[k] = fileBlockNumber
	l.tailCursor++

	if err := l.persistTailBlockLocked(k); err != nil {
		return LogAddress{}, err
	}

	l.usageTable[l.tail.index].addLiveBytes(int64(l.geo.BlockSizeBytes()))

	return LogAddress{Segment: l.tail.index, Block: k}, nil
}

// persistTailBlockLocked writes data block k and the refreshed summary
// block (block 0) of the tail to flash immediately, so a crash mid-fill
// leaves an on-flash summary consistent with whichever data blocks made it
// out (§4.2 Recovery). This relies on flash.Device's write-only-clears-bits
// contract: each summary slot transitions from NoInum to a real value
// exactly once, so rewriting the whole summary block on every call is a
// valid incremental narrowing, not a second program of already-set bits.
func (l *Log) persistTailBlockLocked(k uint32) error {
	dataSector := l.geo.blockFirstSector(l.tail.index, k)
	if err := l.dev.WriteSectors(dataSector, l.tail.blocks[k]); err != nil {
		return lfserrors.IOErrorf(err, "write segment %d block %d", l.tail.index, k)
	}

	summaryBuf := make([]byte, summarySizeBytes(int(l.geo.SegmentSizeBlocks)))
	l.tail.summary.marshal(summaryBuf)
	summarySector := l.geo.segmentFirstSector(l.tail.index)
	if err := l.dev.WriteSectors(summarySector, padToSectors(summaryBuf, int(l.geo.BlockSizeSectors))); err != nil {
		return lfserrors.IOErrorf(err, "write segment %d summary", l.tail.index)
	}
	return nil
}

func padToSectors(buf []byte, sectorsWanted int) []byte {
	want := sectorsWanted * flash.SectorSize
	if len(buf) >= want {
		return buf
	}
	padded := make([]byte, want)
	copy(padded, buf)
	return padded
}

// sealTailLocked finalizes the current tail: every block and the summary
// are already on flash (persistTailBlockLocked wrote them as they were
// appended), so sealing only tags its age, caches it, and advances
// checkpoint bookkeeping (§4.2). The live-byte count stays the running
// total kept by Write and Free: Free does not touch the summary, so
// frees made while this segment was the tail are reflected only there.
func (l *Log) sealTailLocked() error {
	blockSizeBytes := uint64(l.geo.BlockSizeBytes())
	live := l.usageTable[l.tail.index].LiveBytes / blockSizeBytes
	l.usageTable[l.tail.index].AgeOfYoungest = l.clk.Now().UnixNano()

	if l.tail.recoveredPartial {
		logger.Tracef("segment %d finished sealing after mid-fill recovery", l.tail.index)
	}

	l.cache.Invalidate(l.tail.index)
	l.cache.Put(l.tail.index, l.tail)

	l.lastSealed = l.tail.index
	metrics.SegmentsSealed.Inc()

	if err := l.persistUsageTableLocked(); err != nil {
		return err
	}

	l.sealedSinceCheckpoint++
	if l.sealedSinceCheckpoint >= l.checkpointInterval {
		if err := l.writeCheckpointLocked(); err != nil {
			return err
		}
	}
	logger.Tracef("sealed segment %d (%d live blocks)", l.tail.index, live)
	return nil
}

// rotateTailLocked picks the lowest-indexed clean data segment (live_bytes
// == 0) as the new tail, always erasing it first, since a segment whose
// blocks were all freed still holds their old contents on flash.
func (l *Log) rotateTailLocked() error {
	n, err := l.findCleanSegmentLocked()
	if err != nil {
		return err
	}
	if err := l.eraseSegmentLocked(n); err != nil {
		return err
	}
	l.tail = newSegment(n, int(l.geo.SegmentSizeBlocks))
	l.tailCursor = 1
	return nil
}

func (l *Log) findCleanSegmentLocked() (uint32, error) {
	for n := FirstDataSegment; n < l.geo.FlashSizeSegments; n++ {
		if l.usageTable[n].LiveBytes == 0 {
			return n, nil
		}
	}
	return 0, lfserrors.FlashFullf("no clean segment available to become the new tail")
}

// writeCheckpointLocked persists the usage table and a fresh checkpoint
// record naming it, rotating to the next checkpoint-region slot.
func (l *Log) writeCheckpointLocked() error {
	if err := l.persistUsageTableLocked(); err != nil {
		return err
	}

	slot := (l.checkpointSlot + 1) % l.ckpt.numSlots
	cp := &Checkpoint{
		Valid:                    true,
		Timestamp:                l.clk.Now().UnixNano(),
		SegmentUsageTableSegment: UsageTableSegment,
		LastSealedSegment:        l.lastSealed,
		IFileInodeBytes:          l.iFileInodeBytes,
	}
	if err := l.ckpt.write(slot, cp); err != nil {
		return err
	}
	l.checkpointSlot = slot
	l.sealedSinceCheckpoint = 0
	metrics.CheckpointsWritten.Inc()
	return nil
}

// Free decrements the live-byte accounting for addr's segment. It does not
// touch the block's on-flash contents or its segment's summary: staleness
// is resolved by the cleaner cross-checking a segment summary entry
// against the owning inode's current block map, exactly as in the
// original Sprite LFS cleaner.
func (l *Log) Free(addr LogAddress) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if addr.IsEmpty() {
		return nil
	}
	if addr.Segment >= l.geo.FlashSizeSegments {
		return lfserrors.Fatalf("free of out-of-range segment %d", addr.Segment)
	}
	l.usageTable[addr.Segment].addLiveBytes(-int64(l.geo.BlockSizeBytes()))
	return nil
}

// UsageTable returns a copy of the current segment usage table, for the
// cleaner's cost-benefit scoring and for tests.
func (l *Log) UsageTable() SegmentUsageTable {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(SegmentUsageTable, len(l.usageTable))
	copy(out, l.usageTable)
	return out
}

// CleanSegmentCount reports how many data segments currently have zero
// live bytes, for the cleaner's start and stop checks and the
// lfs_clean_segments gauge.
func (l *Log) CleanSegmentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for i := FirstDataSegment; i < l.geo.FlashSizeSegments; i++ {
		if i == l.tail.index {
			continue
		}
		if l.usageTable[i].LiveBytes == 0 {
			n++
		}
	}
	metrics.CleanSegments.Set(float64(n))
	return n
}

// EraseSegment erases segment n and resets its usage-table entry. Callers
// (the cleaner) must have already relocated every live block out of n.
func (l *Log) EraseSegment(n uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eraseSegmentLocked(n)
}

func (l *Log) eraseSegmentLocked(n uint32) error {
	eraseBlocksPerSegment := l.geo.SectorsPerSegment() / l.dev.SectorsPerEraseBlock()
	firstEraseBlock := l.geo.segmentFirstSector(n) / l.dev.SectorsPerEraseBlock()
	if eraseBlocksPerSegment == 0 {
		eraseBlocksPerSegment = 1
	}
	if err := l.dev.EraseBlocks(firstEraseBlock, eraseBlocksPerSegment); err != nil {
		return lfserrors.IOErrorf(err, "erase segment %d", n)
	}
	l.usageTable[n] = SegmentUsageTableEntry{}
	l.invalidateSegmentLocked(n)
	return l.persistUsageTableLocked()
}

// InvalidateSegment drops any cached copy of segment n, forcing the next
// read to go to flash. Erasing a segment (EraseSegment, tail rotation)
// already drops its cached copy, so the cleaner does not call this.
func (l *Log) InvalidateSegment(n uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidateSegmentLocked(n)
}

func (l *Log) invalidateSegmentLocked(n uint32) {
	l.cache.Invalidate(n)
}

// SegmentSummary returns the summary of segment n, for the cleaner to
// learn which (inum, fileBlockNumber) pairs it still names.
func (l *Log) SegmentSummary(n uint32) (*SegmentSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seg, err := l.getSegment(n)
	if err != nil {
		return nil, err
	}
	return seg.summary, nil
}

// IFileInodeBytes returns the last-known encoded bytes of the iFile's own
// inode (inum 0), as carried through the checkpoint region.
func (l *Log) IFileInodeBytes() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]byte, len(l.iFileInodeBytes))
	copy(out, l.iFileInodeBytes)
	return out
}

// SetIFileInodeBytes updates the in-memory copy that the next checkpoint
// will persist. internal/inode calls this whenever it rewrites inum 0.
func (l *Log) SetIFileInodeBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.iFileInodeBytes = append([]byte(nil), b...)
}

// Sync forces an out-of-band checkpoint write, independent of the
// checkpoint interval. Used on clean unmount and at format time
// (mklfs, the bootstrap routines).
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeCheckpointLocked()
}

// Geometry exposes the flash geometry this Log was opened with.
func (l *Log) Geometry() Geometry { return l.geo }

// TailSegment reports the index of the segment currently accepting
// writes, so the cleaner can exclude it from its candidate set — relocating
// or erasing the live tail out from under an in-progress append would be
// catastrophic.
func (l *Log) TailSegment() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tail.index
}

func (l *Log) persistUsageTableLocked() error {
	buf := marshalUsageTable(l.usageTable)
	firstEraseBlock := l.geo.segmentFirstSector(UsageTableSegment) / l.dev.SectorsPerEraseBlock()
	eraseBlocksPerSegment := l.geo.SectorsPerSegment() / l.dev.SectorsPerEraseBlock()
	if eraseBlocksPerSegment == 0 {
		eraseBlocksPerSegment = 1
	}
	if err := l.dev.EraseBlocks(firstEraseBlock, eraseBlocksPerSegment); err != nil {
		return lfserrors.IOErrorf(err, "erase usage table segment")
	}
	sector := l.geo.segmentFirstSector(UsageTableSegment)
	if err := l.dev.WriteSectors(sector, padToSectors(buf, int(l.geo.SectorsPerSegment()))); err != nil {
		return lfserrors.IOErrorf(err, "write usage table")
	}
	return nil
}

func (l *Log) readUsageTableSegment(segmentIndex uint32) (SegmentUsageTable, error) {
	buf := make([]byte, l.geo.SegmentSizeBytes())
	if err := l.dev.ReadSectors(l.geo.segmentFirstSector(segmentIndex), l.geo.SectorsPerSegment(), buf); err != nil {
		return nil, lfserrors.IOErrorf(err, "read usage table segment %d", segmentIndex)
	}
	return unmarshalUsageTable(buf, int(l.geo.FlashSizeSegments)), nil
}

const usageTableEntrySize = 8 + 8 // LiveBytes uint64 + AgeOfYoungest int64

func marshalUsageTable(t SegmentUsageTable) []byte {
	buf := make([]byte, len(t)*usageTableEntrySize)
	for i, e := range t {
		off := i * usageTableEntrySize
		putUint64(buf[off:off+8], e.LiveBytes)
		putUint64(buf[off+8:off+16], uint64(e.AgeOfYoungest))
	}
	return buf
}

func unmarshalUsageTable(buf []byte, count int) SegmentUsageTable {
	t := make(SegmentUsageTable, count)
	for i := 0; i < count; i++ {
		off := i * usageTableEntrySize
		if off+usageTableEntrySize > len(buf) {
			break
		}
		t[i].LiveBytes = getUint64(buf[off : off+8])
		t[i].AgeOfYoungest = int64(getUint64(buf[off+8 : off+16]))
	}
	return t
}

func putUint64(buf []byte, v uint64) { binary.LittleEndian.PutUint64(buf, v) }
func getUint64(buf []byte) uint64    { return binary.LittleEndian.Uint64(buf) }
