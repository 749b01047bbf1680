package logstore

// Segment is the in-memory form of one segment: its summary (block 0) plus
// its data blocks (1..S-1). The tail segment is built up one block at a
// time; sealed segments are read whole from flash or served from the
// segment cache.
type Segment struct {
	index   uint32
	summary *SegmentSummary
	blocks  [][]byte // blocks[k] is nil until written; len == segmentSizeBlocks, index 0 unused

	// recoveredPartial marks a tail recovered mid-fill after a crash (§4.2
	// Recovery): every block written before the crash is already on flash
	// (each Write persists its block and a fresh summary immediately), so
	// filling continues in place rather than discarding and re-erasing it.
	recoveredPartial bool
}

func newSegment(index uint32, segmentSizeBlocks int) *Segment {
	return &Segment{
		index:   index,
		summary: newSegmentSummary(segmentSizeBlocks),
		blocks:  make([][]byte, segmentSizeBlocks),
	}
}

// liveBlockCount counts slots not marked NoInum, used to rebuild
// live_bytes for segments replayed during recovery (§4.2).
func (s *Segment) liveBlockCount() int {
	n := 0
	for _, inum := range s.summary.BlockInums {
		if inum != NoInum {
			n++
		}
	}
	return n
}

// marshal serializes the full segment (summary + data blocks) into a
// single contiguous byte slice sized geo.SegmentSizeBytes(), ready to be
// written to flash in one call.
func (s *Segment) marshal(geo Geometry) []byte {
	blockSize := geo.BlockSizeBytes()
	buf := make([]byte, geo.SegmentSizeBytes())

	s.summary.marshal(buf[:summarySizeBytes(int(geo.SegmentSizeBlocks))])

	for k := 1; k < int(geo.SegmentSizeBlocks); k++ {
		if s.blocks[k] == nil {
			continue
		}
		off := k * blockSize
		copy(buf[off:off+blockSize], s.blocks[k])
	}
	return buf
}

// unmarshalSegment parses a full segment image read from flash.
func unmarshalSegment(index uint32, geo Geometry, raw []byte) *Segment {
	blockSize := geo.BlockSizeBytes()
	s := &Segment{
		index:   index,
		summary: unmarshalSegmentSummary(raw[:summarySizeBytes(int(geo.SegmentSizeBlocks))], int(geo.SegmentSizeBlocks)),
		blocks:  make([][]byte, geo.SegmentSizeBlocks),
	}
	for k := 1; k < int(geo.SegmentSizeBlocks); k++ {
		if s.summary.BlockInums[k] == NoInum {
			continue
		}
		off := k * blockSize
		block := make([]byte, blockSize)
		copy(block, raw[off:off+blockSize])
		s.blocks[k] = block
	}
	return s
}
