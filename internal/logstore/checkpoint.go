package logstore

import (
	"encoding/binary"

	"github.com/segmentlfs/lfs/internal/flash"
	"github.com/segmentlfs/lfs/internal/lfserrors"
)

// CheckpointSizeSectors is CHECKPOINT_SIZE_IN_SECTORS (§4.2): how many
// sectors one checkpoint record occupies in the checkpoint region.
const CheckpointSizeSectors = 1

// checkpointRegion manages the round-robin checkpoint slots living in the
// reserved checkpoint segment (§4.2, §6).
type checkpointRegion struct {
	dev      flash.Device
	geo      Geometry
	numSlots int
	// inodeBytesLen is the fixed length of the serialized iFile inode; it
	// must be supplied by the caller since the log layer treats it as an
	// opaque blob (§9 bootstrap recursion).
	inodeBytesLen int
}

func newCheckpointRegion(dev flash.Device, geo Geometry, inodeBytesLen int) *checkpointRegion {
	slots := int(geo.SectorsPerSegment()) / CheckpointSizeSectors
	return &checkpointRegion{dev: dev, geo: geo, numSlots: slots, inodeBytesLen: inodeBytesLen}
}

func (r *checkpointRegion) slotFirstSector(slot int) uint64 {
	segFirst := r.geo.segmentFirstSector(CheckpointSegmentIndex)
	return segFirst + uint64(slot)*CheckpointSizeSectors
}

func (r *checkpointRegion) marshal(cp *Checkpoint) []byte {
	buf := make([]byte, CheckpointSizeSectors*flash.SectorSize)
	if cp.Valid {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint64(buf[1:9], uint64(cp.Timestamp))
	binary.LittleEndian.PutUint32(buf[9:13], cp.SegmentUsageTableSegment)
	binary.LittleEndian.PutUint32(buf[13:17], cp.LastSealedSegment)
	copy(buf[17:17+len(cp.IFileInodeBytes)], cp.IFileInodeBytes)
	return buf
}

func (r *checkpointRegion) unmarshal(buf []byte) *Checkpoint {
	cp := &Checkpoint{}
	cp.Valid = buf[0] == 1
	cp.Timestamp = int64(binary.LittleEndian.Uint64(buf[1:9]))
	cp.SegmentUsageTableSegment = binary.LittleEndian.Uint32(buf[9:13])
	cp.LastSealedSegment = binary.LittleEndian.Uint32(buf[13:17])
	cp.IFileInodeBytes = make([]byte, r.inodeBytesLen)
	copy(cp.IFileInodeBytes, buf[17:17+r.inodeBytesLen])
	return cp
}

// write persists cp into slot, erasing the owning erase block first if
// slot's first sector is aligned to an erase-block boundary (§4.2).
func (r *checkpointRegion) write(slot int, cp *Checkpoint) error {
	firstSector := r.slotFirstSector(slot)
	sectorsPerEraseBlock := r.dev.SectorsPerEraseBlock()

	if firstSector%sectorsPerEraseBlock == 0 {
		eraseBlock := firstSector / sectorsPerEraseBlock
		if err := r.dev.EraseBlocks(eraseBlock, 1); err != nil {
			return lfserrors.IOErrorf(err, "erase checkpoint region block %d", eraseBlock)
		}
	}

	buf := r.marshal(cp)
	if err := r.dev.WriteSectors(firstSector, buf); err != nil {
		return lfserrors.IOErrorf(err, "write checkpoint slot %d", slot)
	}
	return nil
}

// readAll scans every slot in the checkpoint region and returns the
// decoded record for each, in slot order.
func (r *checkpointRegion) readAll() ([]*Checkpoint, error) {
	out := make([]*Checkpoint, r.numSlots)
	buf := make([]byte, CheckpointSizeSectors*flash.SectorSize)
	for slot := 0; slot < r.numSlots; slot++ {
		if err := r.dev.ReadSectors(r.slotFirstSector(slot), CheckpointSizeSectors, buf); err != nil {
			return nil, lfserrors.IOErrorf(err, "read checkpoint slot %d", slot)
		}
		out[slot] = r.unmarshal(buf)
	}
	return out, nil
}

// latestValid picks the valid checkpoint with the largest timestamp,
// breaking ties by sector (slot) order (§8 property 8), and returns its
// slot index so the caller can resume round-robin writes at slot+1.
func latestValid(checkpoints []*Checkpoint) (cp *Checkpoint, slot int, found bool) {
	for i, c := range checkpoints {
		if c == nil || !c.Valid {
			continue
		}
		if !found || c.Timestamp > cp.Timestamp {
			cp, slot, found = c, i, true
		}
	}
	return
}
