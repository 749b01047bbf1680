// Package testflash provides an in-memory flash.Device for tests, so every
// layer above internal/flash can be exercised without touching the
// filesystem. It enforces the same NOR-flash program rule as the
// file-backed device: a write may only clear bits.
package testflash

import (
	"fmt"

	"github.com/segmentlfs/lfs/internal/flash"
	"github.com/segmentlfs/lfs/internal/lfserrors"
)

// Device is an in-memory flash.Device.
type Device struct {
	data                 []byte
	sectorsPerEraseBlock uint64
}

var _ flash.Device = (*Device)(nil)

// New creates an in-memory device of the given geometry, erased (clean).
// Erased bytes are 0xFF, matching real NOR/NAND flash and the
// logstore.NoInum sentinel (-1, i.e. all bits set) that lets recovery tell
// an untouched segment summary apart from a populated one.
func New(eraseBlockCount, sectorsPerEraseBlock uint64) *Device {
	totalSectors := eraseBlockCount * sectorsPerEraseBlock
	data := make([]byte, totalSectors*flash.SectorSize)
	for i := range data {
		data[i] = 0xFF
	}
	return &Device{
		data:                 data,
		sectorsPerEraseBlock: sectorsPerEraseBlock,
	}
}

func (d *Device) ReadSectors(firstSector, sectorCount uint64, buf []byte) error {
	if uint64(len(buf)) != sectorCount*flash.SectorSize {
		return lfserrors.Fatalf("ReadSectors: buffer length %d does not match %d sectors", len(buf), sectorCount)
	}
	off := firstSector * flash.SectorSize
	n := sectorCount * flash.SectorSize
	if off+n > uint64(len(d.data)) {
		return lfserrors.New(lfserrors.IOError, "read past end of device", nil)
	}
	copy(buf, d.data[off:off+n])
	return nil
}

func (d *Device) WriteSectors(firstSector uint64, buf []byte) error {
	if len(buf)%flash.SectorSize != 0 {
		return lfserrors.Fatalf("WriteSectors: buffer length %d is not a multiple of sector size", len(buf))
	}
	sectorCount := uint64(len(buf)) / flash.SectorSize
	off := firstSector * flash.SectorSize
	n := sectorCount * flash.SectorSize
	if off+n > uint64(len(d.data)) {
		return lfserrors.New(lfserrors.IOError, "write past end of device", nil)
	}

	for i := uint64(0); i < n; i++ {
		if buf[i]&^d.data[off+i] != 0 {
			return lfserrors.New(lfserrors.IOError,
				fmt.Sprintf("write at sector %d attempts to set a bit that is already zero; erase first", firstSector), nil)
		}
	}

	copy(d.data[off:off+n], buf)
	return nil
}

func (d *Device) EraseBlocks(firstEraseBlock, count uint64) error {
	totalEraseBlocks := uint64(len(d.data)) / flash.SectorSize / d.sectorsPerEraseBlock
	for b := firstEraseBlock; b < firstEraseBlock+count; b++ {
		if b >= totalEraseBlocks {
			return lfserrors.New(lfserrors.IOError, fmt.Sprintf("erase block %d out of range", b), nil)
		}
		off := b * d.sectorsPerEraseBlock * flash.SectorSize
		n := d.sectorsPerEraseBlock * flash.SectorSize
		for i := off; i < off+n; i++ {
			d.data[i] = 0xFF
		}
	}
	return nil
}

func (d *Device) SectorsPerEraseBlock() uint64 { return d.sectorsPerEraseBlock }

func (d *Device) TotalSectors() uint64 { return uint64(len(d.data)) / flash.SectorSize }

func (d *Device) Close() error { return nil }
