// Package flash defines the boundary with the flash device simulator (§6):
// a narrow, sector-addressable, erase-block-granular device contract. The
// simulator itself is out of scope per spec.md §1 — this package supplies
// only the contract and a file-backed implementation of it, since the rest
// of the system needs a concrete device to run against.
package flash

import (
	"fmt"
	"io"
	"os"

	"github.com/segmentlfs/lfs/internal/lfserrors"
)

// SectorSize is fixed by the simulator's contract (§6): FLASH_SECTOR_SIZE.
const SectorSize = 512

// OpenFlag mirrors the simulator's FLASH_SILENT | FLASH_ASYNC flags (§6).
// Neither flag changes this implementation's behavior; they are accepted
// for interface compatibility with callers written against the contract.
type OpenFlag uint32

const (
	Silent OpenFlag = 1 << iota
	Async
)

const (
	// MaxWearLimit and MaxBlockCount bound Create's arguments per §6.
	MaxWearLimit  = 100_000
	MaxBlockCount = 1_000_000
)

// Device is the contract a flash simulator exposes (§6): sector read/write,
// erase-block erase, create, and open.
type Device interface {
	// ReadSectors reads sectorCount sectors starting at firstSector into buf.
	// len(buf) must equal sectorCount*SectorSize.
	ReadSectors(firstSector, sectorCount uint64, buf []byte) error

	// WriteSectors writes len(buf)/SectorSize sectors starting at
	// firstSector. Like real NOR/NAND flash, a write may only clear bits —
	// every byte written must be a bitwise subset of what is already there
	// (new&^old == 0) — which is why an erased region (all-ones) accepts any
	// value, and a second write narrowing the same bytes further is legal,
	// but resetting a cleared bit back to one is not: that requires erasing
	// the owning erase block first.
	WriteSectors(firstSector uint64, buf []byte) error

	// EraseBlocks erases count erase blocks starting at firstEraseBlock,
	// resetting their bytes to all-ones.
	EraseBlocks(firstEraseBlock, count uint64) error

	// SectorsPerEraseBlock reports the simulator's erase-block granularity.
	SectorsPerEraseBlock() uint64

	// TotalSectors reports the device's total addressable sector count.
	TotalSectors() uint64

	// Close flushes and releases the device.
	Close() error
}

// Create pre-formats a fresh flash image at path. wearLimit and blockCount
// (in FLASH_SECTORS_PER_BLOCK-sized erase blocks) are validated against §6's
// limits. The image starts all-ones, matching erased flash.
func Create(path string, wearLimit uint64, eraseBlockCount uint64, sectorsPerEraseBlock uint64) error {
	if wearLimit > MaxWearLimit {
		return lfserrors.New(lfserrors.IOError, fmt.Sprintf("wear limit %d exceeds maximum %d", wearLimit, MaxWearLimit), nil)
	}
	if eraseBlockCount > MaxBlockCount {
		return lfserrors.New(lfserrors.IOError, fmt.Sprintf("block count %d exceeds maximum %d", eraseBlockCount, MaxBlockCount), nil)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return lfserrors.IOErrorf(err, "create %s", path)
	}
	defer f.Close()

	totalSectors := eraseBlockCount * sectorsPerEraseBlock
	size := int64(totalSectors) * SectorSize
	erased := make([]byte, size)
	for i := range erased {
		erased[i] = 0xFF
	}
	if _, err := f.WriteAt(erased, 0); err != nil {
		return lfserrors.IOErrorf(err, "initialize %s to %d erased bytes", path, size)
	}
	return nil
}

// FileDevice is a Device backed by a regular file, standing in for the
// out-of-scope flash simulator. It enforces the one behavioral guarantee
// §6 calls out explicitly — a write may only clear bits that erase later
// sets back to one — by checking each written byte against what is
// currently on disk.
type FileDevice struct {
	f                    *os.File
	sectorsPerEraseBlock uint64
	totalSectors         uint64
}

var _ Device = (*FileDevice)(nil)

// Open opens an existing flash image. blockCountOut receives the erase
// block count the caller can use to re-derive TotalSectors, matching the
// simulator's open(path, flags, &block_count_out) signature (§6).
func Open(path string, sectorsPerEraseBlock uint64, flags OpenFlag) (dev *FileDevice, blockCountOut uint64, err error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, 0, lfserrors.IOErrorf(err, "open %s", path)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, lfserrors.IOErrorf(err, "stat %s", path)
	}

	totalSectors := uint64(fi.Size()) / SectorSize
	eraseBlocks := totalSectors / sectorsPerEraseBlock

	dev = &FileDevice{
		f:                    f,
		sectorsPerEraseBlock: sectorsPerEraseBlock,
		totalSectors:         totalSectors,
	}
	return dev, eraseBlocks, nil
}

func (d *FileDevice) ReadSectors(firstSector, sectorCount uint64, buf []byte) error {
	if uint64(len(buf)) != sectorCount*SectorSize {
		return lfserrors.Fatalf("ReadSectors: buffer length %d does not match %d sectors", len(buf), sectorCount)
	}
	if firstSector+sectorCount > d.totalSectors {
		return lfserrors.New(lfserrors.IOError, "read past end of device", nil)
	}
	_, err := d.f.ReadAt(buf, int64(firstSector)*SectorSize)
	if err != nil && err != io.EOF {
		return lfserrors.IOErrorf(err, "read %d sectors at %d", sectorCount, firstSector)
	}
	return nil
}

func (d *FileDevice) WriteSectors(firstSector uint64, buf []byte) error {
	if len(buf)%SectorSize != 0 {
		return lfserrors.Fatalf("WriteSectors: buffer length %d is not a multiple of sector size", len(buf))
	}
	sectorCount := uint64(len(buf)) / SectorSize
	if firstSector+sectorCount > d.totalSectors {
		return lfserrors.New(lfserrors.IOError, "write past end of device", nil)
	}

	existing := make([]byte, len(buf))
	if _, err := d.f.ReadAt(existing, int64(firstSector)*SectorSize); err != nil && err != io.EOF {
		return lfserrors.IOErrorf(err, "read before write at sector %d", firstSector)
	}
	if err := checkWriteIsSubset(existing, buf, firstSector); err != nil {
		return err
	}

	if _, err := d.f.WriteAt(buf, int64(firstSector)*SectorSize); err != nil {
		return lfserrors.IOErrorf(err, "write %d sectors at %d", sectorCount, firstSector)
	}
	return nil
}

// checkWriteIsSubset enforces the NOR-flash program rule: a write may only
// clear bits, never set one that is already zero.
func checkWriteIsSubset(existing, next []byte, firstSector uint64) error {
	for i := range next {
		if next[i]&^existing[i] != 0 {
			return lfserrors.New(lfserrors.IOError,
				fmt.Sprintf("write at sector %d attempts to set a bit that is already zero; erase first", firstSector), nil)
		}
	}
	return nil
}

func (d *FileDevice) EraseBlocks(firstEraseBlock, count uint64) error {
	// Erased flash reads back as all-ones, not all-zeros: logstore.NoInum
	// is -1 (0xFFFFFFFF) precisely so an untouched segment summary decodes
	// as "every slot free" without a separate written/unwritten flag.
	totalEraseBlocks := d.totalSectors / d.sectorsPerEraseBlock
	erased := make([]byte, d.sectorsPerEraseBlock*SectorSize)
	for i := range erased {
		erased[i] = 0xFF
	}
	for b := firstEraseBlock; b < firstEraseBlock+count; b++ {
		if b >= totalEraseBlocks {
			return lfserrors.New(lfserrors.IOError, fmt.Sprintf("erase block %d out of range", b), nil)
		}
		off := int64(b*d.sectorsPerEraseBlock) * SectorSize
		if _, err := d.f.WriteAt(erased, off); err != nil {
			return lfserrors.IOErrorf(err, "erase block %d", b)
		}
	}
	return nil
}

func (d *FileDevice) SectorsPerEraseBlock() uint64 { return d.sectorsPerEraseBlock }

func (d *FileDevice) TotalSectors() uint64 { return d.totalSectors }

func (d *FileDevice) Close() error {
	if err := d.f.Sync(); err != nil {
		return lfserrors.IOErrorf(err, "sync")
	}
	return d.f.Close()
}
