package inode

import (
	"sort"

	"github.com/segmentlfs/lfs/internal/logger"
	"github.com/segmentlfs/lfs/internal/logstore"
	"github.com/segmentlfs/lfs/internal/metrics"
)

// segmentScore is one segment's cost-benefit candidacy (§4.3 step 2).
type segmentScore struct {
	segment uint32
	score   float64
}

// RunCleaner implements the Sprite LFS cost-benefit cleaner (§4.3):
//
//  1. If the clean-segment count already exceeds cleaningStartThreshold,
//     there is nothing to do.
//  2. Score every other segment: low utilization and high age score high.
//  3. Relocate live blocks out of the highest-scoring segments, erasing
//     each as it empties, until cleaningEndThreshold clean segments exist
//     or no positive-score segment remains (§8 testable property 9).
func (m *Manager) RunCleaner() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics.CleanerRuns.Inc()

	if m.log.CleanSegmentCount() > m.cleaningStartThreshold {
		return nil
	}

	table := m.log.UsageTable()
	segmentDataBytes := float64(m.geo.SegmentDataBytes())
	tail := m.log.TailSegment()

	var candidates []segmentScore
	for seg := logstore.FirstDataSegment; int(seg) < len(table); seg++ {
		if seg == tail {
			continue // never clean the segment currently accepting writes
		}
		entry := table[seg]
		if entry.LiveBytes == 0 {
			continue // already clean
		}
		u := float64(entry.LiveBytes) / segmentDataBytes
		age := float64(entry.AgeOfYoungest) * 1e-14
		score := ((1 - u) * age) / (1 + u)
		if score == 0 {
			continue
		}
		candidates = append(candidates, segmentScore{segment: seg, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score < candidates[j].score })

	for i := len(candidates) - 1; i >= 0; i-- {
		if m.log.CleanSegmentCount() >= m.cleaningEndThreshold {
			break
		}
		if err := m.reclaimSegmentLocked(candidates[i].segment); err != nil {
			return err
		}
	}

	logger.Tracef("cleaner run complete: %d clean segments", m.log.CleanSegmentCount())
	return nil
}

// reclaimSegmentLocked relocates every still-live block out of seg, then
// erases it (§4.3 step 4). Staleness is detected by cross-checking the
// summary's claim against the owning inode's current block pointer —
// exactly the check the log layer's Free intentionally defers to here.
func (m *Manager) reclaimSegmentLocked(seg uint32) error {
	summary, err := m.log.SegmentSummary(seg)
	if err != nil {
		return err
	}

	for k := 1; k < len(summary.BlockInums); k++ {
		inum := summary.BlockInums[k]
		if inum == logstore.NoInum {
			continue
		}
		fileBlockNumber := summary.InodeBlockNumbers[k]

		ino, err := m.readInodeLocked(inum)
		if err != nil {
			return err
		}

		var current logstore.LogAddress
		if fileBlockNumber == logstore.IndirectBlockMarker {
			current = ino.Indirect
		} else {
			current, err = m.getBlockAddressLocked(ino, int(fileBlockNumber))
			if err != nil {
				return err
			}
		}

		here := logstore.LogAddress{Segment: seg, Block: uint32(k)}
		if current != here {
			continue // stale: the inode has since moved this slot elsewhere
		}

		data := make([]byte, m.geo.BlockSizeBytes())
		if err := m.log.Read(here, data); err != nil {
			return err
		}
		newAddr, err := m.log.Write(inum, fileBlockNumber, data)
		if err != nil {
			return err
		}

		if fileBlockNumber == logstore.IndirectBlockMarker {
			ino.Indirect = newAddr
		} else if err := m.setBlockAddressLocked(inum, ino, int(fileBlockNumber), newAddr); err != nil {
			return err
		}
		if err := m.persistInode(inum, ino); err != nil {
			return err
		}
		metrics.CleanerBlocksRelocated.Inc()
	}

	if err := m.log.EraseSegment(seg); err != nil {
		return err
	}
	metrics.CleanerSegmentsReclaimed.Inc()
	return nil
}
