// Package metrics exposes Prometheus instrumentation for the parts of the
// system an operator actually needs visibility into at runtime: segment
// sealing, checkpointing, cache effectiveness, and — the one that matters
// most, since a silently-stuck cleaner eventually produces FlashFull on
// every write — cleaner progress.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SegmentsSealed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lfs",
		Name:      "segments_sealed_total",
		Help:      "Number of tail segments written to flash and rotated out.",
	})

	CheckpointsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lfs",
		Name:      "checkpoints_written_total",
		Help:      "Number of checkpoints persisted to the checkpoint region.",
	})

	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lfs",
		Name:      "segment_cache_hits_total",
		Help:      "Segment reads served from the segment cache.",
	})

	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lfs",
		Name:      "segment_cache_misses_total",
		Help:      "Segment reads that required a flash read.",
	})

	CleanerRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lfs",
		Name:      "cleaner_runs_total",
		Help:      "Number of times the segment cleaner was invoked.",
	})

	CleanerSegmentsReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lfs",
		Name:      "cleaner_segments_reclaimed_total",
		Help:      "Number of segments erased by the cleaner and returned to the clean pool.",
	})

	CleanerBlocksRelocated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lfs",
		Name:      "cleaner_blocks_relocated_total",
		Help:      "Number of live blocks copied forward by the cleaner before a segment was erased.",
	})

	CleanSegments = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lfs",
		Name:      "clean_segments",
		Help:      "Segments currently known to have zero live bytes.",
	})
)

// Registry bundles every collector above for a caller that wants its own
// *prometheus.Registry instead of using the global default.
func Registry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		SegmentsSealed,
		CheckpointsWritten,
		CacheHits,
		CacheMisses,
		CleanerRuns,
		CleanerSegmentsReclaimed,
		CleanerBlocksRelocated,
		CleanSegments,
	)
	return r
}
