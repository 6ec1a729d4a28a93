// Package metrics wires spec §4.8's storage-by-priority observability and
// the §4.7.4/§4.7.5 maintenance counters into Prometheus, the same
// instrumentation stack the pack's luxfi-consensus repo uses for its own
// engine metrics. Nothing in the teacher repo itself exposes metrics; this
// is ambient-stack enrichment from the rest of the retrieval pack rather
// than a carried teacher dependency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/htreeio/hashtree/internal/htypes"
)

// StorageByPriority are gauges for the tracked-byte total per priority tier.
var StorageByPriority = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "htree",
	Subsystem: "storage",
	Name:      "bytes_by_priority",
	Help:      "Tracked storage bytes, broken down by indexed-tree priority tier.",
}, []string{"priority"})

// EvictionRuns counts evict_if_needed invocations, labeled by whether they
// actually released any blobs.
var EvictionRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "htree",
	Subsystem: "eviction",
	Name:      "runs_total",
	Help:      "Number of evict_if_needed runs.",
}, []string{"released"})

// EvictedBytes counts bytes freed by eviction.
var EvictedBytes = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "htree",
	Subsystem: "eviction",
	Name:      "bytes_freed_total",
	Help:      "Total bytes freed across all eviction runs.",
})

// GCRuns counts GC invocations.
var GCRuns = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "htree",
	Subsystem: "gc",
	Name:      "runs_total",
	Help:      "Number of garbage-collection runs.",
})

// GCFreedBytes counts bytes freed by garbage collection.
var GCFreedBytes = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "htree",
	Subsystem: "gc",
	Name:      "bytes_freed_total",
	Help:      "Total bytes freed across all garbage-collection runs.",
})

func init() {
	prometheus.MustRegister(StorageByPriority, EvictionRuns, EvictedBytes, GCRuns, GCFreedBytes)
}

// SetStorageByPriority publishes a full storage_by_priority() snapshot.
func SetStorageByPriority(totals map[htypes.Priority]uint64) {
	for p, bytes := range totals {
		StorageByPriority.WithLabelValues(p.String()).Set(float64(bytes))
	}
}
