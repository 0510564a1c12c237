package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// VFSMetrics collects metrics for the node graph core.
//
// A nil *VFSMetrics is valid and turns every method into a no-op, so the
// core can be wired with or without metrics collection.
type VFSMetrics struct {
	// traversals counts path traversals by outcome (ok, miss, error).
	traversals *prometheus.CounterVec

	// traversalDuration observes wall time per traversal.
	traversalDuration prometheus.Histogram

	// nodesCreated counts nodes materialized into the graph.
	nodesCreated prometheus.Counter

	// nodesFreed counts nodes released back to memory.
	nodesFreed prometheus.Counter

	// cacheEvictions counts nodes freed by eviction cache overwrite.
	cacheEvictions prometheus.Counter

	// linkHops observes the number of symlink hops per resolution.
	linkHops prometheus.Histogram
}

// NewVFSMetrics creates metrics for the graph core, or nil (no-op) when
// the global registry has not been initialized.
func NewVFSMetrics() *VFSMetrics {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}

	factory := promauto.With(reg)

	return &VFSMetrics{
		traversals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corvfs",
			Subsystem: "graph",
			Name:      "traversals_total",
			Help:      "Path traversals by outcome",
		}, []string{"outcome"}),
		traversalDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "corvfs",
			Subsystem: "graph",
			Name:      "traversal_duration_seconds",
			Help:      "Wall time per path traversal",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 12),
		}),
		nodesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "corvfs",
			Subsystem: "graph",
			Name:      "nodes_created_total",
			Help:      "Nodes materialized into the graph",
		}),
		nodesFreed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "corvfs",
			Subsystem: "graph",
			Name:      "nodes_freed_total",
			Help:      "Nodes released back to memory",
		}),
		cacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "corvfs",
			Subsystem: "graph",
			Name:      "cache_evictions_total",
			Help:      "Nodes freed by eviction cache overwrite",
		}),
		linkHops: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "corvfs",
			Subsystem: "graph",
			Name:      "link_hops",
			Help:      "Symlink hops per resolution",
			Buckets:   prometheus.LinearBuckets(0, 4, 11),
		}),
	}
}

// ObserveTraversal records one traversal with its outcome and duration.
func (m *VFSMetrics) ObserveTraversal(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.traversals.WithLabelValues(outcome).Inc()
	m.traversalDuration.Observe(duration.Seconds())
}

// NodeCreated records one node materialization.
func (m *VFSMetrics) NodeCreated() {
	if m == nil {
		return
	}
	m.nodesCreated.Inc()
}

// NodeFreed records one node release.
func (m *VFSMetrics) NodeFreed() {
	if m == nil {
		return
	}
	m.nodesFreed.Inc()
}

// CacheEviction records one eviction cache overwrite.
func (m *VFSMetrics) CacheEviction() {
	if m == nil {
		return
	}
	m.cacheEvictions.Inc()
}

// ObserveLinkHops records the hop count of one completed link resolution.
func (m *VFSMetrics) ObserveLinkHops(hops int) {
	if m == nil {
		return
	}
	m.linkHops.Observe(float64(hops))
}
