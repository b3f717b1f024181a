// Package metrics exposes the kernel's prometheus collectors, grounded on
// cuemby/warren's pkg/metrics (package-level prometheus.NewGaugeVec/NewGauge
// variables registered against a caller-supplied registry).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PageCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kv_page_cache_hits_total",
		Help: "Pager cache hits across all pinned-page lookups.",
	})

	PageCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kv_page_cache_misses_total",
		Help: "Pager cache misses requiring a disk read.",
	})

	PageCacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kv_page_cache_evictions_total",
		Help: "Clean/unpinned cache entries evicted to make room.",
	})

	WALSyncSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kv_wal_sync_seconds",
		Help:    "Latency of WAL fsync calls.",
		Buckets: prometheus.DefBuckets,
	})

	CheckpointSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kv_checkpoint_seconds",
		Help:    "Latency of a full checkpoint (prepare+flush+commit).",
		Buckets: prometheus.DefBuckets,
	})

	MVCCChainLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kv_mvcc_chain_length",
		Help: "Update-chain length sampled per MVCC shard during GC.",
	}, []string{"shard"})

	ActiveTransactions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kv_active_transactions",
		Help: "Number of transactions currently in the active set.",
	})
)

// Registerer is satisfied by *prometheus.Registry; Connection.Open accepts
// one and registers every collector above. Passing nil disables metrics
// entirely — the kernel has no mandatory network/registry dependency.
type Registerer interface {
	Register(prometheus.Collector) error
}

// Register adds every kernel collector to reg, ignoring AlreadyRegistered
// errors so Register is safe to call once per process even if multiple
// Connections share a registry.
func Register(reg Registerer) {
	if reg == nil {
		return
	}
	collectors := []prometheus.Collector{
		PageCacheHits, PageCacheMisses, PageCacheEvictions,
		WALSyncSeconds, CheckpointSeconds, MVCCChainLength, ActiveTransactions,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}
