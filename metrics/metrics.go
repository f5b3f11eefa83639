// Package metrics exposes Prometheus counters and gauges for the allocation
// engine and remote-client adapter, scraped via the ambient /metrics
// endpoint on the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qguardarr",
		Name:      "cycles_total",
		Help:      "Number of allocation cycles completed.",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "qguardarr",
		Name:      "cycle_duration_seconds",
		Help:      "Wall-clock duration of each allocation cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	WritesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qguardarr",
		Name:      "writes_issued_total",
		Help:      "Upload-limit writes successfully applied.",
	})

	WritesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qguardarr",
		Name:      "writes_failed_total",
		Help:      "Upload-limit writes that failed and were deferred.",
	})

	CircuitBreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "qguardarr",
		Name:      "circuit_breaker_open",
		Help:      "1 if the remote-client circuit breaker is currently open.",
	})

	RollbackBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "qguardarr",
		Name:      "rollback_backlog",
		Help:      "Count of unrestored rollback records.",
	})

	ManagedTorrents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "qguardarr",
		Name:      "managed_torrents",
		Help:      "Count of torrents currently under a non-default limit.",
	})

	TrackerUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "qguardarr",
		Name:      "tracker_usage_bytes",
		Help:      "Current summed upload speed per tracker.",
	}, []string{"tracker_id"})

	TrackerCap = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "qguardarr",
		Name:      "tracker_effective_cap_bytes",
		Help:      "Effective per-cycle cap per tracker, after smoothing and borrowing.",
	}, []string{"tracker_id"})
)
