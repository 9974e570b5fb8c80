// Package metrics defines the Prometheus instruments for the ledger engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecomputeTotal counts cache recomputations by scope ("group" or
	// "personal").
	RecomputeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "splitledger",
		Name:      "recompute_total",
		Help:      "Number of balance cache recomputations.",
	}, []string{"scope"})

	// RecomputeDuration observes how long a full recompute takes,
	// including cache writes.
	RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "splitledger",
		Name:      "recompute_duration_seconds",
		Help:      "Duration of balance cache recomputations.",
		Buckets:   prometheus.DefBuckets,
	})

	// SimplifyFailures counts integrity-check failures in the debt
	// simplifier. Each failure degrades the group to the raw ledger view.
	SimplifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "splitledger",
		Name:      "simplify_failures_total",
		Help:      "Number of debt simplification integrity failures.",
	})

	// CleanupFailures counts swallowed errors in membership cleanup.
	// These self-heal on the next full recompute.
	CleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "splitledger",
		Name:      "cleanup_failures_total",
		Help:      "Number of swallowed membership cleanup errors.",
	})
)
