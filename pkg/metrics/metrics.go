package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionChecks counts access-level evaluations and their outcome (allow|deny|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldbase_permission_checks_total",
			Help: "Total number of access level checks",
		},
		[]string{"level", "result"},
	)

	// LockOperations counts lock acquisitions and releases by outcome
	// (acquired|refreshed|conflict|released|override).
	LockOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldbase_lock_operations_total",
			Help: "Total number of resource lock operations",
		},
		[]string{"result"},
	)

	// InstallTransitions counts install record state changes by target status.
	InstallTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldbase_install_transitions_total",
			Help: "Total number of install record status transitions",
		},
		[]string{"status"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldbase_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
