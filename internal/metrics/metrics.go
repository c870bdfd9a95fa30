// Package metrics defines the Prometheus instruments shared by the
// listingd binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal counts synchronization cycles by result:
	// "changed", "unchanged" or "error".
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingd_sync_runs_total",
			Help: "Synchronization cycles by result",
		},
		[]string{"result"},
	)

	// SyncRowDelta counts listing rows by diff operation
	// ("inserted", "updated", "deleted").
	SyncRowDelta = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingd_sync_row_delta_total",
			Help: "Listing rows changed per diff operation",
		},
		[]string{"op"},
	)

	// FetchRequestsTotal counts marketplace API requests by outcome
	// ("ok", "retryable", "client_error", "network_error").
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingd_fetch_requests_total",
			Help: "Marketplace API requests by outcome",
		},
		[]string{"outcome"},
	)

	// FetchRetriesTotal counts retried marketplace API requests.
	FetchRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "listingd_fetch_retries_total",
			Help: "Retried marketplace API requests",
		},
	)

	// SearchDuration observes query latency per endpoint.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "listingd_search_duration_seconds",
			Help:    "Search request duration by endpoint",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// SnapshotRefreshTotal counts cache refresh attempts by result
	// ("changed", "unchanged", "error", "skipped").
	SnapshotRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listingd_snapshot_refresh_total",
			Help: "Snapshot cache refresh attempts by result",
		},
		[]string{"result"},
	)
)
