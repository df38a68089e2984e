/*
Package metrics provides Prometheus metrics collection and exposition for the
accounts storage engine.

The metrics package defines and registers all engine metrics using the
Prometheus client library, providing observability into arena utilization,
index operation latency, snapshot/rollback activity, and stop-the-world lock
contention. Metrics are exposed via an HTTP endpoint for scraping by
Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Categories               │          │
	│  │                                              │          │
	│  │  Storage: blocks, free list, utilization    │          │
	│  │  Index: accounts count, op latency          │          │
	│  │  Mutation: insert/remove/get durations      │          │
	│  │  Snapshot: count, duration, ring occupancy  │          │
	│  │  Rollback: count, duration                  │          │
	│  │  Lock: stop-the-world hold/wait duration    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

Storage metrics:
  - accountsdb_storage_total_blocks (Gauge)
  - accountsdb_storage_deallocated_blocks (Gauge)
  - accountsdb_storage_utilized_bytes (Gauge)
  - accountsdb_storage_size_bytes (Gauge)
  - accountsdb_storage_growths_total (Counter)

Index metrics:
  - accountsdb_accounts_total (Gauge)
  - accountsdb_index_operations_total{operation,outcome} (Counter)
  - accountsdb_index_operation_duration_seconds{operation} (Histogram)
  - accountsdb_recycled_allocations_total (Counter)

Mutation metrics:
  - accountsdb_account_insert_duration_seconds (Histogram)
  - accountsdb_account_remove_duration_seconds (Histogram)
  - accountsdb_account_get_duration_seconds (Histogram)
  - accountsdb_program_scan_duration_seconds (Histogram)
  - accountsdb_program_scan_results (Histogram)

Lifecycle metrics:
  - accountsdb_current_slot (Gauge)
  - accountsdb_snapshots_total (Counter)
  - accountsdb_snapshot_duration_seconds (Histogram)
  - accountsdb_snapshots_held (Gauge)
  - accountsdb_rollbacks_total (Counter)
  - accountsdb_rollback_duration_seconds (Histogram)
  - accountsdb_flushes_total (Counter)
  - accountsdb_flush_duration_seconds (Histogram)

Lock metrics:
  - accountsdb_stw_lock_hold_duration_seconds{mode} (Histogram)
  - accountsdb_stw_lock_wait_duration_seconds{mode} (Histogram)

# Usage

	import "github.com/magicblock-labs/go-accountsdb/pkg/metrics"

	timer := metrics.NewTimer()
	// ... perform an insert ...
	timer.ObserveDuration(metrics.AccountInsertDuration)

	metrics.AccountsTotal.Set(float64(count))

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - internal/storage: reports arena size, free-list depth, growths
  - internal/index: reports operation counts and latency
  - internal/accountsdb: reports slot, flush, snapshot and rollback activity
  - internal/stw: reports lock hold/wait duration by mode
  - pkg/metrics.Collector: periodically samples an accountsdb.DB-like source

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration

Timer Pattern:
  - Create timer at operation start
  - Call ObserveDuration/ObserveDurationVec when the operation completes

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
