package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage arena metrics
	StorageTotalBlocks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "accountsdb_storage_total_blocks",
			Help: "Total number of blocks in the storage arena",
		},
	)

	StorageDeallocatedBlocks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "accountsdb_storage_deallocated_blocks",
			Help: "Number of blocks currently tracked on the free list",
		},
	)

	StorageUtilizedBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "accountsdb_storage_utilized_bytes",
			Help: "Bytes of the arena's used prefix: metadata header plus every block below the bump head, free-list holes included",
		},
	)

	StorageSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "accountsdb_storage_size_bytes",
			Help: "Total size in bytes of the backing storage file",
		},
	)

	StorageGrowthsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accountsdb_storage_growths_total",
			Help: "Total number of times a reloaded storage file was grown back to the capacity its header records",
		},
	)

	// Index metrics
	AccountsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "accountsdb_accounts_total",
			Help: "Total number of accounts currently indexed",
		},
	)

	IndexOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountsdb_index_operations_total",
			Help: "Total number of index operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)

	IndexOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accountsdb_index_operation_duration_seconds",
			Help:    "Duration of index operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	RecycledAllocationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accountsdb_recycled_allocations_total",
			Help: "Total number of allocations satisfied from the free list instead of a fresh bump",
		},
	)

	// Account mutation metrics
	AccountInsertDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accountsdb_account_insert_duration_seconds",
			Help:    "Time taken to insert or update an account in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AccountRemoveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accountsdb_account_remove_duration_seconds",
			Help:    "Time taken to remove an account in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AccountGetDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accountsdb_account_get_duration_seconds",
			Help:    "Time taken to read a single account in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProgramScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accountsdb_program_scan_duration_seconds",
			Help:    "Time taken to scan all accounts owned by a program in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProgramScanResultsTotal = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accountsdb_program_scan_results",
			Help:    "Number of accounts returned per program scan",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000},
		},
	)

	// Slot / lifecycle metrics
	CurrentSlot = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "accountsdb_current_slot",
			Help: "Current slot observed by the accounts engine",
		},
	)

	// Snapshot / rollback metrics
	SnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accountsdb_snapshots_total",
			Help: "Total number of snapshots taken",
		},
	)

	SnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accountsdb_snapshot_duration_seconds",
			Help:    "Time taken to write a snapshot in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotsHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "accountsdb_snapshots_held",
			Help: "Number of snapshots currently retained in the ring buffer",
		},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accountsdb_rollbacks_total",
			Help: "Total number of rollbacks to a prior snapshot",
		},
	)

	RollbackDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accountsdb_rollback_duration_seconds",
			Help:    "Time taken to roll back storage and index to a snapshot in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accountsdb_flushes_total",
			Help: "Total number of full (msync) flushes to disk",
		},
	)

	FlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accountsdb_flush_duration_seconds",
			Help:    "Time taken to flush storage and index to disk in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Stop-the-world lock metrics
	StwLockHoldDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accountsdb_stw_lock_hold_duration_seconds",
			Help:    "Time a caller held the stop-the-world lock, by mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	StwLockWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accountsdb_stw_lock_wait_duration_seconds",
			Help:    "Time a caller waited to acquire the stop-the-world lock, by mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(StorageTotalBlocks)
	prometheus.MustRegister(StorageDeallocatedBlocks)
	prometheus.MustRegister(StorageUtilizedBytes)
	prometheus.MustRegister(StorageSizeBytes)
	prometheus.MustRegister(StorageGrowthsTotal)

	prometheus.MustRegister(AccountsTotal)
	prometheus.MustRegister(IndexOperationsTotal)
	prometheus.MustRegister(IndexOperationDuration)
	prometheus.MustRegister(RecycledAllocationsTotal)

	prometheus.MustRegister(AccountInsertDuration)
	prometheus.MustRegister(AccountRemoveDuration)
	prometheus.MustRegister(AccountGetDuration)
	prometheus.MustRegister(ProgramScanDuration)
	prometheus.MustRegister(ProgramScanResultsTotal)

	prometheus.MustRegister(CurrentSlot)

	prometheus.MustRegister(SnapshotsTotal)
	prometheus.MustRegister(SnapshotDuration)
	prometheus.MustRegister(SnapshotsHeld)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(RollbackDuration)
	prometheus.MustRegister(FlushesTotal)
	prometheus.MustRegister(FlushDuration)

	prometheus.MustRegister(StwLockHoldDuration)
	prometheus.MustRegister(StwLockWaitDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
