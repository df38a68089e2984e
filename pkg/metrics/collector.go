package metrics

import "time"

// Stats is the subset of accounts-engine state the collector samples on
// each tick. internal/accountsdb.DB satisfies this without pkg/metrics
// importing it, avoiding an import cycle between the two packages.
type Stats interface {
	TotalBlocks() uint64
	DeallocatedBlocks() uint64
	UtilizedBytes() uint64
	SizeBytes() uint64
	AccountsCount() uint64
	Slot() uint64
	SnapshotsHeld() int
}

// Collector periodically samples a Stats source and publishes it as
// Prometheus gauges.
type Collector struct {
	stats  Stats
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over the given stats source.
func NewCollector(stats Stats) *Collector {
	return &Collector{
		stats:  stats,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics in the background.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectStorageMetrics()
	c.collectIndexMetrics()
	c.collectSnapshotMetrics()
}

func (c *Collector) collectStorageMetrics() {
	StorageTotalBlocks.Set(float64(c.stats.TotalBlocks()))
	StorageDeallocatedBlocks.Set(float64(c.stats.DeallocatedBlocks()))
	StorageUtilizedBytes.Set(float64(c.stats.UtilizedBytes()))
	StorageSizeBytes.Set(float64(c.stats.SizeBytes()))
}

func (c *Collector) collectIndexMetrics() {
	AccountsTotal.Set(float64(c.stats.AccountsCount()))
	CurrentSlot.Set(float64(c.stats.Slot()))
}

func (c *Collector) collectSnapshotMetrics() {
	SnapshotsHeld.Set(float64(c.stats.SnapshotsHeld()))
}
