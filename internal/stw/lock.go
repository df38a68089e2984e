// Package stw implements the stop-the-world gate shared by every
// request-serving path and the snapshot/rollback lifecycle driver. It is
// a thin, named wrapper over sync.RWMutex — the equivalent of the
// original's parking_lot Arc<RwLock<()>> — with Prometheus-observed
// wait/hold durations per mode.
package stw

import (
	"sync"
	"time"

	"github.com/magicblock-labs/go-accountsdb/pkg/metrics"
)

// Lock is the global shared/exclusive gate. Shared holders are ordinary
// request paths (get/insert/remove/scan); the exclusive holder is always
// the lifecycle driver during snapshot creation or rollback.
type Lock struct {
	mu sync.RWMutex
}

// Shared acquires the lock in shared mode and returns a release function.
// Typical use: `defer lock.Shared()()`.
func (l *Lock) Shared() func() {
	return l.acquire(false)
}

// Exclusive acquires the lock in exclusive mode and returns a release
// function. Held only across snapshot creation and rollback.
func (l *Lock) Exclusive() func() {
	return l.acquire(true)
}

func (l *Lock) acquire(exclusive bool) func() {
	mode := "shared"
	if exclusive {
		mode = "exclusive"
	}

	waitStart := time.Now()
	if exclusive {
		l.mu.Lock()
	} else {
		l.mu.RLock()
	}
	metrics.StwLockWaitDuration.WithLabelValues(mode).Observe(time.Since(waitStart).Seconds())

	holdStart := time.Now()
	return func() {
		if exclusive {
			l.mu.Unlock()
		} else {
			l.mu.RUnlock()
		}
		metrics.StwLockHoldDuration.WithLabelValues(mode).Observe(time.Since(holdStart).Seconds())
	}
}
