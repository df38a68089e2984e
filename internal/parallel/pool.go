// Package parallel provides a small goroutine-pool helper for filtering
// large candidate sets, the Go equivalent of the original's rayon thread
// pool used for parallel scans (spec.md §5). Below the threshold, work
// runs serially on the calling goroutine — spinning up workers for a
// handful of items is pure overhead. Grounded on the ticker-driven
// background-goroutine pattern already present in the teacher's
// pkg/metrics.Collector.
package parallel

import (
	"runtime"
	"sync"
)

// DefaultThreshold is the candidate-set size above which Filter switches
// from serial to worker-pool execution.
const DefaultThreshold = 256

// Filter applies keep to every item in items concurrently once
// len(items) >= threshold, returning the items for which keep returned
// true, in their original relative order. Below threshold it runs
// serially on the calling goroutine.
func Filter[T any](items []T, threshold int, keep func(T) bool) []T {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	if len(items) < threshold {
		out := make([]T, 0, len(items))
		for _, it := range items {
			if keep(it) {
				out = append(out, it)
			}
		}
		return out
	}

	keepFlags := make([]bool, len(items))
	workers := runtime.GOMAXPROCS(0)
	if workers > len(items) {
		workers = len(items)
	}
	if workers < 1 {
		workers = 1
	}

	chunk := (len(items) + workers - 1) / workers
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if start >= len(items) {
			break
		}
		if end > len(items) {
			end = len(items)
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				if keep(items[i]) {
					keepFlags[i] = true
				}
			}
		}(start, end)
	}
	wg.Wait()

	out := make([]T, 0, len(items))
	for i, k := range keepFlags {
		if k {
			out = append(out, items[i])
		}
	}
	return out
}
