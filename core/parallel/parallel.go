package parallel

import (
	"runtime"
	"sync"
)

// Parallelize splits [0, items) into one contiguous range per CPU core and
// runs fn on each range concurrently. It returns when every range is done.
func Parallelize(items int, fn func(start, end int)) {
	ParallelizeN(items, runtime.NumCPU(), fn)
}

// ParallelizeN is Parallelize with an explicit worker count. workers <= 0
// means one worker per CPU core.
func ParallelizeN(items, workers int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > items {
		workers = items
	}
	if workers == 1 {
		fn(0, items)
		return
	}

	// ceiling division so the last range absorbs the remainder
	chunkSize := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn sequentially when items does not exceed
// threshold and in parallel otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		if items > 0 {
			fn(0, items)
		}
		return
	}
	Parallelize(items, fn)
}

// Map evaluates fn for every index in [0, items) using up to workers
// goroutines and returns the results in index order.
func Map[T any](items, workers int, fn func(i int) T) []T {
	out := make([]T, items)
	ParallelizeN(items, workers, func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = fn(i)
		}
	})
	return out
}
