// Copyright 2026 Plant Identification App. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package parallel spreads data-parallel loops of the CPU backend across
// goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// For runs f(i) for every i in [0, n). Work is split into contiguous
// chunks of at least minPerWorker iterations; loops smaller than that run
// on the calling goroutine. f must not assume any iteration order.
func For(n, minPerWorker int, f func(i int)) {
	ForRange(n, minPerWorker, func(start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	})
}

// ForRange is the chunk-level variant of For: each worker receives one
// half-open range [start, end), which lets it hoist per-worker scratch
// buffers out of the inner loop.
func ForRange(n, minPerWorker int, f func(start, end int)) {
	if n <= 0 {
		return
	}
	if minPerWorker < 1 {
		minPerWorker = 1
	}

	workers := runtime.GOMAXPROCS(0)
	if maxW := n / minPerWorker; workers > maxW {
		workers = maxW
	}
	if workers <= 1 {
		f(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}
