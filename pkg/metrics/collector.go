// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharemac.
//
// go-sharemac is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"context"
	"runtime"
	"time"
)

// ResourceCollector periodically samples goroutines, heap and uptime.
// It runs until its context is cancelled.
type ResourceCollector struct {
	interval time.Duration
	started  time.Time
}

// NewResourceCollector returns a collector sampling every interval.
func NewResourceCollector(interval time.Duration) *ResourceCollector {
	return &ResourceCollector{interval: interval, started: time.Now()}
}

// Run samples immediately and then on every tick until ctx is done.
func (rc *ResourceCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	rc.Collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rc.Collect()
		}
	}
}

// Collect takes one sample.
func (rc *ResourceCollector) Collect() {
	if !IsEnabled() {
		return
	}
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	MemoryAllocBytes.Set(float64(mem.Alloc))

	ServerUptime.Set(time.Since(rc.started).Seconds())
}
