package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects real-time performance counters for an embedded LSM
// engine: put/get/remove/flush throughput and latency, membership-filter
// effectiveness, and WAL append volume. Adapted from the teacher's
// pkg/metrics/metrics.go, which tracked query/insert/transaction/
// connection counters for a document-database server — this module has
// no query planner, transactions, or connections, so those sections are
// replaced with the LSM engine's own operations.
type Collector struct {
	putsExecuted uint64
	putsFailed   uint64
	totalPutTime uint64 // nanoseconds

	getsExecuted uint64
	getHits      uint64
	getMisses    uint64
	getsFailed   uint64
	totalGetTime uint64

	removesExecuted uint64
	removesFailed   uint64
	totalRemoveTime uint64

	flushesExecuted uint64
	totalFlushTime  uint64

	walAppends        uint64
	bloomChecks       uint64
	bloomShortCircuit uint64 // MayContain returned false, skipping the skip-list descent

	sstableCount   int64 // gauge
	memTableBytes  int64 // gauge

	mu             sync.RWMutex
	putTimings     *TimingHistogram
	getTimings     *TimingHistogram
	removeTimings  *TimingHistogram
	flushTimings   *TimingHistogram

	startTime time.Time
}

// TimingHistogram stores timing data in buckets for histogram generation,
// plus a bounded window of recent samples for percentile estimation.
type TimingHistogram struct {
	bucket0_1ms      uint64
	bucket1_10ms     uint64
	bucket10_100ms   uint64
	bucket100_1000ms uint64
	bucket1000ms     uint64

	mu               sync.Mutex
	recentTimings    []time.Duration
	maxRecentTimings int
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		putTimings:    NewTimingHistogram(1000),
		getTimings:    NewTimingHistogram(1000),
		removeTimings: NewTimingHistogram(1000),
		flushTimings:  NewTimingHistogram(1000),
		startTime:     time.Now(),
	}
}

// NewTimingHistogram creates a new timing histogram.
func NewTimingHistogram(maxRecent int) *TimingHistogram {
	return &TimingHistogram{
		recentTimings:    make([]time.Duration, 0, maxRecent),
		maxRecentTimings: maxRecent,
	}
}

// RecordPut records a Put call's duration and outcome.
func (c *Collector) RecordPut(duration time.Duration, success bool) {
	atomic.AddUint64(&c.putsExecuted, 1)
	if !success {
		atomic.AddUint64(&c.putsFailed, 1)
	}
	atomic.AddUint64(&c.totalPutTime, uint64(duration.Nanoseconds()))
	c.putTimings.Record(duration)
}

// RecordGet records a Get call's duration and whether the key was found.
// err indicates an IO failure rather than a miss.
func (c *Collector) RecordGet(duration time.Duration, found bool, err error) {
	atomic.AddUint64(&c.getsExecuted, 1)
	if err != nil {
		atomic.AddUint64(&c.getsFailed, 1)
	} else if found {
		atomic.AddUint64(&c.getHits, 1)
	} else {
		atomic.AddUint64(&c.getMisses, 1)
	}
	atomic.AddUint64(&c.totalGetTime, uint64(duration.Nanoseconds()))
	c.getTimings.Record(duration)
}

// RecordRemove records a Remove call's duration and outcome.
func (c *Collector) RecordRemove(duration time.Duration, success bool) {
	atomic.AddUint64(&c.removesExecuted, 1)
	if !success {
		atomic.AddUint64(&c.removesFailed, 1)
	}
	atomic.AddUint64(&c.totalRemoveTime, uint64(duration.Nanoseconds()))
	c.removeTimings.Record(duration)
}

// RecordFlush records a MemTable flush's duration.
func (c *Collector) RecordFlush(duration time.Duration) {
	atomic.AddUint64(&c.flushesExecuted, 1)
	atomic.AddUint64(&c.totalFlushTime, uint64(duration.Nanoseconds()))
	c.flushTimings.Record(duration)
}

// RecordWALAppend records a single WAL record append.
func (c *Collector) RecordWALAppend() {
	atomic.AddUint64(&c.walAppends, 1)
}

// RecordBloomCheck records a membership filter probe; shortCircuited is
// true when MayContain returned false and the caller skipped its
// skip-list or block lookup.
func (c *Collector) RecordBloomCheck(shortCircuited bool) {
	atomic.AddUint64(&c.bloomChecks, 1)
	if shortCircuited {
		atomic.AddUint64(&c.bloomShortCircuit, 1)
	}
}

// SetSSTableCount updates the current SSTable count gauge.
func (c *Collector) SetSSTableCount(n int) {
	atomic.StoreInt64(&c.sstableCount, int64(n))
}

// SetMemTableBytes updates the current MemTable byte-size gauge.
func (c *Collector) SetMemTableBytes(n int64) {
	atomic.StoreInt64(&c.memTableBytes, n)
}

// Record adds a timing sample to the histogram.
func (th *TimingHistogram) Record(duration time.Duration) {
	ms := duration.Milliseconds()
	switch {
	case ms < 1:
		atomic.AddUint64(&th.bucket0_1ms, 1)
	case ms < 10:
		atomic.AddUint64(&th.bucket1_10ms, 1)
	case ms < 100:
		atomic.AddUint64(&th.bucket10_100ms, 1)
	case ms < 1000:
		atomic.AddUint64(&th.bucket100_1000ms, 1)
	default:
		atomic.AddUint64(&th.bucket1000ms, 1)
	}

	th.mu.Lock()
	defer th.mu.Unlock()
	if len(th.recentTimings) >= th.maxRecentTimings {
		th.recentTimings = th.recentTimings[1:]
	}
	th.recentTimings = append(th.recentTimings, duration)
}

// GetBuckets returns the histogram bucket counts.
func (th *TimingHistogram) GetBuckets() map[string]uint64 {
	return map[string]uint64{
		"0-1ms":      atomic.LoadUint64(&th.bucket0_1ms),
		"1-10ms":     atomic.LoadUint64(&th.bucket1_10ms),
		"10-100ms":   atomic.LoadUint64(&th.bucket10_100ms),
		"100-1000ms": atomic.LoadUint64(&th.bucket100_1000ms),
		">1000ms":    atomic.LoadUint64(&th.bucket1000ms),
	}
}

// GetPercentiles calculates P50, P95, P99 from recent timings.
func (th *TimingHistogram) GetPercentiles() map[string]time.Duration {
	th.mu.Lock()
	defer th.mu.Unlock()

	if len(th.recentTimings) == 0 {
		return map[string]time.Duration{"p50": 0, "p95": 0, "p99": 0}
	}

	sorted := make([]time.Duration, len(th.recentTimings))
	copy(sorted, th.recentTimings)
	for i := 1; i < len(sorted); i++ {
		key := sorted[i]
		j := i - 1
		for j >= 0 && sorted[j] > key {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = key
	}

	return map[string]time.Duration{
		"p50": sorted[len(sorted)*50/100],
		"p95": sorted[len(sorted)*95/100],
		"p99": sorted[len(sorted)*99/100],
	}
}

// Snapshot returns a point-in-time view of every metric.
func (c *Collector) Snapshot() map[string]interface{} {
	putsExecuted := atomic.LoadUint64(&c.putsExecuted)
	putsFailed := atomic.LoadUint64(&c.putsFailed)
	totalPutTime := atomic.LoadUint64(&c.totalPutTime)

	getsExecuted := atomic.LoadUint64(&c.getsExecuted)
	getHits := atomic.LoadUint64(&c.getHits)
	getMisses := atomic.LoadUint64(&c.getMisses)
	getsFailed := atomic.LoadUint64(&c.getsFailed)
	totalGetTime := atomic.LoadUint64(&c.totalGetTime)

	removesExecuted := atomic.LoadUint64(&c.removesExecuted)
	removesFailed := atomic.LoadUint64(&c.removesFailed)
	totalRemoveTime := atomic.LoadUint64(&c.totalRemoveTime)

	flushesExecuted := atomic.LoadUint64(&c.flushesExecuted)
	totalFlushTime := atomic.LoadUint64(&c.totalFlushTime)

	walAppends := atomic.LoadUint64(&c.walAppends)
	bloomChecks := atomic.LoadUint64(&c.bloomChecks)
	bloomShortCircuit := atomic.LoadUint64(&c.bloomShortCircuit)

	var avgPutTime, avgGetTime, avgRemoveTime, avgFlushTime float64
	if putsExecuted > 0 {
		avgPutTime = float64(totalPutTime) / float64(putsExecuted) / 1e6
	}
	if getsExecuted > 0 {
		avgGetTime = float64(totalGetTime) / float64(getsExecuted) / 1e6
	}
	if removesExecuted > 0 {
		avgRemoveTime = float64(totalRemoveTime) / float64(removesExecuted) / 1e6
	}
	if flushesExecuted > 0 {
		avgFlushTime = float64(totalFlushTime) / float64(flushesExecuted) / 1e6
	}

	var bloomShortCircuitRate float64
	if bloomChecks > 0 {
		bloomShortCircuitRate = float64(bloomShortCircuit) / float64(bloomChecks) * 100
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.startTime).Seconds(),

		"puts": map[string]interface{}{
			"total":              putsExecuted,
			"failed":             putsFailed,
			"success_rate":       calculateSuccessRate(putsExecuted, putsFailed),
			"avg_duration_ms":    avgPutTime,
			"timing_histogram":   c.putTimings.GetBuckets(),
			"timing_percentiles": c.putTimings.GetPercentiles(),
		},

		"gets": map[string]interface{}{
			"total":              getsExecuted,
			"hits":               getHits,
			"misses":             getMisses,
			"failed":             getsFailed,
			"avg_duration_ms":    avgGetTime,
			"timing_histogram":   c.getTimings.GetBuckets(),
			"timing_percentiles": c.getTimings.GetPercentiles(),
		},

		"removes": map[string]interface{}{
			"total":              removesExecuted,
			"failed":             removesFailed,
			"success_rate":       calculateSuccessRate(removesExecuted, removesFailed),
			"avg_duration_ms":    avgRemoveTime,
			"timing_histogram":   c.removeTimings.GetBuckets(),
			"timing_percentiles": c.removeTimings.GetPercentiles(),
		},

		"flushes": map[string]interface{}{
			"total":              flushesExecuted,
			"avg_duration_ms":    avgFlushTime,
			"timing_histogram":   c.flushTimings.GetBuckets(),
			"timing_percentiles": c.flushTimings.GetPercentiles(),
		},

		"wal": map[string]interface{}{
			"appends": walAppends,
		},

		"bloom_filter": map[string]interface{}{
			"checks":            bloomChecks,
			"short_circuits":    bloomShortCircuit,
			"short_circuit_pct": bloomShortCircuitRate,
		},

		"engine": map[string]interface{}{
			"sstables":       atomic.LoadInt64(&c.sstableCount),
			"memtable_bytes": atomic.LoadInt64(&c.memTableBytes),
		},
	}
}

// Reset resets every counter to zero, preserving the configured gauges.
func (c *Collector) Reset() {
	atomic.StoreUint64(&c.putsExecuted, 0)
	atomic.StoreUint64(&c.putsFailed, 0)
	atomic.StoreUint64(&c.totalPutTime, 0)

	atomic.StoreUint64(&c.getsExecuted, 0)
	atomic.StoreUint64(&c.getHits, 0)
	atomic.StoreUint64(&c.getMisses, 0)
	atomic.StoreUint64(&c.getsFailed, 0)
	atomic.StoreUint64(&c.totalGetTime, 0)

	atomic.StoreUint64(&c.removesExecuted, 0)
	atomic.StoreUint64(&c.removesFailed, 0)
	atomic.StoreUint64(&c.totalRemoveTime, 0)

	atomic.StoreUint64(&c.flushesExecuted, 0)
	atomic.StoreUint64(&c.totalFlushTime, 0)

	atomic.StoreUint64(&c.walAppends, 0)
	atomic.StoreUint64(&c.bloomChecks, 0)
	atomic.StoreUint64(&c.bloomShortCircuit, 0)

	c.mu.Lock()
	c.putTimings = NewTimingHistogram(1000)
	c.getTimings = NewTimingHistogram(1000)
	c.removeTimings = NewTimingHistogram(1000)
	c.flushTimings = NewTimingHistogram(1000)
	c.mu.Unlock()

	c.startTime = time.Now()
}

func calculateSuccessRate(total, failed uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(total-failed) / float64(total) * 100
}
