package metrics

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Exporter exports a Collector's counters in Prometheus text exposition
// format (https://prometheus.io/docs/instrumenting/exposition_formats/).
// Adapted from the teacher's pkg/metrics/prometheus.go, with the
// query/transaction/connection sections replaced by put/get/remove/flush,
// WAL, and bloom-filter sections, and the ResourceTracker integration
// dropped along with the profiler it depended on.
type Exporter struct {
	collector *Collector
	namespace string
}

// NewExporter creates a new Prometheus exporter for collector.
func NewExporter(collector *Collector) *Exporter {
	return &Exporter{
		collector: collector,
		namespace: "lsmdb",
	}
}

// SetNamespace sets the metric namespace prefix.
func (e *Exporter) SetNamespace(namespace string) {
	e.namespace = namespace
}

// WriteMetrics writes every metric in Prometheus text format to w.
func (e *Exporter) WriteMetrics(w io.Writer) error {
	uptime := time.Since(e.collector.startTime).Seconds()
	if err := e.writeGauge(w, "uptime_seconds", "Engine uptime in seconds", uptime); err != nil {
		return err
	}

	if err := e.writeOpSection(w, "puts", "put_duration_seconds", "Put", &e.collector.putsExecuted, &e.collector.putsFailed, &e.collector.totalPutTime, e.collector.putTimings); err != nil {
		return err
	}
	if err := e.writeOpSection(w, "removes", "remove_duration_seconds", "Remove", &e.collector.removesExecuted, &e.collector.removesFailed, &e.collector.totalRemoveTime, e.collector.removeTimings); err != nil {
		return err
	}
	if err := e.writeOpSection(w, "flushes", "flush_duration_seconds", "Flush", &e.collector.flushesExecuted, nil, &e.collector.totalFlushTime, e.collector.flushTimings); err != nil {
		return err
	}

	// Get metrics distinguish hits/misses in addition to the total/failed
	// counters the other operations share.
	getsExecuted := atomic.LoadUint64(&e.collector.getsExecuted)
	getHits := atomic.LoadUint64(&e.collector.getHits)
	getMisses := atomic.LoadUint64(&e.collector.getMisses)
	getsFailed := atomic.LoadUint64(&e.collector.getsFailed)
	totalGetTime := atomic.LoadUint64(&e.collector.totalGetTime)

	if err := e.writeCounter(w, "gets_total", "Total number of get operations", getsExecuted); err != nil {
		return err
	}
	if err := e.writeCounter(w, "get_hits_total", "Total number of get operations that found a live value", getHits); err != nil {
		return err
	}
	if err := e.writeCounter(w, "get_misses_total", "Total number of get operations that found nothing", getMisses); err != nil {
		return err
	}
	if err := e.writeCounter(w, "gets_failed_total", "Total number of get operations that failed with an IO error", getsFailed); err != nil {
		return err
	}
	if err := e.writeCounter(w, "get_duration_nanoseconds_total", "Total get execution time in nanoseconds", totalGetTime); err != nil {
		return err
	}
	if err := e.writeHistogram(w, "get_duration_seconds", "Get operation duration histogram", e.collector.getTimings); err != nil {
		return err
	}
	if err := e.writePercentiles(w, "get_duration_seconds", e.collector.getTimings); err != nil {
		return err
	}

	// WAL metrics
	walAppends := atomic.LoadUint64(&e.collector.walAppends)
	if err := e.writeCounter(w, "wal_appends_total", "Total number of WAL records appended", walAppends); err != nil {
		return err
	}

	// Bloom filter metrics
	bloomChecks := atomic.LoadUint64(&e.collector.bloomChecks)
	bloomShortCircuit := atomic.LoadUint64(&e.collector.bloomShortCircuit)
	var shortCircuitRate float64
	if bloomChecks > 0 {
		shortCircuitRate = float64(bloomShortCircuit) / float64(bloomChecks)
	}

	if err := e.writeCounter(w, "bloom_checks_total", "Total number of membership filter probes", bloomChecks); err != nil {
		return err
	}
	if err := e.writeCounter(w, "bloom_short_circuits_total", "Total number of probes that skipped the MemTable skip-list lookup", bloomShortCircuit); err != nil {
		return err
	}
	if err := e.writeGauge(w, "bloom_short_circuit_rate", "Fraction of bloom filter checks that short-circuited (0-1)", shortCircuitRate); err != nil {
		return err
	}

	// Engine gauges
	if err := e.writeGauge(w, "sstables", "Current number of SSTables on disk", float64(atomic.LoadInt64(&e.collector.sstableCount))); err != nil {
		return err
	}
	if err := e.writeGauge(w, "memtable_bytes", "Current accounted MemTable size in bytes", float64(atomic.LoadInt64(&e.collector.memTableBytes))); err != nil {
		return err
	}

	return nil
}

// writeOpSection writes the total/failed counters, timing total, histogram
// and percentiles shared by most operation kinds. failed may be nil for
// operations (like Flush) that don't track a failure counter.
func (e *Exporter) writeOpSection(w io.Writer, name, baseName, label string, total, failed *uint64, totalTime *uint64, th *TimingHistogram) error {
	if total != nil {
		if err := e.writeCounter(w, name+"_total", fmt.Sprintf("Total number of %s operations", label), atomic.LoadUint64(total)); err != nil {
			return err
		}
	}
	if failed != nil {
		if err := e.writeCounter(w, name+"_failed_total", fmt.Sprintf("Total number of failed %s operations", label), atomic.LoadUint64(failed)); err != nil {
			return err
		}
	}
	if err := e.writeCounter(w, name+"_duration_nanoseconds_total", fmt.Sprintf("Total %s execution time in nanoseconds", label), atomic.LoadUint64(totalTime)); err != nil {
		return err
	}

	if err := e.writeHistogram(w, baseName, fmt.Sprintf("%s operation duration histogram", label), th); err != nil {
		return err
	}
	return e.writePercentiles(w, baseName, th)
}

func (e *Exporter) writeCounter(w io.Writer, name, help string, value uint64) error {
	metricName := e.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n",
		metricName, help, metricName, metricName, value)
	return err
}

func (e *Exporter) writeGauge(w io.Writer, name, help string, value float64) error {
	metricName := e.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n",
		metricName, help, metricName, metricName, value)
	return err
}

// writeHistogram writes cumulative Prometheus histogram buckets from a
// TimingHistogram's fixed latency buckets.
func (e *Exporter) writeHistogram(w io.Writer, name, help string, th *TimingHistogram) error {
	metricName := e.namespace + "_" + name

	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", metricName, help, metricName); err != nil {
		return err
	}

	buckets := th.GetBuckets()
	var cumulative uint64

	for _, b := range []struct {
		key string
		le  string
	}{
		{"0-1ms", "0.001"},
		{"1-10ms", "0.01"},
		{"10-100ms", "0.1"},
		{"100-1000ms", "1.0"},
		{">1000ms", "+Inf"},
	} {
		cumulative += buckets[b.key]
		if _, err := fmt.Fprintf(w, "%s_bucket{le=\"%s\"} %d\n", metricName, b.le, cumulative); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "%s_count %d\n", metricName, cumulative); err != nil {
		return err
	}

	return nil
}

// writePercentiles writes P50/P95/P99 metrics as gauges.
func (e *Exporter) writePercentiles(w io.Writer, baseName string, th *TimingHistogram) error {
	percentiles := th.GetPercentiles()

	for _, p := range []string{"p50", "p95", "p99"} {
		if err := e.writeGauge(w, baseName+"_"+p,
			fmt.Sprintf("%s percentile of %s", p, baseName),
			percentiles[p].Seconds()); err != nil {
			return err
		}
	}

	return nil
}
