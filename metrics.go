package vecseg

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordLoad is called after a value index load.
	RecordLoad(field string, duration time.Duration, err error)

	// RecordFlush is called after each flush of the store.
	RecordFlush(duration time.Duration, err error)

	// RecordRemovePoint is called after a point removal from a value index.
	RecordRemovePoint(field string, err error)

	// RecordInsertVector is called after each vector insert.
	RecordInsertVector(duration time.Duration, err error)

	// RecordDeleteVector is called after each vector delete. deleted is true
	// when the point was live before.
	RecordDeleteVector(deleted bool, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLoad(string, time.Duration, error) {}
func (NoopMetricsCollector) RecordFlush(time.Duration, error)        {}
func (NoopMetricsCollector) RecordRemovePoint(string, error)         {}
func (NoopMetricsCollector) RecordInsertVector(time.Duration, error) {}
func (NoopMetricsCollector) RecordDeleteVector(bool, error)          {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	LoadCount         atomic.Int64
	LoadErrors        atomic.Int64
	FlushCount        atomic.Int64
	FlushErrors       atomic.Int64
	FlushTotalNanos   atomic.Int64
	RemovePointCount  atomic.Int64
	RemovePointErrors atomic.Int64
	InsertCount       atomic.Int64
	InsertErrors      atomic.Int64
	InsertTotalNanos  atomic.Int64
	DeleteCount       atomic.Int64
	DeleteErrors      atomic.Int64
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(_ string, _ time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(duration time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// RecordRemovePoint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemovePoint(_ string, err error) {
	b.RemovePointCount.Add(1)
	if err != nil {
		b.RemovePointErrors.Add(1)
	}
}

// RecordInsertVector implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsertVector(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordDeleteVector implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDeleteVector(deleted bool, err error) {
	if err != nil {
		b.DeleteErrors.Add(1)
		return
	}
	if deleted {
		b.DeleteCount.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		LoadCount:         b.LoadCount.Load(),
		LoadErrors:        b.LoadErrors.Load(),
		FlushCount:        b.FlushCount.Load(),
		FlushErrors:       b.FlushErrors.Load(),
		FlushAvgNanos:     avg(b.FlushTotalNanos.Load(), b.FlushCount.Load()),
		RemovePointCount:  b.RemovePointCount.Load(),
		RemovePointErrors: b.RemovePointErrors.Load(),
		InsertCount:       b.InsertCount.Load(),
		InsertErrors:      b.InsertErrors.Load(),
		InsertAvgNanos:    avg(b.InsertTotalNanos.Load(), b.InsertCount.Load()),
		DeleteCount:       b.DeleteCount.Load(),
		DeleteErrors:      b.DeleteErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LoadCount         int64
	LoadErrors        int64
	FlushCount        int64
	FlushErrors       int64
	FlushAvgNanos     int64
	RemovePointCount  int64
	RemovePointErrors int64
	InsertCount       int64
	InsertErrors      int64
	InsertAvgNanos    int64
	DeleteCount       int64
	DeleteErrors      int64
}

// VictoriaMetricsCollector exports metrics in Prometheus text format
// through a VictoriaMetrics set.
type VictoriaMetricsCollector struct {
	set    *vm.Set
	prefix string
}

// NewVictoriaMetricsCollector returns a collector whose metric names start
// with prefix ("vecseg" if empty). The set is not registered globally.
func NewVictoriaMetricsCollector(prefix string) *VictoriaMetricsCollector {
	if prefix == "" {
		prefix = "vecseg"
	}
	return &VictoriaMetricsCollector{set: vm.NewSet(), prefix: prefix}
}

// Set returns the underlying set, e.g. for vm.RegisterSet.
func (c *VictoriaMetricsCollector) Set() *vm.Set { return c.set }

// WritePrometheus writes all metrics in Prometheus text format.
func (c *VictoriaMetricsCollector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

func (c *VictoriaMetricsCollector) name(metric, labels string) string {
	if labels == "" {
		return c.prefix + "_" + metric
	}
	return c.prefix + "_" + metric + "{" + labels + "}"
}

func status(err error) string {
	if err != nil {
		return `status="error"`
	}
	return `status="ok"`
}

// RecordLoad implements MetricsCollector.
func (c *VictoriaMetricsCollector) RecordLoad(field string, duration time.Duration, err error) {
	labels := fmt.Sprintf("field=%q,%s", field, status(err))
	c.set.GetOrCreateCounter(c.name("index_loads_total", labels)).Inc()
	c.set.GetOrCreateHistogram(c.name("index_load_duration_seconds", fmt.Sprintf("field=%q", field))).Update(duration.Seconds())
}

// RecordFlush implements MetricsCollector.
func (c *VictoriaMetricsCollector) RecordFlush(duration time.Duration, err error) {
	c.set.GetOrCreateCounter(c.name("flushes_total", status(err))).Inc()
	c.set.GetOrCreateHistogram(c.name("flush_duration_seconds", "")).Update(duration.Seconds())
}

// RecordRemovePoint implements MetricsCollector.
func (c *VictoriaMetricsCollector) RecordRemovePoint(field string, err error) {
	labels := fmt.Sprintf("field=%q,%s", field, status(err))
	c.set.GetOrCreateCounter(c.name("index_removed_points_total", labels)).Inc()
}

// RecordInsertVector implements MetricsCollector.
func (c *VictoriaMetricsCollector) RecordInsertVector(duration time.Duration, err error) {
	c.set.GetOrCreateCounter(c.name("vector_inserts_total", status(err))).Inc()
	c.set.GetOrCreateHistogram(c.name("vector_insert_duration_seconds", "")).Update(duration.Seconds())
}

// RecordDeleteVector implements MetricsCollector.
func (c *VictoriaMetricsCollector) RecordDeleteVector(deleted bool, err error) {
	if err == nil && !deleted {
		return
	}
	c.set.GetOrCreateCounter(c.name("vector_deletes_total", status(err))).Inc()
}
