package tcpool

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Only slow paths report: arena growth, commit failures, exhaustion and
// pre-faulting. The per-allocation fast path never calls the collector.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    growthBytes prometheus.Counter
//	    exhausted   prometheus.Counter
//	}
//
//	func (p *PrometheusCollector) RecordGrowth(bytes uint64, duration time.Duration) {
//	    p.growthBytes.Add(float64(bytes))
//	}
type MetricsCollector interface {
	// RecordGrowth is called after a cache claimed a chunk from the arena.
	RecordGrowth(bytes uint64, duration time.Duration)

	// RecordCommitFailure is called when best-effort page population failed.
	RecordCommitFailure(bytes uint64)

	// RecordExhausted is called when an allocation failed because the arena is full.
	RecordExhausted(request uint64)

	// RecordPopulate is called after Cache.Populate pre-faulted a range.
	RecordPopulate(bytes uint64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGrowth(uint64, time.Duration)          {}
func (NoopMetricsCollector) RecordCommitFailure(uint64)                  {}
func (NoopMetricsCollector) RecordExhausted(uint64)                      {}
func (NoopMetricsCollector) RecordPopulate(uint64, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GrowthCount        atomic.Int64
	GrowthBytes        atomic.Uint64
	GrowthTotalNanos   atomic.Int64
	CommitFailures     atomic.Int64
	CommitFailureBytes atomic.Uint64
	ExhaustedCount     atomic.Int64
	PopulateCount      atomic.Int64
	PopulateErrors     atomic.Int64
	PopulateBytes      atomic.Uint64
	PopulateTotalNanos atomic.Int64
}

// RecordGrowth implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGrowth(bytes uint64, duration time.Duration) {
	b.GrowthCount.Add(1)
	b.GrowthBytes.Add(bytes)
	b.GrowthTotalNanos.Add(duration.Nanoseconds())
}

// RecordCommitFailure implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommitFailure(bytes uint64) {
	b.CommitFailures.Add(1)
	b.CommitFailureBytes.Add(bytes)
}

// RecordExhausted implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExhausted(uint64) {
	b.ExhaustedCount.Add(1)
}

// RecordPopulate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPopulate(bytes uint64, duration time.Duration, err error) {
	b.PopulateCount.Add(1)
	b.PopulateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PopulateErrors.Add(1)
		return
	}
	b.PopulateBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		GrowthCount:        b.GrowthCount.Load(),
		GrowthBytes:        b.GrowthBytes.Load(),
		GrowthAvgNanos:     avgNanos(b.GrowthTotalNanos.Load(), b.GrowthCount.Load()),
		CommitFailures:     b.CommitFailures.Load(),
		CommitFailureBytes: b.CommitFailureBytes.Load(),
		ExhaustedCount:     b.ExhaustedCount.Load(),
		PopulateCount:      b.PopulateCount.Load(),
		PopulateErrors:     b.PopulateErrors.Load(),
		PopulateBytes:      b.PopulateBytes.Load(),
		PopulateAvgNanos:   avgNanos(b.PopulateTotalNanos.Load(), b.PopulateCount.Load()),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	GrowthCount        int64
	GrowthBytes        uint64
	GrowthAvgNanos     int64
	CommitFailures     int64
	CommitFailureBytes uint64
	ExhaustedCount     int64
	PopulateCount      int64
	PopulateErrors     int64
	PopulateBytes      uint64
	PopulateAvgNanos   int64
}
