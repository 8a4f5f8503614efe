package db

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives operational metrics from a Collection.
// internal/metrics provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordInsert is called after each insert; count is the number of
	// documents in the call.
	RecordInsert(count int, duration time.Duration, err error)

	// RecordFind is called once per finished cursor with the access path
	// actually used.
	RecordFind(path AccessPath, examined, returned int, duration time.Duration, err error)

	// RecordUpdate is called after each update.
	RecordUpdate(matched, modified int, duration time.Duration, err error)

	// RecordDelete is called after each delete.
	RecordDelete(deleted int, duration time.Duration, err error)

	// RecordAggregate is called once per finished pipeline.
	RecordAggregate(stages int, duration time.Duration, err error)

	// SetDocuments reports the collection size after a mutation.
	SetDocuments(collection string, n int)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(int, time.Duration, error)                {}
func (NoopMetricsCollector) RecordFind(AccessPath, int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordUpdate(int, int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordDelete(int, time.Duration, error)                {}
func (NoopMetricsCollector) RecordAggregate(int, time.Duration, error)             {}
func (NoopMetricsCollector) SetDocuments(string, int)                              {}

// BasicMetricsCollector keeps in-memory counters.
type BasicMetricsCollector struct {
	Inserts       atomic.Int64
	Finds         atomic.Int64
	IndexSeeks    atomic.Int64
	FullScans     atomic.Int64
	Examined      atomic.Int64
	Updates       atomic.Int64
	Deletes       atomic.Int64
	Aggregations  atomic.Int64
	Errors        atomic.Int64
	DocumentCount atomic.Int64
}

func (b *BasicMetricsCollector) countErr(err error) {
	if err != nil {
		b.Errors.Add(1)
	}
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(count int, _ time.Duration, err error) {
	b.countErr(err)
	if err == nil {
		b.Inserts.Add(int64(count))
	}
}

// RecordFind implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFind(path AccessPath, examined, _ int, _ time.Duration, err error) {
	b.countErr(err)
	b.Finds.Add(1)
	b.Examined.Add(int64(examined))
	if path == IndexSeek {
		b.IndexSeeks.Add(1)
	} else {
		b.FullScans.Add(1)
	}
}

// RecordUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpdate(_, modified int, _ time.Duration, err error) {
	b.countErr(err)
	b.Updates.Add(int64(modified))
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(deleted int, _ time.Duration, err error) {
	b.countErr(err)
	b.Deletes.Add(int64(deleted))
}

// RecordAggregate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAggregate(_ int, _ time.Duration, err error) {
	b.countErr(err)
	b.Aggregations.Add(1)
}

// SetDocuments implements MetricsCollector.
func (b *BasicMetricsCollector) SetDocuments(_ string, n int) {
	b.DocumentCount.Store(int64(n))
}
