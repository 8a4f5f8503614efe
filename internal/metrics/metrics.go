// Package metrics exports collection metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skshohagmiah/flindoc/internal/db"
)

// Collector implements db.MetricsCollector.
type Collector struct {
	reg prometheus.Gatherer

	// OperationsTotal counts operations by kind and outcome.
	OperationsTotal *prometheus.CounterVec
	// OperationDuration is the latency of operations.
	OperationDuration *prometheus.HistogramVec
	// DocumentsTotal counts documents inserted, matched, modified, deleted
	// or examined.
	DocumentsTotal *prometheus.CounterVec
	// AccessPathTotal counts finds by access path.
	AccessPathTotal *prometheus.CounterVec
	// Documents is the current size of each collection.
	Documents *prometheus.GaugeVec
}

var _ db.MetricsCollector = (*Collector)(nil)

// New registers the collectors with reg, or a new registry when reg is nil.
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Collector{
		reg: reg,
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flindoc_operations_total",
				Help: "Total number of collection operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flindoc_operation_duration_seconds",
				Help:    "Collection operation latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"operation"},
		),
		DocumentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flindoc_documents_total",
				Help: "Documents processed by collection operations",
			},
			[]string{"operation", "kind"},
		),
		AccessPathTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flindoc_access_path_total",
				Help: "Finds by chosen access path",
			},
			[]string{"path"},
		),
		Documents: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flindoc_collection_documents",
				Help: "Number of documents in the collection",
			},
			[]string{"collection"},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	c.OperationsTotal.WithLabelValues(op, status(err)).Inc()
	c.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordInsert implements db.MetricsCollector.
func (c *Collector) RecordInsert(count int, d time.Duration, err error) {
	c.observe("insert", d, err)
	if err == nil {
		c.DocumentsTotal.WithLabelValues("insert", "inserted").Add(float64(count))
	}
}

// RecordFind implements db.MetricsCollector.
func (c *Collector) RecordFind(path db.AccessPath, examined, returned int, d time.Duration, err error) {
	c.observe("find", d, err)
	c.AccessPathTotal.WithLabelValues(string(path)).Inc()
	c.DocumentsTotal.WithLabelValues("find", "examined").Add(float64(examined))
	c.DocumentsTotal.WithLabelValues("find", "returned").Add(float64(returned))
}

// RecordUpdate implements db.MetricsCollector.
func (c *Collector) RecordUpdate(matched, modified int, d time.Duration, err error) {
	c.observe("update", d, err)
	c.DocumentsTotal.WithLabelValues("update", "matched").Add(float64(matched))
	c.DocumentsTotal.WithLabelValues("update", "modified").Add(float64(modified))
}

// RecordDelete implements db.MetricsCollector.
func (c *Collector) RecordDelete(deleted int, d time.Duration, err error) {
	c.observe("delete", d, err)
	c.DocumentsTotal.WithLabelValues("delete", "deleted").Add(float64(deleted))
}

// RecordAggregate implements db.MetricsCollector.
func (c *Collector) RecordAggregate(_ int, d time.Duration, err error) {
	c.observe("aggregate", d, err)
}

// SetDocuments implements db.MetricsCollector.
func (c *Collector) SetDocuments(collection string, n int) {
	c.Documents.WithLabelValues(collection).Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
