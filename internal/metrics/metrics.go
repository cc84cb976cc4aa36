// Package metrics records pipeline counters and timings with Prometheus.
//
// Metrics live in a private registry so several runs (and tests) can coexist
// in one process. Batch commands export the registry to a textfile that the
// node exporter textfile collector can scrape:
//
//	m := metrics.New()
//	m.AddRowsFetched(42)
//	_ = m.WriteTextfile("/var/lib/node_exporter/trialrag.prom")
//
// Every method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trialrag"

// Metrics holds the collectors for one run.
type Metrics struct {
	registry *prometheus.Registry

	// StoreQueries counts database round trips.
	// Labels: operation (fetch|count), status (success|error)
	StoreQueries *prometheus.CounterVec

	// StoreQueryDuration measures database round trips including connect.
	// Labels: operation
	StoreQueryDuration *prometheus.HistogramVec

	// RowsFetched counts eligibility rows returned by the database.
	RowsFetched prometheus.Counter

	// DocumentsIndexed counts documents handed to the sink.
	// Labels: kind (content|header_only)
	DocumentsIndexed *prometheus.CounterVec

	// SinkRequests counts sink calls.
	// Labels: operation (insert|finalize|query), status (success|error)
	SinkRequests *prometheus.CounterVec

	// SinkDuration measures sink call latency.
	// Labels: operation
	SinkDuration *prometheus.HistogramVec

	// EvalGroups counts evaluated groups.
	// Labels: outcome (parsed|parse_error)
	EvalGroups *prometheus.CounterVec

	// CacheLookups counts retrieval cache lookups.
	// Labels: result (hit|miss|error)
	CacheLookups *prometheus.CounterVec

	// BusPublishes counts published events.
	// Labels: topic, status (success|error)
	BusPublishes *prometheus.CounterVec

	// EvalScore holds the aggregate scores of the last evaluation.
	// Labels: aggregate (micro|macro), metric (precision|recall|f1)
	EvalScore *prometheus.GaugeVec
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		StoreQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_queries_total",
				Help:      "Database queries by operation and status",
			},
			[]string{"operation", "status"},
		),

		StoreQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_query_duration_seconds",
				Help:      "Database query latency in seconds, connect included",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"operation"},
		),

		RowsFetched: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_fetched_total",
				Help:      "Eligibility rows returned by the database",
			},
		),

		DocumentsIndexed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_indexed_total",
				Help:      "Documents inserted into the sink by kind",
			},
			[]string{"kind"},
		),

		SinkRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_requests_total",
				Help:      "Sink requests by operation and status",
			},
			[]string{"operation", "status"},
		),

		SinkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sink_request_duration_seconds",
				Help:      "Sink request latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
			[]string{"operation"},
		),

		EvalGroups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "eval_groups_total",
				Help:      "Evaluated groups by parse outcome",
			},
			[]string{"outcome"},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Retrieval cache lookups by result",
			},
			[]string{"result"},
		),

		BusPublishes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_publishes_total",
				Help:      "Events published by topic and status",
			},
			[]string{"topic", "status"},
		),

		EvalScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "eval_score",
				Help:      "Aggregate evaluation scores of the last run",
			},
			[]string{"aggregate", "metric"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry in text exposition format to path.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// ObserveQuery records one database round trip.
func (m *Metrics) ObserveQuery(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StoreQueries.WithLabelValues(operation, status(err)).Inc()
	m.StoreQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// AddRowsFetched adds n fetched rows.
func (m *Metrics) AddRowsFetched(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsFetched.Add(float64(n))
}

// DocumentIndexed records one inserted document.
func (m *Metrics) DocumentIndexed(headerOnly bool) {
	if m == nil {
		return
	}
	kind := "content"
	if headerOnly {
		kind = "header_only"
	}
	m.DocumentsIndexed.WithLabelValues(kind).Inc()
}

// ObserveSink records one sink call.
func (m *Metrics) ObserveSink(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SinkRequests.WithLabelValues(operation, status(err)).Inc()
	m.SinkDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// GroupEvaluated records one scored group.
func (m *Metrics) GroupEvaluated(parseFailed bool) {
	if m == nil {
		return
	}
	outcome := "parsed"
	if parseFailed {
		outcome = "parse_error"
	}
	m.EvalGroups.WithLabelValues(outcome).Inc()
}

// CacheLookup records a cache lookup result: hit, miss or error.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordBusPublish records one event publication.
func (m *Metrics) RecordBusPublish(topic string, err error) {
	if m == nil {
		return
	}
	m.BusPublishes.WithLabelValues(topic, status(err)).Inc()
}

// SetScores publishes an aggregate's precision, recall and F1.
func (m *Metrics) SetScores(aggregate string, precision, recall, f1 float64) {
	if m == nil {
		return
	}
	m.EvalScore.WithLabelValues(aggregate, "precision").Set(precision)
	m.EvalScore.WithLabelValues(aggregate, "recall").Set(recall)
	m.EvalScore.WithLabelValues(aggregate, "f1").Set(f1)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
