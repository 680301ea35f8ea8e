package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/wbrown/janus-aql/aql"
)

// Query outcomes, the values of the "outcome" label.
const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeKilled   = "killed"
	outcomeResource = "resource_limit"
)

// Metrics are the Prometheus metrics of one Runner. They live on their
// own registry so several runners (and tests) do not collide.
type Metrics struct {
	registry *prometheus.Registry

	queriesTotal  *prometheus.CounterVec
	rowsTotal     prometheus.Counter
	skippedTotal  prometheus.Counter
	waitsTotal    prometheus.Counter
	queryDuration prometheus.Histogram
	peakMemory    prometheus.Gauge
}

// NewMetrics creates the metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aql",
			Subsystem: "engine",
			Name:      "queries_total",
			Help:      "The number of queries run, by outcome.",
		}, []string{"outcome"}),
		rowsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aql",
			Subsystem: "engine",
			Name:      "rows_total",
			Help:      "The number of rows returned to clients.",
		}),
		skippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aql",
			Subsystem: "engine",
			Name:      "skipped_rows_total",
			Help: `The number of rows skipped on behalf of clients.

This includes rows skipped by an offset and rows counted for a full count.`,
		}),
		waitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aql",
			Subsystem: "engine",
			Name:      "waits_total",
			Help:      "The number of times a query was suspended waiting for a source.",
		}),
		queryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aql",
			Subsystem: "engine",
			Name:      "query_duration_seconds",
			Help:      "The wall time of queries, including suspensions.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		peakMemory: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "aql",
			Subsystem: "engine",
			Name:      "last_query_peak_memory_bytes",
			Help:      "The peak accounted memory of the most recently finished query.",
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// observe records a finished query. res may be partial when err is set.
func (m *Metrics) observe(res *Result, err error) {
	outcome := outcomeOK
	switch {
	case err == nil:
	case aql.IsQueryKilled(err):
		outcome = outcomeKilled
	case aql.IsResourceLimitExceeded(err):
		outcome = outcomeResource
	default:
		outcome = outcomeError
	}
	m.queriesTotal.WithLabelValues(outcome).Inc()
	if res == nil {
		return
	}
	m.rowsTotal.Add(float64(len(res.Rows)))
	m.skippedTotal.Add(float64(res.Skipped))
	m.waitsTotal.Add(float64(res.Waits))
	m.queryDuration.Observe(res.Duration.Seconds())
	m.peakMemory.Set(float64(res.PeakMemory))
}
