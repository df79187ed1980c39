package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mortality_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the compile pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	RunDuration     prometheus.Histogram
	LastSuccess     prometheus.Gauge

	// Source retrieval metrics.
	FetchAttempts *prometheus.CounterVec   // labels: source, outcome={success,error}
	FetchDuration *prometheus.HistogramVec // labels: source
	SourceEmpty   *prometheus.CounterVec   // labels: source

	// Normalization and merge metrics.
	RowsNormalized   *prometheus.CounterVec // labels: source
	RowsDropped      *prometheus.CounterVec // labels: source, reason
	RecordsMerged    prometheus.Gauge
	DuplicateRecords prometheus.Gauge
	RecordsWritten   *prometheus.CounterVec // labels: dataset
	AdvisoryWarnings prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a compile run is in progress, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete compile run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful compile run.",
		}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Source retrieval attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a successful source retrieval including retries.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"source"}),
		SourceEmpty: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_empty_total",
			Help:      "Runs in which a source contributed no rows.",
		}, []string{"source"}),
		RowsNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_normalized_total",
			Help:      "Rows kept by a source normalizer.",
		}, []string{"source"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows dropped by a source normalizer, by reason.",
		}, []string{"source", "reason"}),
		RecordsMerged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_merged",
			Help:      "Records remaining after the last merge.",
		}),
		DuplicateRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duplicate_records",
			Help:      "Duplicate (year, week, jurisdiction) rows removed in the last merge.",
		}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Annotated records written, by dataset.",
		}, []string{"dataset"}),
		AdvisoryWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisory_warnings_total",
			Help:      "Year-over-year validation findings.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.RunDuration,
		m.LastSuccess,
		m.FetchAttempts,
		m.FetchDuration,
		m.SourceEmpty,
		m.RowsNormalized,
		m.RowsDropped,
		m.RecordsMerged,
		m.DuplicateRecords,
		m.RecordsWritten,
		m.AdvisoryWarnings,
	}
}
