package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// preprocessing pipeline.
type Metrics struct {
	LinesRead      *prometheus.CounterVec // label: stage
	RecordsSkipped *prometheus.CounterVec // labels: stage, reason={parse,missing_field,bad_time,filtered}
	RowsWritten    *prometheus.CounterVec // label: stage

	TimestampsRewritten prometheus.Counter
	ZoneRecords         *prometheus.CounterVec // label: zone={DK1,DK2,UNKNOWN}
	AggregateKeys       prometheus.Gauge       // distinct (station,hour,parameter) keys, last run
	ColumnsDropped      *prometheus.CounterVec // label: reason={sparse,quasi_constant}

	StageDuration   *prometheus.HistogramVec // label: stage
	PipelineRunning prometheus.Gauge
	RunsCompleted   prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.LinesRead,
		m.RecordsSkipped,
		m.RowsWritten,
		m.TimestampsRewritten,
		m.ZoneRecords,
		m.AggregateKeys,
		m.ColumnsDropped,
		m.StageDuration,
		m.PipelineRunning,
		m.RunsCompleted,
	)
	return m
}

// NewMetricsForTesting creates Metrics without touching the default registry,
// avoiding "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		LinesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dmi_etl",
			Name:      "lines_read_total",
			Help:      "Input lines consumed, by stage.",
		}, []string{"stage"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dmi_etl",
			Name:      "records_skipped_total",
			Help:      "Records skipped without aborting the stream, by stage and reason.",
		}, []string{"stage", "reason"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dmi_etl",
			Name:      "rows_written_total",
			Help:      "Output rows or lines produced, by stage.",
		}, []string{"stage"}),
		TimestampsRewritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dmi_etl",
			Name:      "timestamps_rewritten_total",
			Help:      "Time fields rewritten to canonical UTC.",
		}),
		ZoneRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dmi_etl",
			Name:      "zone_records_total",
			Help:      "Records classified into each price zone.",
		}, []string{"zone"}),
		AggregateKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dmi_etl",
			Name:      "aggregate_keys",
			Help:      "Distinct (station, hour, parameter) keys held by the last station-hour run; the pipeline's memory high-water mark.",
		}),
		ColumnsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dmi_etl",
			Name:      "columns_dropped_total",
			Help:      "Columns removed by the pruner, by reason.",
		}, []string{"reason"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dmi_etl",
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1200},
		}, []string{"stage"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dmi_etl",
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress.",
		}),
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dmi_etl",
			Name:      "runs_completed_total",
			Help:      "Pipeline runs that finished every stage.",
		}),
	}
}
