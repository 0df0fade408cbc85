package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	analyses    *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	snapsStored *prometheus.CounterVec
	streamUp    *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		analyses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpulse_analyses_total",
				Help: "Total number of analytics computations",
			},
			[]string{"operation", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		snapsStored: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpulse_snapshots_stored_total",
				Help: "Order book snapshots written to storage",
			},
			[]string{"symbol"},
		),
		streamUp: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bookpulse_stream_connected",
				Help: "1 when the market data stream for a symbol is connected",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordAnalysis records one analytics computation.
func (r *Recorder) RecordAnalysis(operation, symbol string) {
	r.analyses.WithLabelValues(operation, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordSnapshotStored records snapshots persisted for a symbol.
func (r *Recorder) RecordSnapshotStored(symbol string, count int) {
	r.snapsStored.WithLabelValues(symbol).Add(float64(count))
}

// RecordStreamState records stream connectivity for a symbol.
func (r *Recorder) RecordStreamState(symbol string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	r.streamUp.WithLabelValues(symbol).Set(v)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
