package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stockvote"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	batchesTotal    *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	instruments     *prometheus.CounterVec
	strategyResults *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	httpRequests    *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		batchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Finished batches by final status",
			},
			[]string{"status"},
		),
		batchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Wall time of finished batches",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
			},
		),
		instruments: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instruments_total",
				Help:      "Analyzed instruments by outcome",
			},
			[]string{"outcome"},
		),
		strategyResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "strategy_results_total",
				Help:      "Strategy invocations by strategy and result status",
			},
			[]string{"strategy", "status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		httpRequests: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency of API endpoints",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "code"},
		),
	}
}

// RecordBatch records a finished batch.
func (r *Recorder) RecordBatch(status string, seconds float64) {
	r.batchesTotal.WithLabelValues(status).Inc()
	r.batchDuration.Observe(seconds)
}

// RecordInstrument records one instrument outcome (succeeded or failed).
func (r *Recorder) RecordInstrument(outcome string) {
	r.instruments.WithLabelValues(outcome).Inc()
}

// RecordStrategy records one strategy invocation.
func (r *Recorder) RecordStrategy(strategy, status string) {
	r.strategyResults.WithLabelValues(strategy, status).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// ObserveRequest records one served API request.
func (r *Recorder) ObserveRequest(route string, code int, seconds float64) {
	r.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Observe(seconds)
}
