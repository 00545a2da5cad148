package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	operations       *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	analyses         *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	messagesSent     *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	lastPrice        *prometheus.GaugeVec
	latency          *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfolio_operations_total",
				Help: "Portfolio operations by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfolio_analysis_cache_lookups_total",
				Help: "Analysis cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		analyses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfolio_analyses_total",
				Help: "Analysis generations by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		analysisDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finfolio_analysis_duration_seconds",
				Help:    "Duration of analysis generation in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
			},
			[]string{"kind"},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfolio_messages_sent_total",
				Help: "Total number of messages sent to backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfolio_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finfolio_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finfolio_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordOperation counts a ledger operation; outcome is "applied" or "rejected".
func (r *Recorder) RecordOperation(opType, outcome string) {
	r.operations.WithLabelValues(opType, outcome).Inc()
}

// RecordCacheLookup counts an analysis cache hit or miss.
func (r *Recorder) RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordAnalysis counts a generation and observes its duration.
func (r *Recorder) RecordAnalysis(kind, outcome string, seconds float64) {
	r.analyses.WithLabelValues(kind, outcome).Inc()
	if outcome == "generated" {
		r.analysisDuration.WithLabelValues(kind).Observe(seconds)
	}
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
