package consensus

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"

	prometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "consensus"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of transactions in the last batch.
	NumTxs metrics.Gauge
	// Total number of transactions delivered.
	TotalTxs metrics.Counter
	// Size of a batch in bytes.
	BatchSizeBytes metrics.Histogram
	// Time taken to deliver a batch.
	BatchDurationSeconds metrics.Histogram
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		NumTxs: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "num_txs",
			Help:      "Number of transactions in the last delivered batch.",
		}, labels).With(labelsAndValues...),
		TotalTxs: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "total_txs",
			Help:      "Total number of transactions delivered.",
		}, labels).With(labelsAndValues...),
		BatchSizeBytes: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "batch_size_bytes",
			Help:      "Size of a delivered batch in bytes.",
			Buckets:   stdprometheus.ExponentialBuckets(256, 4, 10),
		}, labels).With(labelsAndValues...),
		BatchDurationSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "batch_duration_seconds",
			Help:      "Time spent delivering a batch, in seconds.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0001, 4, 10),
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		NumTxs:               discard.NewGauge(),
		TotalTxs:             discard.NewCounter(),
		BatchSizeBytes:       discard.NewHistogram(),
		BatchDurationSeconds: discard.NewHistogram(),
	}
}
