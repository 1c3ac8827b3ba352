package state

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "state"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of delivered transactions, by kind and result code.
	Txs metrics.Counter
	// Number of auctions that produced a match, by whether the price was
	// settled on the ledger.
	Matches metrics.Counter
	// Sum of winning prices of settled matches.
	SettledVolume metrics.Counter
	// Sum of fees collected into the fee pool.
	FeesCollected metrics.Counter
	// Number of committed transactions.
	Height metrics.Gauge
	// Time spent applying a transaction, including the commit, in seconds.
	ApplyDuration metrics.Histogram
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
		Txs: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "txs",
			Help:      "Number of delivered transactions, by kind and result code.",
		}, joinLabels(labels, "kind", "code")).With(labelsAndValues...),
		Matches: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "matches",
			Help:      "Number of auctions that produced a match.",
		}, joinLabels(labels, "settled")).With(labelsAndValues...),
		SettledVolume: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "settled_volume",
			Help:      "Sum of winning prices moved from advertisers to publishers.",
		}, labels).With(labelsAndValues...),
		FeesCollected: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "fees_collected",
			Help:      "Sum of fees credited to the fee pool.",
		}, labels).With(labelsAndValues...),
		Height: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "height",
			Help:      "Number of committed transactions.",
		}, labels).With(labelsAndValues...),
		ApplyDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "apply_duration_seconds",
			Help:      "Time spent applying a transaction, including the commit.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0001, 4, 8),
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Txs:           discard.NewCounter(),
		Matches:       discard.NewCounter(),
		SettledVolume: discard.NewCounter(),
		FeesCollected: discard.NewCounter(),
		Height:        discard.NewGauge(),
		ApplyDuration: discard.NewHistogram(),
	}
}

func joinLabels(labels []string, extra ...string) []string {
	out := make([]string, 0, len(labels)+len(extra))
	out = append(out, labels...)
	return append(out, extra...)
}
