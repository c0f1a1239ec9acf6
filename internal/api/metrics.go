package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the engine and its workload
// harness.
type Metrics struct {
	// Transaction metrics
	txnCommitted *prometheus.CounterVec
	txnAborted   *prometheus.CounterVec
	txnDuration  *prometheus.HistogramVec

	// Engine metrics
	versionTables  prometheus.Gauge
	uploadConflict prometheus.Counter
}

// NewMetrics creates a new metrics instance registered on reg. A nil
// registerer uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		txnCommitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mvcc_txn_committed_total",
				Help: "Total number of committed transactions",
			},
			[]string{"worker"},
		),
		txnAborted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mvcc_txn_aborted_total",
				Help: "Total number of aborted transactions",
			},
			[]string{"worker"},
		),
		txnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mvcc_txn_duration_seconds",
				Help:    "End-to-end duration of transactions in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
			},
			[]string{"status"},
		),
		versionTables: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mvcc_version_tables",
				Help: "Number of registered version tables",
			},
		),
		uploadConflict: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mvcc_upload_conflicts_total",
				Help: "Total number of version uploads lost to a concurrent writer",
			},
		),
	}
}

// ObserveCommit records one committed transaction for a worker.
func (m *Metrics) ObserveCommit(worker string, seconds float64) {
	m.txnCommitted.WithLabelValues(worker).Inc()
	m.txnDuration.WithLabelValues("committed").Observe(seconds)
}

// ObserveAbort records one aborted transaction for a worker.
func (m *Metrics) ObserveAbort(worker string, seconds float64) {
	m.txnAborted.WithLabelValues(worker).Inc()
	m.txnDuration.WithLabelValues("aborted").Observe(seconds)
}

// SetVersionTables records the number of registered tables.
func (m *Metrics) SetVersionTables(n int) {
	m.versionTables.Set(float64(n))
}

// IncUploadConflict records a lost upload race.
func (m *Metrics) IncUploadConflict() {
	m.uploadConflict.Inc()
}
