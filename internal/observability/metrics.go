// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Catalog metrics
	MetadataMisses   prometheus.Counter
	BalanceRefreshes prometheus.Counter

	// Quote metrics
	QuotesTotal *prometheus.CounterVec

	// Payment metrics
	PaymentsTotal        *prometheus.CounterVec
	PaymentDuration      prometheus.Histogram
	ConfirmationDuration prometheus.Histogram
	ActiveAttempts       prometheus.Gauge

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_checkout"
	}

	return &Metrics{
		// Catalog metrics
		MetadataMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "metadata_misses_total",
			Help:      "Total number of metadata lookups degraded to placeholders",
		}),
		BalanceRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "balance_refreshes_total",
			Help:      "Total number of wallet balance listings served",
		}),

		// Quote metrics
		QuotesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "requests_total",
			Help:      "Total number of quote requests by swap mode and outcome",
		}, []string{"mode", "outcome"}),

		// Payment metrics
		PaymentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "attempts_total",
			Help:      "Total number of payment attempts by terminal outcome",
		}, []string{"outcome"}),
		PaymentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "duration_seconds",
			Help:      "End-to-end payment attempt duration in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),
		ConfirmationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "confirmation_seconds",
			Help:      "Time from submission to confirmation in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),
		ActiveAttempts: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "active_attempts",
			Help:      "Number of payment attempts currently in flight (0 or 1 per orchestrator)",
		}),

		// RPC metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordMetadataMiss increments the metadata miss counter.
func RecordMetadataMiss() {
	DefaultMetrics.MetadataMisses.Inc()
}

// RecordBalanceRefresh increments the balance refresh counter.
func RecordBalanceRefresh() {
	DefaultMetrics.BalanceRefreshes.Inc()
}

// RecordQuote records a quote request outcome.
func RecordQuote(mode, outcome string) {
	DefaultMetrics.QuotesTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordPayment records a terminal payment outcome with its duration.
func RecordPayment(outcome string, durationSeconds float64) {
	DefaultMetrics.PaymentsTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.PaymentDuration.Observe(durationSeconds)
}

// RecordConfirmation records submission-to-confirmation latency.
func RecordConfirmation(seconds float64) {
	DefaultMetrics.ConfirmationDuration.Observe(seconds)
}

// SetActiveAttempts updates the in-flight attempt gauge.
func SetActiveAttempts(n int) {
	DefaultMetrics.ActiveAttempts.Set(float64(n))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
