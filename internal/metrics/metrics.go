package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_efficiency",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chain_efficiency",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chain_efficiency",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})

	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chain_efficiency",
		Subsystem: "http",
		Name:      "stream_clients",
		Help:      "Number of connected websocket stream clients.",
	})
)

// ── Upstream fetch metrics ─────────────────────────────────────────────

var (
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_efficiency",
		Subsystem: "fetch",
		Name:      "total",
		Help:      "Upstream fetches by endpoint and final outcome.",
	}, []string{"endpoint", "status"})

	FetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_efficiency",
		Subsystem: "fetch",
		Name:      "retries_total",
		Help:      "Failed attempts that were retried, per endpoint.",
	}, []string{"endpoint"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chain_efficiency",
		Subsystem: "fetch",
		Name:      "duration_seconds",
		Help:      "Duration of a fetch including retries, per endpoint.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})
)

// ── Refresh pipeline metrics ───────────────────────────────────────────

var (
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_efficiency",
		Subsystem: "refresh",
		Name:      "total",
		Help:      "Refresh runs by outcome (success, failed, skipped).",
	}, []string{"status"})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chain_efficiency",
		Subsystem: "refresh",
		Name:      "duration_seconds",
		Help:      "Wall time of a full refresh.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	RefreshLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chain_efficiency",
		Subsystem: "refresh",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful refresh.",
	})

	RefreshLockErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_efficiency",
		Subsystem: "refresh",
		Name:      "lock_errors_total",
		Help:      "Refresh lock failures by operation (acquire, lost, release).",
	}, []string{"op"})

	RefreshWarnings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chain_efficiency",
		Subsystem: "refresh",
		Name:      "warnings",
		Help:      "Optional-source warnings recorded by the last refresh.",
	})

	ChainsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chain_efficiency",
		Subsystem: "refresh",
		Name:      "chains_rejected_total",
		Help:      "Chains dropped by the validator, per stage and reason.",
	}, []string{"stage", "reason"})

	ChainsReported = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chain_efficiency",
		Subsystem: "refresh",
		Name:      "chains_reported",
		Help:      "Chains present in the latest metrics list.",
	})
)

// ── Business metrics ───────────────────────────────────────────────────

var ChainMetricValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "chain_efficiency",
	Subsystem: "business",
	Name:      "chain_metric_value",
	Help:      "Latest value of a derived metric per chain.",
}, []string{"chain", "metric_name"})
