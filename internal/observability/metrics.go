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
	// Engine metrics
	Evaluations      *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	ConfidenceScores prometheus.Histogram

	// Batch metrics
	BatchRunsTotal *prometheus.CounterVec
	BatchDuration  prometheus.Histogram
	ItemFailures   *prometheus.CounterVec

	// Commit metrics
	CommitConflicts prometheus.Counter
	LockWait        prometheus.Histogram

	// Sweeper metrics
	ExpiredTotal  prometheus.Counter
	SweepErrors   prometheus.Counter
	LastSweepTime prometheus.Gauge

	// Queue metrics
	PendingObservations prometheus.Gauge
	ReviewQueueSize     prometheus.Gauge

	// Notifier metrics
	EventsPublished *prometheus.CounterVec
	WSClients       prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_autolink"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Engine metrics
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "evaluations_total",
			Help:      "Total number of engine decisions by outcome",
		}, []string{"outcome"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transitions_total",
			Help:      "Total number of committed status transitions",
		}, []string{"trigger", "from", "to"}),
		ConfidenceScores: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "confidence_score",
			Help:      "Distribution of computed confidence scores",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),

		// Batch metrics
		BatchRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total number of batch runs by selector and status",
		}, []string{"selector", "status"}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Batch run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ItemFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "item_failures_total",
			Help:      "Total number of per-observation failures by reason",
		}, []string{"reason"}),

		// Commit metrics
		CommitConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commit",
			Name:      "conflicts_total",
			Help:      "Total number of conditional saves rejected as stale",
		}),
		LockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "commit",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a per-observation lock",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
		}),

		// Sweeper metrics
		ExpiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "expired_total",
			Help:      "Total number of observations expired to ignored",
		}),
		SweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "errors_total",
			Help:      "Total number of sweeps that finished with errors",
		}),
		LastSweepTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "last_sweep_timestamp",
			Help:      "Unix timestamp of the last completed sweep",
		}),

		// Queue metrics
		PendingObservations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pending",
			Help:      "Number of pending observations at the last stats computation",
		}),
		ReviewQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "manual_review",
			Help:      "Number of observations awaiting manual review at the last stats computation",
		}),

		// Notifier metrics
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_published_total",
			Help:      "Total number of transition events by publisher and status",
		}, []string{"publisher", "status"}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "websocket_clients",
			Help:      "Number of connected websocket clients",
		}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordEvaluation records one engine decision and, when scored, its confidence.
func RecordEvaluation(outcome string, scored bool, score float64) {
	DefaultMetrics.Evaluations.WithLabelValues(outcome).Inc()
	if scored {
		DefaultMetrics.ConfidenceScores.Observe(score)
	}
}

// RecordTransition records a committed status change.
func RecordTransition(trigger, from, to string) {
	DefaultMetrics.Transitions.WithLabelValues(trigger, from, to).Inc()
}

// RecordBatchRun records a batch run.
func RecordBatchRun(selector, status string, durationSeconds float64) {
	DefaultMetrics.BatchRunsTotal.WithLabelValues(selector, status).Inc()
	DefaultMetrics.BatchDuration.Observe(durationSeconds)
}

// RecordItemFailure records a per-observation failure.
func RecordItemFailure(reason string) {
	DefaultMetrics.ItemFailures.WithLabelValues(reason).Inc()
}

// RecordCommitConflict increments the stale save counter.
func RecordCommitConflict() {
	DefaultMetrics.CommitConflicts.Inc()
}

// RecordLockWait records time spent acquiring an observation lock.
func RecordLockWait(seconds float64) {
	DefaultMetrics.LockWait.Observe(seconds)
}

// RecordSweep records a completed sweep.
func RecordSweep(expired int, failed bool, unixSeconds int64) {
	DefaultMetrics.ExpiredTotal.Add(float64(expired))
	if failed {
		DefaultMetrics.SweepErrors.Inc()
	}
	DefaultMetrics.LastSweepTime.Set(float64(unixSeconds))
}

// UpdateQueueSizes updates the queue gauges.
func UpdateQueueSizes(pending, manualReview int) {
	DefaultMetrics.PendingObservations.Set(float64(pending))
	DefaultMetrics.ReviewQueueSize.Set(float64(manualReview))
}

// RecordEventPublished records delivery of a transition event.
func RecordEventPublished(publisher string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.EventsPublished.WithLabelValues(publisher, status).Inc()
}

// SetWSClients updates the websocket client gauge.
func SetWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
