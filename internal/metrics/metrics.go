package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Execution orchestrator metrics

	ExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "advisor",
		Name:      "execution_duration_seconds",
		Help:      "Duration of one scraper execution.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"kind", "outcome"})

	ExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "advisor",
		Name:      "executions_total",
		Help:      "Total execution attempts, by kind and outcome.",
	}, []string{"kind", "outcome"})

	SyncFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "advisor",
		Name:      "sync_fallbacks_total",
		Help:      "Executions that fell back to the synchronous path because the deferred backend refused them.",
	})

	DueSchedules = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "advisor",
		Name:      "due_schedules",
		Help:      "Schedules found due in the latest run-due pass.",
	})

	// Deferred backend metrics

	DeferredSubmitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "advisor",
		Name:      "deferred_submits_total",
		Help:      "Submissions to the deferred backend, by result.",
	}, []string{"result"})

	DeferredTasksInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "advisor",
		Name:      "deferred_tasks_in_flight",
		Help:      "Tasks currently running on the pool backend.",
	})

	// Notification queue metrics

	QueueLeasesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "advisor",
		Name:      "queue_leases_total",
		Help:      "Lease attempts on the notification queue, by result.",
	}, []string{"result"})

	StaleLocksReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "advisor",
		Name:      "queue_stale_locks_reclaimed_total",
		Help:      "Queue locks force-released past the staleness threshold.",
	})

	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "advisor",
		Name:      "deliveries_total",
		Help:      "Per-channel delivery attempts, by channel and outcome.",
	}, []string{"channel", "outcome"})

	NotificationsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "advisor",
		Name:      "notifications_completed_total",
		Help:      "Notifications that reached a terminal decision, by outcome (sent, retry, failed).",
	}, []string{"outcome"})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "advisor",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "advisor",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		ExecutionDuration,
		ExecutionsTotal,
		SyncFallbacksTotal,
		DueSchedules,
		DeferredSubmitsTotal,
		DeferredTasksInFlight,
		QueueLeasesTotal,
		StaleLocksReclaimed,
		DeliveriesTotal,
		NotificationsCompletedTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer exposes /metrics plus the liveness/readiness probes on a side
// port, away from the public API.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(result)
}
