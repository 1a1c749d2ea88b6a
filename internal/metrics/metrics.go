package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nilcoder/taskq/internal/health"
)

var (
	// Execution worker metrics

	TaskExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskq",
		Name:      "task_execution_duration_seconds",
		Help:      "Duration of a task handler invocation.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})

	TasksExecutedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskq",
		Name:      "tasks_executed_total",
		Help:      "Total task executions, by outcome.",
	}, []string{"outcome"})

	TasksInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskq",
		Name:      "execution_worker_tasks_in_flight",
		Help:      "Number of tasks currently being executed.",
	})

	// Schedule worker metrics

	ScheduleFiringDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskq",
		Name:      "schedule_firing_duration_seconds",
		Help:      "Duration of one schedule firing.",
		Buckets:   prometheus.DefBuckets,
	})

	SchedulesFiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskq",
		Name:      "schedules_fired_total",
		Help:      "Total schedule firings, by outcome.",
	}, []string{"outcome"})

	// Cleanup worker metrics

	TasksDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taskq",
		Name:      "cleanup_tasks_deleted_total",
		Help:      "Total terminal tasks deleted by the cleanup worker.",
	})

	CleanupCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskq",
		Name:      "cleanup_cycle_duration_seconds",
		Help:      "Time taken for one cleanup sweep.",
		Buckets:   prometheus.DefBuckets,
	})

	// Worker lifecycle

	WorkerStartTime = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taskq",
		Name:      "worker_start_time_seconds",
		Help:      "Unix timestamp when a background worker started.",
	}, []string{"worker"})
)

// Register adds every collector above to reg. Safe to call once per
// process; registering twice against the same registry panics, the same
// as any other prometheus.MustRegister call.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		TaskExecutionDuration,
		TasksExecutedTotal,
		TasksInFlight,
		ScheduleFiringDuration,
		SchedulesFiredTotal,
		TasksDeletedTotal,
		CleanupCycleDuration,
		WorkerStartTime,
	)
}

// NewServer serves /metrics, /livez and /readyz on addr.
func NewServer(addr string, gatherer prometheus.Gatherer, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		writeHealthResult(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		if result.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		writeHealthResult(w, result)
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealthResult(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
