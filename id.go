package taskq

import (
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nilcoder/taskq/internal/metrics"
)

// MetricsRegisterer is where Open registers the queue's Prometheus
// collectors. Pass prometheus.DefaultRegisterer to expose them on the
// process-wide /metrics endpoint, or a fresh *prometheus.Registry in
// tests. A nil value skips registration.
type MetricsRegisterer = prometheus.Registerer

func registerMetrics(reg MetricsRegisterer) {
	if reg == nil {
		return
	}
	metrics.Register(reg)
}

func newID() string {
	return uuid.NewString()
}
