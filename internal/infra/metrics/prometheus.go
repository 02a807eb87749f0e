// Package metrics exports engine operation metrics to Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lotledger/internal/core"
)

var (
	_ core.MetricsRecorder    = (*PrometheusRecorder)(nil)
	_ core.ContentionRecorder = (*PrometheusRecorder)(nil)
)

// Namespace prefixes every exported metric.
const Namespace = "lotledger"

// PrometheusRecorder counts and times engine operations.
type PrometheusRecorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	contention *prometheus.CounterVec
}

// NewPrometheusRecorder registers the engine collectors with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Engine operations by outcome.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency including lock waits.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		contention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lock_contention_total",
			Help:      "Operations rejected because a lot lock was not acquired in time.",
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.duration, r.contention} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe records the outcome and latency of one operation.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveContention counts one lock timeout.
func (r *PrometheusRecorder) ObserveContention(_ context.Context, operation string) {
	r.contention.WithLabelValues(operation).Inc()
}
