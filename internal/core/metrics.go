package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRecorder receives the outcome of every manager operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	Retry(ctx context.Context, operation string)
	Saved(ctx context.Context, added, modified, deleted int)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetrics) Retry(context.Context, string)                        {}
func (noopMetrics) Saved(context.Context, int, int, int)                 {}

// PrometheusMetrics exports operation latency, retries and saved entity counts.
type PrometheusMetrics struct {
	duration *prometheus.HistogramVec
	retries  *prometheus.CounterVec
	saved    *prometheus.CounterVec
}

// NewPrometheusMetrics registers the collectors with reg; a nil reg uses the
// default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "countries",
			Name:      "operation_duration_seconds",
			Help:      "Duration of data-access operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "countries",
			Name:      "operation_retries_total",
			Help:      "Retries after transient store failures.",
		}, []string{"operation"}),
		saved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "countries",
			Name:      "saved_entities_total",
			Help:      "Entities written by committed saves.",
		}, []string{"change"}),
	}
}

// Observe records an operation outcome.
func (p *PrometheusMetrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	p.duration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// Retry counts one retry of operation.
func (p *PrometheusMetrics) Retry(_ context.Context, operation string) {
	p.retries.WithLabelValues(operation).Inc()
}

// Saved counts committed changes.
func (p *PrometheusMetrics) Saved(_ context.Context, added, modified, deleted int) {
	p.saved.WithLabelValues("added").Add(float64(added))
	p.saved.WithLabelValues("modified").Add(float64(modified))
	p.saved.WithLabelValues("deleted").Add(float64(deleted))
}
