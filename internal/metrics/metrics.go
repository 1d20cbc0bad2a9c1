package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects invocation metrics
type Recorder struct {
	registry        *prometheus.Registry
	invocations     *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	cleanupFailures prometheus.Counter
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "image_pipeline_invocations_total",
			Help: "Invocations by outcome and the stage they ended in.",
		}, []string{"outcome", "stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "image_pipeline_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"stage"}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "image_pipeline_cleanup_failures_total",
			Help: "Workspaces that could not be removed.",
		}),
	}
	r.registry.MustRegister(r.invocations, r.stageDuration, r.cleanupFailures)
	return r
}

// ObserveStage records how long a stage took
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Invocation records a finished invocation
func (r *Recorder) Invocation(outcome, stage string) {
	if r == nil {
		return
	}
	r.invocations.WithLabelValues(outcome, stage).Inc()
}

// CleanupFailed records a workspace that could not be removed
func (r *Recorder) CleanupFailed() {
	if r == nil {
		return
	}
	r.cleanupFailures.Inc()
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder's metrics
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
