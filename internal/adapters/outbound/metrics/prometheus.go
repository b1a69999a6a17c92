// Package metrics records governance counters in Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tollgate/tollgate/internal/domain"
)

const namespace = "tollgate"

// Recorder implements domain.Metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	checks        *prometheus.CounterVec
	changes       *prometheus.CounterVec
	evaluations   *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	pipelines     *prometheus.CounterVec
	stageSeconds  *prometheus.HistogramVec
	notifications *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		checks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "detector", Name: "checks_total",
			Help: "Component checks by result",
		}, []string{"result"}),
		changes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "changes_detected_total",
			Help: "Version changes detected by kind",
		}, []string{"kind"}),
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "evaluations_total",
			Help: "Completed evaluations by risk tier and recommendation",
		}, []string{"tier", "recommendation"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "decisions_total",
			Help: "Decision transitions by resulting status",
		}, []string{"status"}),
		pipelines: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pipelines_total",
			Help: "Finished pipeline executions by status",
		}, []string{"status"}),
		stageSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pipeline_stage_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Notification deliveries by sink and result",
		}, []string{"sink", "result"}),
	}
}

func (r *Recorder) ComponentChecked(result string) {
	r.checks.WithLabelValues(result).Inc()
}

func (r *Recorder) ChangeDetected(kind domain.ChangeKind) {
	r.changes.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) EvaluationCompleted(tier domain.RiskTier, rec domain.Recommendation) {
	r.evaluations.WithLabelValues(string(tier), string(rec)).Inc()
}

func (r *Recorder) DecisionTransitioned(status domain.DecisionStatus) {
	r.decisions.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) PipelineFinished(status domain.PipelineStatus) {
	r.pipelines.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) StageObserved(stage string, d time.Duration) {
	r.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) NotificationDelivered(sink string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	r.notifications.WithLabelValues(sink, result).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var _ domain.Metrics = (*Recorder)(nil)
