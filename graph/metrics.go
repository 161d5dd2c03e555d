package graph

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects workflow execution metrics. All series live
// under the "agentflow" namespace:
//
//   - inflight_nodes (gauge): nodes currently executing
//   - step_latency_ms (histogram): per attempt, labels node_id and status
//   - retries_total (counter): labels node_id and reason
//   - workflow_runs_total (counter): labels workflow and outcome
//
// Run IDs are deliberately not used as labels; they would make every series
// unbounded.
//
// Serve them with promhttp:
//
//	reg := prometheus.NewRegistry()
//	m := graph.NewPrometheusMetrics(reg)
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	inflight     prometheus.Gauge
	stepLatency  *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	workflowRuns *prometheus.CounterVec

	inflightCount atomic.Int64
	disabled      atomic.Bool
}

// NewPrometheusMetrics registers the metrics with registry, or with the
// default registerer when registry is nil.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentflow",
			Name:      "inflight_nodes",
			Help:      "Number of workflow nodes currently executing",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentflow",
			Name:      "step_latency_ms",
			Help:      "Node attempt duration in milliseconds",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"node_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentflow",
			Name:      "retries_total",
			Help:      "Node retry attempts",
		}, []string{"node_id", "reason"}),
		workflowRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentflow",
			Name:      "workflow_runs_total",
			Help:      "Completed workflow runs by outcome",
		}, []string{"workflow", "outcome"}),
	}
}

// RecordStepLatency observes one node attempt. status is one of success,
// error or timeout.
func (pm *PrometheusMetrics) RecordStepLatency(nodeID string, latency time.Duration, status string) {
	if pm == nil || pm.disabled.Load() {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries counts a retry of nodeID.
func (pm *PrometheusMetrics) IncrementRetries(nodeID, reason string) {
	if pm == nil || pm.disabled.Load() {
		return
	}
	pm.retries.WithLabelValues(nodeID, reason).Inc()
}

// RecordRun counts a finished run. outcome is success or error.
func (pm *PrometheusMetrics) RecordRun(workflow, outcome string) {
	if pm == nil || pm.disabled.Load() {
		return
	}
	pm.workflowRuns.WithLabelValues(workflow, outcome).Inc()
}

func (pm *PrometheusMetrics) nodeStarted() {
	if pm == nil {
		return
	}
	pm.inflight.Set(float64(pm.inflightCount.Add(1)))
}

func (pm *PrometheusMetrics) nodeFinished() {
	if pm == nil {
		return
	}
	pm.inflight.Set(float64(pm.inflightCount.Add(-1)))
}

// Disable stops recording until Enable is called.
func (pm *PrometheusMetrics) Disable() { pm.disabled.Store(true) }

// Enable resumes recording.
func (pm *PrometheusMetrics) Enable() { pm.disabled.Store(false) }
