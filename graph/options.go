// Package graph runs workflows described as a graph of named nodes over a
// typed state.
//
// A workflow is built once:
//
//	eng := graph.New(reduce, store.NewMemStore[State](), emit.NewNullEmitter(),
//	    graph.WithMaxSteps(50))
//	_ = eng.Add("search", searchNode)
//	_ = eng.Add("report", reportNode)
//	_ = eng.StartAt("search")
//	_ = eng.Connect("search", "report", nil)
//
// and run any number of times with different run IDs. Steps execute one at a
// time; every step is persisted before routing so a run can be resumed.
package graph

import "time"

// Option configures an Engine.
type Option func(*engineConfig) error

type engineConfig struct {
	maxSteps           int
	defaultNodeTimeout time.Duration
	metrics            *PrometheusMetrics
	costTracker        *CostTracker
	workflow           string
}

// WithMaxSteps caps the number of steps a single Run may execute.
//
// Workflows with retry loops (retry_initial_search, the comment page loop)
// rely on it as a backstop when a loop condition is wrong. Zero disables the
// cap. Exceeding it fails the run with MAX_STEPS_EXCEEDED.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return &EngineError{Message: "max steps must not be negative", Code: CodeInvalidPolicy}
		}
		cfg.maxSteps = n
		return nil
	}
}

// WithDefaultNodeTimeout bounds each node attempt that has no NodePolicy
// timeout of its own.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return &EngineError{Message: "default node timeout must not be negative", Code: CodeInvalidPolicy}
		}
		cfg.defaultNodeTimeout = d
		return nil
	}
}

// WithMetrics records step latency, retries, run outcomes and inflight nodes.
//
//	reg := prometheus.NewRegistry()
//	eng := graph.New(reduce, st, em, graph.WithMetrics(graph.NewPrometheusMetrics(reg)))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = metrics
		return nil
	}
}

// WithCostTracker attaches a tracker that model adapters wrapped by
// model.CostRecorder report into. The engine tags each call with the node
// that made it.
func WithCostTracker(tracker *CostTracker) Option {
	return func(cfg *engineConfig) error {
		cfg.costTracker = tracker
		return nil
	}
}

// WithWorkflowName labels run outcome metrics. Defaults to "workflow".
func WithWorkflowName(name string) Option {
	return func(cfg *engineConfig) error {
		cfg.workflow = name
		return nil
	}
}
