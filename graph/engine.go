package graph

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/needze/agentflow/graph/emit"
	"github.com/needze/agentflow/graph/store"
)

// Engine executes a workflow graph over state S.
//
// An Engine is configured once with Add, AddWithPolicy, StartAt and Connect,
// then used for any number of runs. Runs are independent; the engine holds no
// per-run state, so one Engine may serve concurrent runs with different IDs.
type Engine[S any] struct {
	mu        sync.RWMutex
	reducer   Reducer[S]
	nodes     map[string]Node[S]
	policies  map[string]NodePolicy
	edges     []Edge[S]
	startNode string

	store   store.Store[S]
	emitter emit.Emitter
	cfg     engineConfig
	cfgErr  error

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds an engine. Option errors are reported by the first Run.
//
// A nil emitter is replaced with emit.NewNullEmitter.
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, opts ...Option) *Engine[S] {
	cfg := engineConfig{workflow: "workflow"}
	var cfgErr error
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			cfgErr = err
			break
		}
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	return &Engine[S]{
		reducer:  reducer,
		nodes:    make(map[string]Node[S]),
		policies: make(map[string]NodePolicy),
		store:    st,
		emitter:  emitter,
		cfg:      cfg,
		cfgErr:   cfgErr,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter
	}
}

// Add registers node under nodeID.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: CodeDuplicateNode}
	}
	e.nodes[nodeID] = node
	return nil
}

// AddWithPolicy registers node with a timeout and retry policy.
func (e *Engine[S]) AddWithPolicy(nodeID string, node Node[S], policy NodePolicy) error {
	if policy.RetryPolicy != nil {
		if err := policy.RetryPolicy.Validate(); err != nil {
			return &EngineError{Message: "node " + nodeID + ": " + err.Error(), Code: CodeInvalidPolicy, Cause: err}
		}
	}
	if policy.Timeout < 0 {
		return &EngineError{Message: "node " + nodeID + ": negative timeout", Code: CodeInvalidPolicy}
	}
	if err := e.Add(nodeID, node); err != nil {
		return err
	}

	e.mu.Lock()
	e.policies[nodeID] = policy
	e.mu.Unlock()
	return nil
}

// StartAt sets the entry node. It must already be registered.
func (e *Engine[S]) StartAt(nodeID string) error {
	if nodeID == "" {
		return &EngineError{Message: "start node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "start node does not exist: " + nodeID, Code: CodeNodeNotFound}
	}
	e.startNode = nodeID
	return nil
}

// Connect adds an edge from one node to another. A nil predicate makes the
// edge unconditional. Endpoints are checked when the edge is taken, so
// edges may be declared before their nodes.
func (e *Engine[S]) Connect(from, to string, predicate Predicate[S]) error {
	if from == "" {
		return &EngineError{Message: "from node ID cannot be empty"}
	}
	if to == "" {
		return &EngineError{Message: "to node ID cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

// Run executes the workflow from the start node with initial as the state.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	if err := e.validate(); err != nil {
		var zero S
		return zero, err
	}

	e.mu.RLock()
	start := e.startNode
	e.mu.RUnlock()

	final, err := e.loop(ctx, runID, start, initial, 0)
	e.recordOutcome(err)
	return final, err
}

// Resume continues runID from its latest persisted state, executing nodeID
// next. Step numbers carry on from the last persisted step.
func (e *Engine[S]) Resume(ctx context.Context, runID, nodeID string) (S, error) {
	var zero S
	if err := e.validate(); err != nil {
		return zero, err
	}

	state, step, err := e.store.LoadLatest(ctx, runID)
	if err != nil {
		return zero, fmt.Errorf("resume %s: %w", runID, err)
	}

	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "resume"})

	final, err := e.loop(ctx, runID, nodeID, state, step)
	e.recordOutcome(err)
	return final, err
}

// SaveCheckpoint stores the latest state of runID under cpID.
func (e *Engine[S]) SaveCheckpoint(ctx context.Context, runID, cpID string) error {
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: CodeMissingStore}
	}

	state, step, err := e.store.LoadLatest(ctx, runID)
	if err != nil {
		return fmt.Errorf("load latest state of %s: %w", runID, err)
	}
	if err := e.store.SaveCheckpoint(ctx, cpID, state, step); err != nil {
		return &EngineError{Message: "save checkpoint " + cpID + ": " + err.Error(), Code: CodeStoreError, Cause: err}
	}

	e.emitter.Emit(emit.Event{
		RunID: runID,
		Step:  step,
		Msg:   "checkpoint_saved",
		Meta:  map[string]interface{}{"checkpoint_id": cpID},
	})
	return nil
}

// ResumeFromCheckpoint starts a new run, newRunID, from a copy of the state
// stored under cpID, executing startNode first. The new run numbers its
// steps from 1.
func (e *Engine[S]) ResumeFromCheckpoint(ctx context.Context, cpID, newRunID, startNode string) (S, error) {
	var zero S
	if err := e.validate(); err != nil {
		return zero, err
	}

	state, step, err := e.store.LoadCheckpoint(ctx, cpID)
	if err != nil {
		return zero, fmt.Errorf("load checkpoint %s: %w", cpID, err)
	}
	state, err = cloneState(state)
	if err != nil {
		return zero, fmt.Errorf("copy checkpoint %s: %w", cpID, err)
	}

	e.emitter.Emit(emit.Event{
		RunID:  newRunID,
		NodeID: startNode,
		Msg:    "resume_from_checkpoint",
		Meta:   map[string]interface{}{"checkpoint_id": cpID, "checkpoint_step": step},
	})

	final, err := e.loop(ctx, newRunID, startNode, state, 0)
	e.recordOutcome(err)
	return final, err
}

func (e *Engine[S]) validate() error {
	if e.cfgErr != nil {
		return e.cfgErr
	}
	if e.reducer == nil {
		return &EngineError{Message: "reducer is required", Code: CodeMissingReducer}
	}
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: CodeMissingStore}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.startNode == "" {
		return &EngineError{Message: "start node not set (call StartAt before Run)", Code: CodeNoStartNode}
	}
	return nil
}

// loop runs nodes one at a time from nodeID until a node stops the run or an
// error occurs. step is the last step already persisted for runID.
func (e *Engine[S]) loop(ctx context.Context, runID, nodeID string, state S, step int) (S, error) {
	var zero S

	for {
		step++

		if e.cfg.maxSteps > 0 && step > e.cfg.maxSteps {
			err := &EngineError{
				Message: fmt.Sprintf("run %s exceeded %d steps", runID, e.cfg.maxSteps),
				Code:    CodeMaxStepsExceeded,
			}
			e.emitError(runID, step, nodeID, err)
			return zero, err
		}

		if err := ctx.Err(); err != nil {
			e.emitError(runID, step, nodeID, err)
			return zero, err
		}

		e.mu.RLock()
		node, ok := e.nodes[nodeID]
		policy, hasPolicy := e.policies[nodeID]
		e.mu.RUnlock()

		if !ok {
			err := &EngineError{Message: "node does not exist: " + nodeID, Code: CodeNodeNotFound}
			e.emitError(runID, step, nodeID, err)
			return zero, err
		}

		var pp *NodePolicy
		if hasPolicy {
			pp = &policy
		}

		e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "node_start"})

		started := time.Now()
		result, attempts, err := e.execute(ctx, runID, nodeID, node, state, pp)
		if err != nil {
			e.emitError(runID, step, nodeID, err)
			return zero, err
		}

		state = e.reducer(state, result.Delta)

		if err := e.store.SaveStep(ctx, runID, step, nodeID, state); err != nil {
			serr := &EngineError{
				Message: fmt.Sprintf("save step %d of %s: %v", step, runID, err),
				Code:    CodeStoreError,
				Cause:   err,
			}
			e.emitError(runID, step, nodeID, serr)
			return zero, serr
		}

		e.emitter.Emit(emit.Event{
			RunID:  runID,
			Step:   step,
			NodeID: nodeID,
			Msg:    "node_end",
			Meta: map[string]interface{}{
				"duration_ms": time.Since(started).Milliseconds(),
				"attempts":    attempts,
			},
		})

		next, err := e.route(nodeID, result.Route, state)
		if err != nil {
			e.emitError(runID, step, nodeID, err)
			return zero, err
		}

		decision := map[string]interface{}{"terminal": next == ""}
		if next != "" {
			decision["next_node"] = next
		}
		e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "routing_decision", Meta: decision})

		if next == "" {
			return state, nil
		}
		nodeID = next
	}
}

// execute runs node under its policy. It returns the successful result, the
// number of attempts made and, when every attempt failed, a NodeError or the
// timeout EngineError.
func (e *Engine[S]) execute(ctx context.Context, runID, nodeID string, node Node[S], state S, policy *NodePolicy) (NodeResult[S], int, error) {
	timeout := nodeTimeout(policy, e.cfg.defaultNodeTimeout)
	var retry *RetryPolicy
	if policy != nil {
		retry = policy.RetryPolicy
	}

	nodeCtx := ContextWithRun(ctx, runID, nodeID)

	for attempt := 0; ; attempt++ {
		e.cfg.metrics.nodeStarted()
		began := time.Now()
		result, timeoutErr := runWithTimeout(nodeCtx, node, nodeID, state, timeout)
		e.cfg.metrics.nodeFinished()

		failure := timeoutErr
		if failure == nil {
			failure = result.Err
		}

		status := "success"
		switch {
		case timeoutErr != nil:
			status = "timeout"
		case result.Err != nil:
			status = "error"
		}
		e.cfg.metrics.RecordStepLatency(nodeID, time.Since(began), status)

		if failure == nil {
			return result, attempt + 1, nil
		}

		if !retry.shouldRetry(attempt, failure) {
			if timeoutErr != nil {
				return result, attempt + 1, timeoutErr
			}
			return result, attempt + 1, &NodeError{
				NodeID:   nodeID,
				Attempts: attempt + 1,
				Message:  failure.Error(),
				Cause:    failure,
			}
		}

		e.cfg.metrics.IncrementRetries(nodeID, status)
		e.emitter.Emit(emit.Event{
			RunID:  runID,
			NodeID: nodeID,
			Msg:    "node_retry",
			Meta:   map[string]interface{}{"attempt": attempt + 1, "error": failure.Error()},
		})

		delay := e.backoff(attempt, retry)
		select {
		case <-ctx.Done():
			return result, attempt + 1, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (e *Engine[S]) backoff(attempt int, rp *RetryPolicy) time.Duration {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return computeBackoff(attempt, rp.BaseDelay, rp.MaxDelay, e.rng)
}

// route resolves the next node ID. "" means the run is finished.
func (e *Engine[S]) route(from string, decision Next, state S) (string, error) {
	if decision.Terminal {
		return "", nil
	}
	if decision.To != "" {
		return decision.To, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, edge := range e.edges {
		if edge.From == from && edge.matches(state) {
			return edge.To, nil
		}
	}
	return "", &EngineError{Message: "no route from node " + from, Code: CodeNoRoute}
}

func (e *Engine[S]) emitError(runID string, step int, nodeID string, err error) {
	meta := map[string]interface{}{"error": err.Error()}
	var ee *EngineError
	if errors.As(err, &ee) && ee.Code != "" {
		meta["code"] = ee.Code
	}
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: "error", Meta: meta})
}

func (e *Engine[S]) recordOutcome(err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	e.cfg.metrics.RecordRun(e.cfg.workflow, outcome)
}
