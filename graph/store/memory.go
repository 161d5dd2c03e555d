package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore keeps everything in process memory. States are copied through
// JSON on the way in and out, so the store behaves like the SQL stores with
// respect to aliasing.
type MemStore[S any] struct {
	mu          sync.RWMutex
	steps       map[string][]memStep
	checkpoints map[string]memCheckpoint
}

type memStep struct {
	step      int
	nodeID    string
	state     []byte
	createdAt time.Time
}

type memCheckpoint struct {
	state []byte
	step  int
}

// NewMemStore returns an empty store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps:       make(map[string][]memStep),
		checkpoints: make(map[string]memCheckpoint),
	}
}

// SaveStep records state as step of runID, replacing an earlier record for
// the same step.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodeID string, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec := memStep{step: step, nodeID: nodeID, state: data, createdAt: time.Now().UTC()}
	steps := m.steps[runID]
	for i := range steps {
		if steps[i].step == step {
			steps[i] = rec
			return nil
		}
	}
	steps = append(steps, rec)
	sort.Slice(steps, func(i, j int) bool { return steps[i].step < steps[j].step })
	m.steps[runID] = steps
	return nil
}

// LoadLatest returns the highest step of runID.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (state S, step int, err error) {
	m.mu.RLock()
	steps := m.steps[runID]
	if len(steps) == 0 {
		m.mu.RUnlock()
		return state, 0, ErrNotFound
	}
	last := steps[len(steps)-1]
	m.mu.RUnlock()

	if err := json.Unmarshal(last.state, &state); err != nil {
		var zero S
		return zero, 0, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, last.step, nil
}

// SaveCheckpoint stores state under cpID, replacing any earlier checkpoint.
func (m *MemStore[S]) SaveCheckpoint(_ context.Context, cpID string, state S, step int) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cpID] = memCheckpoint{state: data, step: step}
	return nil
}

// LoadCheckpoint returns the state stored under cpID.
func (m *MemStore[S]) LoadCheckpoint(_ context.Context, cpID string) (state S, step int, err error) {
	m.mu.RLock()
	cp, ok := m.checkpoints[cpID]
	m.mu.RUnlock()
	if !ok {
		return state, 0, ErrNotFound
	}

	if err := json.Unmarshal(cp.state, &state); err != nil {
		var zero S
		return zero, 0, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, cp.step, nil
}

// ListSteps returns the steps of runID in order.
func (m *MemStore[S]) ListSteps(_ context.Context, runID string) ([]StepRecord[S], error) {
	m.mu.RLock()
	steps := append([]memStep(nil), m.steps[runID]...)
	m.mu.RUnlock()

	if len(steps) == 0 {
		return nil, ErrNotFound
	}

	out := make([]StepRecord[S], 0, len(steps))
	for _, s := range steps {
		var st S
		if err := json.Unmarshal(s.state, &st); err != nil {
			return nil, fmt.Errorf("unmarshal step %d: %w", s.step, err)
		}
		out = append(out, StepRecord[S]{Step: s.step, NodeID: s.nodeID, State: st, CreatedAt: s.createdAt})
	}
	return out, nil
}
