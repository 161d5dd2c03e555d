package graph

import (
	"encoding/json"
	"fmt"
)

// Reducer merges the delta produced by a node into the previous state.
//
// Reducers must be deterministic: the engine persists the reducer output
// after every step and a resumed run replays nothing, so the same inputs have
// to give the same state. Workflows decide per field whether a delta replaces,
// appends or is ignored when zero.
type Reducer[S any] func(prev, delta S) S

// cloneState returns an independent copy of state by round-tripping it
// through JSON. Used when checkpoints are forked into new runs so the two runs
// never share slices or maps.
func cloneState[S any](state S) (S, error) {
	var zero S

	data, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("marshal state: %w", err)
	}

	var out S
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("unmarshal state: %w", err)
	}
	return out, nil
}
