package emit

// Event is a point-in-time observation of a workflow run.
//
// The engine emits node_start, node_end, node_retry, routing_decision and
// error for every step, plus checkpoint and resume events. Workflows may emit
// their own events (the management workflow reports its alert level this
// way).
type Event struct {
	// RunID identifies the run that produced the event.
	RunID string

	// Step is the 1-based step number, or 0 for run-level events.
	Step int

	// NodeID is the node being executed, or "" for run-level events.
	NodeID string

	// Msg is the event kind.
	Msg string

	// Meta carries event-specific fields such as duration_ms, attempts,
	// next_node and error.
	Meta map[string]interface{}
}

// WithMeta returns a copy of e with key set in its metadata. The receiver's
// map is not modified.
func (e Event) WithMeta(key string, value interface{}) Event {
	meta := make(map[string]interface{}, len(e.Meta)+1)
	for k, v := range e.Meta {
		meta[k] = v
	}
	meta[key] = value
	e.Meta = meta
	return e
}

// WithNodeID returns a copy of e attributed to nodeID.
func (e Event) WithNodeID(nodeID string) Event {
	e.NodeID = nodeID
	return e
}

// Err returns the error text carried in Meta, if any.
func (e Event) Err() (string, bool) {
	s, ok := e.Meta["error"].(string)
	return s, ok
}
