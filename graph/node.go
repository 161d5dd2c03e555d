package graph

import "context"

// Node is one named step of a workflow.
//
// A node reads the current state, does its work (an LLM call, a search, a
// pure transformation) and reports back through a NodeResult:
//   - Delta carries the fields it changed, merged by the engine's reducer
//   - Route names the next step, or stops the run
//   - Err aborts the run once the node's retry policy is exhausted
//
// Nodes that can recover from a failed call should not set Err. They should
// route to a recovery step instead, the way the management workflow routes
// to its retry and fallback nodes.
type Node[S any] interface {
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is what a node hands back to the engine.
type NodeResult[S any] struct {
	// Delta is the partial state produced by the node.
	Delta S

	// Route selects the next node. The zero value defers to the edges
	// registered with Connect.
	Route Next

	// Err stops the run when non-nil.
	Err error
}

// Next is a routing decision.
//
// At most one of To and Terminal is set. When neither is set the engine
// evaluates the outgoing edges of the node.
type Next struct {
	// To is the ID of the next node.
	To string

	// Terminal ends the run after the current step is persisted.
	Terminal bool
}

// Stop ends the run.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto routes to nodeID.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// IsZero reports whether the decision was left to edge evaluation.
func (n Next) IsZero() bool {
	return n.To == "" && !n.Terminal
}

// NodeFunc adapts a plain function to the Node interface.
//
// Example:
//
//	finalize := graph.NodeFunc[State](func(ctx context.Context, s State) graph.NodeResult[State] {
//	    return graph.NodeResult[State]{Delta: State{Done: true}, Route: graph.Stop()}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run calls f.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// NodeError wraps the error a node returned after all attempts failed.
type NodeError struct {
	// NodeID is the node that failed.
	NodeID string

	// Attempts is how many times the node ran before giving up.
	Attempts int

	// Message describes the failure.
	Message string

	// Cause is the error returned by the last attempt.
	Cause error
}

func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

func (e *NodeError) Unwrap() error {
	return e.Cause
}
