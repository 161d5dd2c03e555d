package graph

// Edge is a transition the engine considers when a node returns a zero
// Route.
//
// Edges from the same node are evaluated in the order they were connected
// and the first match wins. An edge with a nil When always matches, so an
// unconditional edge registered first shadows everything after it.
type Edge[S any] struct {
	From string
	To   string
	When Predicate[S]
}

// Predicate decides whether an edge is taken for the merged state.
type Predicate[S any] func(state S) bool

// matches reports whether the edge applies to state.
func (e Edge[S]) matches(state S) bool {
	return e.When == nil || e.When(state)
}
