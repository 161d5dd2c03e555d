package emit

// Emitter receives workflow events.
//
// Emit is called synchronously from the engine loop and, for workflow-level
// events, from inside nodes that fan out work. Implementations must be safe
// for concurrent use and must not block for long.
type Emitter interface {
	Emit(event Event)
}

// MultiEmitter forwards every event to each of its emitters in order.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter combines emitters. Nil entries are skipped.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	out := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return &MultiEmitter{emitters: out}
}

// Emit forwards event.
func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}
