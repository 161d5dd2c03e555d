package emit

import "sync"

// BufferedEmitter keeps every event in memory, grouped by run ID. Used by
// the "runs show" command and by tests that assert on emitted events.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// HistoryFilter narrows History results. Zero fields match everything.
type HistoryFilter struct {
	NodeID  string
	Msg     string
	MinStep int
	MaxStep int
}

// NewBufferedEmitter returns an empty buffer.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores event.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History returns the events of runID in emission order.
func (b *BufferedEmitter) History(runID string) []Event {
	return b.HistoryWithFilter(runID, HistoryFilter{})
}

// HistoryWithFilter returns the events of runID that match filter.
func (b *BufferedEmitter) HistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := []Event{}
	for _, ev := range b.events[runID] {
		if filter.matches(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Runs lists the run IDs that have events.
func (b *BufferedEmitter) Runs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.events))
	for id := range b.events {
		out = append(out, id)
	}
	return out
}

// Clear drops the events of runID, or of every run when runID is "".
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}

func (f HistoryFilter) matches(ev Event) bool {
	if f.NodeID != "" && ev.NodeID != f.NodeID {
		return false
	}
	if f.Msg != "" && ev.Msg != f.Msg {
		return false
	}
	if f.MinStep > 0 && ev.Step < f.MinStep {
		return false
	}
	if f.MaxStep > 0 && ev.Step > f.MaxStep {
		return false
	}
	return true
}
