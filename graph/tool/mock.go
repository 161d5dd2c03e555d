package tool

import (
	"context"
	"sync"
)

// MockTool returns canned outputs. Responses are served in order and the
// last one repeats; Err, when set, is returned instead.
type MockTool struct {
	ToolName  string
	Responses []map[string]interface{}
	Err       error

	mu        sync.Mutex
	calls     []map[string]interface{}
	callIndex int
}

// Name returns ToolName.
func (m *MockTool) Name() string {
	return m.ToolName
}

// Call records input and returns the next response.
func (m *MockTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, input)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return map[string]interface{}{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Inputs returns the recorded inputs in call order.
func (m *MockTool) Inputs() []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]interface{}(nil), m.calls...)
}

// CallCount returns the number of calls.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls and rewinds Responses.
func (m *MockTool) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callIndex = 0
}
