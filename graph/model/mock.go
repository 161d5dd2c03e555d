package model

import (
	"context"
	"sync"
)

// MockChatModel returns canned replies. Responses are served in order and
// the last one repeats. Err, when set, is returned instead.
type MockChatModel struct {
	Responses []ChatOut
	Err       error
	Name      string

	// Respond, when set, computes the reply from the request and takes
	// precedence over Responses.
	Respond func(messages []Message) (ChatOut, error)

	mu    sync.Mutex
	calls []MockChatCall
	next  int
}

// MockChatCall records one Chat invocation.
type MockChatCall struct {
	Messages []Message
	Tools    []ToolSpec
}

// Chat records the call and returns the next canned reply.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockChatCall{Messages: messages, Tools: tools})

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if m.Respond != nil {
		return m.Respond(messages)
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.next++
	}
	return m.Responses[idx], nil
}

// ModelName returns Name, or "mock".
func (m *MockChatModel) ModelName() string {
	if m.Name == "" {
		return "mock"
	}
	return m.Name
}

// Calls returns a copy of the recorded calls.
func (m *MockChatModel) Calls() []MockChatCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockChatCall(nil), m.calls...)
}

// CallCount returns how many times Chat was called.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls and rewinds Responses.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
}
