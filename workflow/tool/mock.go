package tool

import (
	"context"
	"sync"
)

// MockTool is a test implementation of Tool with scripted responses,
// call recording, and error injection. Thread-safe.
//
// Example:
//
//	mock := &MockTool{
//	    ToolName:  "search_web",
//	    Responses: []any{map[string]any{"results": []string{"a", "b"}}},
//	}
//	out, err := mock.Invoke(ctx, map[string]any{"query": "test"})
//
// When the scripted responses run out, the last one repeats.
type MockTool struct {
	// ToolName is the identifier returned by Name.
	ToolName string

	// Desc is the text returned by Description.
	Desc string

	// Responses is the sequence of outputs to return, in order.
	Responses []any

	// Err, when set, is returned by Invoke instead of a response.
	Err error

	// Calls records every Invoke input.
	Calls []map[string]any

	mu        sync.Mutex
	callIndex int
}

// Name implements Tool.
func (m *MockTool) Name() string {
	return m.ToolName
}

// Description implements Tool.
func (m *MockTool) Description() string {
	return m.Desc
}

// Invoke returns the next scripted response, or Err when configured.
// The call is recorded either way.
func (m *MockTool) Invoke(ctx context.Context, input map[string]any) (any, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, input)

	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return nil, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// CallCount returns how many times Invoke has been called.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears the call history and restarts the response script.
func (m *MockTool) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}
