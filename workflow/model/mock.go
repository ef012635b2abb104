package model

import (
	"context"
	"sync"
)

// MockChatModel is a test implementation of ChatModel.
//
// Use it to drive agent workflows without real API calls. It provides
// scripted responses, call history tracking, error injection, and
// thread-safe operation.
//
// Example:
//
//	mock := &MockChatModel{
//	    Responses: []ChatOut{
//	        {Text: "First response"},
//	        {Text: "Second response"},
//	    },
//	}
//	out, _ := mock.Chat(ctx, messages, nil) // "First response"
//	out, _ = mock.Chat(ctx, messages, nil)  // "Second response"
//
// When the scripted responses run out, the last one repeats.
type MockChatModel struct {
	// Responses is the sequence of responses to return, in order.
	Responses []ChatOut

	// Err, when set, is returned by Chat instead of a response.
	Err error

	// Calls records every Chat invocation, for asserting what the
	// executor sent to the model.
	Calls []MockChatCall

	mu        sync.Mutex
	callIndex int
}

// MockChatCall records one Chat invocation.
type MockChatCall struct {
	Messages []Message
	Tools    []ToolSpec
}

// Chat returns the next scripted response, or Err when configured. The
// call is recorded either way.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockChatCall{
		Messages: append([]Message(nil), messages...),
		Tools:    tools,
	})

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears the call history and restarts the response script.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns how many times Chat has been called.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
