// Package model provides LLM integration adapters for agent executors.
package model

import "context"

// ChatModel is the interface a chat-based LLM provider implements.
//
// It abstracts over OpenAI, Anthropic, Google, and local models behind
// one call shape. Implementations should handle provider-specific
// authentication, convert between the common Message format and the
// provider wire format, and respect context cancellation.
//
// Example usage:
//
//	m, err := openai.NewChatModel(apiKey, "gpt-4o-mini")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "What is the capital of France?"},
//	}, nil)
type ChatModel interface {
	// Chat sends the conversation to the LLM and returns its response.
	// tools, when non-nil, declares functions the model may call; the
	// response then carries ToolCalls instead of (or alongside) text.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is a single turn in an LLM conversation.
type Message struct {
	// Role identifies the sender. Use the Role* constants.
	Role string

	// Content is the message text. May be empty for turns that only
	// carry tool calls.
	Content string
}

// Standard conversation roles, aligned with the conventions of the
// major providers.
const (
	// RoleSystem sets context or instructions, typically first.
	RoleSystem = "system"

	// RoleUser is input from the human user.
	RoleUser = "user"

	// RoleAssistant is a response generated by the LLM.
	RoleAssistant = "assistant"
)

// ToolSpec describes a tool the LLM may call. Schema follows JSON
// Schema and describes the expected input parameters; it is optional
// for parameterless tools.
type ToolSpec struct {
	// Name uniquely identifies the tool (alphanumeric + underscores).
	Name string

	// Description tells the model what the tool does; it decides from
	// this when to call it.
	Description string

	// Schema is the JSON Schema of the tool's input.
	Schema map[string]any
}

// ToolCall is a request from the LLM to invoke a tool.
type ToolCall struct {
	// Name matches a ToolSpec.Name from the offered tools.
	Name string

	// Input holds the call parameters, shaped per the tool's Schema.
	Input map[string]any
}

// ChatOut is the result of one chat completion. A model may answer
// with text, with tool calls, or with both.
type ChatOut struct {
	// Text is the generated response. Empty when the model only wants
	// to call tools.
	Text string

	// ToolCalls are the tools the model wants invoked.
	ToolCalls []ToolCall

	// Usage reports the token consumption of this completion, when the
	// provider supplies it.
	Usage Usage
}

// Usage is the token consumption of one completion.
type Usage struct {
	// InputTokens is the prompt token count.
	InputTokens int

	// OutputTokens is the completion token count.
	OutputTokens int
}

// Add returns the element-wise sum of two usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}
