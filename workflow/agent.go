package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/dshills/stepflow-go/workflow/model"
)

// Agent is the narrow contract an external agent must expose to
// participate in a workflow graph. Chat agents, LLM wrappers, and
// remote agents all fit behind it.
type Agent interface {
	// ID returns the agent's unique identifier; it doubles as the
	// executor ID when the agent joins a graph.
	ID() string

	// Name returns a human-readable name for events and logs.
	Name() string

	// Run processes one input and returns the agent's reply.
	Run(ctx context.Context, input string) (string, error)
}

// UsageReporter is an optional interface for agents that track LLM
// token consumption. AgentExecutor surfaces the deltas as events.
type UsageReporter interface {
	// TokenUsage returns the cumulative usage so far.
	TokenUsage() model.Usage
}

// AgentExecutor adapts an Agent into the executor graph. It handles
// string messages: each delivery runs the agent and sends the reply
// onward through the executor's edges, or yields it as terminal
// workflow output when configured with WithAgentOutput.
//
// When the agent implements Stateful, checkpointing passes through to
// it, so conversation history survives pause and resume. When it
// implements UsageReporter, each invocation publishes an "agent_usage"
// event carrying the token counts consumed by that call.
type AgentExecutor struct {
	agent Agent

	// yieldOutput makes replies terminal output instead of messages.
	yieldOutput bool
}

// AgentExecutorOption configures an AgentExecutor.
type AgentExecutorOption func(*AgentExecutor)

// WithAgentOutput makes the executor yield the agent's reply as
// terminal workflow output instead of sending it onward.
func WithAgentOutput() AgentExecutorOption {
	return func(ae *AgentExecutor) {
		ae.yieldOutput = true
	}
}

// NewAgentExecutor wraps an agent as an executor. The agent's ID must
// be non-empty.
func NewAgentExecutor(agent Agent, opts ...AgentExecutorOption) (*AgentExecutor, error) {
	if agent == nil {
		return nil, &WorkflowError{Message: "agent cannot be nil"}
	}
	if agent.ID() == "" {
		return nil, &WorkflowError{
			Message: "agent ID cannot be empty",
			Code:    CodeEmptyExecutorID,
		}
	}

	ae := &AgentExecutor{agent: agent}
	for _, opt := range opts {
		opt(ae)
	}
	return ae, nil
}

// ID returns the wrapped agent's ID.
func (ae *AgentExecutor) ID() string {
	return ae.agent.ID()
}

// CanHandle accepts string messages.
func (ae *AgentExecutor) CanHandle(msg any) bool {
	_, ok := msg.(string)
	return ok
}

// Handle runs the agent on the delivered text.
func (ae *AgentExecutor) Handle(ctx context.Context, msg any, hc *HandlerContext) error {
	input, ok := msg.(string)
	if !ok {
		return &ExecutorError{
			ExecutorID: ae.agent.ID(),
			Message:    fmt.Sprintf("cannot handle message of type %T", msg),
			Cause:      ErrNoHandler,
		}
	}

	var before model.Usage
	reporter, reports := ae.agent.(UsageReporter)
	if reports {
		before = reporter.TokenUsage()
	}

	reply, err := ae.agent.Run(ctx, input)
	if err != nil {
		return &ExecutorError{
			ExecutorID: ae.agent.ID(),
			Message:    fmt.Sprintf("agent %s failed", ae.agent.Name()),
			Cause:      err,
		}
	}

	if reports {
		after := reporter.TokenUsage()
		hc.AddEvent("agent_usage", map[string]any{
			"agent":      ae.agent.Name(),
			"tokens_in":  after.InputTokens - before.InputTokens,
			"tokens_out": after.OutputTokens - before.OutputTokens,
		})
	}

	if ae.yieldOutput {
		hc.YieldOutput(reply)
	} else {
		hc.SendMessage(reply)
	}
	return nil
}

// SaveState delegates to the agent when it is Stateful.
func (ae *AgentExecutor) SaveState() (map[string]any, error) {
	if sf, ok := ae.agent.(Stateful); ok {
		return sf.SaveState()
	}
	return nil, nil
}

// LoadState delegates to the agent when it is Stateful.
func (ae *AgentExecutor) LoadState(state map[string]any) error {
	if sf, ok := ae.agent.(Stateful); ok {
		return sf.LoadState(state)
	}
	return nil
}

// ModelAgent is an Agent over a model.ChatModel. It keeps the
// conversation history (system prompt plus alternating user and
// assistant turns) across invocations, and implements Stateful so the
// history survives pause and resume.
type ModelAgent struct {
	id           string
	name         string
	chat         model.ChatModel
	systemPrompt string

	mu      sync.Mutex
	history []model.Message
	usage   model.Usage
}

// NewModelAgent creates an agent with an empty history. id must be
// non-empty; chat must be non-nil. systemPrompt, when non-empty, is
// sent as the leading system message on every call.
func NewModelAgent(id, name string, chat model.ChatModel, systemPrompt string) (*ModelAgent, error) {
	if id == "" {
		return nil, &WorkflowError{
			Message: "agent ID cannot be empty",
			Code:    CodeEmptyExecutorID,
		}
	}
	if chat == nil {
		return nil, &WorkflowError{Message: "chat model cannot be nil"}
	}
	if name == "" {
		name = id
	}
	return &ModelAgent{id: id, name: name, chat: chat, systemPrompt: systemPrompt}, nil
}

// ID returns the agent's identifier.
func (a *ModelAgent) ID() string { return a.id }

// Name returns the agent's display name.
func (a *ModelAgent) Name() string { return a.name }

// Run appends the input as a user turn, calls the model with the full
// conversation, appends the reply as an assistant turn, and returns it.
func (a *ModelAgent) Run(ctx context.Context, input string) (string, error) {
	a.mu.Lock()
	messages := make([]model.Message, 0, len(a.history)+2)
	if a.systemPrompt != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: a.systemPrompt})
	}
	messages = append(messages, a.history...)
	messages = append(messages, model.Message{Role: model.RoleUser, Content: input})
	a.mu.Unlock()

	out, err := a.chat.Chat(ctx, messages, nil)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	a.history = append(a.history,
		model.Message{Role: model.RoleUser, Content: input},
		model.Message{Role: model.RoleAssistant, Content: out.Text},
	)
	a.usage = a.usage.Add(out.Usage)
	a.mu.Unlock()

	return out.Text, nil
}

// TokenUsage implements UsageReporter.
func (a *ModelAgent) TokenUsage() model.Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}

// History returns a copy of the conversation so far, without the
// system prompt.
func (a *ModelAgent) History() []model.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]model.Message, len(a.history))
	copy(out, a.history)
	return out
}

// SaveState implements Stateful by snapshotting the conversation.
func (a *ModelAgent) SaveState() (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	turns := make([]any, len(a.history))
	for i, msg := range a.history {
		turns[i] = map[string]any{"role": msg.Role, "content": msg.Content}
	}
	return map[string]any{
		"history":    turns,
		"tokens_in":  a.usage.InputTokens,
		"tokens_out": a.usage.OutputTokens,
	}, nil
}

// LoadState implements Stateful. Numeric values arrive as float64
// after the JSON round trip and are coerced back.
func (a *ModelAgent) LoadState(state map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = nil
	if turns, ok := state["history"].([]any); ok {
		for i, t := range turns {
			turn, ok := t.(map[string]any)
			if !ok {
				return fmt.Errorf("agent %s: malformed history turn %d", a.id, i)
			}
			role, _ := turn["role"].(string)
			content, _ := turn["content"].(string)
			a.history = append(a.history, model.Message{Role: role, Content: content})
		}
	}
	a.usage = model.Usage{
		InputTokens:  intFromState(state["tokens_in"]),
		OutputTokens: intFromState(state["tokens_out"]),
	}
	return nil
}

func intFromState(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
