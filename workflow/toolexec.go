package workflow

import (
	"context"
	"fmt"
	"reflect"

	"github.com/dshills/stepflow-go/workflow/tool"
)

// ToolRequest asks a ToolExecutor to invoke a named tool.
type ToolRequest struct {
	// Tool names the tool to invoke; it must be registered on the
	// receiving executor.
	Tool string `json:"tool"`

	// Input holds the invocation parameters. May be nil.
	Input map[string]any `json:"input,omitempty"`
}

// ToolResponse carries a tool invocation's result onward through the
// graph.
type ToolResponse struct {
	// Tool names the tool that produced the output.
	Tool string `json:"tool"`

	// Output is the tool's result.
	Output any `json:"output,omitempty"`
}

// ToolExecutor is an executor that handles ToolRequest messages: it
// invokes the named tool from its registry and sends the ToolResponse
// through its edges.
//
// An unknown tool name fails the superstep; tool registration is
// fixed at construction.
type ToolExecutor struct {
	id    string
	tools map[string]tool.Tool
}

// NewToolExecutor creates an executor exposing the given tools. The ID
// must be non-empty, at least one tool is required, and tool names must
// be unique.
func NewToolExecutor(id string, tools ...tool.Tool) (*ToolExecutor, error) {
	if id == "" {
		return nil, &WorkflowError{
			Message: "executor ID cannot be empty",
			Code:    CodeEmptyExecutorID,
		}
	}
	if len(tools) == 0 {
		return nil, &WorkflowError{
			Message: "tool executor requires at least one tool",
			Code:    CodeEmptyParticipants,
		}
	}

	registry := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		if t == nil {
			return nil, &WorkflowError{Message: "tool cannot be nil"}
		}
		name := t.Name()
		if name == "" {
			return nil, &WorkflowError{Message: "tool name cannot be empty"}
		}
		if _, exists := registry[name]; exists {
			return nil, &WorkflowError{Message: "duplicate tool name: " + name}
		}
		registry[name] = t
	}
	return &ToolExecutor{id: id, tools: registry}, nil
}

// ID returns the executor's identifier.
func (te *ToolExecutor) ID() string {
	return te.id
}

// Tools returns the registered tool names.
func (te *ToolExecutor) Tools() []string {
	names := make([]string, 0, len(te.tools))
	for name := range te.tools {
		names = append(names, name)
	}
	return names
}

// CanHandle accepts ToolRequest messages.
func (te *ToolExecutor) CanHandle(msg any) bool {
	_, ok := msg.(ToolRequest)
	return ok
}

// Handle invokes the requested tool and sends its response onward.
func (te *ToolExecutor) Handle(ctx context.Context, msg any, hc *HandlerContext) error {
	req, ok := msg.(ToolRequest)
	if !ok {
		return &ExecutorError{
			ExecutorID: te.id,
			Message:    fmt.Sprintf("cannot handle message of type %T", msg),
			Cause:      ErrNoHandler,
		}
	}

	t, ok := te.tools[req.Tool]
	if !ok {
		return &ExecutorError{
			ExecutorID: te.id,
			Message:    "unknown tool: " + req.Tool,
		}
	}

	output, err := t.Invoke(ctx, req.Input)
	if err != nil {
		return &ExecutorError{
			ExecutorID: te.id,
			Message:    "tool " + req.Tool + " failed",
			Cause:      err,
		}
	}

	hc.SendMessage(ToolResponse{Tool: req.Tool, Output: output})
	return nil
}

// contributeTypes registers the request and response types with the
// checkpoint codec.
func (te *ToolExecutor) contributeTypes(c *messageCodec) error {
	if err := c.register(reflect.TypeOf(ToolRequest{})); err != nil {
		return err
	}
	return c.register(reflect.TypeOf(ToolResponse{}))
}
