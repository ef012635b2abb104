// Package anthropic provides a model.ChatModel over Anthropic's
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/stepflow-go/workflow/model"
)

// DefaultMaxTokens bounds the response length when WithMaxTokens is not
// used. The Messages API requires an explicit limit.
const DefaultMaxTokens = 4096

// ChatModel implements model.ChatModel using the official
// anthropic-sdk-go client. Safe for concurrent use.
//
// Anthropic takes the system prompt as a separate request parameter;
// system messages in the conversation are extracted and concatenated
// into it.
//
// Example:
//
//	m, err := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "claude-3-5-sonnet-20241022")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := m.Chat(ctx, messages, nil)
type ChatModel struct {
	client    anthropic.Client
	modelName string
	maxTokens int64
}

// NewChatModel creates an Anthropic-backed ChatModel. The API key and
// model name must be non-empty; configuration is validated here rather
// than on first call.
func NewChatModel(apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: API key cannot be empty")
	}
	if modelName == "" {
		return nil, errors.New("anthropic: model name cannot be empty")
	}

	return &ChatModel{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
		maxTokens: DefaultMaxTokens,
	}, nil
}

// WithMaxTokens overrides the response token limit sent with each
// request. n must be positive.
func (m *ChatModel) WithMaxTokens(n int64) *ChatModel {
	if n > 0 {
		m.maxTokens = n
	}
	return m
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: m.maxTokens,
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic: %w", err)
	}

	out := model.ChatOut{
		Usage: model.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			text := block.AsText()
			if out.Text != "" && text.Text != "" {
				out.Text += "\n"
			}
			out.Text += text.Text
		case "tool_use":
			use := block.AsToolUse()
			var input map[string]any
			if len(use.Input) > 0 {
				if err := json.Unmarshal(use.Input, &input); err != nil {
					return model.ChatOut{}, fmt.Errorf("anthropic: malformed tool input for %s: %w", use.Name, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				Name:  use.Name,
				Input: input,
			})
		}
	}
	return out, nil
}

// splitSystem separates system messages (joined into one prompt) from
// the conversation turns.
func splitSystem(messages []model.Message) (string, []anthropic.MessageParam) {
	var system string
	var turns []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case model.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return system, turns
}

func convertTools(tools []model.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, spec := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if spec.Schema != nil {
			if props, ok := spec.Schema["properties"]; ok {
				schema.Properties = props
			}
			schema.Required = requiredFields(spec.Schema["required"])
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, spec.Name)
	}
	return out
}

// requiredFields coerces a JSON Schema "required" entry, which arrives
// as []string when built in Go and []any after a JSON round trip.
func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
