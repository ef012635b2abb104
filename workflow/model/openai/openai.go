// Package openai provides a model.ChatModel over OpenAI's Chat
// Completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/stepflow-go/workflow/model"
)

// ChatModel implements model.ChatModel using the official openai-go
// SDK. Safe for concurrent use; the underlying client handles
// connection pooling.
//
// Example:
//
//	m, err := openai.NewChatModel(os.Getenv("OPENAI_API_KEY"), "gpt-4o-mini")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := m.Chat(ctx, messages, nil)
type ChatModel struct {
	client    openai.Client
	modelName string
}

// NewChatModel creates an OpenAI-backed ChatModel. The API key and
// model name must be non-empty; configuration is validated here rather
// than on first call.
func NewChatModel(apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key cannot be empty")
	}
	if modelName == "" {
		return nil, errors.New("openai: model name cannot be empty")
	}

	return &ChatModel{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
	}, nil
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: convertMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("openai: %w", err)
	}
	if len(completion.Choices) == 0 {
		return model.ChatOut{}, errors.New("openai: no choices returned")
	}

	choice := completion.Choices[0]
	out := model.ChatOut{
		Text: choice.Message.Content,
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		var input map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				return model.ChatOut{}, fmt.Errorf("openai: malformed tool call arguments for %s: %w", tc.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			Name:  tc.Function.Name,
			Input: input,
		})
	}
	return out, nil
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func convertTools(tools []model.ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, spec := range tools {
		out[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  spec.Schema,
			},
		}
	}
	return out
}
