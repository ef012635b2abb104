// Package google provides a model.ChatModel over Google's Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/stepflow-go/workflow/model"
)

// ChatModel implements model.ChatModel using the official
// generative-ai-go SDK.
//
// A fresh genai client is created per call and closed when the call
// returns; the SDK's client is lightweight and this keeps the adapter
// free of connection lifecycle state.
//
// Example:
//
//	m, err := google.NewChatModel(os.Getenv("GOOGLE_API_KEY"), "gemini-1.5-flash")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := m.Chat(ctx, messages, nil)
type ChatModel struct {
	apiKey    string
	modelName string
}

// NewChatModel creates a Gemini-backed ChatModel. The API key and
// model name must be non-empty; configuration is validated here rather
// than on first call.
func NewChatModel(apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("google: API key cannot be empty")
	}
	if modelName == "" {
		return nil, errors.New("google: model name cannot be empty")
	}
	return &ChatModel{apiKey: apiKey, modelName: modelName}, nil
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(m.apiKey))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google: failed to create client: %w", err)
	}
	defer func() { _ = client.Close() }()

	gm := client.GenerativeModel(m.modelName)
	if system := systemPrompt(messages); system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(tools) > 0 {
		gm.Tools = convertTools(tools)
	}

	resp, err := gm.GenerateContent(ctx, convertMessages(messages)...)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google: %w", err)
	}
	return convertResponse(resp), nil
}

// systemPrompt joins the system messages; Gemini takes them as a model
// instruction rather than conversation turns.
func systemPrompt(messages []model.Message) string {
	var system string
	for _, msg := range messages {
		if msg.Role != model.RoleSystem {
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += msg.Content
	}
	return system
}

func convertMessages(messages []model.Message) []genai.Part {
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Role == model.RoleSystem || msg.Content == "" {
			continue
		}
		parts = append(parts, genai.Text(msg.Content))
	}
	return parts
}

func convertTools(tools []model.ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, spec := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  convertSchema(spec.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertSchema maps a JSON Schema object to genai.Schema. One level of
// properties is converted, which covers the flat parameter objects the
// ToolSpec convention uses.
func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	result := &genai.Schema{Type: genai.TypeObject}

	if props, ok := schema["properties"].(map[string]any); ok {
		properties := make(map[string]*genai.Schema, len(props))
		for key, val := range props {
			prop, ok := val.(map[string]any)
			if !ok {
				continue
			}
			ps := &genai.Schema{}
			if typeStr, ok := prop["type"].(string); ok {
				ps.Type = convertType(typeStr)
			}
			if desc, ok := prop["description"].(string); ok {
				ps.Description = desc
			}
			properties[key] = ps
		}
		result.Properties = properties
	}

	switch required := schema["required"].(type) {
	case []string:
		result.Required = required
	case []any:
		for _, r := range required {
			if s, ok := r.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}

	return result
}

func convertType(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	}
	return genai.TypeUnspecified
}

func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	out := model.ChatOut{}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				Name:  p.Name,
				Input: p.Args,
			})
		}
	}
	return out
}
