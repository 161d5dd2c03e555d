// Package anthropic adapts the Anthropic Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/needze/agentflow/graph/model"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "claude-3-5-sonnet-latest"

const defaultMaxTokens = 2048

// ChatModel implements model.ChatModel with anthropic-sdk-go.
type ChatModel struct {
	client anthropic.Client
	cfg    model.Config
}

// New builds an adapter. The API key is required.
func New(cfg model.Config) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &ChatModel{client: anthropic.NewClient(opts...), cfg: cfg}, nil
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string {
	return m.cfg.Model
}

// Chat sends messages through the Messages API. System messages are joined
// into the system prompt. JSON mode is requested through the prompt, since
// the API has no response format switch.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	var system []string
	turns := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, msg.Content)
		case model.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if m.cfg.JSONMode || m.cfg.Schema != nil {
		system = append(system, jsonInstruction(m.cfg.Schema))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.cfg.Model),
		MaxTokens: int64(m.cfg.MaxTokens),
		Messages:  turns,
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	if m.cfg.Temperature != nil {
		params.Temperature = anthropic.Float(*m.cfg.Temperature)
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, mapError(err)
	}

	out := model.ChatOut{
		FinishReason: string(msg.StopReason),
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			var input map[string]interface{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &input); err != nil {
					return out, fmt.Errorf("anthropic: tool %s input: %w", block.Name, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: block.Name, Input: input})
		}
	}
	return out, nil
}

func jsonInstruction(schema any) string {
	if schema == nil {
		return "Respond with a single JSON object and nothing else."
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return "Respond with a single JSON object and nothing else."
	}
	return "Respond with a single JSON object matching this JSON Schema and nothing else:\n" + string(data)
}

func convertTools(tools []model.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: t.Schema["properties"]},
			},
		}
	}
	return out
}

func mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &model.ProviderError{
			Provider:   "anthropic",
			StatusCode: apiErr.StatusCode,
			Message:    statusText(apiErr.StatusCode),
			Err:        err,
		}
	}
	return fmt.Errorf("anthropic: %w", err)
}

func statusText(status int) string {
	switch {
	case status == 429:
		return "rate limited"
	case status == 529:
		return "overloaded"
	case status >= 500:
		return "server error"
	default:
		return "request failed"
	}
}
