// Package openai adapts the OpenAI chat completions API, and any service
// speaking the same protocol (Groq, Perplexity), to model.ChatModel.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/needze/agentflow/graph/model"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o-mini"

// OpenAI-compatible endpoints of other providers.
const (
	GroqBaseURL       = "https://api.groq.com/openai/v1/"
	PerplexityBaseURL = "https://api.perplexity.ai/"
)

// ChatModel implements model.ChatModel with openai-go.
type ChatModel struct {
	client openai.Client
	cfg    model.Config
	schema map[string]interface{}
}

// New builds an adapter. The API key is required.
func New(cfg model.Config) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	m := &ChatModel{client: openai.NewClient(opts...), cfg: cfg}

	if cfg.Schema != nil {
		schema, err := model.SchemaMap(cfg.Schema)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		m.schema = schema
	}
	return m, nil
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string {
	return m.cfg.Model
}

// Chat sends messages as one chat completion request.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.cfg.Model),
		Messages: convertMessages(messages),
	}
	if m.cfg.Temperature != nil {
		params.Temperature = openai.Float(*m.cfg.Temperature)
	}
	if m.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(m.cfg.MaxTokens))
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	switch {
	case m.schema != nil:
		name := m.cfg.SchemaName
		if name == "" {
			name = "response"
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: m.schema,
					Strict: openai.Bool(true),
				},
			},
		}
	case m.cfg.JSONMode:
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		}
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return model.ChatOut{}, model.ErrNoChoices
	}

	choice := resp.Choices[0]
	out := model.ChatOut{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	if out.FinishReason == "content_filter" && out.Text == "" {
		return out, model.ErrSafetyBlocked
	}

	for _, tc := range choice.Message.ToolCalls {
		var input map[string]interface{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				return out, fmt.Errorf("openai: tool %s arguments: %w", tc.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: tc.Function.Name, Input: input})
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
	for i, t := range tools {
		out[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Schema),
			},
		}
	}
	return out
}

func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &model.ProviderError{
			Provider:   "openai",
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return fmt.Errorf("openai: %w", err)
}
