// Package google adapts Gemini, through generative-ai-go, to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/needze/agentflow/graph/model"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.0-flash"

// ChatModel implements model.ChatModel on a genai client.
type ChatModel struct {
	client *genai.Client
	cfg    model.Config
}

// New dials the Gemini API. Close releases the client.
func New(ctx context.Context, cfg model.Config) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: new client: %w", err)
	}
	return &ChatModel{client: client, cfg: cfg}, nil
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string {
	return m.cfg.Model
}

// Close closes the underlying client.
func (m *ChatModel) Close() error {
	return m.client.Close()
}

// Chat replays all but the last message as chat history and sends the last
// one. System messages become the system instruction.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	gm := m.client.GenerativeModel(m.cfg.Model)
	if m.cfg.Temperature != nil {
		gm.SetTemperature(float32(*m.cfg.Temperature))
	}
	if m.cfg.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(m.cfg.MaxTokens))
	}
	if m.cfg.JSONMode || m.cfg.Schema != nil {
		gm.ResponseMIMEType = "application/json"
	}
	if m.cfg.Schema != nil {
		raw, err := model.SchemaMap(m.cfg.Schema)
		if err != nil {
			return model.ChatOut{}, fmt.Errorf("google: %w", err)
		}
		gm.ResponseSchema = convertSchema(raw)
	}
	if len(tools) > 0 {
		gm.Tools = convertTools(tools)
	}

	system, history, last := splitMessages(messages)
	if system != "" {
		gm.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	if last == "" {
		return model.ChatOut{}, errors.New("google: no user message")
	}

	cs := gm.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return model.ChatOut{}, mapError(err)
	}
	return convertResponse(resp)
}

func splitMessages(messages []model.Message) (system string, history []*genai.Content, last string) {
	var sys []string
	var turns []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			sys = append(sys, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	if len(turns) == 0 {
		return strings.Join(sys, "\n\n"), nil, ""
	}

	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return strings.Join(sys, "\n\n"), history, turns[len(turns)-1].Content
}

func convertResponse(resp *genai.GenerateContentResponse) (model.ChatOut, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return model.ChatOut{}, model.ErrSafetyBlocked
		}
		return model.ChatOut{}, model.ErrNoChoices
	}

	cand := resp.Candidates[0]
	out := model.ChatOut{FinishReason: cand.FinishReason.String()}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				out.Text += string(p)
			case genai.FunctionCall:
				out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: p.Name, Input: p.Args})
			case genai.Blob:
				out.Blobs = append(out.Blobs, model.Blob{MIMEType: p.MIMEType, Data: p.Data})
			}
		}
	}

	if cand.FinishReason == genai.FinishReasonSafety && out.Text == "" && len(out.Blobs) == 0 {
		return out, model.ErrSafetyBlocked
	}
	return out, nil
}

func convertTools(tools []model.ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertSchema maps the subset of JSON Schema that Gemini understands.
func convertSchema(raw map[string]interface{}) *genai.Schema {
	if raw == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := raw["type"].(string); ok {
		s.Type = schemaType(t)
	}
	if d, ok := raw["description"].(string); ok {
		s.Description = d
	}
	if enum, ok := raw["enum"].([]interface{}); ok {
		for _, v := range enum {
			if str, ok := v.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	if req, ok := raw["required"].([]interface{}); ok {
		for _, v := range req {
			if str, ok := v.(string); ok {
				s.Required = append(s.Required, str)
			}
		}
	}
	if props, ok := raw["properties"].(map[string]interface{}); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]interface{}); ok {
				s.Properties[name] = convertSchema(pm)
			}
		}
	}
	if items, ok := raw["items"].(map[string]interface{}); ok {
		s.Items = convertSchema(items)
	}
	return s
}

func schemaType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}

func mapError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w: %v", model.ErrSafetyBlocked, blocked)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &model.ProviderError{Provider: "google", StatusCode: gerr.Code, Message: gerr.Message, Err: err}
	}
	return fmt.Errorf("google: %w", err)
}
