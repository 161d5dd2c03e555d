// Package model defines the provider-neutral chat interface the workflows
// call, plus a mock and a cost-recording decorator. Provider adapters live in
// the openai, anthropic and google subpackages.
package model

import "context"

// ChatModel sends a conversation to an LLM and returns its reply.
//
// Sampling settings (temperature, JSON mode, response schema) are fixed when
// an adapter is constructed, so a workflow that needs two temperatures holds
// two ChatModels.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// ToolSpec describes a function the model may call. Schema is a JSON Schema
// object.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	Name  string
	Input map[string]interface{}
}

// Usage counts the tokens of one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Blob is binary output such as a generated image.
type Blob struct {
	MIMEType string
	Data     []byte
}

// ChatOut is a model reply.
type ChatOut struct {
	Text         string
	ToolCalls    []ToolCall
	Blobs        []Blob
	Usage        Usage
	FinishReason string
}

// Named is implemented by adapters that know their model name. CostRecorder
// uses it to price calls.
type Named interface {
	ModelName() string
}

// Config is the construction-time configuration shared by the adapters.
type Config struct {
	// Model is the provider's model name.
	Model string

	APIKey string

	// BaseURL overrides the provider endpoint. The openai adapter uses it to
	// talk to OpenAI-compatible services such as Groq.
	BaseURL string

	// Temperature is left to the provider default when nil.
	Temperature *float64

	// MaxTokens caps the reply. Zero uses the adapter default.
	MaxTokens int

	// JSONMode asks for a JSON object reply.
	JSONMode bool

	// Schema, when set, asks for a reply matching this JSON Schema (see
	// GenerateSchema). SchemaName names it for providers that need one.
	Schema     any
	SchemaName string

	// MaxRetries is the SDK's own retry count for transport errors.
	MaxRetries int
}

// Temp returns a pointer to t, for Config.Temperature.
func Temp(t float64) *float64 {
	return &t
}
