package model

import (
	"context"

	"github.com/needze/agentflow/graph"
)

// CostRecorder wraps a ChatModel and records the usage of every successful
// call into a graph.CostTracker, attributed to the run and node found in the
// call's context.
type CostRecorder struct {
	inner   ChatModel
	name    string
	tracker *graph.CostTracker
}

// NewCostRecorder wraps inner. The model name used for pricing comes from
// inner's ModelName when it implements Named, otherwise from fallbackName.
func NewCostRecorder(inner ChatModel, tracker *graph.CostTracker, fallbackName string) *CostRecorder {
	name := fallbackName
	if n, ok := inner.(Named); ok {
		name = n.ModelName()
	}
	return &CostRecorder{inner: inner, name: name, tracker: tracker}
}

// Chat forwards to the wrapped model.
func (c *CostRecorder) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	out, err := c.inner.Chat(ctx, messages, tools)
	if err != nil {
		return out, err
	}
	if c.tracker != nil {
		c.tracker.RecordUsage(ctx, c.name, out.Usage.InputTokens, out.Usage.OutputTokens)
	}
	return out, nil
}

// ModelName returns the priced model name.
func (c *CostRecorder) ModelName() string {
	return c.name
}
