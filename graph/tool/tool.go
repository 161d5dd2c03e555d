// Package tool defines the functions agents and the tool server can invoke:
// news search, content verification, policy search, risk analysis and
// weather lookups are all Tools behind one Registry.
package tool

import (
	"context"

	"github.com/needze/agentflow/graph/model"
)

// Tool is a named function over JSON-like maps.
//
// Input and output use the shapes encoding/json produces, so a tool can be
// called from an HTTP handler or from a model's tool call without
// conversion. Implementations check ctx before doing network work.
type Tool interface {
	// Name is the identifier used by the registry and by models. Lowercase
	// with underscores, e.g. "search_news".
	Name() string

	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Described is implemented by tools that can advertise themselves to a
// model.
type Described interface {
	Spec() model.ToolSpec
}

// Func adapts a function to Tool.
type Func struct {
	ToolName    string
	Description string
	Schema      map[string]interface{}
	Fn          func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Name returns ToolName.
func (f *Func) Name() string { return f.ToolName }

// Call runs Fn.
func (f *Func) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.Fn(ctx, input)
}

// Spec describes the function for a model.
func (f *Func) Spec() model.ToolSpec {
	return model.ToolSpec{Name: f.ToolName, Description: f.Description, Schema: f.Schema}
}

// StringArg returns input[key] when it is a non-empty string.
func StringArg(input map[string]interface{}, key string) (string, bool) {
	s, ok := input[key].(string)
	return s, ok && s != ""
}

// IntArg returns input[key] as an int. JSON numbers arrive as float64.
func IntArg(input map[string]interface{}, key string, def int) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}
