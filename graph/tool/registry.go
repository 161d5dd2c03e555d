package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/needze/agentflow/graph/model"
)

// ErrUnknownTool is returned by Registry.Call for unregistered names.
var ErrUnknownTool = errors.New("unknown tool")

// Registry maps tool names to tools. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns a registry holding tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return errors.New("tool must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get returns the tool registered as name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Call invokes the tool registered as name.
func (r *Registry) Call(ctx context.Context, name string, input map[string]interface{}) (map[string]interface{}, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if input == nil {
		input = map[string]interface{}{}
	}
	return t.Call(ctx, input)
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the specs of the tools that implement Described, in name
// order.
func (r *Registry) Specs() []model.ToolSpec {
	var specs []model.ToolSpec
	for _, name := range r.Names() {
		t, _ := r.Get(name)
		if d, ok := t.(Described); ok {
			specs = append(specs, d.Spec())
		}
	}
	return specs
}
