package llm

import (
	"context"
	"testing"

	"github.com/needze/agentflow/graph"
	"github.com/needze/agentflow/graph/model"
	"github.com/needze/agentflow/internal/config"
)

func TestFactory_New(t *testing.T) {
	providers := config.Default().Providers
	providers.OpenAI.APIKey = "k"
	providers.Groq.APIKey = "k"
	providers.Anthropic.APIKey = "k"
	providers.Perplexity.APIKey = "k"

	f := &Factory{Providers: providers, Costs: graph.NewCostTracker("USD")}

	tests := []struct {
		provider  string
		opts      Options
		wantModel string
		wantErr   bool
	}{
		{provider: "openai", wantModel: "gpt-4o-mini"},
		{provider: "groq", opts: Options{Model: "meta-llama/llama-guard-4-12b"}, wantModel: "meta-llama/llama-guard-4-12b"},
		{provider: "anthropic", wantModel: "claude-3-5-sonnet-latest"},
		{provider: "google", wantErr: true},
		{provider: "perplexity", wantModel: "llama-3.1-sonar-small-128k-online"},
		{provider: "mistral", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			m, err := f.New(context.Background(), tt.provider, tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Errorf("New(%s) error = nil, want error", tt.provider)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%s) error = %v, want nil", tt.provider, err)
			}
			named, ok := m.(model.Named)
			if !ok {
				t.Fatalf("New(%s) = %T, want model.Named", tt.provider, m)
			}
			if named.ModelName() != tt.wantModel {
				t.Errorf("ModelName() = %q, want %q", named.ModelName(), tt.wantModel)
			}
			if _, ok := m.(*model.CostRecorder); !ok {
				t.Errorf("New(%s) = %T, want *model.CostRecorder", tt.provider, m)
			}
		})
	}
}

func TestFactory_NewRequiresKey(t *testing.T) {
	f := &Factory{Providers: config.Default().Providers}
	if _, err := f.New(context.Background(), "perplexity", Options{}); err == nil {
		t.Error("New(perplexity) without a key error = nil, want error")
	}
}
