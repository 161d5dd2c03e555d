// Package llm builds ChatModels from configuration.
package llm

import (
	"context"
	"fmt"

	"github.com/needze/agentflow/graph"
	"github.com/needze/agentflow/graph/model"
	"github.com/needze/agentflow/graph/model/anthropic"
	"github.com/needze/agentflow/graph/model/google"
	"github.com/needze/agentflow/graph/model/openai"
	"github.com/needze/agentflow/internal/config"
)

// Factory creates adapters for the configured providers. Every model it
// returns records usage into Costs when Costs is set.
type Factory struct {
	Providers config.ProvidersConfig
	Costs     *graph.CostTracker
}

// Options are per-chain overrides on top of the provider settings.
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
	JSONMode    bool
	Schema      any
	SchemaName  string
}

// New returns a ChatModel for provider. "groq" and "perplexity" are served
// by the openai adapter through their OpenAI-compatible endpoints.
func (f *Factory) New(ctx context.Context, provider string, opts Options) (model.ChatModel, error) {
	pc, ok := f.Providers.Get(provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	cfg := model.Config{
		Model:       pc.Model,
		APIKey:      pc.APIKey,
		BaseURL:     pc.BaseURL,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		JSONMode:    opts.JSONMode,
		Schema:      opts.Schema,
		SchemaName:  opts.SchemaName,
		MaxRetries:  2,
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}

	var (
		m   model.ChatModel
		err error
	)
	switch provider {
	case "openai":
		m, err = openai.New(cfg)
	case "groq":
		if cfg.BaseURL == "" {
			cfg.BaseURL = openai.GroqBaseURL
		}
		m, err = openai.New(cfg)
	case "perplexity":
		if cfg.BaseURL == "" {
			cfg.BaseURL = openai.PerplexityBaseURL
		}
		m, err = openai.New(cfg)
	case "anthropic":
		m, err = anthropic.New(cfg)
	case "google":
		m, err = google.New(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider %q has no chat adapter", provider)
	}
	if err != nil {
		return nil, err
	}

	if f.Costs != nil {
		return model.NewCostRecorder(m, f.Costs, cfg.Model), nil
	}
	return m, nil
}
