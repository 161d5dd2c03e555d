package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ModelPricing is the price of a model in USD per million tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultModelPricing covers the models the workflows are configured with.
// Unknown models are recorded at zero cost.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o":                            {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                       {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4.1":                           {InputPer1M: 2.00, OutputPer1M: 8.00},
	"gpt-4.1-mini":                      {InputPer1M: 0.40, OutputPer1M: 1.60},
	"claude-3-5-sonnet-latest":          {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-latest":           {InputPer1M: 0.80, OutputPer1M: 4.00},
	"gemini-1.5-flash":                  {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-2.0-flash":                  {InputPer1M: 0.10, OutputPer1M: 0.40},
	"meta-llama/llama-guard-4-12b":      {InputPer1M: 0.20, OutputPer1M: 0.20},
	"llama-3.1-sonar-small-128k-online": {InputPer1M: 0.20, OutputPer1M: 0.20},
}

// LLMCall is one priced model invocation.
type LLMCall struct {
	RunID        string
	NodeID       string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
}

// CostTracker accumulates token usage and cost across runs. It is safe for
// concurrent use; parallel search and the text content check record from
// several goroutines at once.
type CostTracker struct {
	mu       sync.RWMutex
	currency string
	pricing  map[string]ModelPricing
	calls    []LLMCall
	byModel  map[string]float64
	total    float64
	inTok    int64
	outTok   int64
}

// NewCostTracker returns a tracker using the built-in price table.
func NewCostTracker(currency string) *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}
	return &CostTracker{
		currency: currency,
		pricing:  pricing,
		byModel:  make(map[string]float64),
	}
}

// SetPricing overrides the price of model.
func (ct *CostTracker) SetPricing(model string, p ModelPricing) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[model] = p
}

// RecordLLMCall prices and records a call made by nodeID during runID.
func (ct *CostTracker) RecordLLMCall(runID, nodeID, model string, inputTokens, outputTokens int) LLMCall {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	p := ct.pricing[model]
	cost := float64(inputTokens)/1e6*p.InputPer1M + float64(outputTokens)/1e6*p.OutputPer1M

	call := LLMCall{
		RunID:        runID,
		NodeID:       nodeID,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
	}
	ct.calls = append(ct.calls, call)
	ct.byModel[model] += cost
	ct.total += cost
	ct.inTok += int64(inputTokens)
	ct.outTok += int64(outputTokens)
	return call
}

// RecordUsage records a call, taking the run and node IDs from ctx.
func (ct *CostTracker) RecordUsage(ctx context.Context, model string, inputTokens, outputTokens int) LLMCall {
	return ct.RecordLLMCall(RunIDFromContext(ctx), NodeIDFromContext(ctx), model, inputTokens, outputTokens)
}

// TotalCost is the cost of every recorded call.
func (ct *CostTracker) TotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.total
}

// RunCost is the cost of the calls recorded for runID.
func (ct *CostTracker) RunCost(runID string) float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	var sum float64
	for _, c := range ct.calls {
		if c.RunID == runID {
			sum += c.CostUSD
		}
	}
	return sum
}

// CostByModel returns a copy of the per-model totals.
func (ct *CostTracker) CostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	out := make(map[string]float64, len(ct.byModel))
	for k, v := range ct.byModel {
		out[k] = v
	}
	return out
}

// Calls returns the recorded calls in recording order.
func (ct *CostTracker) Calls() []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	out := make([]LLMCall, len(ct.calls))
	copy(out, ct.calls)
	return out
}

// TokenUsage returns the input and output token totals.
func (ct *CostTracker) TokenUsage() (input, output int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.inTok, ct.outTok
}

func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	models := make([]string, 0, len(ct.byModel))
	for m := range ct.byModel {
		models = append(models, m)
	}
	sort.Strings(models)

	return fmt.Sprintf("CostTracker{calls: %d, total: %.6f %s, input: %d, output: %d, models: %v}",
		len(ct.calls), ct.total, ct.currency, ct.inTok, ct.outTok, models)
}

type ctxKey int

const (
	runIDKey ctxKey = iota
	nodeIDKey
)

// ContextWithRun returns ctx tagged with the run and node being executed.
// The engine calls it before every node attempt.
func ContextWithRun(ctx context.Context, runID, nodeID string) context.Context {
	ctx = context.WithValue(ctx, runIDKey, runID)
	return context.WithValue(ctx, nodeIDKey, nodeID)
}

// RunIDFromContext returns the run ID set by the engine, or "".
func RunIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// NodeIDFromContext returns the executing node ID set by the engine, or "".
func NodeIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(nodeIDKey).(string)
	return v
}
