// Package management runs the influencer issue-monitoring workflow: search
// the web for an influencer, extract keywords, search again per keyword,
// analyse each hit with a language model and build a risk report.
package management

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/needze/agentflow/graph"
	"github.com/needze/agentflow/graph/emit"
	"github.com/needze/agentflow/graph/store"
	"github.com/needze/agentflow/internal/search"
	"github.com/needze/agentflow/internal/textutil"
)

// WorkflowName labels the workflow's metrics and stored runs.
const WorkflowName = "management"

// ErrInvalidQuery is returned by Run for an empty or over-long query.
var ErrInvalidQuery = errors.New("invalid query")

// Options configures a Workflow. Searcher, Keywords and Analyzer are
// required.
type Options struct {
	Searcher search.Searcher
	Keywords *KeywordExtractor
	Analyzer *IssueAnalyzer

	Store   store.Store[State]
	Emitter emit.Emitter
	Logger  *zap.Logger
	Metrics *graph.PrometheusMetrics
	Costs   *graph.CostTracker

	// MaxSteps caps each run. Defaults to 50.
	MaxSteps int

	// NodeTimeout bounds each node attempt. Defaults to 5 minutes.
	NodeTimeout time.Duration

	// ParallelLimit bounds concurrent searches and analyses. Defaults to 4.
	ParallelLimit int

	Now      func() time.Time
	NewRunID func() string
}

// Workflow is a compiled management workflow. It is safe for concurrent
// runs.
type Workflow struct {
	searcher      search.Searcher
	keywords      *KeywordExtractor
	analyzer      *IssueAnalyzer
	store         store.Store[State]
	emitter       emit.Emitter
	logger        *zap.Logger
	parallelLimit int
	now           func() time.Time
	newRunID      func() string
	engine        *graph.Engine[State]
}

// New builds the workflow graph.
func New(opts Options) (*Workflow, error) {
	if opts.Searcher == nil || opts.Keywords == nil || opts.Analyzer == nil {
		return nil, errors.New("management: searcher, keyword extractor and analyzer are required")
	}
	if opts.Store == nil {
		opts.Store = store.NewMemStore[State]()
	}
	if opts.Emitter == nil {
		opts.Emitter = emit.NewNullEmitter()
	}
	if opts.MaxSteps == 0 {
		opts.MaxSteps = 50
	}
	if opts.NodeTimeout == 0 {
		opts.NodeTimeout = 5 * time.Minute
	}
	if opts.ParallelLimit <= 0 {
		opts.ParallelLimit = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}

	w := &Workflow{
		searcher:      opts.Searcher,
		keywords:      opts.Keywords,
		analyzer:      opts.Analyzer,
		store:         opts.Store,
		emitter:       opts.Emitter,
		logger:        orNop(opts.Logger),
		parallelLimit: opts.ParallelLimit,
		now:           opts.Now,
		newRunID:      opts.NewRunID,
	}

	engineOpts := []graph.Option{
		graph.WithMaxSteps(opts.MaxSteps),
		graph.WithDefaultNodeTimeout(opts.NodeTimeout),
		graph.WithWorkflowName(WorkflowName),
	}
	if opts.Metrics != nil {
		engineOpts = append(engineOpts, graph.WithMetrics(opts.Metrics))
	}
	if opts.Costs != nil {
		engineOpts = append(engineOpts, graph.WithCostTracker(opts.Costs))
	}
	eng := graph.New(Reduce, opts.Store, opts.Emitter, engineOpts...)

	nodes := []struct {
		id string
		fn graph.NodeFunc[State]
	}{
		{NodeInitialSearch, w.initialSearch},
		{NodeKeywordExtraction, w.keywordExtraction},
		{NodeDetailedSearch, w.detailedSearch},
		{NodeIssueAnalysis, w.issueAnalysis},
		{NodeRetryInitialSearch, w.retryInitialSearch},
		{NodeRetryKeywordExtraction, w.retryKeywordExtraction},
		{NodeFallbackKeywords, w.fallbackKeywordsNode},
		{NodeUseDefaultKeywords, w.useDefaultKeywords},
		{NodeEscalateIssues, w.escalateIssues},
		{NodeDetailedAnalysis, w.detailedAnalysis},
		{NodeSkipToFinalize, w.skipToFinalize},
		{NodeParallelSearch, w.parallelSearch},
		{NodeFinalize, w.finalize},
	}
	for _, n := range nodes {
		if err := eng.Add(n.id, n.fn); err != nil {
			return nil, err
		}
	}
	if err := eng.StartAt(NodeInitialSearch); err != nil {
		return nil, err
	}

	edges := [][2]string{
		{NodeFallbackKeywords, NodeDetailedSearch},
		{NodeUseDefaultKeywords, NodeDetailedSearch},
		{NodeEscalateIssues, NodeFinalize},
		{NodeDetailedAnalysis, NodeFinalize},
		{NodeSkipToFinalize, NodeFinalize},
		{NodeParallelSearch, NodeIssueAnalysis},
	}
	for _, e := range edges {
		if err := eng.Connect(e[0], e[1], nil); err != nil {
			return nil, err
		}
	}

	w.engine = eng
	return w, nil
}

// Run executes one run for query. An invalid query is rejected before any
// node runs; the returned state then carries a single error message.
//
// When the run fails, the returned state is the last persisted one with the
// failure appended to its error messages.
func (w *Workflow) Run(ctx context.Context, query string) (State, error) {
	if !textutil.ValidateQuery(query) {
		return State{
			Query:         query,
			ErrorMessages: []string{fmt.Sprintf("유효하지 않은 검색 쿼리: '%s'", query)},
		}, ErrInvalidQuery
	}

	runID := w.newRunID()
	initial := State{RunID: runID, Query: query, ErrorMessages: []string{}}

	w.logger.Info("management run started", zap.String("run_id", runID), zap.String("query", query))
	final, err := w.engine.Run(ctx, runID, initial)
	if err != nil {
		partial, _, lerr := w.store.LoadLatest(context.WithoutCancel(ctx), runID)
		if lerr != nil {
			partial = initial
		}
		partial.ErrorMessages = partial.withError("워크플로우 실행 중 예상치 못한 오류: " + err.Error())
		w.logger.Error("management run failed", zap.String("run_id", runID), zap.Error(err))
		return partial, err
	}

	w.emitter.Emit(emit.Event{
		RunID: runID,
		Msg:   "alert_level",
		Meta: map[string]interface{}{
			"alert_level":  string(final.AlertLevel),
			"success_rate": SuccessRate(final),
		},
	})
	w.logger.Info("management run finished",
		zap.String("run_id", runID),
		zap.String("alert_level", string(final.AlertLevel)),
		zap.Float64("success_rate", SuccessRate(final)))
	return final, nil
}

// SafeRun calls Run up to maxRetries+1 times, stopping at the first run
// whose success rate reaches 50%. A negative maxRetries runs once. The last attempt's state is returned
// either way. Run errors are retried too; the final one is returned.
func (w *Workflow) SafeRun(ctx context.Context, query string, maxRetries int) (State, error) {
	var (
		state State
		err   error
	)
	if maxRetries < 0 {
		maxRetries = 0
	}
	for attempt := 0; attempt <= maxRetries; attempt++ {
		state, err = w.Run(ctx, query)
		if errors.Is(err, ErrInvalidQuery) {
			return state, err
		}
		if cerr := ctx.Err(); cerr != nil {
			return state, cerr
		}
		if err != nil {
			w.logger.Warn("management attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", maxRetries+1),
				zap.Error(err))
			continue
		}

		rate := SuccessRate(state)
		if rate >= 50 {
			return state, nil
		}
		w.logger.Warn("management success rate too low",
			zap.Int("attempt", attempt+1),
			zap.Float64("success_rate", rate))
	}
	if err != nil {
		return state, fmt.Errorf("management: %d attempts failed: %w", maxRetries+1, err)
	}
	return state, nil
}

// Engine exposes the underlying graph, mainly for resuming stored runs.
func (w *Workflow) Engine() *graph.Engine[State] { return w.engine }
