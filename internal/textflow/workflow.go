// Package textflow generates an Instagram caption in the persona's voice and
// checks it before publication.
package textflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/needze/agentflow/graph"
	"github.com/needze/agentflow/graph/emit"
	"github.com/needze/agentflow/graph/model"
	"github.com/needze/agentflow/graph/store"
	"github.com/needze/agentflow/internal/persona"
)

// WorkflowName labels the workflow's metrics and stored runs.
const WorkflowName = "text"

// Node IDs.
const (
	NodePersonaExtraction = "persona_extraction"
	NodeTextGeneration    = "text_generation"
	NodeContentCheck      = "text_content_check"
)

// ErrEmptyTopic is returned by Run when the topic is blank.
var ErrEmptyTopic = errors.New("content topic is required")

// Options configures a Workflow. Writer and Checker are required.
type Options struct {
	// Writer extracts the persona details and writes the caption.
	Writer  model.ChatModel
	Checker *Checker

	Store   store.Store[State]
	Emitter emit.Emitter
	Logger  *zap.Logger
	Metrics *graph.PrometheusMetrics
	Costs   *graph.CostTracker

	// NodeTimeout bounds each node attempt. Defaults to 2 minutes.
	NodeTimeout time.Duration

	// Retry is applied to the model-calling nodes. Defaults to three
	// attempts on transient provider errors.
	Retry *graph.RetryPolicy

	NewRunID func() string
}

// Workflow is a compiled text workflow.
type Workflow struct {
	writer   model.ChatModel
	checker  *Checker
	logger   *zap.Logger
	newRunID func() string
	engine   *graph.Engine[State]
}

// New builds the workflow graph.
func New(opts Options) (*Workflow, error) {
	if opts.Writer == nil || opts.Checker == nil {
		return nil, errors.New("textflow: writer and checker are required")
	}
	if opts.Store == nil {
		opts.Store = store.NewMemStore[State]()
	}
	if opts.Emitter == nil {
		opts.Emitter = emit.NewNullEmitter()
	}
	if opts.NodeTimeout == 0 {
		opts.NodeTimeout = 2 * time.Minute
	}
	if opts.Retry == nil {
		opts.Retry = &graph.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Retryable:   model.IsTransient,
		}
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Workflow{
		writer:   opts.Writer,
		checker:  opts.Checker,
		logger:   logger,
		newRunID: opts.NewRunID,
	}

	engineOpts := []graph.Option{
		graph.WithMaxSteps(10),
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

	policy := graph.NodePolicy{RetryPolicy: opts.Retry}
	if err := eng.AddWithPolicy(NodePersonaExtraction, graph.NodeFunc[State](w.extractPersona), policy); err != nil {
		return nil, err
	}
	if err := eng.AddWithPolicy(NodeTextGeneration, graph.NodeFunc[State](w.generateText), policy); err != nil {
		return nil, err
	}
	if err := eng.Add(NodeContentCheck, graph.NodeFunc[State](w.checkContent)); err != nil {
		return nil, err
	}
	if err := eng.StartAt(NodePersonaExtraction); err != nil {
		return nil, err
	}
	if err := eng.Connect(NodePersonaExtraction, NodeTextGeneration, nil); err != nil {
		return nil, err
	}
	if err := eng.Connect(NodeTextGeneration, NodeContentCheck, nil); err != nil {
		return nil, err
	}

	w.engine = eng
	return w, nil
}

// Run generates and checks a caption about topic. contentType is a free-form
// hint such as "일상" or "공연 홍보".
func (w *Workflow) Run(ctx context.Context, topic, contentType string) (State, error) {
	if strings.TrimSpace(topic) == "" {
		return State{}, ErrEmptyTopic
	}
	runID := w.newRunID()
	initial := State{RunID: runID, ContentTopic: topic, ContentType: contentType}

	w.logger.Info("text run started", zap.String("run_id", runID), zap.String("topic", topic))
	final, err := w.engine.Run(ctx, runID, initial)
	if err != nil {
		w.logger.Error("text run failed", zap.String("run_id", runID), zap.Error(err))
		return initial, fmt.Errorf("text workflow: %w", err)
	}
	w.logger.Info("text run finished",
		zap.String("run_id", runID),
		zap.Bool("success", final.CheckResult != nil && final.CheckResult.Success))
	return final, nil
}

func (w *Workflow) extractPersona(ctx context.Context, s State) graph.NodeResult[State] {
	prompt := fmt.Sprintf(`인스타그램 게시물 주제: %s
게시물 유형: %s

아래 페르소나에서 이 게시물을 쓰는 데 필요한 성격과 말투를 한국어로 정리하세요.

%s`, s.ContentTopic, s.ContentType, persona.Profile)
	out, err := w.writer.Chat(ctx, []model.Message{model.User(prompt)}, nil)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("persona extraction: %w", err)}
	}
	return graph.NodeResult[State]{Delta: State{PersonaExtracted: strings.TrimSpace(out.Text)}}
}

func (w *Workflow) generateText(ctx context.Context, s State) graph.NodeResult[State] {
	prompt := fmt.Sprintf(`당신은 다음 페르소나의 인스타그램 인플루언서입니다.
%s

주제 "%s"에 대한 인스타그램 게시글을 1~3문장으로 쓰세요. 해시태그는 넣지 마세요.`, s.PersonaExtracted, s.ContentTopic)
	out, err := w.writer.Chat(ctx, []model.Message{model.User(prompt)}, nil)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("text generation: %w", err)}
	}
	return graph.NodeResult[State]{Delta: State{InstagramText: strings.TrimSpace(out.Text)}}
}

func (w *Workflow) checkContent(ctx context.Context, s State) graph.NodeResult[State] {
	res, err := w.checker.Check(ctx, s.InstagramText)
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}
	return graph.NodeResult[State]{Delta: State{CheckResult: res}, Route: graph.Stop()}
}
