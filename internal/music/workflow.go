// Package music writes song lyrics in the persona's style, coloured by the
// current weather in Seoul.
package music

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
const WorkflowName = "music"

// Node IDs.
const (
	NodeWeather         = "weather"
	NodeLyricGeneration = "lyric_generation"
)

// ErrEmptyQuery is returned by Run when the lyric topic is blank.
var ErrEmptyQuery = errors.New("lyric topic is required")

// WeatherSource is what the workflow needs from a forecast provider.
type WeatherSource interface {
	Current(ctx context.Context, nx, ny int) (*Weather, error)
}

// State is the music workflow state.
type State struct {
	RunID       string `json:"run_id,omitempty"`
	Query       string `json:"query"`
	WeatherInfo string `json:"weather_info,omitempty"`
	Lyrics      string `json:"lyrics,omitempty"`
}

// Reduce merges a node's delta into the state.
func Reduce(prev, delta State) State {
	if delta.RunID != "" {
		prev.RunID = delta.RunID
	}
	if delta.Query != "" {
		prev.Query = delta.Query
	}
	if delta.WeatherInfo != "" {
		prev.WeatherInfo = delta.WeatherInfo
	}
	if delta.Lyrics != "" {
		prev.Lyrics = delta.Lyrics
	}
	return prev
}

// Options configures a Workflow. Writer is required; Weather may be nil,
// in which case lyrics are written without weather.
type Options struct {
	Writer  model.ChatModel
	Weather WeatherSource
	NX, NY  int

	Store   store.Store[State]
	Emitter emit.Emitter
	Logger  *zap.Logger
	Metrics *graph.PrometheusMetrics
	Costs   *graph.CostTracker

	NewRunID func() string
}

// Workflow is a compiled music workflow.
type Workflow struct {
	writer   model.ChatModel
	weather  WeatherSource
	nx, ny   int
	logger   *zap.Logger
	newRunID func() string
	engine   *graph.Engine[State]
}

// New builds the workflow graph.
func New(opts Options) (*Workflow, error) {
	if opts.Writer == nil {
		return nil, errors.New("music: writer is required")
	}
	if opts.Store == nil {
		opts.Store = store.NewMemStore[State]()
	}
	if opts.Emitter == nil {
		opts.Emitter = emit.NewNullEmitter()
	}
	if opts.NX == 0 && opts.NY == 0 {
		opts.NX, opts.NY = DefaultNX, DefaultNY
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	w := &Workflow{
		writer:   opts.Writer,
		weather:  opts.Weather,
		nx:       opts.NX,
		ny:       opts.NY,
		logger:   opts.Logger,
		newRunID: opts.NewRunID,
	}

	engineOpts := []graph.Option{
		graph.WithMaxSteps(5),
		graph.WithDefaultNodeTimeout(2 * time.Minute),
		graph.WithWorkflowName(WorkflowName),
	}
	if opts.Metrics != nil {
		engineOpts = append(engineOpts, graph.WithMetrics(opts.Metrics))
	}
	if opts.Costs != nil {
		engineOpts = append(engineOpts, graph.WithCostTracker(opts.Costs))
	}
	eng := graph.New(Reduce, opts.Store, opts.Emitter, engineOpts...)

	if err := eng.Add(NodeWeather, graph.NodeFunc[State](w.fetchWeather)); err != nil {
		return nil, err
	}
	err := eng.AddWithPolicy(NodeLyricGeneration, graph.NodeFunc[State](w.writeLyrics), graph.NodePolicy{
		RetryPolicy: &graph.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Retryable:   model.IsTransient,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := eng.StartAt(NodeWeather); err != nil {
		return nil, err
	}
	if err := eng.Connect(NodeWeather, NodeLyricGeneration, nil); err != nil {
		return nil, err
	}

	w.engine = eng
	return w, nil
}

// Run writes lyrics about query.
func (w *Workflow) Run(ctx context.Context, query string) (State, error) {
	if strings.TrimSpace(query) == "" {
		return State{}, ErrEmptyQuery
	}
	runID := w.newRunID()
	initial := State{RunID: runID, Query: query}

	final, err := w.engine.Run(ctx, runID, initial)
	if err != nil {
		w.logger.Error("music run failed", zap.String("run_id", runID), zap.Error(err))
		return initial, fmt.Errorf("music workflow: %w", err)
	}
	w.logger.Info("music run finished",
		zap.String("run_id", runID),
		zap.Bool("with_weather", final.WeatherInfo != ""))
	return final, nil
}

func (w *Workflow) fetchWeather(ctx context.Context, _ State) graph.NodeResult[State] {
	if w.weather == nil {
		return graph.NodeResult[State]{}
	}
	wx, err := w.weather.Current(ctx, w.nx, w.ny)
	if err != nil {
		if ctx.Err() != nil {
			return graph.NodeResult[State]{Err: ctx.Err()}
		}
		w.logger.Warn("weather unavailable, writing without it", zap.Error(err))
		return graph.NodeResult[State]{}
	}
	return graph.NodeResult[State]{Delta: State{WeatherInfo: wx.FormattedText}}
}

func (w *Workflow) writeLyrics(ctx context.Context, s State) graph.NodeResult[State] {
	out, err := w.writer.Chat(ctx, []model.Message{model.User(LyricPrompt(s.Query, s.WeatherInfo))}, nil)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("lyric generation: %w", err)}
	}
	return graph.NodeResult[State]{Delta: State{Lyrics: strings.TrimSpace(out.Text)}, Route: graph.Stop()}
}

// LyricPrompt builds the lyric request. An empty weather is omitted.
func LyricPrompt(query, weather string) string {
	var b strings.Builder
	b.WriteString("당신은 다음 페르소나의 싱어송라이터입니다.\n")
	b.WriteString(persona.Profile)
	b.WriteString("\n\n음악 스타일:\n")
	b.WriteString(persona.MusicStyle)
	if weather != "" {
		b.WriteString("\n\n지금 날씨: ")
		b.WriteString(weather)
		b.WriteString("\n날씨의 분위기를 가사에 녹여 주세요.")
	}
	b.WriteString("\n\n이제 다음 주제로 가사를 써줘: ")
	b.WriteString(query)
	return b.String()
}
