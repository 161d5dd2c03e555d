// Package comments collects comments from the latest posts of an Instagram
// profile. Pages are fetched as plain HTML; each post's comments are
// filtered, near-duplicates collapsed and kept in the run state.
package comments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/needze/agentflow/graph"
	"github.com/needze/agentflow/graph/emit"
	"github.com/needze/agentflow/graph/store"
)

// WorkflowName labels the workflow's metrics and stored runs.
const WorkflowName = "comments"

// Node IDs.
const (
	NodeInit              = "init"
	NodeCollectPostLinks  = "collect_post_links"
	NodeSetCurrentPostURL = "set_current_post_url"
	NodeLoadComments      = "load_comments"
	NodeExtractComments   = "extract_comments"
	NodeRecordComments    = "record_comments"
)

// ErrInvalidProfile is returned by Run for a profile URL that is not an
// absolute http(s) URL.
var ErrInvalidProfile = errors.New("invalid profile url")

// State is the comments workflow state.
type State struct {
	RunID          string              `json:"run_id,omitempty"`
	ProfileURL     string              `json:"profile_url"`
	PostLinks      []string            `json:"post_links"`
	CurrentPostURL string              `json:"current_post_url,omitempty"`
	PageSource     string              `json:"page_source,omitempty"`
	Current        []string            `json:"current_comments,omitempty"`
	Comments       map[string][]string `json:"comments"`
	Errors         []string            `json:"errors,omitempty"`
}

// Reduce merges a node's delta into the state. Slices and maps replace
// when non-nil; PageSource and Current replace when non-empty.
func Reduce(prev, delta State) State {
	if delta.RunID != "" {
		prev.RunID = delta.RunID
	}
	if delta.ProfileURL != "" {
		prev.ProfileURL = delta.ProfileURL
	}
	if delta.PostLinks != nil {
		prev.PostLinks = delta.PostLinks
	}
	if delta.CurrentPostURL != "" {
		prev.CurrentPostURL = delta.CurrentPostURL
	}
	if delta.PageSource != "" {
		prev.PageSource = delta.PageSource
	}
	if delta.Current != nil {
		prev.Current = delta.Current
	}
	if delta.Comments != nil {
		prev.Comments = delta.Comments
	}
	if delta.Errors != nil {
		prev.Errors = delta.Errors
	}
	return prev
}

// Total counts the collected comments.
func (s State) Total() int {
	n := 0
	for _, c := range s.Comments {
		n += len(c)
	}
	return n
}

// Options configures a Workflow.
type Options struct {
	// Fetcher defaults to an HTTPFetcher.
	Fetcher PageFetcher

	// MaxPosts defaults to MaxPostLinks.
	MaxPosts int

	Store    store.Store[State]
	Emitter  emit.Emitter
	Logger   *zap.Logger
	Metrics  *graph.PrometheusMetrics
	NewRunID func() string
}

// Workflow is a compiled comments workflow.
type Workflow struct {
	fetcher  PageFetcher
	maxPosts int
	logger   *zap.Logger
	newRunID func() string
	engine   *graph.Engine[State]
}

// New builds the workflow graph.
func New(opts Options) (*Workflow, error) {
	if opts.Fetcher == nil {
		opts.Fetcher = &HTTPFetcher{}
	}
	if opts.MaxPosts <= 0 {
		opts.MaxPosts = MaxPostLinks
	}
	if opts.Store == nil {
		opts.Store = store.NewMemStore[State]()
	}
	if opts.Emitter == nil {
		opts.Emitter = emit.NewNullEmitter()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}

	w := &Workflow{
		fetcher:  opts.Fetcher,
		maxPosts: opts.MaxPosts,
		logger:   opts.Logger,
		newRunID: opts.NewRunID,
	}

	// Four steps per post plus init, collect and the final set_current_post_url.
	engineOpts := []graph.Option{
		graph.WithMaxSteps(5 + 4*opts.MaxPosts),
		graph.WithWorkflowName(WorkflowName),
	}
	if opts.Metrics != nil {
		engineOpts = append(engineOpts, graph.WithMetrics(opts.Metrics))
	}
	eng := graph.New(Reduce, opts.Store, opts.Emitter, engineOpts...)

	nodes := []struct {
		id string
		fn graph.NodeFunc[State]
	}{
		{NodeInit, w.start},
		{NodeCollectPostLinks, w.collectPostLinks},
		{NodeSetCurrentPostURL, w.setCurrentPostURL},
		{NodeLoadComments, w.loadComments},
		{NodeExtractComments, w.extractComments},
		{NodeRecordComments, w.recordComments},
	}
	for _, n := range nodes {
		if err := eng.Add(n.id, n.fn); err != nil {
			return nil, err
		}
	}
	if err := eng.StartAt(NodeInit); err != nil {
		return nil, err
	}
	edges := [][2]string{
		{NodeInit, NodeCollectPostLinks},
		{NodeCollectPostLinks, NodeSetCurrentPostURL},
		{NodeLoadComments, NodeExtractComments},
		{NodeExtractComments, NodeRecordComments},
		{NodeRecordComments, NodeSetCurrentPostURL},
	}
	for _, e := range edges {
		if err := eng.Connect(e[0], e[1], nil); err != nil {
			return nil, err
		}
	}

	w.engine = eng
	return w, nil
}

// Run collects comments from the posts linked on profileURL.
func (w *Workflow) Run(ctx context.Context, profileURL string) (State, error) {
	u, err := url.Parse(profileURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return State{}, fmt.Errorf("%w: %q", ErrInvalidProfile, profileURL)
	}

	runID := w.newRunID()
	initial := State{RunID: runID, ProfileURL: profileURL}
	final, err := w.engine.Run(ctx, runID, initial)
	if err != nil {
		w.logger.Error("comments run failed", zap.String("run_id", runID), zap.Error(err))
		return initial, fmt.Errorf("comments workflow: %w", err)
	}
	w.logger.Info("comments run finished",
		zap.String("run_id", runID),
		zap.Int("posts", len(final.Comments)),
		zap.Int("comments", final.Total()))
	return final, nil
}

func (w *Workflow) start(_ context.Context, _ State) graph.NodeResult[State] {
	return graph.NodeResult[State]{Delta: State{
		PostLinks: []string{},
		Comments:  map[string][]string{},
		Errors:    []string{},
	}}
}

func (w *Workflow) collectPostLinks(ctx context.Context, s State) graph.NodeResult[State] {
	page, err := w.fetcher.Fetch(ctx, s.ProfileURL)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("load profile: %w", err)}
	}
	links, err := PostLinks(page, s.ProfileURL, w.maxPosts)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("parse profile: %w", err)}
	}
	w.logger.Info("post links collected", zap.Int("count", len(links)))
	return graph.NodeResult[State]{Delta: State{PostLinks: links}}
}

func (w *Workflow) setCurrentPostURL(_ context.Context, s State) graph.NodeResult[State] {
	if len(s.PostLinks) == 0 {
		return graph.NodeResult[State]{Route: graph.Stop()}
	}
	rest := append([]string{}, s.PostLinks[1:]...)
	return graph.NodeResult[State]{
		Delta: State{CurrentPostURL: s.PostLinks[0], PostLinks: rest},
		Route: graph.Goto(NodeLoadComments),
	}
}

func (w *Workflow) loadComments(ctx context.Context, s State) graph.NodeResult[State] {
	page, err := w.fetcher.Fetch(ctx, s.CurrentPostURL)
	if err != nil {
		if ctx.Err() != nil {
			return graph.NodeResult[State]{Err: ctx.Err()}
		}
		w.logger.Warn("post skipped", zap.String("url", s.CurrentPostURL), zap.Error(err))
		errs := append(append([]string{}, s.Errors...), fmt.Sprintf("%s: %v", s.CurrentPostURL, err))
		return graph.NodeResult[State]{Delta: State{Errors: errs}, Route: graph.Goto(NodeSetCurrentPostURL)}
	}
	// An empty page still has to replace the previous post's source.
	if strings.TrimSpace(page) == "" {
		page = "<html></html>"
	}
	return graph.NodeResult[State]{Delta: State{PageSource: page}}
}

func (w *Workflow) extractComments(_ context.Context, s State) graph.NodeResult[State] {
	found, err := ExtractComments(s.PageSource)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("parse post: %w", err)}
	}
	return graph.NodeResult[State]{Delta: State{Current: Dedupe(found)}}
}

func (w *Workflow) recordComments(_ context.Context, s State) graph.NodeResult[State] {
	all := make(map[string][]string, len(s.Comments)+1)
	for k, v := range s.Comments {
		all[k] = v
	}
	all[s.CurrentPostURL] = append(all[s.CurrentPostURL], s.Current...)
	all[s.CurrentPostURL] = Dedupe(all[s.CurrentPostURL])
	w.logger.Debug("comments recorded", zap.String("url", s.CurrentPostURL), zap.Int("count", len(s.Current)))
	return graph.NodeResult[State]{Delta: State{Comments: all}}
}
