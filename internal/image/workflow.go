// Package image produces the persona's face: a new reference face from an
// image model, or a re-rendering of the fixed face through ComfyUI.
package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/needze/agentflow/graph"
	"github.com/needze/agentflow/graph/emit"
	"github.com/needze/agentflow/graph/model"
	"github.com/needze/agentflow/graph/store"
)

// WorkflowName labels the workflow's metrics and stored runs.
const WorkflowName = "image"

// Node IDs.
const (
	NodeSelect              = "select_face"
	NodeNewFaceGeneration   = "new_face_generation"
	NodeFixedFaceGeneration = "fixed_face_generation"
)

// SafetyAttempts is how many times new_face_generation asks again after the
// provider blocked the image.
const SafetyAttempts = 5

// FailedMessage is recorded when every attempt was blocked.
const FailedMessage = "이미지 생성에 실패했습니다."

// ErrNoImage is returned when the image model answered without an image.
var ErrNoImage = errors.New("image model returned no image")

// Generator is what the fixed-face node needs from ComfyUI.
type Generator interface {
	Generate(ctx context.Context, p GenerateParams) (map[string]interface{}, error)
}

// State is the image workflow state.
type State struct {
	RunID          string                 `json:"run_id,omitempty"`
	Persona        string                 `json:"persona"`
	Fixed          bool                   `json:"fixed"`
	FixedImage     string                 `json:"fixed_image,omitempty"`
	Prompt         string                 `json:"prompt,omitempty"`
	NegativePrompt string                 `json:"negative_prompt,omitempty"`
	Generated      map[string]interface{} `json:"generated,omitempty"`
	Response       string                 `json:"response,omitempty"`
}

// Reduce merges a node's delta into the state. Fixed only ever turns on.
func Reduce(prev, delta State) State {
	if delta.RunID != "" {
		prev.RunID = delta.RunID
	}
	if delta.Persona != "" {
		prev.Persona = delta.Persona
	}
	if delta.Fixed {
		prev.Fixed = true
	}
	if delta.FixedImage != "" {
		prev.FixedImage = delta.FixedImage
	}
	if delta.Prompt != "" {
		prev.Prompt = delta.Prompt
	}
	if delta.NegativePrompt != "" {
		prev.NegativePrompt = delta.NegativePrompt
	}
	if delta.Generated != nil {
		prev.Generated = delta.Generated
	}
	if delta.Response != "" {
		prev.Response = delta.Response
	}
	return prev
}

// Options configures a Workflow. All model and service fields are required.
type Options struct {
	// ImageModel draws the new face, e.g. a Gemini image model.
	ImageModel model.ChatModel

	// Prompter writes the ComfyUI prompt pair as JSON.
	Prompter model.ChatModel

	Images   ImageStore
	ComfyUI  Generator
	Store    store.Store[State]
	Emitter  emit.Emitter
	Logger   *zap.Logger
	Metrics  *graph.PrometheusMetrics
	Costs    *graph.CostTracker
	NewRunID func() string
}

// Workflow is a compiled image workflow.
type Workflow struct {
	imageModel model.ChatModel
	prompter   model.ChatModel
	images     ImageStore
	comfy      Generator
	logger     *zap.Logger
	newRunID   func() string
	engine     *graph.Engine[State]
}

// New builds the workflow graph.
func New(opts Options) (*Workflow, error) {
	if opts.ImageModel == nil || opts.Prompter == nil || opts.Images == nil || opts.ComfyUI == nil {
		return nil, errors.New("image: image model, prompter, image store and comfyui are required")
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
		imageModel: opts.ImageModel,
		prompter:   opts.Prompter,
		images:     opts.Images,
		comfy:      opts.ComfyUI,
		logger:     opts.Logger,
		newRunID:   opts.NewRunID,
	}

	engineOpts := []graph.Option{graph.WithMaxSteps(5), graph.WithWorkflowName(WorkflowName)}
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
		{NodeSelect, func(context.Context, State) graph.NodeResult[State] { return graph.NodeResult[State]{} }},
		{NodeNewFaceGeneration, w.newFace},
		{NodeFixedFaceGeneration, w.fixedFace},
	}
	for _, n := range nodes {
		if err := eng.Add(n.id, n.fn); err != nil {
			return nil, err
		}
	}
	if err := eng.StartAt(NodeSelect); err != nil {
		return nil, err
	}
	if err := eng.Connect(NodeSelect, NodeFixedFaceGeneration, func(s State) bool { return s.Fixed }); err != nil {
		return nil, err
	}
	if err := eng.Connect(NodeSelect, NodeNewFaceGeneration, nil); err != nil {
		return nil, err
	}

	w.engine = eng
	return w, nil
}

// Run generates a face for persona. With fixed set, fixedImage is the
// reference face ComfyUI re-renders.
func (w *Workflow) Run(ctx context.Context, persona string, fixed bool, fixedImage string) (State, error) {
	if fixed && fixedImage == "" {
		return State{}, errors.New("image: a fixed run needs the fixed image")
	}
	runID := w.newRunID()
	initial := State{RunID: runID, Persona: persona, Fixed: fixed, FixedImage: fixedImage}

	final, err := w.engine.Run(ctx, runID, initial)
	if err != nil {
		w.logger.Error("image run failed", zap.String("run_id", runID), zap.Error(err))
		return initial, fmt.Errorf("image workflow: %w", err)
	}
	return final, nil
}

func (w *Workflow) newFace(ctx context.Context, s State) graph.NodeResult[State] {
	prompt := "다음 페르소나에 어울리는 인물의 정면 얼굴 사진을 사실적으로 생성해줘.\n\n" + s.Persona

	var out model.ChatOut
	for attempt := 1; ; attempt++ {
		var err error
		out, err = w.imageModel.Chat(ctx, []model.Message{model.User(prompt)}, nil)
		if err == nil {
			break
		}
		if !errors.Is(err, model.ErrSafetyBlocked) {
			return graph.NodeResult[State]{Err: fmt.Errorf("new face: %w", err)}
		}
		if attempt == SafetyAttempts {
			w.logger.Error("face generation blocked on every attempt", zap.Int("attempts", attempt))
			return graph.NodeResult[State]{Delta: State{Response: FailedMessage}, Route: graph.Stop()}
		}
		w.logger.Warn("face generation blocked by safety filter", zap.Int("remaining", SafetyAttempts-attempt))
	}

	if len(out.Blobs) == 0 {
		return graph.NodeResult[State]{Err: ErrNoImage}
	}
	blob := out.Blobs[len(out.Blobs)-1]
	ref, err := w.images.Put(ctx, "fixed_image"+extension(blob.MIMEType), blob.MIMEType, blob.Data)
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}
	w.logger.Info("fixed face saved", zap.String("ref", ref))
	return graph.NodeResult[State]{Delta: State{Fixed: true, FixedImage: ref}, Route: graph.Stop()}
}

type facePrompt struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
}

func (w *Workflow) fixedFace(ctx context.Context, s State) graph.NodeResult[State] {
	ask := fmt.Sprintf(`%s

위 페르소나를 바탕으로 그 인물과 어울리는 이미지 생성용 prompt와 negative_prompt를 영어로 작성해줘.
다음 JSON 형식으로만 답해줘: {"prompt": "...", "negative_prompt": "..."}`, s.Persona)
	out, err := w.prompter.Chat(ctx, []model.Message{model.User(ask)}, nil)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("face prompt: %w", err)}
	}
	var fp facePrompt
	if err := model.DecodeJSON(out.Text, &fp); err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("face prompt: %w", err)}
	}

	reply, err := w.comfy.Generate(ctx, GenerateParams{
		Image:          s.FixedImage,
		Prompt:         FacePromptPrefix + fp.Prompt,
		NegativePrompt: fp.NegativePrompt,
		Width:          512,
		Height:         512,
		WorkflowID:     FaceWorkflowID,
	})
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}
	return graph.NodeResult[State]{
		Delta: State{Prompt: fp.Prompt, NegativePrompt: fp.NegativePrompt, Generated: reply},
		Route: graph.Stop(),
	}
}

func extension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
