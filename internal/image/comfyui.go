package image

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// FacePromptPrefix is the trigger phrase of the persona's face LoRA.
const FacePromptPrefix = "fcsks fxhks fhyks, "

// FaceWorkflowID names the ComfyUI workflow that re-renders the fixed face.
const FaceWorkflowID = "hyperlora_face_generation"

// GenerateParams are the generate_image arguments.
type GenerateParams struct {
	Image          string `json:"image"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	WorkflowID     string `json:"workflow_id"`
}

// request is one tool call. Params travels as a JSON string.
type request struct {
	Tool   string `json:"tool"`
	Params string `json:"params"`
}

// ComfyUI calls the ComfyUI tool server over a websocket, one connection
// per request.
type ComfyUI struct {
	URL    string
	Dialer *websocket.Dialer

	// Timeout bounds one request when ctx has no deadline. Defaults to 5
	// minutes.
	Timeout time.Duration
}

// Generate sends a generate_image call and returns the server's JSON reply.
func (c *ComfyUI) Generate(ctx context.Context, p GenerateParams) (map[string]interface{}, error) {
	params, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("comfyui dial %s: %w", c.URL, err)
	}
	defer func() { _ = conn.Close() }()

	// Unblock ReadJSON when ctx ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(request{Tool: "generate_image", Params: string(params)}); err != nil {
		return nil, fmt.Errorf("comfyui send: %w", err)
	}
	var reply map[string]interface{}
	if err := conn.ReadJSON(&reply); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("comfyui read: %w", err)
	}
	return reply, nil
}
