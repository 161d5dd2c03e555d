package image

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
)

// comfyServer answers each generate_image call with reply and hands the
// decoded params to got.
func comfyServer(t *testing.T, reply map[string]interface{}, got chan<- GenerateParams) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var req request
		if err := conn.ReadJSON(&req); err != nil {
			t.Errorf("read request: %v", err)
			return
		}
		if req.Tool != "generate_image" {
			t.Errorf("tool = %q, want generate_image", req.Tool)
		}
		var p GenerateParams
		if err := json.Unmarshal([]byte(req.Params), &p); err != nil {
			t.Errorf("params are not a JSON string: %v", err)
		}
		if got != nil {
			got <- p
		}
		if reply == nil {
			// Hold the connection until the client gives up.
			_, _, _ = conn.ReadMessage()
			return
		}
		_ = conn.WriteJSON(reply)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestComfyUI_Generate(t *testing.T) {
	got := make(chan GenerateParams, 1)
	srv := comfyServer(t, map[string]interface{}{"status": "ok", "image_url": "http://comfy/out.png"}, got)
	defer srv.Close()

	params := GenerateParams{
		Image:          "/data/fixed_image.png",
		Prompt:         FacePromptPrefix + "smiling",
		NegativePrompt: "lowres",
		Width:          512,
		Height:         512,
		WorkflowID:     FaceWorkflowID,
	}
	c := &ComfyUI{URL: wsURL(srv)}
	reply, err := c.Generate(context.Background(), params)
	if err != nil {
		t.Fatalf("Generate() error = %v, want nil", err)
	}
	if reply["image_url"] != "http://comfy/out.png" {
		t.Errorf("reply = %v", reply)
	}
	if diff := cmp.Diff(params, <-got); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestComfyUI_GenerateTimeout(t *testing.T) {
	srv := comfyServer(t, nil, nil)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c := &ComfyUI{URL: wsURL(srv)}
	if _, err := c.Generate(ctx, GenerateParams{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Generate() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestComfyUI_GenerateDialError(t *testing.T) {
	c := &ComfyUI{URL: "ws://127.0.0.1:1"}
	if _, err := c.Generate(context.Background(), GenerateParams{}); err == nil || !strings.Contains(err.Error(), "dial") {
		t.Fatalf("Generate() error = %v, want dial error", err)
	}
}
