package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/needze/agentflow/graph/model"
)

func TestChatModel_Chat(t *testing.T) {
	var req map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s, want /v1/messages", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-sonnet-latest",
			"content": [{"type": "text", "text": "{\"ok\":true}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	m, err := New(model.Config{APIKey: "test", BaseURL: srv.URL, JSONMode: true, Temperature: model.Temp(0.1)})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}

	out, err := m.Chat(context.Background(), []model.Message{
		model.System("you are NEEDZE"),
		model.User("write a caption"),
	}, nil)
	if err != nil {
		t.Fatalf("Chat() error = %v, want nil", err)
	}
	if out.Text != `{"ok":true}` || out.Usage.InputTokens != 20 || out.FinishReason != "end_turn" {
		t.Errorf("Chat() = %+v", out)
	}

	system, _ := req["system"].([]interface{})
	if len(system) != 1 {
		t.Fatalf("system blocks = %v, want 1", req["system"])
	}
	text, _ := system[0].(map[string]interface{})["text"].(string)
	if !strings.Contains(text, "NEEDZE") || !strings.Contains(text, "JSON") {
		t.Errorf("system prompt = %q, want persona and JSON instruction", text)
	}
	if msgs, _ := req["messages"].([]interface{}); len(msgs) != 1 {
		t.Errorf("messages = %v, want only the user turn", req["messages"])
	}
}

func TestChatModel_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)
	}))
	defer srv.Close()

	m, _ := New(model.Config{APIKey: "test", BaseURL: srv.URL})
	_, err := m.Chat(context.Background(), []model.Message{model.User("hi")}, nil)

	var pe *model.ProviderError
	if !errors.As(err, &pe) || !model.IsTransient(err) {
		t.Errorf("Chat() error = %v, want transient ProviderError", err)
	}
}
