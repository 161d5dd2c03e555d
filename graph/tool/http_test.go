package tool

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTool_GET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.Header.Get("X-Api-Key"); got != "k" {
			t.Errorf("X-Api-Key = %q, want k", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	result, err := NewHTTPTool().Call(context.Background(), map[string]interface{}{
		"url":     server.URL,
		"headers": map[string]interface{}{"X-Api-Key": "k"},
	})
	if err != nil {
		t.Fatalf("Call() error = %v, want nil", err)
	}
	if result["status_code"] != 200 {
		t.Errorf("status_code = %v, want 200", result["status_code"])
	}
	decoded, ok := result["json"].(map[string]interface{})
	if !ok || decoded["status"] != "ok" {
		t.Errorf("json = %v, want status ok", result["json"])
	}
}

func TestHTTPTool_POST(t *testing.T) {
	tests := []struct {
		name      string
		body      interface{}
		wantBody  string
		wantCType string
	}{
		{name: "string body", body: "plain", wantBody: "plain"},
		{name: "json body", body: map[string]interface{}{"q": "news"}, wantBody: `{"q":"news"}`, wantCType: "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				raw, _ := io.ReadAll(r.Body)
				if string(raw) != tt.wantBody {
					t.Errorf("body = %q, want %q", raw, tt.wantBody)
				}
				if got := r.Header.Get("Content-Type"); tt.wantCType != "" && got != tt.wantCType {
					t.Errorf("Content-Type = %q, want %q", got, tt.wantCType)
				}
				w.WriteHeader(http.StatusCreated)
			}))
			defer server.Close()

			result, err := NewHTTPTool().Call(context.Background(), map[string]interface{}{
				"method": "post",
				"url":    server.URL,
				"body":   tt.body,
			})
			if err != nil {
				t.Fatalf("Call() error = %v, want nil", err)
			}
			if result["status_code"] != http.StatusCreated {
				t.Errorf("status_code = %v, want 201", result["status_code"])
			}
		})
	}
}

func TestHTTPTool_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]interface{}
		want  string
	}{
		{name: "missing url", input: map[string]interface{}{}, want: "url parameter required"},
		{name: "bad method", input: map[string]interface{}{"url": "http://x", "method": "DELETE"}, want: "unsupported HTTP method"},
		{name: "bad scheme", input: map[string]interface{}{"url": "file:///etc/passwd"}, want: "unsupported url scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPTool().Call(context.Background(), tt.input)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Call() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestHTTPTool_AllowedHosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	allowed := NewHTTPTool(WithAllowedHosts("127.0.0.1"))
	if _, err := allowed.Call(context.Background(), map[string]interface{}{"url": server.URL}); err != nil {
		t.Fatalf("Call(allowed host) error = %v, want nil", err)
	}

	denied := NewHTTPTool(WithAllowedHosts("api.example.com"))
	_, err := denied.Call(context.Background(), map[string]interface{}{"url": server.URL})
	if err == nil || !strings.Contains(err.Error(), "not allowed") {
		t.Errorf("Call(other host) error = %v, want not allowed", err)
	}
}

func TestHTTPTool_MaxBodyBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("a", 100))
	}))
	defer server.Close()

	result, err := NewHTTPTool(WithMaxBodyBytes(10)).Call(context.Background(), map[string]interface{}{"url": server.URL})
	if err != nil {
		t.Fatalf("Call() error = %v, want nil", err)
	}
	if body := result["body"].(string); len(body) != 10 {
		t.Errorf("len(body) = %d, want 10", len(body))
	}
}

func TestHTTPTool_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := NewHTTPTool().Call(ctx, map[string]interface{}{"url": server.URL}); err == nil {
		t.Error("Call() error = nil, want timeout")
	}
}
