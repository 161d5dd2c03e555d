package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/needze/agentflow/graph"
	"github.com/needze/agentflow/graph/tool"
	"github.com/needze/agentflow/internal/management"
)

type fakeManagement struct {
	state   management.State
	err     error
	query   string
	retries int
}

func (f *fakeManagement) SafeRun(_ context.Context, query string, maxRetries int) (management.State, error) {
	f.query, f.retries = query, maxRetries
	return f.state, f.err
}

func echoTool() tool.Tool {
	return &tool.Func{
		ToolName: "echo",
		Fn: func(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
			if input["fail"] == true {
				return nil, errors.New("upstream down")
			}
			return map[string]interface{}{"echo": input["msg"]}, nil
		},
	}
}

func newTestServer(t *testing.T, mgmt ManagementRunner, gatherer prometheus.Gatherer) *httptest.Server {
	t.Helper()
	reg, err := tool.NewRegistry(echoTool())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v, want nil", err)
	}
	s, err := New(Options{Tools: reg, Management: mgmt, MaxRetries: 2, Gatherer: gatherer, ServiceName: "agentflow-test"})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestCallTool(t *testing.T) {
	srv := newTestServer(t, nil, prometheus.NewRegistry())

	tests := []struct {
		name   string
		tool   string
		body   string
		status int
	}{
		{"ok", "echo", `{"msg": "hi"}`, http.StatusOK},
		{"no body", "echo", ``, http.StatusOK},
		{"unknown", "missing", `{}`, http.StatusNotFound},
		{"bad json", "echo", `{"msg":`, http.StatusBadRequest},
		{"tool error", "echo", `{"fail": true}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := do(t, http.MethodPost, srv.URL+"/tools/"+tt.tool, tt.body)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (body %v)", status, tt.status, out)
			}
			if tt.name == "ok" {
				result, _ := out["result"].(map[string]interface{})
				if result["echo"] != "hi" {
					t.Errorf("result = %v", out["result"])
				}
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	graph.NewPrometheusMetrics(reg).RecordRun("management", "success")
	srv := newTestServer(t, nil, reg)

	status, out := do(t, http.MethodGet, srv.URL+"/healthz", "")
	if status != http.StatusOK || out["status"] != "ok" {
		t.Errorf("healthz = %d %v", status, out)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `agentflow_workflow_runs_total{outcome="success",workflow="management"} 1`) {
		t.Errorf("metrics output lacks the run counter:\n%s", body)
	}
}

func TestRunManagement(t *testing.T) {
	mgmt := &fakeManagement{state: management.State{
		RunID:      "run-9",
		Query:      "아이유",
		AlertLevel: management.AlertNormal,
		FinalInfo:  &management.FinalInfo{WorkflowCompleted: true, SuccessRate: 100},
	}}
	srv := newTestServer(t, mgmt, prometheus.NewRegistry())

	status, out := do(t, http.MethodPost, srv.URL+"/workflows/management", `{"query": "아이유"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %v)", status, out)
	}
	if out["run_id"] != "run-9" || out["alert_level"] != "normal" || out["success_rate"] != 100.0 {
		t.Errorf("body = %v", out)
	}
	if mgmt.query != "아이유" || mgmt.retries != 2 {
		t.Errorf("SafeRun(%q, %d), want (아이유, 2)", mgmt.query, mgmt.retries)
	}

	do(t, http.MethodPost, srv.URL+"/workflows/management", `{"query": "아이유", "max_retries": 0}`)
	if mgmt.retries != 0 {
		t.Errorf("max_retries override = %d, want 0", mgmt.retries)
	}
	if status, _ := do(t, http.MethodPost, srv.URL+"/workflows/management", `{}`); status != http.StatusBadRequest {
		t.Errorf("missing query status = %d, want 400", status)
	}
}

func TestRunManagementErrors(t *testing.T) {
	tests := []struct {
		name   string
		mgmt   ManagementRunner
		status int
	}{
		{"invalid query", &fakeManagement{err: management.ErrInvalidQuery}, http.StatusBadRequest},
		{"run failed", &fakeManagement{err: errors.New("boom")}, http.StatusInternalServerError},
		{"not configured", nil, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.mgmt, prometheus.NewRegistry())
			if status, out := do(t, http.MethodPost, srv.URL+"/workflows/management", `{"query": "x"}`); status != tt.status {
				t.Errorf("status = %d, want %d (body %v)", status, tt.status, out)
			}
		})
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	reg, _ := tool.NewRegistry()
	s, err := New(Options{Addr: "127.0.0.1:0", Tools: reg, Gatherer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestNew_RequiresTools(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New() error = nil, want error")
	}
}
