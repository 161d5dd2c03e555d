package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/needze/agentflow/graph/store"
	"github.com/needze/agentflow/internal/textflow"
	"github.com/needze/agentflow/internal/verify"
)

// clearEnv keeps keys from the developer's environment out of the config.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY", "GROQ_API_KEY", "PERPLEXITY_API_KEY",
		"TAVILY_API_KEY", "NEWS_API_KEY", "REDIS_URL", "WEATHER_API_KEY",
		"STORE_DSN", "STORE_DRIVER", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v, want nil", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()

	var got []string
	for _, c := range root.Commands() {
		got = append(got, c.Name())
	}
	// cobra adds completion and help lazily.
	got = slices.DeleteFunc(got, func(n string) bool { return n == "completion" || n == "help" })
	sort.Strings(got)
	want := []string{"check", "comments", "image", "manage", "music", "runs", "serve", "text"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("subcommands mismatch (-want +got):\n%s", diff)
	}

	for _, name := range []string{"config", "verbose", "json"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag --%s missing", name)
		}
	}

	show, _, err := root.Find([]string{"runs", "show"})
	if err != nil {
		t.Fatalf("Find(runs show) error = %v, want nil", err)
	}
	if show.Name() != "show" {
		t.Errorf("Find(runs show) = %q, want show", show.Name())
	}
}

func TestRunsShowReadsSQLiteHistory(t *testing.T) {
	clearEnv(t)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	st, err := store.NewSQLiteStore[textflow.State](dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v, want nil", err)
	}
	ctx := context.Background()
	steps := []struct {
		node  string
		state textflow.State
	}{
		{textflow.NodePersonaExtraction, textflow.State{RunID: "run-1", ContentTopic: "봄", PersonaExtracted: "밝은 성격"}},
		{textflow.NodeTextGeneration, textflow.State{RunID: "run-1", ContentTopic: "봄", PersonaExtracted: "밝은 성격", InstagramText: "봄이 왔어요"}},
	}
	for i, s := range steps {
		if err := st.SaveStep(ctx, "run-1", i+1, s.node, s.state); err != nil {
			t.Fatalf("SaveStep(%d) error = %v, want nil", i+1, err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v, want nil", err)
	}

	cfg := writeConfig(t, "store:\n  driver: sqlite\n  dsn: "+dbPath+"\n")
	out, err := execute(t, "--config", cfg, "--json", "runs", "show", "text", "run-1")
	if err != nil {
		t.Fatalf("runs show error = %v, want nil", err)
	}

	var got struct {
		Workflow string `json:"workflow"`
		RunID    string `json:"run_id"`
		Steps    []struct {
			Step   int            `json:"step"`
			NodeID string         `json:"node_id"`
			State  textflow.State `json:"state"`
		} `json:"steps"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Workflow != "text" || got.RunID != "run-1" {
		t.Errorf("header = %q/%q, want text/run-1", got.Workflow, got.RunID)
	}
	if len(got.Steps) != 2 {
		t.Fatalf("len(steps) = %d, want 2", len(got.Steps))
	}
	if got.Steps[1].NodeID != textflow.NodeTextGeneration {
		t.Errorf("steps[1].node_id = %q, want %q", got.Steps[1].NodeID, textflow.NodeTextGeneration)
	}
	if diff := cmp.Diff(steps[1].state, got.Steps[1].State); diff != "" {
		t.Errorf("final state mismatch (-want +got):\n%s", diff)
	}
}

func TestRunsShowTextOutput(t *testing.T) {
	clearEnv(t)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	st, err := store.NewSQLiteStore[textflow.State](dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v, want nil", err)
	}
	if err := st.SaveStep(context.Background(), "run-2", 1, textflow.NodePersonaExtraction, textflow.State{ContentTopic: "여름"}); err != nil {
		t.Fatalf("SaveStep() error = %v, want nil", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v, want nil", err)
	}

	cfg := writeConfig(t, "store:\n  driver: sqlite\n  dsn: "+dbPath+"\n")
	out, err := execute(t, "--config", cfg, "runs", "show", "text", "run-2")
	if err != nil {
		t.Fatalf("runs show error = %v, want nil", err)
	}
	for _, want := range []string{"text run run-2, 1 steps", textflow.NodePersonaExtraction, `"content_topic": "여름"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunsShowErrors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name   string
		args   []string
		target error
		substr string
	}{
		{name: "unknown workflow", args: []string{"runs", "show", "video", "run-1"}, substr: "unknown workflow"},
		{name: "missing run", args: []string{"runs", "show", "music", "nope"}, target: store.ErrNotFound},
		{name: "missing args", args: []string{"runs", "show", "music"}, substr: "accepts 2 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("execute() error = nil, want error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("execute() error = %v, want %v", err, tt.target)
			}
			if tt.substr != "" && !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("execute() error = %v, want it to contain %q", err, tt.substr)
			}
		})
	}
}

func TestWorkflowsValidateConfig(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name   string
		args   []string
		substr string
	}{
		{name: "manage", args: []string{"manage", "니제"}, substr: "TAVILY_API_KEY"},
		{name: "text", args: []string{"text", "봄 나들이"}, substr: "GROQ_API_KEY"},
		{name: "music", args: []string{"music", "비 오는 날"}, substr: "groq API key"},
		{name: "image", args: []string{"image"}, substr: "GOOGLE_API_KEY"},
		{name: "comments", args: []string{"comments"}, substr: "profile_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("execute() error = nil, want a configuration error")
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("execute() error = %v, want it to mention %q", err, tt.substr)
			}
		})
	}
}

func TestCheckWithoutModelsGradesByKeyword(t *testing.T) {
	clearEnv(t)

	out, err := execute(t, "--json", "check", "--type", "reel", "폭력적인 장면이 담긴 영상")
	if err != nil {
		t.Fatalf("check error = %v, want nil", err)
	}
	var got verify.Verdict
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.IsApproved {
		t.Error("IsApproved = true, want false")
	}
	if got.RiskLevel != verify.RiskHigh {
		t.Errorf("RiskLevel = %q, want %q", got.RiskLevel, verify.RiskHigh)
	}
	if got.ContentType != "reel" {
		t.Errorf("ContentType = %q, want reel", got.ContentType)
	}
}

func TestCheckRejectsUnknownType(t *testing.T) {
	clearEnv(t)

	_, err := execute(t, "check", "--type", "podcast", "안녕")
	if err == nil || !strings.Contains(err.Error(), "unknown content type") {
		t.Errorf("check error = %v, want unknown content type", err)
	}
}

func TestToolRegistry(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name   string
		config string
		want   []string
	}{
		{
			name: "default",
			want: []string{"analyze_risks", "get_weather", "search_news", "search_policies", "verify_content"},
		},
		{
			name:   "http tool for listed hosts",
			config: "server:\n  http_tool_hosts: [api.example.com]\n",
			want:   []string{"analyze_risks", "get_weather", "http_request", "search_news", "search_policies", "verify_content"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &app{cfgFile: writeConfig(t, tt.config)}
			if err := a.setup(context.Background()); err != nil {
				t.Fatalf("setup() error = %v, want nil", err)
			}
			t.Cleanup(func() { _ = a.close() })

			reg, err := a.toolRegistry(context.Background())
			if err != nil {
				t.Fatalf("toolRegistry() error = %v, want nil", err)
			}
			if diff := cmp.Diff(tt.want, reg.Names()); diff != "" {
				t.Errorf("tool names mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
