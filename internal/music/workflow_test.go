package music

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/needze/agentflow/graph/emit"
	"github.com/needze/agentflow/graph/model"
)

type stubWeather struct {
	w   *Weather
	err error
	nx  int
	ny  int
}

func (s *stubWeather) Current(_ context.Context, nx, ny int) (*Weather, error) {
	s.nx, s.ny = nx, ny
	return s.w, s.err
}

func newTestWorkflow(t *testing.T, writer model.ChatModel, wx WeatherSource) *Workflow {
	t.Helper()
	w, err := New(Options{
		Writer:   writer,
		Weather:  wx,
		Emitter:  emit.NewNullEmitter(),
		NewRunID: func() string { return "run-1" },
	})
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	return w
}

func TestWorkflow_RunWithWeather(t *testing.T) {
	writer := &model.MockChatModel{Responses: []model.ChatOut{{Text: "회색 구름 아래 너를 불러\n"}}}
	wx := &stubWeather{w: &Weather{FormattedText: "구름많음 | 기온 23.0°C"}}

	got, err := newTestWorkflow(t, writer, wx).Run(context.Background(), "첫눈")
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if got.Lyrics != "회색 구름 아래 너를 불러" {
		t.Errorf("Lyrics = %q", got.Lyrics)
	}
	if got.WeatherInfo != "구름많음 | 기온 23.0°C" {
		t.Errorf("WeatherInfo = %q", got.WeatherInfo)
	}
	if wx.nx != DefaultNX || wx.ny != DefaultNY {
		t.Errorf("grid = (%d, %d), want defaults", wx.nx, wx.ny)
	}

	prompt := writer.Calls()[0].Messages[0].Content
	for _, want := range []string{"구름많음 | 기온 23.0°C", "이제 다음 주제로 가사를 써줘: 첫눈", "싱어송라이터"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt lacks %q:\n%s", want, prompt)
		}
	}
}

func TestWorkflow_WeatherFailureIsNotFatal(t *testing.T) {
	writer := &model.MockChatModel{Responses: []model.ChatOut{{Text: "가사"}}}
	wx := &stubWeather{err: errors.New("kma down")}

	got, err := newTestWorkflow(t, writer, wx).Run(context.Background(), "봄비")
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if got.WeatherInfo != "" || got.Lyrics != "가사" {
		t.Errorf("Run() = %+v", got)
	}
	if strings.Contains(writer.Calls()[0].Messages[0].Content, "지금 날씨") {
		t.Error("prompt mentions weather after a failed lookup")
	}
}

func TestWorkflow_NoWeatherSource(t *testing.T) {
	writer := &model.MockChatModel{Responses: []model.ChatOut{{Text: "가사"}}}
	if _, err := newTestWorkflow(t, writer, nil).Run(context.Background(), "봄비"); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
}

func TestWorkflow_Errors(t *testing.T) {
	boom := errors.New("bad key")
	w := newTestWorkflow(t, &model.MockChatModel{Err: boom}, nil)
	if _, err := w.Run(context.Background(), "봄비"); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want %v", err, boom)
	}
	if _, err := w.Run(context.Background(), ""); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Run() error = %v, want ErrEmptyQuery", err)
	}
	if _, err := New(Options{}); err == nil {
		t.Error("New() without writer error = nil, want error")
	}
}

func TestLyricPrompt(t *testing.T) {
	if p := LyricPrompt("여름밤", ""); strings.Contains(p, "지금 날씨") || !strings.HasSuffix(p, "여름밤") {
		t.Errorf("LyricPrompt() = %q", p)
	}
}
