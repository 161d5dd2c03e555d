package management

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/needze/agentflow/graph/model"
)

func TestKeywordExtractorExtract(t *testing.T) {
	m := &model.MockChatModel{Responses: []model.ChatOut{{
		Text: "```json\n" + keywordReplyJSON("앨범", " 콘서트 ", "가", "앨범", "드라마", "광고") + "\n```",
	}}}
	k := &KeywordExtractor{Model: m}

	got, err := k.Extract(context.Background(), results("init", 7), 5)
	if err != nil {
		t.Fatalf("Extract() error = %v, want nil", err)
	}
	// Truncated to five, then cleaned.
	if diff := cmp.Diff([]string{"앨범", "콘서트", "드라마"}, got); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}

	calls := m.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	prompt := calls[0].Messages[1].Content
	if !strings.Contains(prompt, "[결과 5]") || strings.Contains(prompt, "[결과 6]") {
		t.Errorf("prompt should cover exactly the top five results:\n%s", prompt)
	}
}

func TestKeywordExtractorErrors(t *testing.T) {
	tests := []struct {
		name    string
		model   *model.MockChatModel
		results int
		check   func(error) bool
	}{
		{
			name:    "no results",
			model:   &model.MockChatModel{},
			results: 0,
			check:   func(err error) bool { var e *KeywordExtractionError; return errors.As(err, &e) },
		},
		{
			name:    "model failure",
			model:   &model.MockChatModel{Err: errors.New("down")},
			results: 3,
			check:   func(err error) bool { var e *KeywordExtractionError; return errors.As(err, &e) },
		},
		{
			name:    "bad json",
			model:   &model.MockChatModel{Responses: []model.ChatOut{{Text: "keywords: none"}}},
			results: 3,
			check:   func(err error) bool { var e *LLMResponseError; return errors.As(err, &e) },
		},
		{
			name:    "empty keywords",
			model:   &model.MockChatModel{Responses: []model.ChatOut{{Text: keywordReplyJSON()}}},
			results: 3,
			check: func(err error) bool {
				var e *KeywordExtractionError
				return errors.As(err, &e) && strings.HasPrefix(err.Error(), "키워드 추출 실패: ")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &KeywordExtractor{Model: tt.model}
			_, err := k.Extract(context.Background(), results("r", tt.results), 8)
			if err == nil || !tt.check(err) {
				t.Fatalf("Extract() error = %v, wrong type", err)
			}
			if got := k.SafeExtract(context.Background(), results("r", tt.results), 8); got == nil || len(got) != 0 {
				t.Errorf("SafeExtract() = %#v, want empty non-nil", got)
			}
		})
	}
}

func TestIssueAnalyzerAnalyze(t *testing.T) {
	long := strings.Repeat("가", 500)
	m := &model.MockChatModel{Responses: []model.ChatOut{{
		Text: `{"is_issue":true,"severity_level":3,"issue_category":"행동","summary":"` + long +
			`","potential_impact":"` + long + `","confidence_score":0.9,"reasoning":"` + long + `"}`,
	}}}
	a := &IssueAnalyzer{Model: m}
	r := results("x", 1)[0]

	got, err := a.Analyze(context.Background(), r)
	if err != nil {
		t.Fatalf("Analyze() error = %v, want nil", err)
	}
	if !got.HighSeverity() || got.Failed {
		t.Errorf("Analyze() = %+v, want a high severity issue", got)
	}
	for name, tc := range map[string]struct {
		s   string
		max int
	}{
		"summary":   {got.Summary, summaryLimit},
		"impact":    {got.PotentialImpact, impactLimit},
		"reasoning": {got.AnalysisReasoning, reasoningLimit},
	} {
		if n := len([]rune(tc.s)); n > tc.max {
			t.Errorf("%s has %d runes, want <= %d", name, n, tc.max)
		}
	}
	if got.OriginalResult.URL != r.URL {
		t.Errorf("OriginalResult.URL = %s, want %s", got.OriginalResult.URL, r.URL)
	}
}

func TestIssueAnalyzerInvalidOutput(t *testing.T) {
	tests := map[string]string{
		"severity": analysisReplyJSON(true, 5, "발언"),
		"category": analysisReplyJSON(true, 2, "기타"),
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			a := &IssueAnalyzer{Model: &model.MockChatModel{Responses: []model.ChatOut{{Text: reply}}}}
			r := results("x", 1)[0]

			_, err := a.Analyze(context.Background(), r)
			var ie *IssueAnalysisError
			if !errors.As(err, &ie) {
				t.Fatalf("Analyze() error = %v, want IssueAnalysisError", err)
			}

			got, err := a.SafeAnalyze(context.Background(), r)
			if err != nil {
				t.Fatalf("SafeAnalyze() error = %v, want nil", err)
			}
			if diff := cmp.Diff(fallbackAnalysis(r), got); diff != "" {
				t.Errorf("SafeAnalyze() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSafeAnalyzeReportsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &IssueAnalyzer{Model: &model.MockChatModel{}}
	if _, err := a.SafeAnalyze(ctx, results("x", 1)[0]); !errors.Is(err, context.Canceled) {
		t.Fatalf("SafeAnalyze() error = %v, want context.Canceled", err)
	}
}

func TestFallbackAnalysis(t *testing.T) {
	r := results("x", 1)[0]
	got := fallbackAnalysis(r)
	want := IssueAnalysis{
		OriginalResult:  r,
		SeverityLevel:   1,
		IssueCategory:   "기타",
		Summary:         "분석 실패",
		PotentialImpact: "분석할 수 없음",
		Failed:          true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fallbackAnalysis() mismatch (-want +got):\n%s", diff)
	}
}
