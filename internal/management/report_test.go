package management

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/needze/agentflow/internal/search"
)

func issue(severity int, category string) IssueAnalysis {
	return IssueAnalysis{
		OriginalResult: search.Result{Title: "제목"},
		IsIssue:        true,
		SeverityLevel:  severity,
		IssueCategory:  category,
	}
}

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		name   string
		issues []IssueAnalysis
		want   RiskLevel
	}{
		{"two high", []IssueAnalysis{issue(3, "발언"), issue(4, "행동")}, RiskHigh},
		{"three low", []IssueAnalysis{issue(1, "발언"), issue(2, "발언"), issue(3, "개인")}, RiskMedium},
		{"one", []IssueAnalysis{issue(1, "발언")}, RiskLow},
		{"none", nil, RiskMinimal},
		{"not issues", []IssueAnalysis{{SeverityLevel: 4}, {SeverityLevel: 4}}, RiskMinimal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, _ := buildReport(State{Query: "아이유", AnalyzedIssues: tt.issues}, fixedNow)
			if got := report.ExecutiveSummary.RiskLevel; got != tt.want {
				t.Errorf("RiskLevel = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildReportDetails(t *testing.T) {
	issues := make([]IssueAnalysis, 0, 7)
	for i := 0; i < 7; i++ {
		a := issue(1+i%4, "발언")
		a.OriginalResult.Title = string(make([]rune, 150))
		issues = append(issues, a)
	}
	issues = append(issues, IssueAnalysis{IsIssue: false, SeverityLevel: 4, IssueCategory: "행동"})

	report, info := buildReport(State{Query: "아이유", AnalyzedIssues: issues}, fixedNow)

	ir := report.IssueAnalysis
	if ir.TotalIssues != 7 || ir.HighSeverityIssues != 3 {
		t.Errorf("TotalIssues/HighSeverityIssues = %d/%d, want 7/3", ir.TotalIssues, ir.HighSeverityIssues)
	}
	if len(ir.IssueDetails) != 5 {
		t.Errorf("len(IssueDetails) = %d, want 5", len(ir.IssueDetails))
	}
	if got := len([]rune(ir.IssueDetails[0].Title)); got != 100 {
		t.Errorf("detail title length = %d, want 100", got)
	}
	if diff := cmp.Diff(map[int]int{1: 2, 2: 2, 3: 2, 4: 1}, ir.SeverityDistribution); diff != "" {
		t.Errorf("SeverityDistribution mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"발언": 7}, ir.CategoryDistribution); diff != "" {
		t.Errorf("CategoryDistribution mismatch (-want +got):\n%s", diff)
	}

	kt := report.KeywordTrends
	if kt.ExtractedKeywords == nil || len(kt.TrendingTopics) != 0 || kt.SearchCoverage != "0개 키워드 분석 완료" {
		t.Errorf("KeywordTrends = %+v", kt)
	}
	if got := report.Recommendations.MonitoringPoints[0]; got != "'아이유' 키워드 지속 모니터링" {
		t.Errorf("MonitoringPoints[0] = %q, want the query", got)
	}

	// Only analyzed issues are set.
	if info.CompletedSteps != 1 || info.SuccessRate != 25 || info.TotalSteps != 4 {
		t.Errorf("FinalInfo = %+v, want 1/4 steps at 25%%", info)
	}
}

func TestCompletedSteps(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  int
	}{
		{"empty", State{}, 0},
		{"empty initial does not count", State{InitialSearchResults: []search.Result{}}, 0},
		{"empty keywords do not count", State{ExtractedKeywords: []string{}}, 0},
		{"empty detailed counts", State{DetailedSearchResults: []search.Result{}}, 1},
		{"empty analyses count", State{AnalyzedIssues: []IssueAnalysis{}}, 1},
		{
			"all",
			State{
				InitialSearchResults:  make([]search.Result, 1),
				ExtractedKeywords:     []string{"앨범"},
				DetailedSearchResults: []search.Result{},
				AnalyzedIssues:        []IssueAnalysis{},
			},
			4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := completedSteps(tt.state); got != tt.want {
				t.Errorf("completedSteps() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSuccessRatePrefersFinalInfo(t *testing.T) {
	s := State{FinalInfo: &FinalInfo{SuccessRate: 42}}
	if got := SuccessRate(s); got != 42 {
		t.Errorf("SuccessRate() = %v, want 42", got)
	}
	s = State{ExtractedKeywords: []string{"앨범"}, DetailedSearchResults: []search.Result{}}
	if got := SuccessRate(s); got != 50 {
		t.Errorf("SuccessRate() = %v, want 50", got)
	}
}

func TestSummaries(t *testing.T) {
	s := State{
		Query:                   "아이유",
		InitialSearchResults:    make([]search.Result, 3),
		AnalyzedIssues:          []IssueAnalysis{issue(2, "행동"), issue(2, "개인"), {SeverityLevel: 1}},
		ErrorMessages:           []string{"x"},
		InitialSearchRetryCount: 1,
		ExtractionAttempts:      2,
	}

	sum := Summary(s)
	want := ExecutionSummary{
		Query:               "아이유",
		InitialResultsCount: 3,
		AnalyzedIssuesCount: 3,
		RealIssuesCount:     2,
		ErrorCount:          1,
		HasErrors:           true,
		AlertLevel:          "unknown",
		RetryCounts:         RetryCounts{InitialSearch: 1, KeywordExtraction: 2},
	}
	if diff := cmp.Diff(want, sum); diff != "" {
		t.Errorf("Summary() mismatch (-want +got):\n%s", diff)
	}

	as := AnalysisSummary(s)
	if diff := cmp.Diff(map[int]int{1: 0, 2: 2, 3: 0, 4: 0}, as.SeverityDistribution); diff != "" {
		t.Errorf("SeverityDistribution mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"행동": 1, "개인": 1}, as.CategoryDistribution); diff != "" {
		t.Errorf("CategoryDistribution mismatch (-want +got):\n%s", diff)
	}
	if as.TotalAnalyzed != 3 || as.RealIssues != 2 {
		t.Errorf("TotalAnalyzed/RealIssues = %d/%d, want 3/2", as.TotalAnalyzed, as.RealIssues)
	}
}

func TestReportJSONShape(t *testing.T) {
	report, _ := buildReport(State{Query: "아이유", ExtractedKeywords: []string{"앨범"}}, fixedNow)
	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v, want nil", err)
	}
	var m map[string]map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, want nil", err)
	}
	for _, key := range []string{"executive_summary", "issue_analysis", "keyword_trends", "recommendations"} {
		if _, ok := m[key]; !ok {
			t.Errorf("report JSON lacks %q", key)
		}
	}
	if got := m["executive_summary"]["risk_level"]; got != "MINIMAL" {
		t.Errorf("risk_level = %v, want MINIMAL", got)
	}
}
