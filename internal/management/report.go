package management

import (
	"fmt"
	"time"

	"github.com/needze/agentflow/internal/textutil"
)

// RiskLevel grades a finished analysis.
type RiskLevel string

// Risk levels.
const (
	RiskHigh    RiskLevel = "HIGH"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskLow     RiskLevel = "LOW"
	RiskMinimal RiskLevel = "MINIMAL"
)

// totalSteps is the number of main pipeline stages counted by FinalInfo.
const totalSteps = 4

// Report is the management report built by the finalize node.
type Report struct {
	ExecutiveSummary ExecutiveSummary `json:"executive_summary"`
	IssueAnalysis    IssueReport      `json:"issue_analysis"`
	KeywordTrends    KeywordTrends    `json:"keyword_trends"`
	Recommendations  Recommendations  `json:"recommendations"`
}

// ExecutiveSummary is the headline view of a run.
type ExecutiveSummary struct {
	Target                string    `json:"target"`
	AnalysisDate          string    `json:"analysis_date"`
	TotalArticlesAnalyzed int       `json:"total_articles_analyzed"`
	IssuesFound           int       `json:"issues_found"`
	RiskLevel             RiskLevel `json:"risk_level"`
	RiskAssessment        string    `json:"risk_assessment"`
}

// IssueReport aggregates the analyzed articles that are real issues.
type IssueReport struct {
	TotalIssues          int            `json:"total_issues"`
	HighSeverityIssues   int            `json:"high_severity_issues"`
	SeverityDistribution map[int]int    `json:"severity_distribution"`
	CategoryDistribution map[string]int `json:"category_distribution"`
	IssueDetails         []IssueDetail  `json:"issue_details"`
}

// IssueDetail is one reported issue.
type IssueDetail struct {
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Severity   int     `json:"severity"`
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// KeywordTrends lists the keywords the run searched with.
type KeywordTrends struct {
	ExtractedKeywords []string `json:"extracted_keywords"`
	TrendingTopics    []string `json:"trending_topics"`
	SearchCoverage    string   `json:"search_coverage"`
}

// Recommendations are the suggested responses for the alert level.
type Recommendations struct {
	ImmediateActions []string `json:"immediate_actions"`
	MonitoringPoints []string `json:"monitoring_points"`
	LongTermStrategy []string `json:"long_term_strategy"`
}

// FinalInfo records how much of the pipeline produced output.
type FinalInfo struct {
	WorkflowCompleted bool             `json:"workflow_completed"`
	SuccessRate       float64          `json:"success_rate"`
	CompletedSteps    int              `json:"completed_steps"`
	TotalSteps        int              `json:"total_steps"`
	Summary           ExecutionSummary `json:"execution_summary"`
}

// ExecutionSummary is a count-level view of a state.
type ExecutionSummary struct {
	Query                string      `json:"query"`
	InitialResultsCount  int         `json:"initial_results_count"`
	KeywordsCount        int         `json:"keywords_count"`
	DetailedResultsCount int         `json:"detailed_results_count"`
	AnalyzedIssuesCount  int         `json:"analyzed_issues_count"`
	RealIssuesCount      int         `json:"real_issues_count"`
	ErrorCount           int         `json:"error_count"`
	HasErrors            bool        `json:"has_errors"`
	AlertLevel           AlertLevel  `json:"alert_level"`
	RetryCounts          RetryCounts `json:"retry_counts"`
}

// RetryCounts copies the retry counters of a run.
type RetryCounts struct {
	InitialSearch     int `json:"initial_search"`
	KeywordExtraction int `json:"keyword_extraction"`
}

// Summary returns the execution summary of s. An unset alert level is
// reported as "unknown".
func Summary(s State) ExecutionSummary {
	level := s.AlertLevel
	if level == "" {
		level = "unknown"
	}
	return ExecutionSummary{
		Query:                s.Query,
		InitialResultsCount:  len(s.InitialSearchResults),
		KeywordsCount:        len(s.ExtractedKeywords),
		DetailedResultsCount: len(s.DetailedSearchResults),
		AnalyzedIssuesCount:  len(s.AnalyzedIssues),
		RealIssuesCount:      len(s.RealIssues()),
		ErrorCount:           len(s.ErrorMessages),
		HasErrors:            len(s.ErrorMessages) > 0,
		AlertLevel:           level,
		RetryCounts: RetryCounts{
			InitialSearch:     s.InitialSearchRetryCount,
			KeywordExtraction: s.ExtractionAttempts,
		},
	}
}

// AnalysisReport breaks the analyzed issues down by severity and category.
type AnalysisReport struct {
	TotalAnalyzed        int            `json:"total_analyzed"`
	RealIssues           int            `json:"real_issues"`
	SeverityDistribution map[int]int    `json:"severity_distribution"`
	CategoryDistribution map[string]int `json:"category_distribution"`
	Timestamp            time.Time      `json:"analysis_timestamp"`
}

// AnalysisSummary counts real issues per severity (1..4, always present)
// and per category.
func AnalysisSummary(s State) AnalysisReport {
	out := AnalysisReport{
		TotalAnalyzed:        len(s.AnalyzedIssues),
		SeverityDistribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0},
		CategoryDistribution: map[string]int{},
		Timestamp:            time.Now(),
	}
	for _, a := range s.RealIssues() {
		out.RealIssues++
		out.SeverityDistribution[a.SeverityLevel]++
		out.CategoryDistribution[a.IssueCategory]++
	}
	return out
}

// completedSteps counts the pipeline stages with output. Detailed results
// and analyses count once set, even when empty.
func completedSteps(s State) int {
	n := 0
	if len(s.InitialSearchResults) > 0 {
		n++
	}
	if len(s.ExtractedKeywords) > 0 {
		n++
	}
	if s.DetailedSearchResults != nil {
		n++
	}
	if s.AnalyzedIssues != nil {
		n++
	}
	return n
}

// SuccessRate is the share of pipeline stages, in percent, that produced
// output. Runs that ended before finalize are scored from their state.
func SuccessRate(s State) float64 {
	if s.FinalInfo != nil {
		return s.FinalInfo.SuccessRate
	}
	return float64(completedSteps(s)) / totalSteps * 100
}

func assessRisk(issues []IssueAnalysis) (RiskLevel, int) {
	high := 0
	for _, a := range issues {
		if a.SeverityLevel >= 3 {
			high++
		}
	}
	switch {
	case high >= 2:
		return RiskHigh, high
	case len(issues) >= 3:
		return RiskMedium, high
	case len(issues) >= 1:
		return RiskLow, high
	default:
		return RiskMinimal, high
	}
}

func immediateActions(level RiskLevel) []string {
	switch level {
	case RiskHigh:
		return []string{"즉시 위기관리팀 소집", "공식 입장 발표 검토", "소셜미디어 모니터링 강화"}
	case RiskMedium:
		return []string{"상황 모니터링 강화", "대응 시나리오 준비", "팬 커뮤니티 소통 강화"}
	default:
		return []string{"현재 상황 양호", "정기 모니터링 지속", "긍정적 콘텐츠 강화"}
	}
}

func buildReport(s State, now time.Time) (*Report, *FinalInfo) {
	issues := s.RealIssues()
	level, high := assessRisk(issues)

	severity := map[int]int{}
	category := map[string]int{}
	for _, a := range issues {
		severity[a.SeverityLevel]++
		category[a.IssueCategory]++
	}

	details := make([]IssueDetail, 0, min(len(issues), 5))
	for _, a := range issues[:min(len(issues), 5)] {
		details = append(details, IssueDetail{
			Title:      textutil.Head(a.OriginalResult.Title, 100),
			Category:   a.IssueCategory,
			Severity:   a.SeverityLevel,
			Summary:    a.Summary,
			Confidence: a.ConfidenceScore,
		})
	}

	keywords := s.ExtractedKeywords
	if keywords == nil {
		keywords = []string{}
	}
	focus := s.Query
	if len(keywords) > 0 {
		focus = keywords[0]
	}

	report := &Report{
		ExecutiveSummary: ExecutiveSummary{
			Target:                s.Query,
			AnalysisDate:          now.Format(time.DateOnly),
			TotalArticlesAnalyzed: len(s.InitialSearchResults) + len(s.DetailedSearchResults),
			IssuesFound:           len(issues),
			RiskLevel:             level,
			RiskAssessment:        fmt.Sprintf("%s 위험도", level),
		},
		IssueAnalysis: IssueReport{
			TotalIssues:          len(issues),
			HighSeverityIssues:   high,
			SeverityDistribution: severity,
			CategoryDistribution: category,
			IssueDetails:         details,
		},
		KeywordTrends: KeywordTrends{
			ExtractedKeywords: keywords,
			TrendingTopics:    keywords[:min(len(keywords), 3)],
			SearchCoverage:    fmt.Sprintf("%d개 키워드 분석 완료", len(keywords)),
		},
		Recommendations: Recommendations{
			ImmediateActions: immediateActions(level),
			MonitoringPoints: []string{
				fmt.Sprintf("'%s' 키워드 지속 모니터링", focus),
				"여론 변화 추이 관찰",
				"주요 언론 보도 추적",
			},
			LongTermStrategy: []string{},
		},
	}

	done := completedSteps(s)
	info := &FinalInfo{
		WorkflowCompleted: true,
		SuccessRate:       float64(done) / totalSteps * 100,
		CompletedSteps:    done,
		TotalSteps:        totalSteps,
		Summary:           Summary(s),
	}
	return report, info
}
