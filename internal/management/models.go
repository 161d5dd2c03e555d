package management

import (
	"fmt"
	"strings"

	"github.com/needze/agentflow/internal/search"
)

// SearchResult is a validated search hit.
type SearchResult = search.Result

// SearchError is a failed search.
type SearchError = search.Error

// Issue categories accepted from the analyzer.
var validCategories = []string{"발언", "행동", "컨텐츠", "개인"}

// Text limits applied to analyzer output, in runes.
const (
	summaryLimit   = 200
	impactLimit    = 300
	reasoningLimit = 400
)

// IssueAnalysis is the analyzer's verdict on one search result.
type IssueAnalysis struct {
	OriginalResult    SearchResult `json:"original_result"`
	IsIssue           bool         `json:"is_issue"`
	SeverityLevel     int          `json:"severity_level"`
	IssueCategory     string       `json:"issue_category"`
	Summary           string       `json:"summary"`
	PotentialImpact   string       `json:"potential_impact"`
	ConfidenceScore   float64      `json:"confidence_score"`
	AnalysisReasoning string       `json:"analysis_reasoning"`

	// Failed marks the placeholder returned when analysis did not succeed.
	Failed bool `json:"failed,omitempty"`
}

// Validate checks severity, category and confidence ranges.
func (a IssueAnalysis) Validate() error {
	if a.SeverityLevel < 1 || a.SeverityLevel > 4 {
		return fmt.Errorf("severity level %d out of 1..4", a.SeverityLevel)
	}
	valid := false
	for _, c := range validCategories {
		if a.IssueCategory == c {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid issue category %q", a.IssueCategory)
	}
	if a.ConfidenceScore < 0 || a.ConfidenceScore > 1 {
		return fmt.Errorf("confidence score %v out of [0,1]", a.ConfidenceScore)
	}
	return nil
}

// HighSeverity reports whether a is a real issue of severity 3 or more.
func (a IssueAnalysis) HighSeverity() bool {
	return a.IsIssue && a.SeverityLevel >= 3
}

// fallbackAnalysis is recorded for a result the analyzer could not handle.
func fallbackAnalysis(r SearchResult) IssueAnalysis {
	return IssueAnalysis{
		OriginalResult:    r,
		IsIssue:           false,
		SeverityLevel:     1,
		IssueCategory:     "기타",
		Summary:           "분석 실패",
		PotentialImpact:   "분석할 수 없음",
		ConfidenceScore:   0,
		AnalysisReasoning: "",
		Failed:            true,
	}
}

// KeywordExtractionError reports that no usable keywords were produced.
type KeywordExtractionError struct {
	Message string
	Err     error
}

func (e *KeywordExtractionError) Error() string {
	if e.Err != nil {
		return "키워드 추출 실패: " + e.Message + ": " + e.Err.Error()
	}
	return "키워드 추출 실패: " + e.Message
}

func (e *KeywordExtractionError) Unwrap() error { return e.Err }

// IssueAnalysisError reports an analysis that failed validation.
type IssueAnalysisError struct {
	Message string
	Err     error
}

func (e *IssueAnalysisError) Error() string {
	if e.Err != nil {
		return "이슈 분석 실패: " + e.Message + ": " + e.Err.Error()
	}
	return "이슈 분석 실패: " + e.Message
}

func (e *IssueAnalysisError) Unwrap() error { return e.Err }

// LLMResponseError reports a model reply that could not be decoded.
type LLMResponseError struct {
	Err error
}

func (e *LLMResponseError) Error() string {
	return "LLM JSON 응답 파싱 실패: " + e.Err.Error()
}

func (e *LLMResponseError) Unwrap() error { return e.Err }

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
