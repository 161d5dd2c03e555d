package management

import (
	"time"

	"github.com/needze/agentflow/internal/search"
)

// AlertLevel classifies the outcome of issue analysis.
type AlertLevel string

// Alert levels.
const (
	AlertCritical         AlertLevel = "critical"
	AlertComplex          AlertLevel = "complex"
	AlertNormal           AlertLevel = "normal"
	AlertNone             AlertLevel = "none"
	AlertInsufficientData AlertLevel = "insufficient_data"
)

// State is the management workflow state.
//
// Result and keyword slices distinguish "never produced" (nil) from
// "produced, but empty" (non-nil, zero length); the report's step
// accounting depends on it.
type State struct {
	RunID string `json:"run_id,omitempty"`
	Query string `json:"query"`

	InitialSearchResults  []search.Result `json:"initial_search_results"`
	ExtractedKeywords     []string        `json:"extracted_keywords"`
	DetailedSearchResults []search.Result `json:"detailed_search_results"`
	AnalyzedIssues        []IssueAnalysis `json:"analyzed_issues"`

	ErrorMessages []string `json:"error_messages"`

	ExtractionAttempts      int `json:"extraction_attempts,omitempty"`
	InitialSearchRetryCount int `json:"initial_search_retry_count,omitempty"`

	ProcessingMode  string   `json:"processing_mode,omitempty"`
	PendingKeywords []string `json:"pending_keywords,omitempty"`

	AlertLevel         AlertLevel `json:"alert_level,omitempty"`
	HighSeverityCount  int        `json:"high_severity_count,omitempty"`
	FailedAnalysisRate float64    `json:"failed_analysis_rate,omitempty"`

	EscalationInfo              *EscalationInfo       `json:"escalation_info,omitempty"`
	DetailedAnalysisInfo        *DetailedAnalysisInfo `json:"detailed_analysis_info,omitempty"`
	ParallelProcessingCompleted bool                  `json:"parallel_processing_completed,omitempty"`

	FinalReport *Report    `json:"final_report,omitempty"`
	FinalInfo   *FinalInfo `json:"final_info,omitempty"`
}

// EscalationInfo is recorded when several high-severity issues are found.
type EscalationInfo struct {
	Triggered                  bool      `json:"escalation_triggered"`
	HighSeverityCount          int       `json:"high_severity_count"`
	Timestamp                  time.Time `json:"escalation_timestamp"`
	RequiresImmediateAttention bool      `json:"requires_immediate_attention"`
}

// DetailedAnalysisInfo is recorded when many analyses fell back.
type DetailedAnalysisInfo struct {
	Triggered          bool    `json:"detailed_analysis_triggered"`
	ComplexityScore    float64 `json:"complexity_score"`
	AdditionalAnalysis bool    `json:"additional_analysis_performed"`
	AnalysisConfidence string  `json:"analysis_confidence"`
}

// Reduce merges a node's delta into the state. Slices, pointers and
// non-zero scalars in delta replace the previous value. ErrorMessages is
// replaced wholesale: nodes append by sending the full new list and prune
// by sending a filtered one.
func Reduce(prev, delta State) State {
	if delta.RunID != "" {
		prev.RunID = delta.RunID
	}
	if delta.Query != "" {
		prev.Query = delta.Query
	}
	if delta.InitialSearchResults != nil {
		prev.InitialSearchResults = delta.InitialSearchResults
	}
	if delta.ExtractedKeywords != nil {
		prev.ExtractedKeywords = delta.ExtractedKeywords
	}
	if delta.DetailedSearchResults != nil {
		prev.DetailedSearchResults = delta.DetailedSearchResults
	}
	if delta.AnalyzedIssues != nil {
		prev.AnalyzedIssues = delta.AnalyzedIssues
	}
	if delta.ErrorMessages != nil {
		prev.ErrorMessages = delta.ErrorMessages
	}
	if delta.ExtractionAttempts != 0 {
		prev.ExtractionAttempts = delta.ExtractionAttempts
	}
	if delta.InitialSearchRetryCount != 0 {
		prev.InitialSearchRetryCount = delta.InitialSearchRetryCount
	}
	if delta.ProcessingMode != "" {
		prev.ProcessingMode = delta.ProcessingMode
	}
	if delta.PendingKeywords != nil {
		prev.PendingKeywords = delta.PendingKeywords
	}
	if delta.AlertLevel != "" {
		prev.AlertLevel = delta.AlertLevel
	}
	if delta.HighSeverityCount != 0 {
		prev.HighSeverityCount = delta.HighSeverityCount
	}
	if delta.FailedAnalysisRate != 0 {
		prev.FailedAnalysisRate = delta.FailedAnalysisRate
	}
	if delta.EscalationInfo != nil {
		prev.EscalationInfo = delta.EscalationInfo
	}
	if delta.DetailedAnalysisInfo != nil {
		prev.DetailedAnalysisInfo = delta.DetailedAnalysisInfo
	}
	if delta.ParallelProcessingCompleted {
		prev.ParallelProcessingCompleted = true
	}
	if delta.FinalReport != nil {
		prev.FinalReport = delta.FinalReport
	}
	if delta.FinalInfo != nil {
		prev.FinalInfo = delta.FinalInfo
	}
	return prev
}

// withError returns a copy of the state's error list with msg appended.
func (s State) withError(msg string) []string {
	out := make([]string, 0, len(s.ErrorMessages)+1)
	out = append(out, s.ErrorMessages...)
	return append(out, msg)
}

// errorsWithout returns the error list minus messages containing any of
// the substrings. The result is never nil so it always replaces.
func (s State) errorsWithout(substrings ...string) []string {
	out := make([]string, 0, len(s.ErrorMessages))
	for _, msg := range s.ErrorMessages {
		if !containsAny(msg, substrings) {
			out = append(out, msg)
		}
	}
	return out
}

// RealIssues returns the analyses flagged as issues.
func (s State) RealIssues() []IssueAnalysis {
	var out []IssueAnalysis
	for _, a := range s.AnalyzedIssues {
		if a.IsIssue {
			out = append(out, a)
		}
	}
	return out
}
