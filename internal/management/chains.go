package management

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/needze/agentflow/graph/model"
	"github.com/needze/agentflow/internal/textutil"
)

// Sampling settings the chain models should be built with.
const (
	KeywordTemperature  = 0.3
	AnalysisTemperature = 0.1
)

// keywordReply is the JSON the keyword model returns.
type keywordReply struct {
	Keywords  []string `json:"keywords" jsonschema:"description=Issue keywords ordered by importance"`
	Reasoning string   `json:"reasoning" jsonschema:"description=Why these keywords were chosen"`
}

// analysisReply is the JSON the analysis model returns.
type analysisReply struct {
	IsIssue         bool    `json:"is_issue"`
	SeverityLevel   int     `json:"severity_level" jsonschema:"minimum=1,maximum=4"`
	IssueCategory   string  `json:"issue_category" jsonschema:"enum=발언,enum=행동,enum=컨텐츠,enum=개인"`
	Summary         string  `json:"summary"`
	PotentialImpact string  `json:"potential_impact"`
	ConfidenceScore float64 `json:"confidence_score" jsonschema:"minimum=0,maximum=1"`
	Reasoning       string  `json:"reasoning"`
}

// KeywordSchema is the response schema for the keyword model.
func KeywordSchema() any { return model.GenerateSchema[keywordReply]() }

// AnalysisSchema is the response schema for the analysis model.
func AnalysisSchema() any { return model.GenerateSchema[analysisReply]() }

const keywordSystemPrompt = `You monitor news about a Korean entertainer.
From the search results, extract short Korean keywords naming the topics, events or controversies worth a follow-up search.
Reply with JSON: {"keywords": [...], "reasoning": "..."}.`

const analysisSystemPrompt = `You assess whether a news article describes a reputational issue for a Korean entertainer.
Categories: 발언 (statements), 행동 (behaviour), 컨텐츠 (content), 개인 (private life).
Severity: 1 minor, 2 moderate, 3 serious, 4 critical.
Reply with JSON: {"is_issue", "severity_level", "issue_category", "summary", "potential_impact", "confidence_score", "reasoning"}.`

// KeywordExtractor asks a model for follow-up search keywords.
type KeywordExtractor struct {
	Model  model.ChatModel
	Logger *zap.Logger
}

// Extract returns at most target keywords drawn from the top five results.
func (k *KeywordExtractor) Extract(ctx context.Context, results []SearchResult, target int) ([]string, error) {
	if len(results) == 0 {
		return nil, &KeywordExtractionError{Message: "검색 결과가 없어 키워드를 추출할 수 없습니다"}
	}

	var b strings.Builder
	for i, r := range results {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "[결과 %d]\n제목: %s\n내용: %s...\n출처: %s\n\n", i+1, r.Title, textutil.Head(r.Content, 300), r.Source)
	}

	out, err := k.Model.Chat(ctx, []model.Message{
		model.System(keywordSystemPrompt),
		model.User(fmt.Sprintf("Extract %d keywords.\n\n%s", target, textutil.CleanText(b.String()))),
	}, nil)
	if err != nil {
		return nil, &KeywordExtractionError{Message: "모델 호출 실패", Err: err}
	}

	var reply keywordReply
	if err := model.DecodeJSON(out.Text, &reply); err != nil {
		return nil, &LLMResponseError{Err: err}
	}
	if len(reply.Keywords) == 0 {
		return nil, &KeywordExtractionError{Message: "LLM이 키워드를 반환하지 않았습니다"}
	}
	if len(reply.Keywords) > target {
		reply.Keywords = reply.Keywords[:target]
	}
	return textutil.CleanKeywords(reply.Keywords), nil
}

// SafeExtract is Extract with failures logged and turned into an empty
// list.
func (k *KeywordExtractor) SafeExtract(ctx context.Context, results []SearchResult, target int) []string {
	keywords, err := k.Extract(ctx, results, target)
	if err != nil {
		orNop(k.Logger).Warn("keyword extraction failed", zap.Error(err))
		return []string{}
	}
	return keywords
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// IssueAnalyzer asks a model whether a search result describes an issue.
type IssueAnalyzer struct {
	Model  model.ChatModel
	Logger *zap.Logger
}

// Analyze classifies r.
func (a *IssueAnalyzer) Analyze(ctx context.Context, r SearchResult) (IssueAnalysis, error) {
	prompt := fmt.Sprintf("제목: %s\n내용: %s\n출처: %s\n게시일: %s\nURL: %s\n관련성: %.2f",
		r.Title, r.Content, r.Source, r.PublishedDate, r.URL, r.RelevanceScore)

	out, err := a.Model.Chat(ctx, []model.Message{
		model.System(analysisSystemPrompt),
		model.User(prompt),
	}, nil)
	if err != nil {
		return IssueAnalysis{}, &IssueAnalysisError{Message: "모델 호출 실패", Err: err}
	}

	var reply analysisReply
	if err := model.DecodeJSON(out.Text, &reply); err != nil {
		return IssueAnalysis{}, &LLMResponseError{Err: err}
	}

	analysis := IssueAnalysis{
		OriginalResult:    r,
		IsIssue:           reply.IsIssue,
		SeverityLevel:     reply.SeverityLevel,
		IssueCategory:     reply.IssueCategory,
		Summary:           textutil.Truncate(reply.Summary, summaryLimit),
		PotentialImpact:   textutil.Truncate(reply.PotentialImpact, impactLimit),
		ConfidenceScore:   reply.ConfidenceScore,
		AnalysisReasoning: textutil.Truncate(reply.Reasoning, reasoningLimit),
	}
	if err := analysis.Validate(); err != nil {
		return IssueAnalysis{}, &IssueAnalysisError{Message: "잘못된 분석 결과", Err: err}
	}
	return analysis, nil
}

// SafeAnalyze is Analyze with failures replaced by a placeholder analysis
// marked Failed. Cancellation is still reported.
func (a *IssueAnalyzer) SafeAnalyze(ctx context.Context, r SearchResult) (IssueAnalysis, error) {
	analysis, err := a.Analyze(ctx, r)
	if err == nil {
		return analysis, nil
	}
	if errors.Is(err, context.Canceled) {
		return IssueAnalysis{}, err
	}
	orNop(a.Logger).Warn("issue analysis failed", zap.String("url", r.URL), zap.Error(err))
	return fallbackAnalysis(r), nil
}
