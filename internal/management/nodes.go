package management

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/needze/agentflow/graph"
	"github.com/needze/agentflow/internal/search"
	"github.com/needze/agentflow/internal/textutil"
)

// Node IDs.
const (
	NodeInitialSearch          = "initial_search"
	NodeKeywordExtraction      = "keyword_extraction"
	NodeDetailedSearch         = "detailed_search"
	NodeIssueAnalysis          = "issue_analysis"
	NodeRetryInitialSearch     = "retry_initial_search"
	NodeRetryKeywordExtraction = "retry_keyword_extraction"
	NodeFallbackKeywords       = "fallback_keywords"
	NodeUseDefaultKeywords     = "use_default_keywords"
	NodeEscalateIssues         = "escalate_issues"
	NodeDetailedAnalysis       = "detailed_analysis"
	NodeSkipToFinalize         = "skip_to_finalize"
	NodeParallelSearch         = "parallel_search"
	NodeFinalize               = "finalize"
)

// Keyword targets for the first extraction and its retry.
const (
	keywordTarget      = 8
	retryKeywordTarget = 6
)

// Keywords merged into thin extraction results.
var fallbackKeywords = []string{"음악활동", "드라마", "영화", "광고", "팬미팅", "앨범", "콘서트", "소셜미디어", "발언", "행동"}

// Keywords used when extraction gives up.
var defaultKeywords = []string{"아이유", "이지은", "음악", "드라마", "가수", "배우"}

type result = graph.NodeResult[State]

func goTo(delta State, node string) result {
	return result{Delta: delta, Route: graph.Goto(node)}
}

func (w *Workflow) initialSearch(ctx context.Context, s State) result {
	if !textutil.ValidateQuery(s.Query) {
		return goTo(State{ErrorMessages: s.withError(fmt.Sprintf("유효하지 않은 검색 쿼리: '%s'", s.Query))}, NodeRetryInitialSearch)
	}

	results := search.SafeSearch(w.logger, func() ([]search.Result, error) {
		return search.InitialSearch(ctx, w.searcher, s.Query)
	})
	if err := ctx.Err(); err != nil {
		return result{Err: err}
	}

	switch n := len(results); {
	case n == 0:
		return goTo(State{
			ErrorMessages:        s.withError("초기 검색에서 결과를 찾을 수 없습니다."),
			InitialSearchResults: []search.Result{},
		}, NodeFallbackKeywords)
	case n >= 5:
		return goTo(State{InitialSearchResults: results}, NodeKeywordExtraction)
	case n >= 2:
		return goTo(State{InitialSearchResults: results}, NodeFallbackKeywords)
	default:
		return goTo(State{InitialSearchResults: results}, NodeRetryInitialSearch)
	}
}

func (w *Workflow) keywordExtraction(ctx context.Context, s State) result {
	if len(s.InitialSearchResults) == 0 {
		return goTo(State{
			ErrorMessages:     s.withError("키워드 추출을 위한 검색 결과가 없습니다."),
			ExtractedKeywords: []string{},
		}, NodeUseDefaultKeywords)
	}

	keywords := w.keywords.SafeExtract(ctx, s.InitialSearchResults, keywordTarget)
	if err := ctx.Err(); err != nil {
		return result{Err: err}
	}

	switch n := len(keywords); {
	case n >= 5:
		return goTo(State{ExtractedKeywords: keywords}, NodeDetailedSearch)
	case n >= 3:
		return goTo(State{ExtractedKeywords: keywords}, NodeUseDefaultKeywords)
	case s.ExtractionAttempts < 2:
		return goTo(State{ExtractionAttempts: s.ExtractionAttempts + 1}, NodeRetryKeywordExtraction)
	default:
		w.logger.Warn("keyword extraction retries exhausted, using defaults", zap.String("run_id", s.RunID))
		return goTo(State{
			ErrorMessages:     s.withError("키워드 추출 최대 재시도 초과. 기본 키워드를 사용합니다."),
			ExtractedKeywords: []string{},
		}, NodeUseDefaultKeywords)
	}
}

func (w *Workflow) detailedSearch(ctx context.Context, s State) result {
	if len(s.ExtractedKeywords) == 0 {
		return goTo(State{
			ErrorMessages:         s.withError("세부 검색을 위한 키워드가 없습니다."),
			DetailedSearchResults: []search.Result{},
		}, NodeSkipToFinalize)
	}
	if !textutil.ValidateQuery(s.Query) {
		return goTo(State{
			ErrorMessages:         s.withError(fmt.Sprintf("유효하지 않은 기본 쿼리: '%s'", s.Query)),
			DetailedSearchResults: []search.Result{},
		}, NodeSkipToFinalize)
	}

	if len(s.ExtractedKeywords) > 10 {
		return goTo(State{ProcessingMode: "parallel", PendingKeywords: s.ExtractedKeywords}, NodeParallelSearch)
	}

	var all []search.Result
	for _, kw := range s.ExtractedKeywords {
		results := search.SafeSearch(w.logger, func() ([]search.Result, error) {
			return search.DetailedSearch(ctx, w.searcher, kw, s.Query)
		})
		if err := ctx.Err(); err != nil {
			return result{Err: err}
		}
		all = append(all, results...)
	}

	unique := search.DedupeByURL(all)
	w.logger.Info("detailed search done",
		zap.String("run_id", s.RunID),
		zap.Int("keywords", len(s.ExtractedKeywords)),
		zap.Int("results", len(all)),
		zap.Int("unique", len(unique)))

	if len(unique) >= 2 {
		return goTo(State{DetailedSearchResults: unique}, NodeIssueAnalysis)
	}
	return goTo(State{DetailedSearchResults: unique}, NodeSkipToFinalize)
}

func (w *Workflow) issueAnalysis(ctx context.Context, s State) result {
	results := s.DetailedSearchResults
	if len(results) == 0 {
		return result{
			Delta: State{
				ErrorMessages:  s.withError("이슈 분석을 위한 검색 결과가 없습니다."),
				AnalyzedIssues: []IssueAnalysis{},
			},
			Route: graph.Stop(),
		}
	}

	analyses, err := w.analyzeAll(ctx, results)
	if err != nil {
		return result{Err: err}
	}

	var failed, issues, high int
	for _, a := range analyses {
		if a.Failed {
			failed++
		}
		if a.IsIssue {
			issues++
		}
		if a.HighSeverity() {
			high++
		}
	}
	w.logger.Info("issue analysis done",
		zap.String("run_id", s.RunID),
		zap.Int("analyzed", len(analyses)),
		zap.Int("issues", issues),
		zap.Int("high_severity", high),
		zap.Int("failed", failed))

	switch {
	case high >= 3:
		return goTo(State{AnalyzedIssues: analyses, AlertLevel: AlertCritical, HighSeverityCount: high}, NodeEscalateIssues)
	case issues >= 5 && float64(failed) > float64(issues)*0.3:
		return goTo(State{
			AnalyzedIssues:     analyses,
			AlertLevel:         AlertComplex,
			FailedAnalysisRate: float64(failed) / float64(len(results)),
		}, NodeDetailedAnalysis)
	case issues > 0:
		return goTo(State{AnalyzedIssues: analyses, AlertLevel: AlertNormal}, NodeFinalize)
	default:
		return result{Delta: State{AnalyzedIssues: analyses, AlertLevel: AlertNone}, Route: graph.Stop()}
	}
}

// analyzeAll analyses results concurrently, keeping their order.
func (w *Workflow) analyzeAll(ctx context.Context, results []search.Result) ([]IssueAnalysis, error) {
	analyses := make([]IssueAnalysis, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallelLimit)
	for i, r := range results {
		g.Go(func() error {
			a, err := w.analyzer.SafeAnalyze(gctx, r)
			if err != nil {
				return err
			}
			analyses[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return analyses, nil
}

func (w *Workflow) retryInitialSearch(ctx context.Context, s State) result {
	count := s.InitialSearchRetryCount + 1
	if count > 2 {
		return goTo(State{
			InitialSearchRetryCount: count,
			ErrorMessages:           s.withError("초기 검색 최대 재시도 초과"),
		}, NodeFallbackKeywords)
	}

	results := search.SafeSearch(w.logger, func() ([]search.Result, error) {
		return search.InitialSearch(ctx, w.searcher, s.Query)
	})
	if err := ctx.Err(); err != nil {
		return result{Err: err}
	}

	if len(results) >= 2 {
		return goTo(State{
			InitialSearchResults:    results,
			InitialSearchRetryCount: count,
			ErrorMessages:           s.errorsWithout("치명적"),
		}, NodeKeywordExtraction)
	}
	return goTo(State{InitialSearchResults: results, InitialSearchRetryCount: count}, NodeFallbackKeywords)
}

func (w *Workflow) retryKeywordExtraction(ctx context.Context, s State) result {
	clean := s.errorsWithout("LLM", "키워드 추출", "JSON")

	keywords := w.keywords.SafeExtract(ctx, s.InitialSearchResults, retryKeywordTarget)
	if err := ctx.Err(); err != nil {
		return result{Err: err}
	}

	if len(keywords) >= 3 {
		return goTo(State{ExtractedKeywords: keywords, ErrorMessages: clean}, NodeDetailedSearch)
	}
	return goTo(State{ErrorMessages: clean}, NodeUseDefaultKeywords)
}

func (w *Workflow) fallbackKeywordsNode(_ context.Context, s State) result {
	merged := textutil.MergeUnique(s.ExtractedKeywords, fallbackKeywords)
	w.logger.Debug("using fallback keywords",
		zap.Int("existing", len(s.ExtractedKeywords)),
		zap.Int("merged", len(merged)))
	return result{Delta: State{ExtractedKeywords: merged}}
}

func (w *Workflow) useDefaultKeywords(_ context.Context, _ State) result {
	return result{Delta: State{ExtractedKeywords: append([]string(nil), defaultKeywords...)}}
}

func (w *Workflow) escalateIssues(_ context.Context, s State) result {
	high := 0
	for _, a := range s.AnalyzedIssues {
		if a.HighSeverity() {
			high++
		}
	}
	w.logger.Warn("escalating high severity issues", zap.String("run_id", s.RunID), zap.Int("count", high))
	return result{Delta: State{EscalationInfo: &EscalationInfo{
		Triggered:                  true,
		HighSeverityCount:          high,
		Timestamp:                  w.now(),
		RequiresImmediateAttention: true,
	}}}
}

func (w *Workflow) detailedAnalysis(_ context.Context, s State) result {
	confidence := "high"
	if s.FailedAnalysisRate > 0.5 {
		confidence = "medium"
	}
	return result{Delta: State{DetailedAnalysisInfo: &DetailedAnalysisInfo{
		Triggered:          true,
		ComplexityScore:    s.FailedAnalysisRate,
		AdditionalAnalysis: true,
		AnalysisConfidence: confidence,
	}}}
}

func (w *Workflow) skipToFinalize(_ context.Context, s State) result {
	const msg = "검색 결과가 부족하여 이슈 분석을 수행할 수 없습니다."
	w.logger.Warn("insufficient search results", zap.String("run_id", s.RunID))
	return result{Delta: State{
		AnalyzedIssues: []IssueAnalysis{},
		AlertLevel:     AlertInsufficientData,
		ErrorMessages:  s.withError(msg),
	}}
}

// parallelSearch searches every pending keyword concurrently. Results are
// concatenated in keyword order before deduplication.
func (w *Workflow) parallelSearch(ctx context.Context, s State) result {
	perKeyword := make([][]search.Result, len(s.PendingKeywords))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallelLimit)
	for i, kw := range s.PendingKeywords {
		g.Go(func() error {
			perKeyword[i] = search.SafeSearch(w.logger, func() ([]search.Result, error) {
				return search.DetailedSearch(gctx, w.searcher, kw, s.Query)
			})
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return result{Err: err}
	}

	var all []search.Result
	for _, rs := range perKeyword {
		all = append(all, rs...)
	}
	unique := search.DedupeByURL(all)
	w.logger.Info("parallel search done",
		zap.String("run_id", s.RunID),
		zap.Int("keywords", len(s.PendingKeywords)),
		zap.Int("unique", len(unique)))

	return result{Delta: State{DetailedSearchResults: unique, ParallelProcessingCompleted: true}}
}

func (w *Workflow) finalize(_ context.Context, s State) result {
	report, info := buildReport(s, w.now())
	w.logger.Info("management report ready",
		zap.String("run_id", s.RunID),
		zap.String("risk_level", string(report.ExecutiveSummary.RiskLevel)),
		zap.Float64("success_rate", info.SuccessRate))
	return result{Delta: State{FinalReport: report, FinalInfo: info}, Route: graph.Stop()}
}
