// Package verify checks whether text is fit to publish on Instagram. A
// search-grounded model (Perplexity) is asked first; an OpenAI-compatible
// model is the fallback, and a keyword heuristic covers the rest.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/needze/agentflow/graph/model"
)

// Sampling settings the verification models are built with.
const (
	Temperature = 0.1
	MaxTokens   = 1500
)

// ErrNotConfigured is returned when neither model is available.
var ErrNotConfigured = errors.New("verify: no model configured")

// Risk levels.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Verdict is the outcome of VerifyContent.
type Verdict struct {
	IsApproved       bool     `json:"is_approved"`
	Score            float64  `json:"score"`
	Reasons          []string `json:"reasons"`
	Warnings         []string `json:"warnings"`
	Suggestions      []string `json:"suggestions"`
	RiskLevel        string   `json:"risk_level"`
	ContentType      string   `json:"content_type"`
	PolicyReferences []string `json:"policy_references"`
	SimilarCases     []string `json:"similar_cases"`
	Tags             []string `json:"tags"`
	Error            string   `json:"error,omitempty"`
}

// RiskAnalysis is the outcome of AnalyzeRisks. When the model reply is not
// JSON, Raw holds it and Error says so.
type RiskAnalysis struct {
	RiskFactors         []string `json:"risk_factors"`
	SimilarViolations   []string `json:"similar_violations"`
	RiskScore           float64  `json:"risk_score"`
	Recommendations     []string `json:"recommendations"`
	LegalConsiderations []string `json:"legal_considerations"`
	Raw                 string   `json:"content,omitempty"`
	Error               string   `json:"error,omitempty"`
}

// Verifier runs the verification prompts. Either model may be nil.
type Verifier struct {
	Primary  model.ChatModel
	Fallback model.ChatModel
	Logger   *zap.Logger
}

// Configured reports whether any model is available.
func (v *Verifier) Configured() bool {
	return v.Primary != nil || v.Fallback != nil
}

func (v *Verifier) logger() *zap.Logger {
	if v.Logger == nil {
		return zap.NewNop()
	}
	return v.Logger
}

// ask sends the prompt to the primary model and, when that fails or is
// missing, to the fallback.
func (v *Verifier) ask(ctx context.Context, system, prompt string) (string, error) {
	msgs := []model.Message{model.System(system), model.User(prompt)}

	var errs []error
	for _, m := range []model.ChatModel{v.Primary, v.Fallback} {
		if m == nil {
			continue
		}
		out, err := m.Chat(ctx, msgs, nil)
		if err == nil {
			return out.Text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		v.logger().Warn("verification model failed", zap.Error(err))
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrNotConfigured
	}
	return "", errors.Join(errs...)
}

const verifySystemPrompt = "당신은 인스타그램 컨텐츠 검증 전문가입니다. 실시간 웹 검색을 통해 최신 인스타그램 정책과 위반 사례를 확인하고, 주어진 컨텐츠가 인스타그램에 적합한지 분석합니다."

const verifyPrompt = `다음 인스타그램 컨텐츠를 검증해주세요:

컨텐츠 유형: %s
컨텐츠 텍스트: %s

실시간 웹 검색을 통해 다음을 확인해주세요:
1. 인스타그램 커뮤니티 가이드라인 및 정책
2. 유사한 컨텐츠의 위반 사례
3. 현재 인스타그램에서 금지하는 키워드나 주제
4. 최근 인스타그램 정책 변경사항
5. 해당 컨텐츠의 잠재적 위험 요소

다음 JSON 형태로 결과를 반환해주세요:
{"is_approved": true/false, "score": 0.0-1.0, "reasons": [], "warnings": [], "suggestions": [],
 "risk_level": "low/medium/high", "policy_references": [], "similar_cases": [], "tags": []}`

// verdictReply mirrors Verdict with optional fields so missing values can
// take their defaults.
type verdictReply struct {
	IsApproved       *bool    `json:"is_approved"`
	Score            *float64 `json:"score"`
	Reasons          []string `json:"reasons"`
	Warnings         []string `json:"warnings"`
	Suggestions      []string `json:"suggestions"`
	RiskLevel        string   `json:"risk_level"`
	PolicyReferences []string `json:"policy_references"`
	SimilarCases     []string `json:"similar_cases"`
	Tags             []string `json:"tags"`
}

// VerifyContent judges text of the given content type. Without a model, or
// when the reply is not JSON, the keyword heuristic decides. A failed model
// call yields an unapproved medium-risk verdict with Error set.
func (v *Verifier) VerifyContent(ctx context.Context, text, contentType string) (Verdict, error) {
	if contentType == "" {
		contentType = string(TypeText)
	}
	if !v.Configured() {
		return FallbackAnalysis(text, contentType), nil
	}

	reply, err := v.ask(ctx, verifySystemPrompt, fmt.Sprintf(verifyPrompt, contentType, text))
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		return Verdict{
			IsApproved:  false,
			Score:       0,
			Reasons:     []string{"검증 중 오류가 발생했습니다."},
			Warnings:    []string{},
			Suggestions: []string{"다시 시도해주세요."},
			RiskLevel:   RiskMedium,
			ContentType: contentType,
			Tags:        []string{},
			Error:       "검증 중 오류 발생: " + err.Error(),
		}, nil
	}

	var r verdictReply
	if err := model.DecodeJSON(reply, &r); err != nil {
		v.logger().Debug("verification reply is not JSON, using heuristic", zap.Error(err))
		return FallbackAnalysis(text, contentType), nil
	}

	out := Verdict{
		Reasons:          orEmpty(r.Reasons),
		Warnings:         orEmpty(r.Warnings),
		Suggestions:      orEmpty(r.Suggestions),
		RiskLevel:        r.RiskLevel,
		ContentType:      contentType,
		PolicyReferences: orEmpty(r.PolicyReferences),
		SimilarCases:     orEmpty(r.SimilarCases),
		Tags:             orEmpty(r.Tags),
	}
	if r.IsApproved != nil {
		out.IsApproved = *r.IsApproved
	}
	if r.Score != nil {
		out.Score = *r.Score
	}
	if out.RiskLevel == "" {
		out.RiskLevel = RiskMedium
	}
	return out, nil
}

const policySystemPrompt = "당신은 인스타그램 정책 전문가입니다. 최신 인스타그램 정책과 가이드라인을 검색하고 구조화된 정보를 제공합니다."

const policyPrompt = `다음 키워드로 인스타그램 정책 및 가이드라인을 검색해주세요: %s

정책 제목, 정책 내용 요약, 적용 대상, 위반 시 조치사항, 최신 업데이트 날짜, 관련 링크를 포함하여 JSON 형태로 반환해주세요.`

// SearchPolicies asks for the Instagram policies matching keywords. A reply
// that is not JSON is returned as a single entry holding the raw text.
func (v *Verifier) SearchPolicies(ctx context.Context, keywords string) ([]map[string]any, error) {
	reply, err := v.ask(ctx, policySystemPrompt, fmt.Sprintf(policyPrompt, keywords))
	if err != nil {
		return nil, fmt.Errorf("정책 검색 중 오류 발생: %w", err)
	}
	entries, err := decodeEntries(reply)
	if err != nil {
		return []map[string]any{{"content": reply, "error": "JSON 파싱 실패"}}, nil
	}
	return entries, nil
}

const riskSystemPrompt = "당신은 컨텐츠 위험 분석 전문가입니다. 실시간 웹 검색을 통해 컨텐츠의 잠재적 위험 요소를 분석합니다."

const riskPrompt = `다음 컨텐츠의 잠재적 위험 요소를 분석해주세요: %s

유사한 컨텐츠의 위반 사례, 관련 키워드의 위험도, 최근 제재받은 유사 컨텐츠, 법적/윤리적 문제 가능성, 브랜드 안전성 위험 요소를 확인하고
다음 JSON 형태로 결과를 반환해주세요:
{"risk_factors": [], "similar_violations": [], "risk_score": 0.0-1.0, "recommendations": [], "legal_considerations": []}`

// AnalyzeRisks asks for the risk factors of text.
func (v *Verifier) AnalyzeRisks(ctx context.Context, text string) (RiskAnalysis, error) {
	reply, err := v.ask(ctx, riskSystemPrompt, fmt.Sprintf(riskPrompt, text))
	if err != nil {
		return RiskAnalysis{}, fmt.Errorf("위험 분석 중 오류 발생: %w", err)
	}
	var out RiskAnalysis
	if err := model.DecodeJSON(reply, &out); err != nil {
		return RiskAnalysis{Raw: reply, Error: "JSON 파싱 실패"}, nil
	}
	return out, nil
}

// decodeEntries accepts a JSON array of objects or a single object.
func decodeEntries(text string) ([]map[string]any, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSpace(strings.TrimSuffix(s, "```"))

	var list []map[string]any
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		return list, nil
	}
	var one map[string]any
	if err := model.DecodeJSON(s, &one); err != nil {
		return nil, err
	}
	return []map[string]any{one}, nil
}

// Keyword lists of the heuristic.
var (
	highRiskKeywords = []string{"폭력", "성적", "혐오", "음란"}
	riskKeywords     = []string{"폭력", "성적", "혐오", "차별", "불법", "스팸", "음란", "폭력적"}
)

// FallbackAnalysis judges text by keyword alone.
func FallbackAnalysis(text, contentType string) Verdict {
	level := keywordRisk(strings.ToLower(text), highRiskKeywords, riskKeywords)
	approved := level == RiskLow

	out := Verdict{
		IsApproved:       approved,
		Score:            0.3,
		Warnings:         []string{},
		RiskLevel:        level,
		ContentType:      contentType,
		PolicyReferences: []string{},
		SimilarCases:     []string{},
		Tags:             []string{},
	}
	if approved {
		out.Score = 0.8
		out.Reasons = []string{"컨텐츠가 인스타그램 가이드라인에 적합합니다."}
		out.Suggestions = []string{"해시태그를 추가하여 가시성을 높이세요."}
	} else {
		out.Reasons = []string{"위험 키워드가 포함되어 있어 검토가 필요합니다."}
		out.Suggestions = []string{"컨텐츠를 수정하거나 재검토하세요."}
	}
	switch level {
	case RiskMedium:
		out.Warnings = []string{"일부 민감한 내용이 포함되어 있습니다."}
	case RiskHigh:
		out.Warnings = []string{"부적절한 내용이 포함되어 있습니다."}
	}
	return out
}

func keywordRisk(text string, high, medium []string) string {
	for _, kw := range high {
		if strings.Contains(text, kw) {
			return RiskHigh
		}
	}
	for _, kw := range medium {
		if strings.Contains(text, kw) {
			return RiskMedium
		}
	}
	return RiskLow
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
