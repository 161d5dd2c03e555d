package verify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/needze/agentflow/graph/model"
)

// ContentType is the kind of Instagram post.
type ContentType string

const (
	TypeImage ContentType = "image"
	TypeVideo ContentType = "video"
	TypeText  ContentType = "text"
	TypeStory ContentType = "story"
	TypeReel  ContentType = "reel"
)

// ParseContentType returns the content type named s, or false.
func ParseContentType(s string) (ContentType, bool) {
	switch t := ContentType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeImage, TypeVideo, TypeText, TypeStory, TypeReel:
		return t, true
	default:
		return "", false
	}
}

// ContentCategory is the topic of a post.
type ContentCategory string

const (
	CategoryEntertainment ContentCategory = "entertainment"
	CategoryNews          ContentCategory = "news"
	CategoryLifestyle     ContentCategory = "lifestyle"
	CategoryTechnology    ContentCategory = "technology"
	CategoryEducation     ContentCategory = "education"
	CategoryOther         ContentCategory = "other"
)

// ParseCategory maps s to a category. Unknown names are CategoryOther.
func ParseCategory(s string) ContentCategory {
	switch c := ContentCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryEntertainment, CategoryNews, CategoryLifestyle, CategoryTechnology, CategoryEducation:
		return c
	default:
		return CategoryOther
	}
}

// CheckRequest describes a post to review.
type CheckRequest struct {
	Text            string          `json:"content_text"`
	Type            ContentType     `json:"content_type,omitempty"`
	Category        ContentCategory `json:"category,omitempty"`
	TargetAudience  string          `json:"target_audience,omitempty"`
	BrandGuidelines string          `json:"brand_guidelines,omitempty"`
}

// CheckResult is a post review.
type CheckResult struct {
	IsApproved  bool            `json:"is_approved"`
	Score       float64         `json:"score"`
	Reasons     []string        `json:"reasons"`
	Warnings    []string        `json:"warnings"`
	Suggestions []string        `json:"suggestions"`
	RiskLevel   string          `json:"risk_level"`
	Category    ContentCategory `json:"category"`
	Tags        []string        `json:"tags"`
}

// ContentChecker reviews posts against Instagram guidelines, the target
// audience and brand guidelines.
type ContentChecker struct {
	Verifier *Verifier
}

const checkSystemPrompt = "당신은 인스타그램 컨텐츠 검수 전문가입니다. 주어진 컨텐츠가 인스타그램에 적합한지 분석하고 JSON 형태로 결과를 반환합니다."

func checkPrompt(req CheckRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "다음 인스타그램 컨텐츠를 검수해주세요:\n\n**컨텐츠 유형**: %s\n**컨텐츠 텍스트**: %s\n\n", req.Type, req.Text)
	if req.Category != "" {
		fmt.Fprintf(&b, "**카테고리**: %s\n", req.Category)
	}
	if req.TargetAudience != "" {
		fmt.Fprintf(&b, "**타겟 오디언스**: %s\n", req.TargetAudience)
	}
	if req.BrandGuidelines != "" {
		fmt.Fprintf(&b, "**브랜드 가이드라인**: %s\n", req.BrandGuidelines)
	}
	b.WriteString(`
다음 기준으로 검수해주세요:
1. 인스타그램 커뮤니티 가이드라인 준수 여부
2. 적절성 및 품질
3. 타겟 오디언스 적합성
4. 브랜드 가이드라인 준수 여부
5. 잠재적 위험 요소

다음 JSON 형태로 결과를 반환해주세요:
{"is_approved": true/false, "score": 0.0-1.0, "reasons": [], "warnings": [], "suggestions": [],
 "risk_level": "low/medium/high", "category": "카테고리명", "tags": []}`)
	return b.String()
}

type checkReply struct {
	IsApproved  bool     `json:"is_approved"`
	Score       float64  `json:"score"`
	Reasons     []string `json:"reasons"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
	RiskLevel   string   `json:"risk_level"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

// Check reviews req. It fails with ErrNotConfigured when no model is set
// and with the model error when every model failed. A reply that is not
// JSON is graded by keyword.
func (c *ContentChecker) Check(ctx context.Context, req CheckRequest) (CheckResult, error) {
	if req.Type == "" {
		req.Type = TypeText
	}

	reply, err := c.Verifier.ask(ctx, checkSystemPrompt, checkPrompt(req))
	if err != nil {
		return CheckResult{}, err
	}

	var r checkReply
	if err := model.DecodeJSON(reply, &r); err != nil {
		c.Verifier.logger().Debug("check reply is not JSON, grading by keyword", zap.Error(err))
		return fallbackParse(reply), nil
	}

	level := r.RiskLevel
	if level == "" {
		level = RiskMedium
	}
	return CheckResult{
		IsApproved:  r.IsApproved,
		Score:       r.Score,
		Reasons:     orEmpty(r.Reasons),
		Warnings:    orEmpty(r.Warnings),
		Suggestions: orEmpty(r.Suggestions),
		RiskLevel:   level,
		Category:    ParseCategory(r.Category),
		Tags:        orEmpty(r.Tags),
	}, nil
}

// fallbackParse grades a free-text model reply by keyword.
func fallbackParse(reply string) CheckResult {
	level := keywordRisk(strings.ToLower(reply),
		[]string{"폭력", "성적", "혐오"},
		[]string{"폭력", "성적", "혐오", "차별", "불법", "스팸"})
	approved := level == RiskLow
	score := 0.3
	if approved {
		score = 0.8
	}
	return CheckResult{
		IsApproved:  approved,
		Score:       score,
		Reasons:     []string{"자동 분석 결과"},
		Warnings:    []string{},
		Suggestions: []string{"수동 검토 권장"},
		RiskLevel:   level,
		Category:    CategoryOther,
		Tags:        []string{},
	}
}
