package textflow

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/needze/agentflow/graph/model"
	"github.com/needze/agentflow/internal/persona"
)

// MaxCaptionRunes is Instagram's caption limit.
const MaxCaptionRunes = 2200

// Check names reported in CheckResult.Reason.
const (
	CheckFormat  = "format_check"
	CheckSafety  = "safety_check"
	CheckPersona = "persona_check"
)

// Result messages.
const (
	MessageValid   = "Text content is valid."
	MessageInvalid = "Text content failed validation checks."
	MessageSkipped = "Skipped checks because text_content is empty."
)

// CheckResult is the outcome of the content check.
type CheckResult struct {
	Success            bool     `json:"success"`
	Reason             []string `json:"reason"`
	ContentCheckPassed bool     `json:"content_check_passed"`
	FormatCheckPassed  bool     `json:"format_check_passed"`
	SafetyCheckPassed  bool     `json:"safety_check_passed"`
	PersonaCheckPassed bool     `json:"persona_check_passed"`
	Message            string   `json:"message"`
}

// Checker validates a generated caption. Safety is a moderation model such
// as llama-guard; Judge answers YES or NO to the persona question.
type Checker struct {
	Safety model.ChatModel
	Judge  model.ChatModel
	Logger *zap.Logger
}

// Check runs the format, safety and persona checks concurrently. Blank text
// skips every check and passes.
//
// A failing model call fails its check rather than the whole check; only a
// canceled ctx is returned as an error.
func (c *Checker) Check(ctx context.Context, text string) (*CheckResult, error) {
	if strings.TrimSpace(text) == "" {
		return &CheckResult{
			Success:            true,
			Reason:             []string{},
			ContentCheckPassed: true,
			FormatCheckPassed:  true,
			SafetyCheckPassed:  true,
			PersonaCheckPassed: true,
			Message:            MessageSkipped,
		}, nil
	}

	var format, safety, personaOK bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		format = utf8.RuneCountInString(text) <= MaxCaptionRunes
		return nil
	})
	g.Go(func() error {
		safety = c.safe(gctx, text)
		return nil
	})
	g.Go(func() error {
		personaOK = c.inPersona(gctx, text)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &CheckResult{
		Reason:             []string{},
		FormatCheckPassed:  format,
		SafetyCheckPassed:  safety,
		PersonaCheckPassed: personaOK,
	}
	if !format {
		res.Reason = append(res.Reason, CheckFormat)
	}
	if !safety {
		res.Reason = append(res.Reason, CheckSafety)
	}
	if !personaOK {
		res.Reason = append(res.Reason, CheckPersona)
	}
	res.Success = len(res.Reason) == 0
	res.ContentCheckPassed = res.Success
	res.Message = MessageInvalid
	if res.Success {
		res.Message = MessageValid
	}
	return res, nil
}

func (c *Checker) safe(ctx context.Context, text string) bool {
	if c.Safety == nil {
		return false
	}
	out, err := c.Safety.Chat(ctx, []model.Message{model.User(text)}, nil)
	if err != nil {
		c.logger().Warn("safety check failed", zap.Error(err))
		return false
	}
	// llama-guard answers "safe" or "unsafe\nS<n>".
	answer := strings.ToLower(strings.TrimSpace(out.Text))
	return strings.HasPrefix(answer, "safe")
}

func (c *Checker) inPersona(ctx context.Context, text string) bool {
	if c.Judge == nil {
		return false
	}
	prompt := fmt.Sprintf(`다음은 인스타그램 인플루언서의 페르소나입니다.
%s

다음 글이 이 페르소나가 쓴 글로 자연스러운지 판단하세요. YES 또는 NO로만 답하세요.

글: %s`, persona.Profile, text)
	out, err := c.Judge.Chat(ctx, []model.Message{model.User(prompt)}, nil)
	if err != nil {
		c.logger().Warn("persona check failed", zap.Error(err))
		return false
	}
	return strings.Contains(strings.ToUpper(out.Text), "YES")
}

func (c *Checker) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
