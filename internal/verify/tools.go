package verify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/needze/agentflow/graph/tool"
)

// Tools exposes the verifier as verify_content, search_policies and
// analyze_risks.
func (v *Verifier) Tools() []tool.Tool {
	textSchema := func(fields ...string) map[string]interface{} {
		props := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			props[f] = map[string]interface{}{"type": "string"}
		}
		return map[string]interface{}{"type": "object", "properties": props, "required": fields[:1]}
	}

	return []tool.Tool{
		&tool.Func{
			ToolName:    "verify_content",
			Description: "콘텐츠가 플랫폼 정책과 브랜드 가이드라인에 맞는지 검증합니다.",
			Schema:      textSchema("text", "content_type"),
			Fn: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
				text, ok := tool.StringArg(input, "text")
				if !ok {
					return nil, errors.New("text parameter required (string)")
				}
				contentType, _ := tool.StringArg(input, "content_type")
				verdict, err := v.VerifyContent(ctx, text, contentType)
				if err != nil {
					return nil, err
				}
				return toMap(verdict)
			},
		},
		&tool.Func{
			ToolName:    "search_policies",
			Description: "키워드와 관련된 플랫폼 정책을 검색합니다.",
			Schema:      textSchema("keywords"),
			Fn: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
				keywords, ok := tool.StringArg(input, "keywords")
				if !ok {
					return nil, errors.New("keywords parameter required (string)")
				}
				entries, err := v.SearchPolicies(ctx, keywords)
				if err != nil {
					return nil, err
				}
				items := make([]interface{}, len(entries))
				for i, e := range entries {
					items[i] = e
				}
				return map[string]interface{}{"policies": items}, nil
			},
		},
		&tool.Func{
			ToolName:    "analyze_risks",
			Description: "콘텐츠의 잠재적 위험 요소를 분석합니다.",
			Schema:      textSchema("text"),
			Fn: func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
				text, ok := tool.StringArg(input, "text")
				if !ok {
					return nil, errors.New("text parameter required (string)")
				}
				analysis, err := v.AnalyzeRisks(ctx, text)
				if err != nil {
					return nil, err
				}
				return toMap(analysis)
			},
		},
	}
}

// toMap converts a result struct to the map shape tools return.
func toMap(v any) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
