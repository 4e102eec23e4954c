package brain

import "strings"

// SchemaKeywords は JSON Schema から Gemini の関数宣言へ引き継がれるキーワード。
// これ以外のキーワード（minLength, enum, items, additionalProperties 等）は黙って破棄される。
var SchemaKeywords = []string{"type", "description", "properties", "required"}

// ConvertToolSchema は MCP ツールの input schema を Gemini の parameters 形式へ変換する。
// type は大文字化（"object" → "OBJECT"）し、properties は再帰的に同じ規則で変換する。
// 入力が空なら nil を返す。
func ConvertToolSchema(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any)

	if t, ok := schemaType(in["type"]); ok {
		out["type"] = strings.ToUpper(t)
	}
	if d, ok := in["description"].(string); ok {
		out["description"] = d
	}
	if props, ok := in["properties"].(map[string]any); ok {
		converted := make(map[string]any, len(props))
		for name, p := range props {
			ps, ok := p.(map[string]any)
			if !ok {
				continue
			}
			c := ConvertToolSchema(ps)
			if c == nil {
				c = map[string]any{}
			}
			converted[name] = c
		}
		out["properties"] = converted
	}
	if req := stringList(in["required"]); req != nil {
		out["required"] = req
	}
	return out
}

// schemaType は "type" の値を取り出す。
// ["string", "null"] のような配列なら最初の非 null 型を使う。
func schemaType(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s != "null" {
				return s, true
			}
		}
	case []string:
		for _, s := range t {
			if s != "null" {
				return s, true
			}
		}
	}
	return "", false
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
