package schema

import "strings"

// ExtractText は Text ブロックのテキストを出現順に改行で連結して返す。
// Text 以外のブロックは読み飛ばす。Text ブロックが無ければ空文字列。
//
// 出力を単一 Text ブロックに包んで再適用しても結果は変わらない。
func ExtractText(blocks []Block) string {
	var parts []string
	for _, b := range blocks {
		switch b := b.(type) {
		case Text:
			parts = append(parts, b.Text)
		case ToolUse, ToolResult:
			// テキストではない
		}
	}
	return strings.Join(parts, "\n")
}

// FirstToolResult は先頭ブロックが ToolResult なら true を返す。
func FirstToolResult(blocks []Block) bool {
	if len(blocks) == 0 {
		return false
	}
	_, ok := blocks[0].(ToolResult)
	return ok
}

// ToolResults は blocks 中の ToolResult を出現順に返す。
func ToolResults(blocks []Block) []ToolResult {
	var out []ToolResult
	for _, b := range blocks {
		if tr, ok := b.(ToolResult); ok {
			out = append(out, tr)
		}
	}
	return out
}
