package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"
)

// ツール出力の折りたたみ
const (
	toolFoldThreshold = 5
	toolPreviewLines  = 3
)

// renderEntry は 1 エントリーをビューポート用にレンダリングする。
func renderEntry(e *entry, width int, expanded bool) string {
	switch e.kind {
	case entryUser:
		return renderUserInputBlock(e.text)
	case entryAssistant:
		return renderAssistantBlock(e, width)
	case entryToolCall:
		return renderToolCallBlock(e.tool, e.text, width)
	case entryToolResult:
		return renderToolResultBlock(e.text, e.isError, width, expanded)
	case entryError:
		return errorStyle.Render("✗ "+e.text) + "\n"
	default:
		return systemStyle.Render(e.text) + "\n"
	}
}

// renderUserInputBlock はユーザー入力ブロックをハイライト背景でレンダリングする。
// Format: > text
func renderUserInputBlock(text string) string {
	return userInputBlockStyle.Render("> "+text) + "\n"
}

// renderAssistantBlock はアシスタントの応答を Markdown としてレンダリングする。
// 幅が変わらない限り glamour の出力を使い回す。
func renderAssistantBlock(e *entry, width int) string {
	if e.text == "" {
		return ""
	}
	if e.rendered != "" && e.renderedWidth == width {
		return e.rendered
	}
	rendered, err := renderMarkdown(e.text, width)
	if err != nil {
		// フォールバック: プレーンテキスト
		return e.text + "\n"
	}
	e.rendered, e.renderedWidth = rendered, width
	return rendered
}

// renderMarkdown は glamour を使って Markdown をターミナル用にレンダリングする。
// ダークスタイルを明示指定（TUI は常にダークターミナルで使用される想定）。
// WithAutoStyle() は非 TTY 環境（テスト・CI）で plain にフォールバックするため使用しない。
// glamour の dark スタイルは左右マージンを追加するため、width を縮小して渡す。
func renderMarkdown(text string, width int) (string, error) {
	// glamour dark スタイルのマージン分を差し引く（左2+右2=4）
	wrapWidth := max(width-4, 20)
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return "", err
	}
	return r.Render(text)
}

// renderToolCallBlock はツール呼び出しを 1 行で表示する。
// Format: ● name {"doc_id":"plan.md"}
func renderToolCallBlock(tool, input string, width int) string {
	line := "● " + tool
	if input != "" && input != "null" && input != "{}" {
		line += " " + input
	}
	return toolCallStyle.Render(truncateLine(line, width)) + "\n"
}

// renderToolResultBlock はツール結果をレンダリングする。
// Format:
//
//	⎿  output line 1
//	   output line 2
//	   … +N lines (ctrl+o)
func renderToolResultBlock(content string, isError bool, width int, expanded bool) string {
	lines := strings.Split(toolResultText(content), "\n")
	total := len(lines)
	folded := false
	if !expanded && total > toolFoldThreshold {
		folded = true
		lines = lines[:toolPreviewLines]
	}

	const outputPrefix = "  ⎿  "
	const contPrefix = "     "

	style := toolOutputStyle
	if isError {
		style = toolErrorStyle
	}

	var sb strings.Builder
	for i, line := range lines {
		prefix := contPrefix
		if i == 0 {
			prefix = outputPrefix
		}
		sb.WriteString(style.Render(truncateLine(prefix+line, width)))
		sb.WriteString("\n")
	}
	if folded {
		sb.WriteString(foldIndicatorStyle.Render(fmt.Sprintf("     … +%d lines (ctrl+o)", total-toolPreviewLines)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// toolResultText はツール結果の JSON 配列を改行区切りのテキストに戻す。
// JSON 配列でなければ（エラーメッセージなど）そのまま返す。
func toolResultText(content string) string {
	var texts []string
	if err := json.Unmarshal([]byte(content), &texts); err != nil {
		return content
	}
	return strings.Join(texts, "\n")
}

// renderThinking はターン実行中のスピナー行
func renderThinking(spinnerFrame string) string {
	return toolCallStyle.Render(spinnerFrame+" Thinking...") + "\n"
}

// truncateLine は表示幅 width に収まるよう末尾を切り詰める（全角文字を考慮）。
func truncateLine(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
