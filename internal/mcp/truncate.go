package mcp

import (
	"fmt"
	"strings"
)

// TruncateConfig はツール出力の切り捨て設定を保持する。
// HeadLines と TailLines がともに 0 以下なら切り捨てない。
type TruncateConfig struct {
	HeadLines int // 先頭から残す行数
	TailLines int // 末尾から残す行数
}

// DefaultTruncateConfig はツール出力のデフォルト切り捨て設定。
var DefaultTruncateConfig = TruncateConfig{
	HeadLines: 200,
	TailLines: 50,
}

// Truncate は text に先頭 HeadLines 行 + 末尾 TailLines 行を残す切り捨てを適用する。
// 合計行数が HeadLines+TailLines 以下なら text をそのまま返す。
func Truncate(text string, cfg TruncateConfig) string {
	if cfg.HeadLines <= 0 && cfg.TailLines <= 0 {
		return text
	}
	head, tail := max(cfg.HeadLines, 0), max(cfg.TailLines, 0)

	lines := strings.Split(text, "\n")
	total := len(lines)
	if head+tail >= total {
		return text
	}

	omitted := total - head - tail
	var sb strings.Builder
	for _, l := range lines[:head] {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "\n--- %d lines omitted ---\n\n", omitted)
	sb.WriteString(strings.Join(lines[total-tail:], "\n"))
	return sb.String()
}
