package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/0x6d61/mcpchat/pkg/schema"
)

// ExportMarkdown は会話を Markdown として w に書き出す
func ExportMarkdown(w io.Writer, title string, msgs []schema.Message) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\nExported: %s\n\n", title, time.Now().Format("2006-01-02 15:04:05"))
	for _, m := range msgs {
		sb.WriteString(formatEntry(m))
	}
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("transcript: write markdown: %w", err)
	}
	return nil
}

// ExportFile は会話を path に Markdown で保存する。親ディレクトリは自動作成する。
func ExportFile(path, title string, msgs []schema.Message) error {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("transcript: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("transcript: open file: %w", err)
	}
	if err := ExportMarkdown(f, title, msgs); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// formatEntry はメッセージ 1 件を Markdown セクションに変換する
func formatEntry(m schema.Message) string {
	var sb strings.Builder
	switch m.Role {
	case schema.RoleAssistant:
		sb.WriteString("## Assistant\n\n")
	default:
		sb.WriteString("## User\n\n")
	}
	for _, b := range m.Content {
		switch b := b.(type) {
		case schema.Text:
			if b.Text != "" {
				sb.WriteString(b.Text)
				sb.WriteString("\n\n")
			}
		case schema.ToolUse:
			input, _ := json.Marshal(b.Input)
			fmt.Fprintf(&sb, "- **tool call** `%s` (%s): `%s`\n\n", b.Name, b.ID, input)
		case schema.ToolResult:
			label := "tool result"
			if b.IsError {
				label = "tool error"
			}
			fmt.Fprintf(&sb, "- **%s** (%s)\n\n```\n%s\n```\n\n", label, b.ToolUseID, b.Content)
		}
	}
	return sb.String()
}
