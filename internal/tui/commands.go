package tui

import (
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/0x6d61/mcpchat/internal/transcript"
)

// builtinCommands は TUI が処理するスラッシュコマンド。これ以外の /name は MCP プロンプト。
var builtinCommands = []string{"clear", "export", "tools", "help", "quit"}

const helpText = `Commands:
  /clear              clear the conversation history
  /export <file>      write the conversation to a Markdown file
  /tools              list the tools the model can call
  /help               show this help
  /quit               exit
  /<prompt> <doc_id>  run a document prompt (Tab lists prompts)

Keys:
  Tab     complete @doc_id and /command
  Esc     switch focus between input and conversation
  Ctrl+O  expand or fold tool output
  Ctrl+Y  copy the last reply
  Ctrl+C  quit`

// handleBuiltin は組み込みコマンドを処理する。処理した場合は true を返す。
func (m *Model) handleBuiltin(text string) (bool, tea.Cmd) {
	if !strings.HasPrefix(text, "/") {
		return false, nil
	}
	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	args := fields[1:]

	switch name {
	case "clear":
		m.session.Reset()
		m.entries = nil
		m.lastReply = ""
		m.logSystem("Conversation cleared.")
		return true, nil

	case "export":
		if len(args) == 0 {
			m.addEntry(&entry{kind: entryError, text: "usage: /export <file>"})
			return true, nil
		}
		path := args[0]
		if err := transcript.ExportFile(path, "mcpchat conversation", m.session.History()); err != nil {
			m.addEntry(&entry{kind: entryError, text: err.Error()})
			return true, nil
		}
		m.logSystem(fmt.Sprintf("Exported conversation to %s", path))
		return true, nil

	case "tools":
		tools := m.session.Tools()
		if len(tools) == 0 {
			m.logSystem("No tools available.")
			return true, nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Tools (%d):", len(tools))
		for _, t := range tools {
			sb.WriteString("\n  " + t.Name)
			if t.Description != "" {
				sb.WriteString(" - " + t.Description)
			}
		}
		m.logSystem(sb.String())
		return true, nil

	case "help":
		m.logSystem(helpText)
		return true, nil

	case "quit", "exit":
		return true, tea.Quit
	}
	return false, nil
}

// complete は入力末尾の単語を補完する。
// "@" で始まる単語はドキュメント ID、先頭の "/" で始まる単語はコマンド名の候補から選ぶ。
// 候補が 1 つなら確定し、複数なら共通接頭辞まで補完して候補をヒントに表示する。
func (m *Model) complete() {
	value := m.input.Value()
	start := strings.LastIndexAny(value, " \t") + 1
	word := value[start:]

	var (
		sigil      string
		candidates []string
	)
	switch {
	case strings.HasPrefix(word, "@"):
		sigil = "@"
		candidates = m.docIDs
	case strings.HasPrefix(word, "/") && start == 0:
		sigil = "/"
		candidates = append(slices.Clone(builtinCommands), m.prompts...)
	case start > 0 && strings.HasPrefix(value, "/"):
		// "/summarize pl" のように 2 語目は doc_id
		candidates = m.docIDs
	default:
		return
	}

	prefix := strings.TrimPrefix(word, sigil)
	var matches []string
	for _, c := range candidates {
		if strings.HasPrefix(c, prefix) && !slices.Contains(matches, c) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		m.hint = "no completions"
	case 1:
		m.input.SetValue(value[:start] + sigil + matches[0] + " ")
		m.hint = ""
	default:
		m.input.SetValue(value[:start] + sigil + commonPrefix(matches))
		m.hint = strings.Join(matches, "  ")
	}
}

// commonPrefix は全候補に共通する接頭辞を返す
func commonPrefix(words []string) string {
	if len(words) == 0 {
		return ""
	}
	prefix := words[0]
	for _, w := range words[1:] {
		for !strings.HasPrefix(w, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}
