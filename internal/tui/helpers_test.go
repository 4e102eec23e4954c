package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/0x6d61/mcpchat/internal/mcp"
	"github.com/0x6d61/mcpchat/pkg/schema"
)

// fakeSession は TUI テスト用の Session
type fakeSession struct {
	queries []string
	reset   int
	history []schema.Message
	tools   []schema.Tool
}

func (f *fakeSession) Run(_ context.Context, q string) (string, error) {
	f.queries = append(f.queries, q)
	return "reply to " + q, nil
}

func (f *fakeSession) Reset() {
	f.reset++
	f.history = nil
}

func (f *fakeSession) History() []schema.Message { return f.history }
func (f *fakeSession) Tools() []schema.Tool      { return f.tools }

func (f *fakeSession) DocumentIDs(context.Context) ([]string, error) {
	return []string{"deposition.md", "plan.md", "report.pdf"}, nil
}

func (f *fakeSession) Prompts(context.Context) ([]mcp.Prompt, error) {
	return []mcp.Prompt{{Name: "rewrite_markdown"}, {Name: "summarize"}}, nil
}

func (f *fakeSession) Provider() string { return "gemini" }
func (f *fakeSession) Model() string    { return "gemini-2.5-flash" }

// newReadyModel はウィンドウサイズ確定済みの Model を返す
func newReadyModel(s *fakeSession) Model {
	m := New(context.Background(), s, nil)
	m.handleResize(120, 40)
	m.ready = true
	m.docIDs, _ = s.DocumentIDs(context.Background())
	m.prompts = []string{"rewrite_markdown", "summarize"}
	m.rebuildViewport()
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "ctrl+o":
		return tea.KeyMsg{Type: tea.KeyCtrlO}
	case "ctrl+y":
		return tea.KeyMsg{Type: tea.KeyCtrlY}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}
