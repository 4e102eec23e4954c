package tui

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/0x6d61/mcpchat/internal/chat"
	"github.com/0x6d61/mcpchat/pkg/schema"
)

func lastEntry(t *testing.T, m Model) *entry {
	t.Helper()
	if len(m.entries) == 0 {
		t.Fatal("no entries")
	}
	return m.entries[len(m.entries)-1]
}

func TestHandleEvent_MapsEventsToEntries(t *testing.T) {
	m := newReadyModel(&fakeSession{})

	events := []chat.Event{
		{Type: chat.EventUser, Text: "what is in @plan.md?"},
		{Type: chat.EventToolCall, Tool: "read_document", Text: `{"doc_id":"plan.md"}`},
		{Type: chat.EventToolResult, Tool: "read_document", Text: `["The plan"]`},
		{Type: chat.EventAssistant, Text: "It is a plan."},
		{Type: chat.EventError, Text: "boom"},
	}
	for _, e := range events {
		m, _ = update(t, m, EventMsg(e))
	}

	want := []entryKind{entryUser, entryToolCall, entryToolResult, entryAssistant, entryError}
	if len(m.entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(m.entries))
	}
	for i, k := range want {
		if m.entries[i].kind != k {
			t.Errorf("entry %d: got kind %d, want %d", i, m.entries[i].kind, k)
		}
	}
}

func TestSubmitInput_StartsTurn(t *testing.T) {
	s := &fakeSession{}
	m := newReadyModel(s)
	m.input.SetValue("hello")

	m, cmd := update(t, m, key("enter"))
	if !m.running {
		t.Error("expected running after submit")
	}
	if cmd == nil {
		t.Fatal("expected a command to run the turn")
	}
	if m.input.Value() != "" {
		t.Errorf("input should be cleared, got %q", m.input.Value())
	}
}

func TestSubmitInput_WhileRunning(t *testing.T) {
	m := newReadyModel(&fakeSession{})
	m.running = true
	m.input.SetValue("second question")

	m, _ = update(t, m, key("enter"))
	if m.hint == "" {
		t.Error("expected busy hint")
	}
	if m.input.Value() != "second question" {
		t.Error("input should be kept while a turn is running")
	}
}

func TestTurnDone(t *testing.T) {
	m := newReadyModel(&fakeSession{})
	m.running = true

	m, cmd := update(t, m, turnDoneMsg{text: "Paris"})
	if m.running {
		t.Error("expected running=false")
	}
	if m.lastReply != "Paris" {
		t.Errorf("lastReply: got %q", m.lastReply)
	}
	if cmd == nil {
		t.Error("expected completions reload")
	}

	m.running = true
	m, _ = update(t, m, turnDoneMsg{err: errors.New("failed")})
	if m.lastReply != "Paris" {
		t.Error("failed turn should keep the previous reply")
	}
}

func TestBuiltin_Clear(t *testing.T) {
	s := &fakeSession{history: []schema.Message{schema.NewTextMessage(schema.RoleUser, "hi")}}
	m := newReadyModel(s)
	m.entries = []*entry{{kind: entryUser, text: "hi"}}

	m.input.SetValue("/clear")
	m, _ = update(t, m, key("enter"))

	if s.reset != 1 {
		t.Errorf("expected Reset, got %d calls", s.reset)
	}
	if len(m.entries) != 1 || m.entries[0].kind != entrySystem {
		t.Errorf("expected only the cleared notice, got %+v", m.entries)
	}
	if len(s.queries) != 0 {
		t.Error("/clear must not reach the session")
	}
}

func TestBuiltin_Tools(t *testing.T) {
	s := &fakeSession{tools: []schema.Tool{{Name: "read_document", Description: "Reads a document"}}}
	m := newReadyModel(s)

	m.input.SetValue("/tools")
	m, _ = update(t, m, key("enter"))

	if e := lastEntry(t, m); !strings.Contains(e.text, "read_document - Reads a document") {
		t.Errorf("tools listing: %q", e.text)
	}
}

func TestBuiltin_Export(t *testing.T) {
	s := &fakeSession{history: []schema.Message{
		schema.NewTextMessage(schema.RoleUser, "hi"),
		schema.NewTextMessage(schema.RoleAssistant, "hello there"),
	}}
	m := newReadyModel(s)
	path := filepath.Join(t.TempDir(), "chat.md")

	m.input.SetValue("/export " + path)
	m, _ = update(t, m, key("enter"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("export file: %v", err)
	}
	if !strings.Contains(string(data), "hello there") {
		t.Errorf("export content: %s", data)
	}
	if e := lastEntry(t, m); e.kind != entrySystem {
		t.Errorf("expected confirmation entry, got %+v", e)
	}
}

func TestBuiltin_ExportUsage(t *testing.T) {
	m := newReadyModel(&fakeSession{})
	m.input.SetValue("/export")
	m, _ = update(t, m, key("enter"))
	if e := lastEntry(t, m); e.kind != entryError {
		t.Errorf("expected usage error, got %+v", e)
	}
}

func TestBuiltin_PromptCommandGoesToSession(t *testing.T) {
	m := newReadyModel(&fakeSession{})
	handled, _ := m.handleBuiltin("/summarize plan.md")
	if handled {
		t.Error("document prompts should not be handled by the TUI")
	}
}

func TestBuiltin_Quit(t *testing.T) {
	m := newReadyModel(&fakeSession{})
	handled, cmd := m.handleBuiltin("/quit")
	if !handled || cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestComplete_DocumentMention(t *testing.T) {
	m := newReadyModel(&fakeSession{})
	m.input.SetValue("summarize @pl")
	m, _ = update(t, m, key("tab"))

	if got := m.input.Value(); got != "summarize @plan.md " {
		t.Errorf("got %q", got)
	}
}

func TestComplete_MultipleCandidates(t *testing.T) {
	m := newReadyModel(&fakeSession{})
	m.docIDs = []string{"report.pdf", "report.txt"}
	m.input.SetValue("@r")
	m, _ = update(t, m, key("tab"))

	if got := m.input.Value(); got != "@report." {
		t.Errorf("expected common prefix, got %q", got)
	}
	if !strings.Contains(m.hint, "report.pdf") || !strings.Contains(m.hint, "report.txt") {
		t.Errorf("hint should list candidates: %q", m.hint)
	}
}

func TestComplete_Command(t *testing.T) {
	m := newReadyModel(&fakeSession{})
	m.input.SetValue("/su")
	m, _ = update(t, m, key("tab"))
	if got := m.input.Value(); got != "/summarize " {
		t.Errorf("got %q", got)
	}

	m.input.SetValue("/summarize re")
	m, _ = update(t, m, key("tab"))
	if got := m.input.Value(); got != "/summarize report.pdf " {
		t.Errorf("doc id after command: got %q", got)
	}
}

func TestComplete_NoMatch(t *testing.T) {
	m := newReadyModel(&fakeSession{})
	m.input.SetValue("@zzz")
	m, _ = update(t, m, key("tab"))
	if m.input.Value() != "@zzz" || m.hint != "no completions" {
		t.Errorf("value %q hint %q", m.input.Value(), m.hint)
	}
}

func TestCommonPrefix(t *testing.T) {
	if got := commonPrefix([]string{"rewrite_markdown", "report.pdf"}); got != "re" {
		t.Errorf("got %q", got)
	}
	if got := commonPrefix([]string{"a", "b"}); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestCopyLastReply(t *testing.T) {
	var copied string
	orig := copyToClipboard
	copyToClipboard = func(s string) error { copied = s; return nil }
	t.Cleanup(func() { copyToClipboard = orig })

	m := newReadyModel(&fakeSession{})
	m, _ = update(t, m, key("ctrl+y"))
	if copied != "" || m.hint != "nothing to copy yet" {
		t.Errorf("nothing should be copied yet, hint %q", m.hint)
	}

	m.lastReply = "Paris"
	m, _ = update(t, m, key("ctrl+y"))
	if copied != "Paris" {
		t.Errorf("copied: got %q", copied)
	}
}

func TestCtrlO_TogglesExpanded(t *testing.T) {
	m := newReadyModel(&fakeSession{})
	m, _ = update(t, m, key("ctrl+o"))
	if !m.expanded {
		t.Error("expected expanded")
	}
	m, _ = update(t, m, key("ctrl+o"))
	if m.expanded {
		t.Error("expected folded")
	}
}

func TestConfirmQuit(t *testing.T) {
	m := newReadyModel(&fakeSession{})
	m, _ = update(t, m, key("ctrl+c"))
	if m.inputMode != InputConfirmQuit {
		t.Fatal("expected confirm dialog")
	}

	m, cmd := update(t, m, key("n"))
	if m.inputMode != InputNormal || cmd != nil {
		t.Error("n should cancel")
	}

	m, _ = update(t, m, key("ctrl+c"))
	_, cmd = update(t, m, key("y"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestEsc_CyclesFocus(t *testing.T) {
	m := newReadyModel(&fakeSession{})
	m, _ = update(t, m, key("esc"))
	if m.focus != FocusViewport {
		t.Errorf("expected FocusViewport, got %d", m.focus)
	}
	m, _ = update(t, m, key("esc"))
	if m.focus != FocusInput {
		t.Errorf("expected FocusInput, got %d", m.focus)
	}
}
