// Package tui は mcpchat の Bubble Tea チャット画面を実装する。
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/0x6d61/mcpchat/internal/chat"
	"github.com/0x6d61/mcpchat/internal/mcp"
	"github.com/0x6d61/mcpchat/pkg/schema"
)

// Session は TUI が操作する会話。*chat.Session が実装する。
type Session interface {
	Run(ctx context.Context, query string) (string, error)
	Reset()
	History() []schema.Message
	Tools() []schema.Tool
	DocumentIDs(ctx context.Context) ([]string, error)
	Prompts(ctx context.Context) ([]mcp.Prompt, error)
	Provider() string
	Model() string
}

// FocusState tracks which pane has keyboard focus.
type FocusState int

const (
	FocusInput    FocusState = iota // bottom: input bar
	FocusViewport                   // main pane: conversation
)

// InputMode は入力バーの状態
type InputMode int

const (
	InputNormal InputMode = iota
	InputConfirmQuit
)

// entryKind は会話ペインに表示する 1 エントリーの種類
type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryToolCall
	entryToolResult
	entrySystem
	entryError
)

type entry struct {
	kind    entryKind
	text    string
	tool    string
	isError bool

	// rendered は glamour の出力キャッシュ（renderedWidth で描画したもの）
	rendered      string
	renderedWidth int
}

// EventMsg は chat.Session から届く Bubble Tea メッセージ。
type EventMsg chat.Event

// turnDoneMsg は 1 ターンの終了を知らせる
type turnDoneMsg struct {
	text string
	err  error
}

// completionsMsg は補完候補の読み込み結果
type completionsMsg struct {
	docs    []string
	prompts []string
}

// EventCmd は次の Session イベントを待つ Bubble Tea コマンド。
func EventCmd(ch <-chan chat.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return EventMsg(e)
	}
}

// Model is the root Bubble Tea model for the chat screen.
type Model struct {
	ctx     context.Context
	session Session
	events  <-chan chat.Event

	width     int
	height    int
	ready     bool
	focus     FocusState
	inputMode InputMode
	viewport  viewport.Model
	input     textarea.Model
	spinner   spinner.Model

	entries   []*entry
	expanded  bool // ctrl+o でツール出力を展開
	running   bool
	lastReply string
	hint      string

	docIDs  []string
	prompts []string
}

// New は Model を初期化する。events は nil でもよい。
func New(ctx context.Context, session Session, events <-chan chat.Event) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask a question, @mention a document or run /command doc_id..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 4000
	ta.MaxHeight = 1
	ta.SetHeight(1)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return Model{
		ctx:     ctx,
		session: session,
		events:  events,
		focus:   FocusInput,
		input:   ta,
		spinner: sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.loadCompletions()}
	if m.events != nil {
		cmds = append(cmds, EventCmd(m.events))
	}
	return tea.Batch(cmds...)
}

// loadCompletions はドキュメント ID とプロンプト名を取得する
func (m Model) loadCompletions() tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		var msg completionsMsg
		if ids, err := session.DocumentIDs(ctx); err == nil {
			msg.docs = ids
		}
		if prompts, err := session.Prompts(ctx); err == nil {
			for _, p := range prompts {
				msg.prompts = append(msg.prompts, p.Name)
			}
		}
		return msg
	}
}

// addEntry appends an entry and refreshes the viewport.
func (m *Model) addEntry(e *entry) {
	m.entries = append(m.entries, e)
	m.rebuildViewport()
}

func (m *Model) logSystem(text string) {
	m.addEntry(&entry{kind: entrySystem, text: text})
}

// rebuildViewport regenerates the viewport content from all entries.
func (m *Model) rebuildViewport() {
	if !m.ready {
		return
	}
	if len(m.entries) == 0 {
		m.viewport.SetContent(welcomeText)
		return
	}
	var sb strings.Builder
	for _, e := range m.entries {
		sb.WriteString(renderEntry(e, m.viewport.Width, m.expanded))
		sb.WriteString("\n")
	}
	if m.running {
		sb.WriteString(renderThinking(m.spinner.View()))
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

const welcomeText = `  Ask anything about your documents.

  @doc_id      mention a document (Tab completes)
  /command id  run a document prompt, e.g. /summarize plan.md
  /help        list built-in commands`
