package tui

import (
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/0x6d61/mcpchat/internal/chat"
)

// copyToClipboard はテストで差し替える
var copyToClipboard = clipboard.WriteAll

// Update implements tea.Model and routes all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.handleResize(msg.Width, msg.Height)
		m.ready = true
		m.rebuildViewport()
		return m, nil

	// スピナーティックメッセージ処理（実行中のみ再描画）
	case spinner.TickMsg:
		if m.running {
			m.spinner, cmd = m.spinner.Update(msg)
			m.rebuildViewport()
			return m, cmd
		}
		return m, nil

	case completionsMsg:
		m.docIDs = msg.docs
		m.prompts = msg.prompts
		return m, nil

	// Session からのイベントを処理する。
	case EventMsg:
		m.handleEvent(chat.Event(msg))
		// 次のイベントを待つコマンドを再登録（Bubble Tea の非同期ループパターン）
		if m.events != nil {
			return m, EventCmd(m.events)
		}
		return m, nil

	case turnDoneMsg:
		m.running = false
		if msg.err == nil {
			m.lastReply = msg.text
		}
		m.rebuildViewport()
		// edit_document などでドキュメント一覧が変わり得るため補完候補を取り直す
		return m, m.loadCompletions()

	case tea.KeyMsg:
		// Quit confirmation dialog intercepts all keys when active.
		if m.inputMode == InputConfirmQuit {
			return m.handleConfirmQuitKey(msg)
		}

		switch msg.String() {
		// Ctrl+C: show confirmation dialog instead of quitting immediately.
		case "ctrl+c":
			m.inputMode = InputConfirmQuit
			return m, nil
		case "ctrl+o":
			m.expanded = !m.expanded
			m.rebuildViewport()
			return m, nil
		case "ctrl+y":
			m.copyLastReply()
			return m, nil
		case "esc":
			m.cycleFocus()
			return m, nil
		}

		switch m.focus {
		case FocusViewport:
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)

		case FocusInput:
			switch msg.String() {
			case "enter":
				cmds = append(cmds, m.submitInput())
			case "tab":
				m.complete()
			case "pgup", "pgdown":
				m.viewport, cmd = m.viewport.Update(msg)
				cmds = append(cmds, cmd)
			default:
				m.hint = ""
				m.input, cmd = m.input.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.MouseMsg:
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleEvent は Session イベントを会話エントリーに変換する
func (m *Model) handleEvent(e chat.Event) {
	switch e.Type {
	case chat.EventUser:
		m.addEntry(&entry{kind: entryUser, text: e.Text})
	case chat.EventAssistant:
		m.addEntry(&entry{kind: entryAssistant, text: e.Text})
	case chat.EventToolCall:
		m.addEntry(&entry{kind: entryToolCall, tool: e.Tool, text: e.Text})
	case chat.EventToolResult:
		m.addEntry(&entry{kind: entryToolResult, tool: e.Tool, text: e.Text, isError: e.IsError})
	case chat.EventError:
		m.addEntry(&entry{kind: entryError, text: e.Text})
	}
}

// handleConfirmQuitKey はダイアログ表示中のキー入力を処理する
func (m Model) handleConfirmQuitKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "ctrl+c":
		return m, tea.Quit
	case "n", "N", "esc":
		m.inputMode = InputNormal
	}
	return m, nil
}

// handleResize recomputes all component dimensions to fit the new terminal size.
func (m *Model) handleResize(w, h int) {
	m.width = w
	m.height = h

	const (
		statusBarH  = 1
		inputAreaH  = 4 // rounded border top + bottom, input line, hint line
		paneVBorder = 2 // top + bottom borders for the pane
	)

	vpH := max(h-statusBarH-inputAreaH-paneVBorder, 4)
	vpW := max(w-4, 10) // subtract 2 borders + 2 side margins

	if !m.ready {
		m.viewport = viewport.New(vpW, vpH)
	} else {
		m.viewport.Width = vpW
		m.viewport.Height = vpH
	}

	m.input.SetWidth(max(w-8, 10))
}

// cycleFocus toggles focus between Viewport and Input.
func (m *Model) cycleFocus() {
	switch m.focus {
	case FocusViewport:
		m.focus = FocusInput
		m.input.Focus()
	case FocusInput:
		m.focus = FocusViewport
		m.input.Blur()
	}
}

// copyLastReply は直前のアシスタント応答をクリップボードへコピーする
func (m *Model) copyLastReply() {
	if m.lastReply == "" {
		m.hint = "nothing to copy yet"
		return
	}
	if err := copyToClipboard(m.lastReply); err != nil {
		m.hint = "copy failed: " + err.Error()
		return
	}
	m.hint = "copied last reply to clipboard"
}

// submitInput は入力を組み込みコマンドとして処理するか、Session のターンとして実行する。
func (m *Model) submitInput() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.hint = ""

	if m.running {
		m.hint = "a turn is still running"
		return nil
	}
	m.input.Reset()

	if handled, cmd := m.handleBuiltin(text); handled {
		return cmd
	}
	return m.startTurn(text)
}

// startTurn は Session.Run を別 goroutine（tea.Cmd）で実行する
func (m *Model) startTurn(query string) tea.Cmd {
	m.running = true
	m.rebuildViewport()

	ctx, session := m.ctx, m.session
	run := func() tea.Msg {
		text, err := session.Run(ctx, query)
		return turnDoneMsg{text: text, err: err}
	}
	return tea.Batch(run, m.spinner.Tick)
}
