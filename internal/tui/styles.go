package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorPrimary      = lipgloss.Color("#00D7FF") // cyan: focus / assistant
	colorSecondary    = lipgloss.Color("#AF87FF") // purple: tool calls
	colorSuccess      = lipgloss.Color("#87FF5F") // green: user
	colorWarning      = lipgloss.Color("#FFD700") // yellow: quit dialog
	colorDanger       = lipgloss.Color("#FF5555") // red: errors
	colorMuted        = lipgloss.Color("#555577") // dim gray: hints
	colorBorder       = lipgloss.Color("#333355") // default border
	colorBorderActive = lipgloss.Color("#00D7FF") // focused border
)

// Conversation pane
var (
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	paneActiveStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorderActive)
)

// Input bar
var (
	inputBarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	inputBarActiveStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorBorderActive)
)

// Status bar (top)
var statusBarStyle = lipgloss.NewStyle().
	Background(lipgloss.Color("#0D0D1A")).
	Foreground(colorPrimary).
	Padding(0, 1)

// Quit confirmation dialog (centered overlay)
var confirmQuitBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(colorDanger).
	Padding(0, 2)

var (
	toolCallStyle   = lipgloss.NewStyle().Foreground(colorSecondary).Bold(true)
	toolOutputStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	toolErrorStyle  = lipgloss.NewStyle().Foreground(colorDanger)
	systemStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle      = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	hintStyle       = lipgloss.NewStyle().Foreground(colorMuted)
)

// foldIndicatorStyle は折りたたみ行の「… +N lines (ctrl+o)」スタイル。
var foldIndicatorStyle = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)

// User input block style: ハイライト背景でユーザー入力を目立たせる
var userInputBlockStyle = lipgloss.NewStyle().
	Background(lipgloss.Color("#1A1A2E")).
	Foreground(colorSuccess).
	Bold(true).
	Padding(0, 1)
