package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// View implements tea.Model and renders the full chat layout.
func (m Model) View() string {
	if !m.ready {
		return "\n  ◆ Starting mcpchat...\n"
	}

	statusBar := m.renderStatusBar()

	style := paneStyle
	if m.focus == FocusViewport {
		style = paneActiveStyle
	}
	pane := style.Width(m.width - 2).Render(m.viewport.View())

	inputBar := m.renderInputBar()

	base := lipgloss.JoinVertical(lipgloss.Left, statusBar, pane, inputBar)

	// Overlay quit confirmation dialog in the center of the screen.
	if m.inputMode == InputConfirmQuit {
		base = m.overlayCenter(base, m.renderConfirmQuit())
	}
	return base
}

// renderStatusBar renders the single-line header with provider/model and tool count.
func (m Model) renderStatusBar() string {
	appName := lipgloss.NewStyle().
		Foreground(colorPrimary).
		Bold(true).
		Render("◆ MCPCHAT")

	muted := lipgloss.NewStyle().Foreground(colorMuted)
	modelInfo := muted.Render(fmt.Sprintf("Model: %s/%s", m.session.Provider(), m.session.Model()))
	toolInfo := muted.Render(fmt.Sprintf("Tools: %d", len(m.session.Tools())))

	left := appName + "  " + modelInfo + "  " + toolInfo
	if m.expanded {
		left += "  " + muted.Render("[expanded]")
	}
	hint := muted.Render("[Esc] Focus  [Ctrl+O] Fold  [Ctrl+Y] Copy  [/help]")
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(hint)-2))

	return statusBarStyle.Width(m.width).Render(left + gap + hint)
}

// renderInputBar renders the bottom input area and the completion hint line.
func (m Model) renderInputBar() string {
	var prefix string
	switch {
	case m.running:
		prefix = lipgloss.NewStyle().Foreground(colorSecondary).Render(m.spinner.View())
	case m.focus == FocusInput:
		prefix = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Render(">")
	default:
		prefix = hintStyle.Render("↑↓")
	}

	hint := m.hint
	if hint == "" && m.focus == FocusViewport {
		hint = "[Log] ↑↓ Scroll  [Esc] back to input"
	}
	w := m.width - 2
	content := prefix + " " + m.input.View() + "\n" + hintStyle.Render(truncateLine(hint, max(w-2, 1)))

	style := inputBarStyle
	if m.focus == FocusInput {
		style = inputBarActiveStyle
	}
	return style.Width(w).Render(content)
}

// renderConfirmQuit renders the centered quit confirmation dialog.
func (m Model) renderConfirmQuit() string {
	title := lipgloss.NewStyle().
		Foreground(colorWarning).
		Bold(true).
		Render("Quit mcpchat?")

	hint := lipgloss.NewStyle().
		Foreground(colorMuted).
		Render("[Y] Yes  [N] No  [Esc] Cancel")

	content := fmt.Sprintf("\n  %s\n\n  %s\n", title, hint)

	return confirmQuitBoxStyle.Render(content)
}

// overlayCenter places the overlay string in the center of the base string.
func (m Model) overlayCenter(base, overlay string) string {
	baseLines := strings.Split(base, "\n")
	overlayLines := strings.Split(overlay, "\n")

	overlayH := len(overlayLines)
	overlayW := 0
	for _, line := range overlayLines {
		overlayW = max(overlayW, lipgloss.Width(line))
	}

	startRow := max((m.height-overlayH)/2, 0)
	startCol := max((m.width-overlayW)/2, 0)

	for len(baseLines) < startRow+overlayH {
		baseLines = append(baseLines, strings.Repeat(" ", m.width))
	}

	for i, oLine := range overlayLines {
		row := startRow + i
		baseLine := baseLines[row]

		// Use rune-safe slicing based on visual width
		left := truncateVisual(baseLine, startCol)
		rightStart := startCol + lipgloss.Width(oLine)
		right := ""
		if lipgloss.Width(baseLine) > rightStart {
			right = skipVisual(baseLine, rightStart)
		}

		baseLines[row] = left + oLine + right
	}

	return strings.Join(baseLines, "\n")
}

// truncateVisual returns the first n visual columns of a string.
func truncateVisual(s string, n int) string {
	w := 0
	for i, r := range s {
		rw := runewidth.RuneWidth(r)
		if w+rw > n {
			return s[:i] + strings.Repeat(" ", n-w)
		}
		w += rw
	}
	// String is shorter than n, pad with spaces
	return s + strings.Repeat(" ", n-w)
}

// skipVisual returns everything after the first n visual columns.
func skipVisual(s string, n int) string {
	w := 0
	for i, r := range s {
		if w >= n {
			return s[i:]
		}
		w += runewidth.RuneWidth(r)
	}
	return ""
}
