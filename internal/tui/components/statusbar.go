package components

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/aimon/internal/tui/theme"
)

// RenderStatusBar renders the bottom status bar: key hints on the left,
// connection state on the right.
func RenderStatusBar(width int, conn string) string {
	t := theme.Active

	style := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Width(width)

	left := " [tab]switch  [r]efresh  [q]uit"
	right := ""
	if conn != "" {
		right = conn + " "
	}

	padding := width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 0 {
		padding = 0
	}

	bar := left
	for i := 0; i < padding; i++ {
		bar += " "
	}
	bar += right

	return style.Render(bar)
}
