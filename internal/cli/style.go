package cli

import "github.com/charmbracelet/lipgloss"

var noColor bool

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// paint renders s with style unless colors are disabled.
func paint(style lipgloss.Style, s string) string {
	if noColor {
		return s
	}
	return style.Render(s)
}
