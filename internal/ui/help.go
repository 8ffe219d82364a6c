package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderHelp renders the help overlay from the key map.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()

	sections := []struct {
		title string
		items [][2]string
	}{
		{"Views", [][2]string{
			{"1 / 2", "Cards / Logs"},
			{"tab", "Cycle views"},
			{"esc", "Back to cards"},
		}},
		{"Cards", [][2]string{
			{"h/j/k/l", "Move between cards"},
			{"p", "Choose period"},
			{"r", "Refresh every card"},
			{"enter", "Preview card data"},
			{"x", "Export card data"},
		}},
		{"Preview", [][2]string{
			{"n / N", "Next / previous page"},
			{"g / G", "First / last page"},
			{"j / k", "Move within page"},
		}},
		{"Logs", [][2]string{
			{"space", "Toggle follow mode"},
			{"f", "Cycle level filter"},
		}},
		{"General", [][2]string{
			{"T", "Cycle theme"},
			{"L", "Log out"},
			{"?", "Toggle help"},
			{"q/ctrl+c", "Quit"},
		}},
	}

	keyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(m.theme.Warning)).
		Width(12)

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Keyboard Shortcuts"))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", 30)))
	b.WriteString("\n\n")

	for i, section := range sections {
		b.WriteString(styles.AccentText.Bold(true).Render(section.title))
		b.WriteString("\n")
		for _, item := range section.items {
			b.WriteString(keyStyle.Render(item[0]))
			b.WriteString(styles.Text.Render(item[1]))
			b.WriteString("\n")
		}
		if i < len(sections)-1 {
			b.WriteString("\n")
		}
	}

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Accent)).
		Padding(1, 2).
		Width(42).
		Render(b.String())

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal)
}
