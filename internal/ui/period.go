package ui

import (
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/metricdeck/internal/api"
)

// Modal is a dialog drawn over the main view. Update reports true when the
// modal should close.
type Modal interface {
	Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool)
	View(theme Theme, width, height int) string
}

// periodOptions lists the selectable periods: consolidated first, then the
// known periods most recent first.
func periodOptions(periods []api.Period) []api.Period {
	out := []api.Period{api.Consolidated}
	rest := make([]api.Period, 0, len(periods))
	for _, p := range periods {
		if p.IsConsolidated() || strings.TrimSpace(string(p)) == "" || slices.Contains(rest, p) {
			continue
		}
		rest = append(rest, p)
	}
	slices.SortFunc(rest, func(a, b api.Period) int {
		return strings.Compare(string(b), string(a))
	})
	return append(out, rest...)
}

func periodLabel(p api.Period) string {
	if p.IsConsolidated() || p == "" {
		return "Consolidated"
	}
	return string(p)
}

type periodChosenMsg api.Period

// periodPicker is the modal used to pick the board period.
type periodPicker struct {
	options []api.Period
	cursor  int
}

func newPeriodPicker(periods []api.Period, current api.Period) *periodPicker {
	p := &periodPicker{options: periodOptions(periods)}
	if i := slices.Index(p.options, current); i >= 0 {
		p.cursor = i
	}
	return p
}

func (p *periodPicker) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil, false
	}
	switch {
	case key.Matches(km, keys.Escape), key.Matches(km, keys.Period):
		return p, nil, true
	case key.Matches(km, keys.Confirm):
		chosen := p.options[p.cursor]
		return p, func() tea.Msg { return periodChosenMsg(chosen) }, true
	case key.Matches(km, keys.Up):
		if p.cursor > 0 {
			p.cursor--
		}
	case key.Matches(km, keys.Down):
		if p.cursor < len(p.options)-1 {
			p.cursor++
		}
	case key.Matches(km, keys.FirstPage):
		p.cursor = 0
	case key.Matches(km, keys.LastPage):
		p.cursor = len(p.options) - 1
	}
	return p, nil, false
}

func (p *periodPicker) View(theme Theme, width, height int) string {
	styles := theme.Styles()

	// Keep the cursor visible when the list is taller than the screen.
	visible := max(height-8, 3)
	start := 0
	if p.cursor >= visible {
		start = p.cursor - visible + 1
	}
	end := min(start+visible, len(p.options))

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Period"))
	b.WriteString("\n\n")
	for i := start; i < end; i++ {
		label := periodLabel(p.options[i])
		if i == p.cursor {
			b.WriteString(styles.Selected.Render("> " + label))
		} else {
			b.WriteString(styles.Text.Render("  " + label))
		}
		b.WriteString("\n")
	}
	if len(p.options) == 1 {
		b.WriteString("\n")
		b.WriteString(styles.FaintText.Render("No periods loaded yet"))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.Accent)).
		Padding(1, 2).
		Width(30).
		Render(strings.TrimRight(b.String(), "\n"))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
