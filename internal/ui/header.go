package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/metricdeck/internal/api"
)

// renderHeader renders the status bar: session, period and backend health.
func (m Model) renderHeader() string {
	surface := lipgloss.Color(m.theme.Surface)
	styles := m.theme.Styles()
	on := func(s lipgloss.Style, text string) string {
		return s.Background(surface).Render(text)
	}
	sep := on(lipgloss.NewStyle(), "  ")
	compact := m.width < 100

	parts := []string{on(styles.Logo, "metricdeck")}

	sess := m.session.Snapshot()
	if sess.User.Email != "" {
		parts = append(parts, on(styles.MutedText, "User:")+on(styles.Text, " "+sess.User.Email))
	}

	parts = append(parts, on(styles.MutedText, "Period:")+on(styles.AccentText, " "+periodLabel(m.period)))

	switch {
	case m.snapshot.IsOffline():
		parts = append(parts, on(styles.DangerText, "● OFFLINE"))
	case m.snapshot.HasPeriods:
		parts = append(parts, on(styles.SuccessText, "● ONLINE"))
	default:
		parts = append(parts, on(styles.WarningText, "● CONNECTING"))
	}

	if n := m.exportingCount(); n > 0 {
		parts = append(parts, on(styles.SuccessText, fmt.Sprintf("%s %d exporting", m.spinner.View(), n)))
	}

	if !m.snapshot.LastUpdated.IsZero() {
		ago := humanizeDuration(m.now().Sub(m.snapshot.LastUpdated))
		parts = append(parts, on(styles.MutedText, "updated "+ago))
	}

	if m.snapshot.LastError != nil {
		maxErr := 60
		if compact {
			maxErr = 30
		}
		text := truncate(api.UserMessage(m.snapshot.LastError), maxErr)
		parts = append(parts, on(styles.DangerText, "ERROR")+on(styles.DangerText, " "+text))
	}

	return styles.Header.Width(m.width).Render(strings.Join(parts, sep))
}

// renderCommandBar renders the tabs and the key hints for the current view.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()

	tab := func(label string, active bool) string {
		if active {
			return styles.Selected.Render(" " + label + " ")
		}
		return styles.MutedText.Render(" " + label + " ")
	}
	tabs := tab("1 Cards", m.view == ViewCards || m.view == ViewPreview) +
		tab("2 Logs", m.view == ViewLogs)

	var hints string
	switch m.view {
	case ViewPreview:
		hints = "n/N page · g/G first/last · x export · r reload · esc back"
	case ViewLogs:
		hints = "space follow · f level · ↑/↓ scroll · esc back"
	default:
		hints = "p period · enter preview · x export · r refresh · ? help · q quit"
	}
	return tabs + "  " + styles.FaintText.Render(hints)
}

// renderFooter shows the latest flash message.
func (m Model) renderFooter() string {
	if m.flashText == "" || m.now().After(m.flashUntil) {
		return ""
	}
	styles := m.theme.Styles()
	if m.flashErr {
		return styles.Footer.Render(styles.DangerText.Render(truncate(m.flashText, max(m.width-2, 10))))
	}
	return styles.Footer.Render(truncate(m.flashText, max(m.width-2, 10)))
}
