package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/metricdeck/internal/logtail"
)

// Minimum level shown in the log view.
type logLevelFilter int

const (
	logLevelAll logLevelFilter = iota
	logLevelWarn
	logLevelError
)

func (f logLevelFilter) String() string {
	switch f {
	case logLevelWarn:
		return "warn+"
	case logLevelError:
		return "error+"
	default:
		return "all"
	}
}

func (f logLevelFilter) next() logLevelFilter {
	return (f + 1) % 3
}

var levelRank = map[string]int{
	"trace": 0, "debug": 1, "info": 2, "warn": 3, "error": 4, "fatal": 5, "panic": 5,
}

func (f logLevelFilter) allows(level string) bool {
	rank, ok := levelRank[strings.ToLower(level)]
	if !ok {
		rank = levelRank["info"]
	}
	switch f {
	case logLevelWarn:
		return rank >= levelRank["warn"]
	case logLevelError:
		return rank >= levelRank["error"]
	default:
		return true
	}
}

// logState holds all log-related state.
type logState struct {
	entries []logtail.Entry
	follow  bool
	filter  logLevelFilter
	err     string
}

type logsMsg struct {
	entries []logtail.Entry
	err     error
}

func tailLogsCmd(path string) tea.Cmd {
	return func() tea.Msg {
		entries, err := logtail.Tail(path, LogTailLines)
		return logsMsg{entries: entries, err: err}
	}
}

// refreshLogs tails the log file when the log view is visible.
func (m Model) refreshLogs() tea.Cmd {
	if m.view != ViewLogs || strings.TrimSpace(m.cfg.LogFile) == "" {
		return nil
	}
	return tailLogsCmd(m.cfg.LogFile)
}

func (m Model) handleLogs(msg logsMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.logState.err = msg.err.Error()
	} else {
		m.logState.err = ""
		m.logState.entries = msg.entries
	}
	m.updateLogViewport()
	return m, nil
}

func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleFollow):
		m.logState.follow = !m.logState.follow
		m.updateLogViewport()
		return m, nil
	case key.Matches(msg, m.keys.LogLevel):
		m.logState.filter = m.logState.filter.next()
		m.updateLogViewport()
		return m, nil
	}

	// Manual scrolling stops following.
	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	if !m.logViewport.AtBottom() {
		m.logState.follow = false
	}
	return m, cmd
}

// updateLogViewport updates the log viewport with current content.
func (m *Model) updateLogViewport() {
	m.logViewport.Width = max(m.width-2, 10)
	m.logViewport.Height = max(m.height-6, 3)

	styles := m.theme.Styles()
	lines := make([]string, 0, len(m.logState.entries))
	for _, e := range m.logState.entries {
		if !m.logState.filter.allows(e.Level) {
			continue
		}
		lines = append(lines, renderLogEntry(styles, e))
	}
	if len(lines) == 0 {
		lines = append(lines, styles.FaintText.Render("No log entries"))
	}
	m.logViewport.SetContent(strings.Join(lines, "\n"))

	if m.logState.follow {
		m.logViewport.GotoBottom()
	}
}

// formatLogEntry renders e as a single plain line.
func formatLogEntry(e logtail.Entry) string {
	if e.Time.IsZero() && e.Level == "" {
		return e.Raw
	}
	parts := make([]string, 0, 4)
	if !e.Time.IsZero() {
		parts = append(parts, e.Time.In(time.Local).Format("15:04:05"))
	}
	level := strings.ToUpper(e.Level)
	if level == "" {
		level = "INFO"
	}
	parts = append(parts, fmt.Sprintf("%-5s", level))
	if e.Component != "" {
		parts = append(parts, "["+e.Component+"]")
	}
	parts = append(parts, e.Message)

	line := strings.Join(parts, " ")
	for _, k := range e.FieldKeys() {
		line += " " + k + "=" + e.Fields[k]
	}
	if e.Error != "" {
		line += " error=" + e.Error
	}
	return line
}

func renderLogEntry(styles Styles, e logtail.Entry) string {
	line := formatLogEntry(e)
	switch strings.ToLower(e.Level) {
	case "error", "fatal", "panic":
		return styles.DangerText.Render(line)
	case "warn":
		return styles.WarningText.Render(line)
	case "debug", "trace":
		return styles.FaintText.Render(line)
	default:
		return styles.Text.Render(line)
	}
}

func newLogViewport() viewport.Model {
	vp := viewport.New(80, 20)
	vp.Style = lipgloss.NewStyle()
	return vp
}

// renderLogs renders the log view.
func (m Model) renderLogs() string {
	styles := m.theme.Styles()

	follow := "off"
	if m.logState.follow {
		follow = "on"
	}
	status := fmt.Sprintf("%s · %d lines · level %s · follow %s",
		m.cfg.LogFile, len(m.logState.entries), m.logState.filter, follow)

	var b strings.Builder
	b.WriteString(m.logViewport.View())
	b.WriteString("\n")
	if m.logState.err != "" {
		b.WriteString(styles.DangerText.Render(m.logState.err))
	} else {
		b.WriteString(styles.FaintText.Render(status))
	}
	return b.String()
}
