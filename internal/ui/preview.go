package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/metricdeck/internal/api"
	"github.com/five82/metricdeck/internal/preview"
)

type previewLoadedMsg struct {
	query api.CardQuery
	err   error
}

func previewCmd(ctx context.Context, c *preview.Controller, q api.CardQuery) tea.Cmd {
	return func() tea.Msg {
		_, err := c.LoadPreview(ctx, q)
		return previewLoadedMsg{query: q, err: err}
	}
}

// startPreview switches to the preview view and requests the dataset.
func (m Model) startPreview(q api.CardQuery) (tea.Model, tea.Cmd) {
	m.view = ViewPreview
	m.previewQuery = q
	m.previewLoading = true
	m.previewErr = ""
	m.table.SetRows(nil)
	m.table.SetColumns(nil)
	return m, previewCmd(m.ctx, m.preview, q)
}

func (m Model) handlePreviewLoaded(msg previewLoadedMsg) (tea.Model, tea.Cmd) {
	// A newer preview was requested meanwhile.
	if msg.query != m.previewQuery {
		return m, nil
	}
	m.previewLoading = false
	if msg.err != nil {
		m.previewErr = api.UserMessage(msg.err)
	}
	m.updatePreviewTable()
	return m, nil
}

func (m Model) handlePreviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.NextPage):
		m.preview.NextPage()
	case key.Matches(msg, m.keys.PrevPage):
		m.preview.PrevPage()
	case key.Matches(msg, m.keys.FirstPage):
		m.preview.SetPage(1)
	case key.Matches(msg, m.keys.LastPage):
		m.preview.SetPage(m.preview.TotalPages())
	case key.Matches(msg, m.keys.Export):
		return m.startExport(m.previewQuery)
	case key.Matches(msg, m.keys.Refresh):
		return m.startPreview(m.previewQuery)
	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	m.updatePreviewTable()
	return m, nil
}

// updatePreviewTable loads the visible page into the table widget.
func (m *Model) updatePreviewTable() {
	ds := m.preview.Dataset()
	rows := m.preview.VisibleRows()

	columns := previewColumns(ds.Columns, rows)
	tableRows := make([]table.Row, len(rows))
	for i, r := range rows {
		tableRows[i] = table.Row(r)
	}

	// Rows must be cleared before columns shrink or the table indexes past them.
	m.table.SetRows(nil)
	m.table.SetColumns(columns)
	m.table.SetRows(tableRows)
	m.table.SetHeight(max(m.height-6, 3))
	m.table.SetWidth(m.width)
	m.table.GotoTop()
}

// previewColumns sizes each column to its widest visible cell, capped at
// PreviewColumnMaxWidth.
func previewColumns(names []string, rows [][]string) []table.Column {
	columns := make([]table.Column, len(names))
	for i, name := range names {
		w := lipgloss.Width(name)
		for _, r := range rows {
			if i < len(r) {
				w = max(w, lipgloss.Width(r[i]))
			}
		}
		columns[i] = table.Column{Title: name, Width: min(w, PreviewColumnMaxWidth)}
	}
	return columns
}

func newPreviewTable(theme Theme) table.Model {
	t := table.New(table.WithFocused(true))
	t.SetStyles(previewTableStyles(theme))
	return t
}

func previewTableStyles(theme Theme) table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		Foreground(lipgloss.Color(theme.Accent)).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(theme.Border)).
		BorderBottom(true).
		Bold(true)
	s.Cell = s.Cell.Foreground(lipgloss.Color(theme.Text))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(theme.SelectionText)).
		Background(lipgloss.Color(theme.SelectionBg)).
		Bold(false)
	return s
}

func (m Model) renderPreview() string {
	styles := m.theme.Styles()
	q := m.previewQuery

	var b strings.Builder
	title := fmt.Sprintf("%s · %s", m.cardTitle(q.Card), periodLabel(q.Period))
	b.WriteString(styles.AccentText.Bold(true).Render(title))
	b.WriteString("\n")

	switch {
	case m.previewLoading:
		b.WriteString(m.spinner.View() + " " + styles.MutedText.Render("Loading preview..."))
		return b.String()
	case m.previewErr != "":
		b.WriteString(styles.DangerText.Render(m.previewErr))
		b.WriteString("\n")
		b.WriteString(styles.FaintText.Render("r to retry · esc to go back"))
		return b.String()
	}

	ds := m.preview.Dataset()
	if ds.Len() == 0 {
		b.WriteString(styles.FaintText.Render("No rows for this period"))
		return b.String()
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")
	pager := fmt.Sprintf("Page %d of %d · %d rows · %d per page",
		m.preview.Page(), m.preview.TotalPages(), ds.Len(), preview.PageSize)
	b.WriteString(styles.MutedText.Render(pager))
	return b.String()
}
