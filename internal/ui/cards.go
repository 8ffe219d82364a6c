package ui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/metricdeck/internal/api"
	"github.com/five82/metricdeck/internal/card"
	"github.com/five82/metricdeck/internal/export"
)

type cardStateMsg struct {
	board *card.Board
	state card.State
}

type exportDoneMsg struct {
	query  api.CardQuery
	result export.Result
	err    error
}

// waitCardCmd delivers the next card update from board.
func waitCardCmd(board *card.Board) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-board.Changes()
		if !ok {
			return nil
		}
		return cardStateMsg{board: board, state: st}
	}
}

func exportCmd(ctx context.Context, p *export.Pipeline, q api.CardQuery) tea.Cmd {
	return func() tea.Msg {
		res, err := p.Export(ctx, q)
		return exportDoneMsg{query: q, result: res, err: err}
	}
}

// openBoard starts watching every configured card at the current period.
func (m *Model) openBoard() tea.Cmd {
	m.closeBoard()
	m.board = m.cards.NewBoard(m.ctx, m.cfg.CardNames(), m.period)
	m.states = m.board.States()
	m.view = ViewCards
	m.lastCardRefresh = m.now()
	return waitCardCmd(m.board)
}

func (m *Model) closeBoard() {
	if m.board != nil {
		m.board.Close()
		m.board = nil
	}
	m.states = nil
}

func (m Model) handleCardState(msg cardStateMsg) (tea.Model, tea.Cmd) {
	if msg.board != m.board || m.board == nil {
		return m, nil
	}
	for i := range m.states {
		if m.states[i].Query.Card == msg.state.Query.Card {
			m.states[i] = msg.state
			break
		}
	}
	return m, waitCardCmd(m.board)
}

// selectedQuery is the CardQuery behind the focused card.
func (m Model) selectedQuery() (api.CardQuery, bool) {
	names := m.cfg.CardNames()
	if m.selected < 0 || m.selected >= len(names) {
		return api.CardQuery{}, false
	}
	return api.CardQuery{Card: names[m.selected], Period: m.period}, true
}

func (m Model) startExport(q api.CardQuery) (tea.Model, tea.Cmd) {
	if m.exports.State(q) == export.Exporting {
		m.flash("Export of "+m.cardTitle(q.Card)+" already in progress", false)
		return m, nil
	}
	m.flash("Exporting "+m.cardTitle(q.Card)+"...", false)
	return m, exportCmd(m.ctx, m.exports, q)
}

func (m Model) handleExportDone(msg exportDoneMsg) (tea.Model, tea.Cmd) {
	switch {
	case errors.Is(msg.err, export.ErrInProgress):
		m.flash("Export of "+m.cardTitle(msg.query.Card)+" already in progress", false)
	case msg.err != nil:
		m.flash(msg.err.Error(), true)
	default:
		m.flash("Saved "+msg.result.Path+" ("+formatBytes(int64(msg.result.Size))+")", false)
	}
	return m, nil
}

func (m Model) handleCardsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.cfg.Cards)
	cols := gridColumns(m.width)

	switch {
	case key.Matches(msg, m.keys.Left):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Right):
		if m.selected < count-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.Up):
		if m.selected-cols >= 0 {
			m.selected -= cols
		}
	case key.Matches(msg, m.keys.Down):
		if m.selected+cols < count {
			m.selected += cols
		}
	case key.Matches(msg, m.keys.Period):
		m.modal = newPeriodPicker(m.snapshot.Periods, m.period)
	case key.Matches(msg, m.keys.Refresh):
		if m.board != nil {
			m.board.RefreshAll()
			m.lastCardRefresh = m.now()
		}
	case key.Matches(msg, m.keys.Preview):
		if q, ok := m.selectedQuery(); ok {
			return m.startPreview(q)
		}
	case key.Matches(msg, m.keys.Export):
		if q, ok := m.selectedQuery(); ok {
			return m.startExport(q)
		}
	}
	return m, nil
}

func (m Model) handlePeriodChosen(p api.Period) (tea.Model, tea.Cmd) {
	if p == m.period {
		return m, nil
	}
	m.period = p
	if m.board != nil {
		m.board.SetPeriod(p)
		m.lastCardRefresh = m.now()
	}
	m.savePrefs()
	return m, nil
}

func (m Model) cardTitle(name string) string {
	if c, ok := m.cfg.Card(name); ok && c.Title != "" {
		return c.Title
	}
	return name
}

func (m Model) cardFormat(name string) string {
	if c, ok := m.cfg.Card(name); ok {
		return c.Format
	}
	return ""
}

// renderCards renders the card grid.
func (m Model) renderCards() string {
	if len(m.states) == 0 {
		return m.theme.Styles().FaintText.Render("  No cards configured")
	}
	cols := gridColumns(m.width)

	var rows []string
	var row []string
	for i, st := range m.states {
		row = append(row, m.renderCard(i, st))
		if len(row) == cols || i == len(m.states)-1 {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, spaced(row)...))
			row = nil
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func spaced(boxes []string) []string {
	out := make([]string, 0, len(boxes)*2)
	for i, b := range boxes {
		if i > 0 {
			out = append(out, strings.Repeat(" ", CardGap))
		}
		out = append(out, b)
	}
	return out
}

func (m Model) renderCard(i int, st card.State) string {
	styles := m.theme.Styles()
	inner := CardWidth - 4 // border + padding

	name := st.Query.Card
	title := styles.CardTitle(i).Render(truncate(m.cardTitle(name), inner))

	value := cardValue(st, m.cardFormat(name))
	valueLine := styles.Text.Bold(true).Render(truncate(value, inner))
	if st.Loading {
		valueLine = m.spinner.View() + " " + styles.MutedText.Render(value)
	}

	var status string
	switch {
	case m.exports.State(st.Query) == export.Exporting:
		status = styles.SuccessText.Render(m.spinner.View() + " exporting")
	case st.Err != nil:
		status = styles.DangerText.Render(truncate(api.UserMessage(st.Err), inner))
	default:
		if text, dir, ok := Trend(st.Metric.Change); ok && st.HasValue {
			status = styles.TrendStyle(dir).Render(text)
		} else {
			status = styles.FaintText.Render(periodLabel(st.Query.Period))
		}
	}

	box := styles.Card
	if i == m.selected {
		box = styles.CardFocused
	}
	return box.Width(CardWidth - 2).Render(title + "\n" + valueLine + "\n" + status)
}
