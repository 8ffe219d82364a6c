package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/five82/metricdeck/internal/api"
	"github.com/five82/metricdeck/internal/card"
	"github.com/five82/metricdeck/internal/config"
	"github.com/five82/metricdeck/internal/export"
	"github.com/five82/metricdeck/internal/prefs"
	"github.com/five82/metricdeck/internal/preview"
	"github.com/five82/metricdeck/internal/session"
	"github.com/five82/metricdeck/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewLogin View = iota
	ViewCards
	ViewPreview
	ViewLogs
)

// Options configures the UI.
type Options struct {
	Context   context.Context
	Config    config.Config
	Session   *session.Store
	Cards     *card.Service
	Exports   *export.Pipeline
	Preview   *preview.Controller
	Store     *state.Store
	Logger    zerolog.Logger
	PollTick  time.Duration // card refresh interval
	ThemeName string
	Period    api.Period // initial period
	PrefsPath string
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	cfg       config.Config
	session   *session.Store
	cards     *card.Service
	exports   *export.Pipeline
	preview   *preview.Controller
	store     *state.Store
	logger    zerolog.Logger
	prefsPath string
	cardTick  time.Duration
	clock     func() time.Time

	// UI state
	theme    Theme
	keys     keyMap
	view     View
	width    int
	height   int
	ready    bool
	showHelp bool
	modal    Modal
	spinner  spinner.Model

	// Data state
	snapshot state.Snapshot

	// Card grid
	board           *card.Board
	states          []card.State
	selected        int
	period          api.Period
	lastCardRefresh time.Time

	// Login
	login loginForm

	// Preview
	table          table.Model
	previewQuery   api.CardQuery
	previewLoading bool
	previewErr     string

	// Logs
	logViewport viewport.Model
	logState    logState

	// Footer flash message
	flashText  string
	flashErr   bool
	flashUntil time.Time
}

// New creates a new Bubble Tea model. When a session is already active the
// card board starts immediately; otherwise the login form is shown.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	cardTick := opts.PollTick
	if cardTick <= 0 {
		cardTick = DefaultCardInterval
	}

	period := opts.Period
	if strings.TrimSpace(string(period)) == "" {
		period = api.Consolidated
	}

	theme := GetTheme(opts.ThemeName)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Accent))

	m := Model{
		ctx:         ctx,
		cfg:         opts.Config,
		session:     opts.Session,
		cards:       opts.Cards,
		exports:     opts.Exports,
		preview:     opts.Preview,
		store:       opts.Store,
		logger:      opts.Logger.With().Str("component", "ui").Logger(),
		prefsPath:   opts.PrefsPath,
		cardTick:    cardTick,
		theme:       theme,
		keys:        DefaultKeyMap(),
		view:        ViewLogin,
		spinner:     sp,
		period:      period,
		login:       newLoginForm(),
		table:       newPreviewTable(theme),
		logViewport: newLogViewport(),
		logState:    logState{follow: true},
	}
	if user := m.session.Snapshot().User.Email; user != "" {
		m.login.email.SetValue(user)
	}
	if m.session.Status() == session.Authenticated {
		m.openBoard()
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnterAltScreen,
		tickCmd(DefaultUIInterval),
		m.spinner.Tick,
	}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.board != nil {
		cmds = append(cmds, waitCardCmd(m.board))
	} else {
		cmds = append(cmds, textinput.Blink)
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.updateLogViewport()
		if m.view == ViewPreview && !m.previewLoading {
			m.updatePreviewTable()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		return m, nil

	case cardStateMsg:
		return m.handleCardState(msg)

	case loginResultMsg:
		return m.handleLoginResult(msg)

	case loggedOutMsg:
		m.flash("Signed out", false)
		return m, nil

	case periodChosenMsg:
		return m.handlePeriodChosen(api.Period(msg))

	case previewLoadedMsg:
		return m.handlePreviewLoaded(msg)

	case exportDoneMsg:
		return m.handleExportDone(msg)

	case logsMsg:
		return m.handleLogs(msg)
	}

	// Cursor blink and other input messages.
	if m.view == ViewLogin {
		var cmd tea.Cmd
		if m.login.focus == 0 {
			m.login.email, cmd = m.login.email.Update(msg)
		} else {
			m.login.password, cmd = m.login.password.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.view == ViewLogin {
		return m.renderLogin()
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.modal != nil {
		return m.modal.View(m.theme, m.width, m.height)
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The login form owns every key, letters included.
	if m.view == ViewLogin {
		return m.handleLoginKey(msg)
	}

	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	if m.modal != nil {
		modal, cmd, closeModal := m.modal.Update(msg, m.keys)
		if closeModal {
			m.modal = nil
		} else {
			m.modal = modal
		}
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.table.SetStyles(previewTableStyles(m.theme))
		m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Accent))
		m.updateLogViewport()
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.Logout):
		m.closeBoard()
		m.view = ViewLogin
		m.login.reset("")
		return m, logoutCmd(m.ctx, m.session)

	case key.Matches(msg, m.keys.ViewCards):
		m.view = ViewCards
		return m, nil

	case key.Matches(msg, m.keys.ViewLogs):
		m.view = ViewLogs
		return m, m.refreshLogs()

	case key.Matches(msg, m.keys.Tab):
		if m.view == ViewLogs {
			m.view = ViewCards
			return m, nil
		}
		m.view = ViewLogs
		return m, m.refreshLogs()

	case key.Matches(msg, m.keys.Escape):
		m.view = ViewCards
		return m, nil
	}

	switch m.view {
	case ViewCards:
		return m.handleCardsKey(msg)
	case ViewPreview:
		return m.handlePreviewKey(msg)
	case ViewLogs:
		return m.handleLogsKey(msg)
	}
	return m, nil
}

// handleTick processes the UI tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}

	// A failed token refresh clears the session underneath us.
	if m.view != ViewLogin && m.session.Status() != session.Authenticated {
		m.closeBoard()
		m.view = ViewLogin
		m.modal = nil
		m.login.reset(api.UserMessage(api.ErrAuthRequired))
		cmds = append(cmds, textinput.Blink)
	}

	if m.board != nil && m.now().Sub(m.lastCardRefresh) >= m.cardTick {
		m.board.RefreshAll()
		m.lastCardRefresh = m.now()
	}

	if m.view == ViewLogs && m.logState.follow {
		if cmd := m.refreshLogs(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}

	cmds = append(cmds, tickCmd(DefaultUIInterval))
	return m, tea.Batch(cmds...)
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n\n")

	switch m.view {
	case ViewPreview:
		b.WriteString(m.renderPreview())
	case ViewLogs:
		b.WriteString(m.renderLogs())
	default:
		b.WriteString(m.renderCards())
	}

	if footer := m.renderFooter(); footer != "" {
		b.WriteString("\n")
		b.WriteString(footer)
	}
	return b.String()
}

func (m *Model) flash(text string, isErr bool) {
	m.flashText = text
	m.flashErr = isErr
	m.flashUntil = m.now().Add(FlashDuration)
}

func (m Model) now() time.Time {
	if m.clock != nil {
		return m.clock()
	}
	return time.Now()
}

func (m Model) exportingCount() int {
	n := 0
	for _, st := range m.states {
		if m.exports.State(st.Query) == export.Exporting {
			n++
		}
	}
	return n
}

func (m Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	if err := prefs.Save(m.prefsPath, prefs.Prefs{Theme: m.theme.Name, Period: m.period}); err != nil {
		m.logger.Warn().Err(err).Msg("save preferences failed")
	}
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type loggedOutMsg struct{}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func logoutCmd(ctx context.Context, store *session.Store) tea.Cmd {
	return func() tea.Msg {
		store.Logout(ctx)
		return loggedOutMsg{}
	}
}

// Run starts the Bubble Tea program and closes the card board on exit.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		fm.closeBoard()
	} else {
		m.closeBoard()
	}
	if m.ctx.Err() != nil {
		return nil
	}
	return err
}
