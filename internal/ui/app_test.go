package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/metricdeck/internal/api"
	"github.com/five82/metricdeck/internal/backendtest"
	"github.com/five82/metricdeck/internal/card"
	"github.com/five82/metricdeck/internal/config"
	"github.com/five82/metricdeck/internal/export"
	"github.com/five82/metricdeck/internal/prefs"
	"github.com/five82/metricdeck/internal/preview"
	"github.com/five82/metricdeck/internal/session"
	"github.com/five82/metricdeck/internal/state"
	"github.com/five82/metricdeck/internal/storage"
)

type harness struct {
	backend   *backendtest.Backend
	session   *session.Store
	store     *state.Store
	downloads string
	prefsPath string
	opts      Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := backendtest.New(t)
	sess := session.NewStore(storage.NewMemory(), nil, zerolog.Nop())
	client, err := api.NewClient(sess, api.Options{BaseURL: backend.URL(), Timeout: 2 * time.Second})
	require.NoError(t, err)
	sess.SetAuthenticator(client)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{
		backend:   backend,
		session:   sess,
		store:     &state.Store{},
		downloads: t.TempDir(),
		prefsPath: filepath.Join(t.TempDir(), "prefs.toml"),
	}
	cfg := config.Config{
		APIURL: backend.URL(),
		Cards: []config.Card{
			{Name: "total_ativacoes", Title: "Total de Ativações", Format: config.FormatNumber},
			{Name: "faturamento", Title: "Faturamento", Format: config.FormatCurrency},
		},
	}
	h.opts = Options{
		Context:   ctx,
		Config:    cfg,
		Session:   sess,
		Cards:     card.NewService(client, 2*time.Second, zerolog.Nop()),
		Exports:   export.NewPipeline(client, export.NewFileSaver(h.downloads), zerolog.Nop()),
		Preview:   preview.NewController(client, nil, zerolog.Nop()),
		Store:     h.store,
		Logger:    zerolog.Nop(),
		PrefsPath: h.prefsPath,
	}
	return h
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok, "Update returned %T", next)
	return nm, cmd
}

// run executes cmd and returns its message, failing if it blocks.
func run(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	require.NotNil(t, cmd)
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("command did not finish")
		return nil
	}
}

func press(t *testing.T, m Model, keys string) (Model, tea.Cmd) {
	t.Helper()
	switch keys {
	case "enter":
		return update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	case "down":
		return update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	default:
		return update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
	}
}

// settle feeds card updates into m until no card is loading. It returns the
// pending wait command for the next update.
func settle(t *testing.T, m Model, cmd tea.Cmd) (Model, tea.Cmd) {
	t.Helper()
	for range 50 {
		loading := false
		for _, st := range m.states {
			loading = loading || st.Loading
		}
		if !loading {
			return m, cmd
		}
		m, cmd = update(t, m, run(t, cmd))
	}
	t.Fatal("cards never settled")
	return m, nil
}

func loggedIn(t *testing.T, h *harness) (Model, tea.Cmd) {
	t.Helper()
	m := New(h.opts)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	require.Equal(t, ViewLogin, m.view)

	m.login.email.SetValue("ana@example.com")
	m.login.password.SetValue("secret")
	m.login.setFocus(1)
	m, cmd := press(t, m, "enter")
	require.True(t, m.login.submitting)

	msg := run(t, cmd)
	require.IsType(t, loginResultMsg{}, msg)
	m, cmd = update(t, m, msg)
	require.Equal(t, ViewCards, m.view)
	require.NotNil(t, m.board)
	t.Cleanup(func() { m.board.Close() })
	return settle(t, m, cmd)
}

func TestModel_LoginShowsCards(t *testing.T) {
	h := newHarness(t)
	h.backend.SetCard("total_ativacoes", "consolidated", map[string]any{"value": 1523, "change": 4.2})

	m, _ := loggedIn(t, h)

	require.Len(t, m.states, 2)
	assert.Equal(t, "1.523", cardValue(m.states[0], config.FormatNumber))
	assert.Equal(t, "---", cardValue(m.states[1], config.FormatCurrency))
	assert.Error(t, m.states[1].Err)

	view := m.View()
	assert.Contains(t, view, "1.523")
	assert.Contains(t, view, "Total de Ativações")
	assert.Contains(t, view, "▲ 4.2%")
}

func TestModel_LoginRejectedStaysOnForm(t *testing.T) {
	h := newHarness(t)
	m := New(h.opts)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m.login.email.SetValue("ana@example.com")
	m.login.password.SetValue("wrong")
	m.login.setFocus(1)
	m, cmd := press(t, m, "enter")
	m, _ = update(t, m, run(t, cmd))

	assert.Equal(t, ViewLogin, m.view)
	assert.Nil(t, m.board)
	assert.NotEmpty(t, m.login.err)
	assert.Empty(t, m.login.password.Value())
}

func TestModel_LoginRequiresBothFields(t *testing.T) {
	h := newHarness(t)
	m := New(h.opts)
	m.login.setFocus(1)

	m, cmd := press(t, m, "enter")
	assert.Nil(t, cmd)
	assert.Equal(t, "Email and password are required.", m.login.err)
	assert.Zero(t, h.backend.Calls(backendtest.RouteLogin))
}

func TestModel_PeriodPickerSwitchesBoard(t *testing.T) {
	h := newHarness(t)
	h.backend.SetCard("total_ativacoes", "consolidated", map[string]any{"value": 1523})
	h.backend.SetCard("total_ativacoes", "2024-06", map[string]any{"value": 87})
	m, cmd := loggedIn(t, h)

	h.store.Update([]api.Period{"2024-05", "2024-06"}, nil)
	m, _ = update(t, m, snapshotMsg(h.store.Snapshot()))

	m, _ = press(t, m, "p")
	require.NotNil(t, m.modal)
	m, _ = press(t, m, "down")
	m, chosen := press(t, m, "enter")
	require.Nil(t, m.modal)

	m, _ = update(t, m, run(t, chosen))
	assert.Equal(t, api.Period("2024-06"), m.period)
	assert.Equal(t, api.Period("2024-06"), m.board.Period())

	for range 20 {
		st := m.states[0]
		if st.Query.Period == "2024-06" && !st.Loading {
			break
		}
		m, cmd = update(t, m, run(t, cmd))
	}
	assert.Equal(t, "87", cardValue(m.states[0], config.FormatNumber))
	assert.Equal(t, "consolidated=false&date=2024-06", h.backend.LastQuery(backendtest.RouteCard))

	saved, err := prefs.Load(h.prefsPath)
	require.NoError(t, err)
	assert.Equal(t, api.Period("2024-06"), saved.Period)
}

func TestModel_PreviewPaging(t *testing.T) {
	h := newHarness(t)
	h.backend.SetCard("total_ativacoes", "consolidated", map[string]any{"value": 1})
	records := make([]map[string]any, 120)
	for i := range records {
		records[i] = map[string]any{"nome": fmt.Sprintf("Cliente %d", i), "codigo": i + 1}
	}
	body, err := json.Marshal(map[string]any{"data": records})
	require.NoError(t, err)
	h.backend.SetPreview("total_ativacoes", string(body))

	m, _ := loggedIn(t, h)
	m, cmd := press(t, m, "enter")
	require.Equal(t, ViewPreview, m.view)
	require.True(t, m.previewLoading)

	m, _ = update(t, m, run(t, cmd))
	require.False(t, m.previewLoading)
	assert.Empty(t, m.previewErr)
	assert.Equal(t, 1, m.preview.Page())
	assert.Equal(t, 3, m.preview.TotalPages())
	assert.Len(t, m.table.Rows(), 50)
	assert.Equal(t, []string{"codigo", "nome"}, []string{m.table.Columns()[0].Title, m.table.Columns()[1].Title})

	m, _ = press(t, m, "n")
	assert.Equal(t, 2, m.preview.Page())
	m, _ = press(t, m, "G")
	assert.Equal(t, 3, m.preview.Page())
	assert.Len(t, m.table.Rows(), 20)
	m, _ = press(t, m, "n")
	assert.Equal(t, 3, m.preview.Page())

	assert.Contains(t, m.View(), "Page 3 of 3")
}

func TestModel_ExportSavesFile(t *testing.T) {
	h := newHarness(t)
	h.backend.SetCard("total_ativacoes", "consolidated", map[string]any{"value": 1})
	h.backend.SetExport("total_ativacoes", backendtest.Export{
		Data:        []byte("xlsx-bytes"),
		Disposition: `attachment; filename="ativacoes.xlsx"`,
	})

	m, _ := loggedIn(t, h)
	m, cmd := press(t, m, "x")
	require.NotNil(t, cmd)

	m, _ = update(t, m, run(t, cmd))
	assert.False(t, m.flashErr)
	assert.True(t, strings.HasPrefix(m.flashText, "Saved "), m.flashText)

	data, err := os.ReadFile(filepath.Join(h.downloads, "ativacoes.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, "xlsx-bytes", string(data))
}

func TestModel_ExportFailureFlashesError(t *testing.T) {
	h := newHarness(t)
	h.backend.SetCard("total_ativacoes", "consolidated", map[string]any{"value": 1})

	m, _ := loggedIn(t, h)
	m, cmd := press(t, m, "x")
	m, _ = update(t, m, run(t, cmd))

	assert.True(t, m.flashErr)
	assert.Contains(t, m.flashText, "export total_ativacoes")
	assert.Equal(t, export.Idle, m.exports.State(api.CardQuery{Card: "total_ativacoes", Period: api.Consolidated}))
}

func TestModel_TickReturnsToLoginWhenSessionCleared(t *testing.T) {
	h := newHarness(t)
	m, _ := loggedIn(t, h)

	h.session.Clear()
	m, _ = update(t, m, tickMsg(time.Now()))

	assert.Equal(t, ViewLogin, m.view)
	assert.Nil(t, m.board)
	assert.Equal(t, "Session expired. Please log in again.", m.login.err)
	assert.Equal(t, "ana@example.com", m.login.email.Value())
}

func TestModel_TickRefreshesCardsAfterInterval(t *testing.T) {
	h := newHarness(t)
	h.backend.SetCard("total_ativacoes", "consolidated", map[string]any{"value": 1})
	h.opts.PollTick = time.Minute
	m, _ := loggedIn(t, h)

	now := time.Now()
	m.clock = func() time.Time { return now }
	before := h.backend.Calls(backendtest.RouteCard)

	m.lastCardRefresh = now.Add(-30 * time.Second)
	m, _ = update(t, m, tickMsg(now))
	assert.Equal(t, before, h.backend.Calls(backendtest.RouteCard))

	m.lastCardRefresh = now.Add(-2 * time.Minute)
	m, _ = update(t, m, tickMsg(now))
	assert.Equal(t, now, m.lastCardRefresh)
	assert.Eventually(t, func() bool {
		return h.backend.Calls(backendtest.RouteCard) >= before+2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestModel_CycleThemePersists(t *testing.T) {
	h := newHarness(t)
	m, _ := loggedIn(t, h)

	m, _ = press(t, m, "T")
	assert.Equal(t, "Kanagawa", m.theme.Name)

	saved, err := prefs.Load(h.prefsPath)
	require.NoError(t, err)
	assert.Equal(t, "Kanagawa", saved.Theme)
}

func TestPeriodOptions(t *testing.T) {
	got := periodOptions([]api.Period{"2024-04", "consolidated", "2024-06", "", "2024-05", "2024-06"})
	assert.Equal(t, []api.Period{api.Consolidated, "2024-06", "2024-05", "2024-04"}, got)

	assert.Equal(t, []api.Period{api.Consolidated}, periodOptions(nil))
}

func TestGridColumns(t *testing.T) {
	assert.Equal(t, 1, gridColumns(10))
	assert.Equal(t, 1, gridColumns(CardWidth))
	assert.Equal(t, 2, gridColumns(2*CardWidth+CardGap))
	assert.Equal(t, 3, gridColumns(100))
}
