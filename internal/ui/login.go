package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/metricdeck/internal/api"
	"github.com/five82/metricdeck/internal/session"
)

// loginForm is the email/password form shown while no session is active.
type loginForm struct {
	email      textinput.Model
	password   textinput.Model
	focus      int
	submitting bool
	err        string
}

func newLoginForm() loginForm {
	email := textinput.New()
	email.Placeholder = "email"
	email.Prompt = "Email    "
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return loginForm{email: email, password: password}
}

func (f *loginForm) setFocus(i int) {
	f.focus = i % 2
	if f.focus == 0 {
		f.email.Focus()
		f.password.Blur()
	} else {
		f.password.Focus()
		f.email.Blur()
	}
}

// reset clears the password and any error, keeping the email.
func (f *loginForm) reset(message string) {
	f.password.SetValue("")
	f.submitting = false
	f.err = message
	if strings.TrimSpace(f.email.Value()) == "" {
		f.setFocus(0)
	} else {
		f.setFocus(1)
	}
}

type loginResultMsg struct {
	session session.Session
	err     error
}

func loginCmd(ctx context.Context, store *session.Store, email, password string) tea.Cmd {
	return func() tea.Msg {
		sess, err := store.Login(ctx, email, password)
		return loginResultMsg{session: sess, err: err}
	}
}

// handleLoginKey processes keyboard input while the login form is shown.
func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := &m.login
	if f.submitting {
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "down", "shift+tab", "up":
		f.setFocus(f.focus + 1)
		return m, nil
	case "enter":
		if f.focus == 0 {
			f.setFocus(1)
			return m, nil
		}
		email := strings.TrimSpace(f.email.Value())
		password := f.password.Value()
		if email == "" || password == "" {
			f.err = "Email and password are required."
			return m, nil
		}
		f.submitting = true
		f.err = ""
		return m, loginCmd(m.ctx, m.session, email, password)
	}

	var cmd tea.Cmd
	if f.focus == 0 {
		f.email, cmd = f.email.Update(msg)
	} else {
		f.password, cmd = f.password.Update(msg)
	}
	return m, cmd
}

func (m Model) handleLoginResult(msg loginResultMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.login.reset(api.UserMessage(msg.err))
		return m, nil
	}
	m.login.reset("")
	m.flash("Signed in as "+msg.session.User.Email, false)
	cmd := m.openBoard()
	return m, cmd
}

func (m Model) renderLogin() string {
	styles := m.theme.Styles()
	f := m.login

	var b strings.Builder
	b.WriteString(styles.Logo.Render("metricdeck"))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(m.cfg.APIURL))
	b.WriteString("\n\n")
	b.WriteString(f.email.View())
	b.WriteString("\n")
	b.WriteString(f.password.View())
	b.WriteString("\n\n")

	switch {
	case f.submitting:
		b.WriteString(m.spinner.View() + " " + styles.MutedText.Render("Signing in..."))
	case f.err != "":
		b.WriteString(styles.DangerText.Render(f.err))
	default:
		b.WriteString(styles.FaintText.Render("enter to sign in · tab to switch field · esc to quit"))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.BorderFocus)).
		Padding(1, 2).
		Width(52).
		Render(b.String())

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
