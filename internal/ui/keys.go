package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Tab        key.Binding
	Escape     key.Binding
	Logout     key.Binding

	// View switching
	ViewCards key.Binding
	ViewLogs  key.Binding

	// Card grid
	Left    key.Binding
	Right   key.Binding
	Up      key.Binding
	Down    key.Binding
	Period  key.Binding
	Refresh key.Binding
	Preview key.Binding
	Export  key.Binding

	// Preview pages
	NextPage  key.Binding
	PrevPage  key.Binding
	FirstPage key.Binding
	LastPage  key.Binding

	// Logs
	ToggleFollow key.Binding
	LogLevel     key.Binding

	// Forms and pickers
	Confirm key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "Cycle views"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Back to cards"),
		),
		Logout: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Log out"),
		),

		ViewCards: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "Cards"),
		),
		ViewLogs: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "Logs"),
		),

		Left: key.NewBinding(
			key.WithKeys("h", "left"),
			key.WithHelp("h/←", "Previous card"),
		),
		Right: key.NewBinding(
			key.WithKeys("l", "right"),
			key.WithHelp("l/→", "Next card"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "Move down"),
		),
		Period: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "Choose period"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refresh cards"),
		),
		Preview: key.NewBinding(
			key.WithKeys("enter", "v"),
			key.WithHelp("enter", "Preview card data"),
		),
		Export: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Export card data"),
		),

		NextPage: key.NewBinding(
			key.WithKeys("n", "pgdown", "right"),
			key.WithHelp("n/→", "Next page"),
		),
		PrevPage: key.NewBinding(
			key.WithKeys("N", "pgup", "left"),
			key.WithHelp("N/←", "Previous page"),
		),
		FirstPage: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "First page"),
		),
		LastPage: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Last page"),
		),

		ToggleFollow: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("Space", "Toggle follow mode"),
		),
		LogLevel: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "Cycle level filter"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Period, k.Preview, k.Export, k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ViewCards, k.ViewLogs, k.Escape},
		{k.Left, k.Right, k.Up, k.Down},
		{k.Period, k.Refresh, k.Preview, k.Export},
		{k.NextPage, k.PrevPage, k.FirstPage, k.LastPage},
		{k.ToggleFollow, k.LogLevel},
		{k.CycleTheme, k.Logout, k.Help, k.Quit},
	}
}
