// Package ui provides the metricdeck terminal dashboard.
//
// # Architecture Overview
//
// The UI is a Bubble Tea program. Model holds all view state and talks to the
// data layer only through the services it is given in Options:
//
//   - session.Store: login form, logout, and detection of an expired session
//   - card.Service: a card.Board streams the value of every configured card
//   - preview.Controller: paged preview table for the focused card
//   - export.Pipeline: spreadsheet download for the focused card
//   - state.Store: period list and backend health, filled by the app poller
//
// Blocking calls run inside tea.Cmds; their results come back as messages.
// Card updates are pulled one at a time from Board.Changes by waitCardCmd.
//
// # Views
//
//   - Login: email/password form, shown until a session is active
//   - Cards: grid of card boxes with value, trend and export state
//   - Preview: the first page of a card's detail rows, 50 per page
//   - Logs: tail of the structured log file with a level filter
//
// The period picker and the help overlay are drawn over the current view.
//
// # Refresh
//
// A one second tick refreshes the header snapshot and, while following, the
// log view. Every card is refetched when the configured card interval has
// elapsed since the last refresh or period change.
//
// # Key Bindings
//
//   - 1 / 2, tab: Cards / Logs
//   - h j k l: move between cards
//   - p: choose period
//   - enter: preview, x: export, r: refresh
//   - n / N: next / previous preview page
//   - T: cycle theme, L: log out, ?: help, q: quit
package ui
