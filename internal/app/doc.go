// Package app is the composition root of metricdeck.
//
// # Architecture
//
// New wires the components in dependency order:
//
//  1. storage.Open: durable key-value store for the session (file, sqlite or memory)
//  2. session.NewStore: the four-state session over that storage
//  3. api.NewClient: HTTP client reading tokens from the session; it is then
//     attached to the session as its Authenticator
//  4. session.Restore: reload a persisted session
//  5. card.NewService, export.NewPipeline: card value streams and exports
//
// Run then starts the poller and the TUI:
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> StartPoller()  period list into state.Store, with backoff
//	       ├─────> refresh()      initial period fetch when signed in
//	       └─────> ui.Run()       TUI (blocks)
//
// The CLI subcommands use New directly and call the components without the TUI.
//
// # Polling Behavior
//
// While a session is active the poller fetches the available periods every
// refresh interval (default 60s). After a failure it retries after 2s, 4s, 8s
// and so on, capped at 30s, until the backend answers again. Card values are
// refreshed by the UI on the same interval.
//
// # Error Handling
//
// Fatal errors returned from New: storage that cannot be opened and an invalid
// API URL. Poll errors are logged and recorded in the state.Store; two in a row
// mark the dashboard offline.
package app
