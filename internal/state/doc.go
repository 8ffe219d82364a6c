// Package state provides thread-safe state shared between the background
// poller and the UI.
//
// # Architecture
//
// The package follows a producer-consumer pattern:
//
//	Producer (Poller):                 Consumer (UI):
//	┌──────────────────────────┐       ┌──────────────────┐
//	│ FetchAvailablePeriods()  │       │                  │
//	│      ↓                   │       │                  │
//	│ store.Update()           │──────→│ store.Snapshot() │
//	│                          │(mutex)│      ↓           │
//	│                          │       │ render UI        │
//	└──────────────────────────┘       └──────────────────┘
//
// Card values do not pass through the Store; each card publishes its own
// stream (see package card). The Store only holds the period list and the
// health of the last poll.
//
// # Update Semantics
//
//	// Success case: replace the period list
//	store.Update(periods, nil)
//
//	// Error case: keep old data, record error, count the failure
//	store.Update(nil, err)
//
// Two consecutive failures mark the snapshot offline.
//
// The Store is safe to use as a zero value. Snapshot returns copies, so the
// UI can hold on to one without racing the poller.
package state
