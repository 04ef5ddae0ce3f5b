// Package state provides the observable snapshot store shared by the
// collection controller, the poller and the UI.
//
// # Overview
//
// The controller is the only producer. Every change it makes (a fetch
// starting, a fetch landing, a selection toggle) is published as a complete
// Snapshot with a larger Version. Consumers either read the latest snapshot
// or subscribe to be told about new ones.
//
//	Producer (Controller):          Consumers:
//	┌───────────────────┐          ┌─────────────────────┐
//	│ fetch / mutate    │          │ Poller.Observe      │
//	│      ↓            │          │ UI snapshot channel │
//	│ store.Publish(v)  │─────────→│ store.Snapshot()    │
//	└───────────────────┘ (ordered)└─────────────────────┘
//
// # Ordering
//
// Publish drops any snapshot whose Version is not newer than the stored one,
// and notifications are delivered under a dedicated mutex, so subscribers see
// strictly increasing versions even when publishers race.
//
// # Subscribers
//
// Subscribers run on the publishing goroutine. They must return quickly and
// must not call Publish. The UI adapts the callback into a single-slot
// channel that keeps only the newest snapshot.
//
// # Copies
//
// Snapshots are returned by value with items, results, selection and error
// cloned, so callers can hold them without synchronization.
//
// # Zero Value
//
//	store := &state.Store{} // ready to use; Snapshot() returns the zero Snapshot
package state
