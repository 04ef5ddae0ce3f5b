// Package app is the composition root for crawldeck.
//
// # Overview
//
// Run wires configuration, the stored session, the API client, the sync
// controller, the polling scheduler and the UI together, then blocks until
// the user quits or the context is cancelled. Login, Register and Logout
// manage the session file used by Run.
//
// # Data Flow
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> config.Load()          config.toml + flag overrides
//	       ├─────> session.Load()         bearer token, fails fast if absent
//	       ├─────> tea.LogToFile()        log output off the screen
//	       ├─────> crawlapi.NewClient()   HTTP client bound to the session
//	       ├─────> collection.New()       publishes snapshots to state.Store
//	       ├─────> NewPoller()            subscribed to the store
//	       └─────> ui.Run()               blocks
//
// # Polling Behavior
//
// The Poller observes every published snapshot. While any visible item is
// queued or running it calls Controller.Refresh on a fixed interval
// (default 5 seconds); otherwise it holds no timer. A tick that arrives
// while the previous refresh is still running is skipped.
//
// # Error Handling
//
// Configuration, session and client setup errors are returned from Run.
// Fetch and mutation failures after startup are recorded in the snapshot or
// returned to the UI, which shows them without exiting.
package app
