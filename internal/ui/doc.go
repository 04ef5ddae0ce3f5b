// Package ui provides the terminal dashboard for crawldeck.
//
// # Architecture Overview
//
// The UI is a Bubble Tea program. It never talks to the API directly: every
// query change and mutation goes through a Controller, and the rendered data
// always comes from the latest state.Snapshot. The model re-reads the store
// on a fixed tick and once more after each command completes, so background
// refreshes driven by the poller show up without a subscription.
//
// # Package Structure
//
//   - app.go: Model, Update loop, key handling and tea.Cmd wiring
//   - header.go: header, command bar, status line and pagination footer
//   - table.go: URL table, column layout and titled pane boxes
//   - detail.go: details pane for the item under the cursor
//   - logs.go: tail of the client log file (logtail)
//   - help.go, keys.go: key map and help overlay
//   - theme.go, style_helpers.go: palettes and background-safe rendering
//
// # Layout
//
//	┌ header:  crawldeck · user · totals · loading/live · errors ┐
//	│ command bar: search, status filter, sort, key hints        │
//	│ status line: prompt, session banner or flash message       │
//	│ URLs table            │ details (wide terminals)           │
//	└ footer:  range and page controls                           ┘
//
// Narrow terminals stack the details pane under the table.
//
// # Event Flow
//
//  1. Run starts the program with the controller and store.
//  2. tickMsg triggers fetchSnapshotCmd; snapshotMsg replaces the model's
//     snapshot when its Version is not older.
//  3. Keys produce commands that call the Controller off the UI goroutine
//     and answer with snapshotMsg, actionDoneMsg or detailsMsg.
//  4. A failed action shows "<op> failed: <reason>"; an unauthorized
//     response raises the sticky session banner.
//
// # Key Bindings
//
//   - j/k, g/G: Move the cursor
//   - [ / ]: Previous and next page
//   - enter / esc: Open and close details
//   - /: Search, f: Cycle status filter, 1-5: Sort, r: Refresh
//   - space / a: Toggle row / all visible rows
//   - n: Add, s: Start, x: Stop, e: Rerun, d: Delete
//   - R / D: Rerun or delete the selection
//   - L: Toggle log view, T: Cycle theme, ?: Help, q: Quit
package ui
