package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which compact mode is used.
	LayoutCompactWidth = 100

	// LayoutSplitWidth is the minimum width to show details beside the table.
	// Narrower terminals stack the details pane below it.
	LayoutSplitWidth = 140

	// LayoutTitleWidth is the minimum width to show the title column.
	LayoutTitleWidth = 110
)

// Timing constants.
const (
	// DefaultUIInterval is how often the model re-reads the snapshot store.
	DefaultUIInterval = 250 * time.Millisecond

	// FlashDuration is how long a flash message stays visible.
	FlashDuration = 5 * time.Second
)

// maxLogLines bounds how much of the log file the log view reads.
const maxLogLines = 500
