package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Escape     key.Binding
	Logs       key.Binding

	// Navigation
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	PrevPage key.Binding
	NextPage key.Binding
	Details  key.Binding

	// Query
	Search      key.Binding
	CycleStatus key.Binding
	SortURL     key.Binding
	SortStatus  key.Binding
	SortTitle   key.Binding
	SortLinks   key.Binding
	SortCreated key.Binding
	Refresh     key.Binding

	// Selection
	Toggle    key.Binding
	SelectAll key.Binding

	// Actions
	Add        key.Binding
	Start      key.Binding
	Stop       key.Binding
	Rerun      key.Binding
	BulkRerun  key.Binding
	Delete     key.Binding
	BulkDelete key.Binding

	// Prompts
	Confirm key.Binding
	Yes     key.Binding
	No      key.Binding
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
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Close details or logs"),
		),
		Logs: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Toggle log view"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),
		PrevPage: key.NewBinding(
			key.WithKeys("[", "pgup"),
			key.WithHelp("[", "Previous page"),
		),
		NextPage: key.NewBinding(
			key.WithKeys("]", "pgdown"),
			key.WithHelp("]", "Next page"),
		),
		Details: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Show details"),
		),

		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "Search"),
		),
		CycleStatus: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "Cycle status filter"),
		),
		SortURL: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "Sort by URL"),
		),
		SortStatus: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "Sort by status"),
		),
		SortTitle: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "Sort by title"),
		),
		SortLinks: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "Sort by internal links"),
		),
		SortCreated: key.NewBinding(
			key.WithKeys("5"),
			key.WithHelp("5", "Sort by created"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refresh"),
		),

		Toggle: key.NewBinding(
			key.WithKeys(" ", "space"),
			key.WithHelp("space", "Toggle selection"),
		),
		SelectAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "Select all visible"),
		),

		Add: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "Add URL"),
		),
		Start: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Start crawl"),
		),
		Stop: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Stop crawl"),
		),
		Rerun: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "Rerun crawl"),
		),
		BulkRerun: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "Rerun selected"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Delete"),
		),
		BulkDelete: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "Delete selected"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),
		Yes: key.NewBinding(
			key.WithKeys("y", "Y", "enter"),
			key.WithHelp("y", "Yes"),
		),
		No: key.NewBinding(
			key.WithKeys("n", "N", "esc"),
			key.WithHelp("n", "No"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view, grouped by section.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bottom, k.PrevPage, k.NextPage, k.Details, k.Escape},
		{k.Search, k.CycleStatus, k.SortURL, k.SortStatus, k.SortTitle, k.SortLinks, k.SortCreated, k.Refresh},
		{k.Toggle, k.SelectAll},
		{k.Add, k.Start, k.Stop, k.Rerun, k.BulkRerun, k.Delete, k.BulkDelete},
		{k.Logs, k.CycleTheme, k.Help, k.Quit},
	}
}
